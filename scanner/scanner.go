// Package scanner runs a bounded BLE scan and builds the device catalog the
// operator selects from.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattstream/internal/bledb"
	"github.com/srg/gattstream/internal/catalog"
	"github.com/srg/gattstream/internal/device"
)

// advBuffer is the hand-off queue between the radio callback and the scan loop.
const advBuffer = 64

// errStopped ends a scan whose consumer stopped iterating.
var errStopped = errors.New("scan stopped by consumer")

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// Observer receives live discovery events.
type Observer interface {
	OnDiscovery(ev catalog.Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev catalog.Event)

func (f ObserverFunc) OnDiscovery(ev catalog.Event) { f(ev) }

// ScanOptions configures scanning behavior
type ScanOptions struct {
	Duration     time.Duration
	ServiceUUIDs []bledb.UUID
	AllowList    []string
	BlockList    []string
	Progress     ProgressCallback
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Duration: 10 * time.Second,
	}
}

// Scanner handles BLE device discovery
type Scanner struct {
	radio  device.Radio
	logger *logrus.Logger
}

// NewScanner creates a new BLE scanner
func NewScanner(radio device.Radio, logger *logrus.Logger) (*Scanner, error) {
	if radio == nil {
		return nil, fmt.Errorf("%w: scanner needs a radio", device.ErrRadioUnavailable)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{radio: radio, logger: logger}, nil
}

// Scan discovers devices for opts.Duration and returns the frozen catalog.
// When ctx is cancelled first, the partial catalog is returned together with
// ctx.Err().
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, observer Observer) (*catalog.Catalog, error) {
	cat := catalog.New()
	err := s.run(ctx, opts, cat, func(ev catalog.Event) bool {
		if observer != nil {
			observer.OnDiscovery(ev)
		}
		return true
	})
	return cat, err
}

// Events returns the discovery events of one scan as a lazy sequence. The
// sequence is finite and one-shot: ranging over it again yields a single
// ErrInvalidState error.
func (s *Scanner) Events(ctx context.Context, opts *ScanOptions) iter.Seq2[catalog.Event, error] {
	var used atomic.Bool
	return func(yield func(catalog.Event, error) bool) {
		if used.Swap(true) {
			yield(catalog.Event{}, fmt.Errorf("%w: scan already consumed", device.ErrInvalidState))
			return
		}

		err := s.run(ctx, opts, catalog.New(), func(ev catalog.Event) bool {
			return yield(ev, nil)
		})
		if err != nil && !errors.Is(err, errStopped) {
			yield(catalog.Event{}, err)
		}
	}
}

func (s *Scanner) run(ctx context.Context, opts *ScanOptions, cat *catalog.Catalog, yield func(catalog.Event) bool) error {
	if opts == nil {
		opts = DefaultScanOptions()
	}
	progress := opts.Progress
	if progress == nil {
		progress = func(string) {} // No-op callback
	}

	s.logger.WithField("duration", opts.Duration).Info("Starting BLE scan...")
	progress("Scanning")

	scanCtx, cancel := context.WithTimeout(ctx, opts.Duration)
	defer cancel()

	advs := make(chan device.Advertisement, advBuffer)
	done := make(chan error, 1)
	go func() {
		done <- s.radio.Scan(scanCtx, func(adv device.Advertisement) {
			select {
			case advs <- adv:
			case <-scanCtx.Done():
			}
		})
	}()

	handle := func(adv device.Advertisement) bool {
		if !cat.Has(adv.Address) && !opts.includes(adv) {
			return true
		}
		ev := catalog.Event{Type: cat.Classify(adv.Address), Adv: adv}
		snap, err := cat.Record(ev)
		if err != nil {
			return true
		}
		ev.Device = snap

		if ev.Type == catalog.EventNew {
			s.logger.WithFields(logrus.Fields{
				"device":  snap.Name,
				"address": snap.Address,
				"rssi":    snap.RSSI,
			}).Info("Discovered new device")
		}
		return yield(ev)
	}

	for {
		select {
		case adv := <-advs:
			if !handle(adv) {
				cancel()
				<-done
				cat.Freeze()
				return errStopped
			}

		case err := <-done:
			// The radio is stopped; flush what it queued before returning.
			for drained := false; !drained; {
				select {
				case adv := <-advs:
					if !handle(adv) {
						cat.Freeze()
						return errStopped
					}
				default:
					drained = true
				}
			}
			cat.Freeze()

			s.logger.WithField("device_count", cat.Len()).Info("BLE scan completed")
			progress("Processing results")

			return s.scanResult(ctx, err)
		}
	}
}

// scanResult tells the end of the scan window apart from cancellation and
// radio failure.
func (s *Scanner) scanResult(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err == nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil
	}
	if errors.Is(err, device.ErrRadioUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", device.ErrRadioUnavailable, err)
}

// includes applies the allow/block/service filters
func (o *ScanOptions) includes(adv device.Advertisement) bool {
	for _, blocked := range o.BlockList {
		if strings.EqualFold(adv.Address, blocked) {
			return false
		}
	}

	if len(o.AllowList) > 0 {
		allowed := false
		for _, a := range o.AllowList {
			if strings.EqualFold(adv.Address, a) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if len(o.ServiceUUIDs) > 0 {
		for _, required := range o.ServiceUUIDs {
			for _, u := range adv.Services {
				if required.Equal(u) {
					return true
				}
			}
		}
		return false
	}

	return true
}
