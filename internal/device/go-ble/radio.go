package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/gattstream/internal/device"
)

const (
	// DefaultDialTimeout bounds the HCI connection request when the caller's
	// context carries no deadline.
	DefaultDialTimeout = 30 * time.Second

	// DefaultChannelBuffer is the notification hand-off queue length.
	DefaultChannelBuffer = 128
)

// DeviceFactory creates the platform ble.Device (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newPlatformDevice

// adapter is the part of ble.Device the radio drives.
type adapter interface {
	Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
	Dial(ctx context.Context, a ble.Addr) (ble.Client, error)
}

// Options tune the radio.
type Options struct {
	AllowDuplicates bool
	ConnectTimeout  time.Duration
}

// Radio implements device.Radio on top of go-ble.
type Radio struct {
	logger *logrus.Logger
	opts   Options

	mu   sync.Mutex
	dev  adapter
	dial func(ctx context.Context, a ble.Addr) (Client, error)
	now  func() time.Time
}

var _ device.Radio = (*Radio)(nil)

// NewRadio creates a radio. The adapter is opened on first use.
func NewRadio(logger *logrus.Logger, opts Options) *Radio {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultDialTimeout
	}
	return &Radio{
		logger: logger,
		opts:   opts,
		now:    time.Now,
	}
}

func (r *Radio) open() (adapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dev != nil {
		return r.dev, nil
	}

	dev, err := DeviceFactory()
	if err != nil {
		r.logger.WithField("error", err).Error("Failed to open BLE adapter")
		return nil, radioUnavailable(err)
	}

	r.dev = dev
	if r.dial == nil {
		r.dial = func(ctx context.Context, a ble.Addr) (Client, error) {
			cln, err := dev.Dial(ctx, a)
			if err != nil {
				return nil, err
			}
			return cln, nil
		}
	}
	return dev, nil
}

// Scan runs the adapter in scanning mode until ctx ends. ctx.Err() is
// returned once the scan window closes.
func (r *Radio) Scan(ctx context.Context, handler func(device.Advertisement)) error {
	dev, err := r.open()
	if err != nil {
		return err
	}

	r.logger.WithField("allow_duplicates", r.opts.AllowDuplicates).Debug("Starting BLE scan")

	err = dev.Scan(ctx, r.opts.AllowDuplicates, func(a ble.Advertisement) {
		handler(NewAdvertisement(a, r.now()))
	})

	if ctxErr := ctx.Err(); ctxErr != nil {
		r.logger.WithField("reason", ctxErr).Debug("BLE scan stopped")
		return ctxErr
	}
	if err != nil {
		return radioUnavailable(err)
	}
	return nil
}

// Connect dials the peripheral and returns the live link.
func (r *Radio) Connect(ctx context.Context, address string, addrType device.AddressType) (device.Link, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("%w: device address is empty", device.ErrConnectionFailed)
	}

	if _, err := r.open(); err != nil {
		return nil, err
	}

	connCtx, cancel := context.WithTimeout(ctx, r.opts.ConnectTimeout)
	defer cancel()

	r.logger.WithFields(logrus.Fields{
		"address":      address,
		"address_type": addrType,
		"timeout":      r.opts.ConnectTimeout,
	}).Info("Connecting to BLE device...")

	cln, err := r.dial(connCtx, peerAddress(address, addrType))
	if err != nil {
		r.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s: %w", device.ErrConnectionFailed, address, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %s: %w", device.ErrConnectionFailed, address, NormalizeError(err))
	}

	return NewConnection(cln, address, r.logger), nil
}

func radioUnavailable(err error) error {
	norm := NormalizeError(err)
	if errors.Is(norm, device.ErrRadioUnavailable) {
		return norm
	}
	return fmt.Errorf("%w: %w", device.ErrRadioUnavailable, norm)
}
