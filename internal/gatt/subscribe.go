package gatt

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattstream/internal/bledb"
	"github.com/srg/gattstream/internal/device"
	"github.com/srg/gattstream/internal/dispatch"
)

// Target names a characteristic to stream. A zero Service matches any service.
type Target struct {
	UUID    bledb.UUID
	Service bledb.UUID
	Name    string
	Decoder dispatch.Decoder
}

func (t Target) String() string {
	if t.Service.IsZero() {
		return t.UUID.Short()
	}
	return t.Service.Short() + "/" + t.UUID.Short()
}

// TargetResult is the outcome of subscribing one target.
type TargetResult struct {
	Target         Target
	Characteristic *device.Characteristic
	ControlHandle  uint16
	BindingHandle  uint16
	Err            error
}

// SubscribeReport lists per-target outcomes in target order.
type SubscribeReport struct {
	Results []TargetResult
}

// Subscribed returns the targets that got a binding.
func (r SubscribeReport) Subscribed() []TargetResult {
	var out []TargetResult
	for _, res := range r.Results {
		if res.Err == nil {
			out = append(out, res)
		}
	}
	return out
}

// Failed returns the targets that were skipped.
func (r SubscribeReport) Failed() []TargetResult {
	var out []TargetResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Err joins the per-target failures, or returns nil.
func (r SubscribeReport) Err() error {
	var errs []error
	for _, res := range r.Failed() {
		errs = append(errs, fmt.Errorf("%s: %w", res.Target, res.Err))
	}
	return errors.Join(errs...)
}

// Subscribe enables notifications on every target and binds the resulting
// handles in the dispatcher. A missing characteristic or a rejected write only
// skips that target, unless requireAll is set: then nothing is bound, enabled
// handles are switched off again and the session stays in ServicesResolved.
func (s *Session) Subscribe(targets []Target, requireAll bool) (SubscribeReport, error) {
	s.mu.Lock()
	if err := s.expect(StateServicesResolved, "subscribe"); err != nil {
		s.mu.Unlock()
		return SubscribeReport{}, err
	}
	link := s.link
	s.mu.Unlock()

	report := SubscribeReport{Results: make([]TargetResult, 0, len(targets))}
	for _, t := range targets {
		res := s.subscribeOne(link, t)
		if res.Err != nil {
			s.logger.WithFields(logrus.Fields{
				"char_uuid":    t.UUID.Short(),
				"service_uuid": t.Service.Short(),
				"error":        res.Err,
			}).Warn("Skipping characteristic")
		}
		report.Results = append(report.Results, res)
	}

	if requireAll {
		if err := report.Err(); err != nil {
			for _, res := range report.Subscribed() {
				if werr := link.WriteAttribute(res.ControlHandle, DisableNotification); werr != nil {
					s.logger.WithField("error", werr).Debug("Failed to switch notifications off")
				}
			}
			return report, err
		}
	}

	for _, res := range report.Subscribed() {
		s.dispatcher.Bind(dispatch.Binding{
			Handle:  res.BindingHandle,
			UUID:    res.Characteristic.UUID,
			Name:    res.Target.Name,
			Decoder: res.Target.Decoder,
		})
	}

	if len(report.Subscribed()) == 0 {
		s.logger.WithField("targets", len(targets)).Warn("No characteristic subscribed, stream will stay silent")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateServicesResolved {
		s.dispatcher.Clear()
		return report, fmt.Errorf("%w: %w", device.ErrSubscriptionWrite, device.ErrNotConnected)
	}
	s.setState(StateSubscribed)
	return report, nil
}

func (s *Session) subscribeOne(link device.Link, t Target) TargetResult {
	res := TargetResult{Target: t}

	c, err := s.FindCharacteristic(t.UUID, t.Service)
	if err != nil {
		res.Err = err
		return res
	}
	res.Characteristic = c

	control, err := s.ControlHandle(c)
	if err != nil {
		res.Err = err
		return res
	}
	res.ControlHandle = control
	res.BindingHandle = s.BindingHandle(c, control)

	if err := link.WriteAttribute(control, EnableNotification); err != nil {
		if !errors.Is(err, device.ErrSubscriptionWrite) {
			err = fmt.Errorf("%w: %w", device.ErrSubscriptionWrite, err)
		}
		res.Err = err
		return res
	}

	s.logger.WithFields(logrus.Fields{
		"char_uuid": c.UUID.Short(),
		"handle":    fmt.Sprintf("0x%04X", control),
		"binding":   fmt.Sprintf("0x%04X", res.BindingHandle),
	}).Info("Subscribed to characteristic notifications")
	return res
}
