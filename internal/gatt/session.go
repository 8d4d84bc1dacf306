// Package gatt implements the connection lifecycle of a single peripheral:
// connect, resolve the attribute table, enable notifications on target
// characteristics, stream them into a dispatcher and tear down.
package gatt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattstream/internal/bledb"
	"github.com/srg/gattstream/internal/device"
	"github.com/srg/gattstream/internal/dispatch"
)

// EnableNotification is the control value that turns notifications on.
var EnableNotification = []byte{0x01, 0x00}

// DisableNotification turns them off again.
var DisableNotification = []byte{0x00, 0x00}

// DefaultPollInterval is the stream loop's wait per WaitForEvent call.
const DefaultPollInterval = time.Second

// Options configure a Session.
type Options struct {
	Strategy CCCDStrategy
	// OnStateChange, when set, observes every transition.
	OnStateChange func(from, to State)
}

// Session owns at most one peripheral link, the attribute table resolved from
// it and, through the dispatcher, the notification bindings. It is driven
// from a single control goroutine; Disconnect may also be called from another
// goroutine to interrupt streaming.
type Session struct {
	radio      device.Radio
	dispatcher *dispatch.Dispatcher
	logger     *logrus.Logger
	opts       Options

	mu       sync.Mutex
	state    State
	link     device.Link
	address  string
	services []*device.Service

	disconnectOnce *sync.Once
	disconnectErr  error
}

func New(radio device.Radio, dispatcher *dispatch.Dispatcher, logger *logrus.Logger, opts Options) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	if dispatcher == nil {
		dispatcher = dispatch.New(nil, logger)
	}
	return &Session{
		radio:      radio,
		dispatcher: dispatcher,
		logger:     logger,
		opts:       opts,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatcher returns the dispatcher holding this session's bindings.
func (s *Session) Dispatcher() *dispatch.Dispatcher {
	return s.dispatcher
}

// Strategy returns the configured control handle strategy.
func (s *Session) Strategy() CCCDStrategy {
	return s.opts.Strategy
}

// setState must be called with s.mu held.
func (s *Session) setState(to State) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	s.logger.WithFields(logrus.Fields{
		"address": s.address,
		"from":    from,
		"state":   to,
	}).Debug("GATT session state changed")
	if s.opts.OnStateChange != nil {
		s.opts.OnStateChange(from, to)
	}
}

func (s *Session) expect(want State, op string) error {
	if s.state != want {
		return fmt.Errorf("%w: %s requires state %s, session is %s", device.ErrInvalidState, op, want, s.state)
	}
	return nil
}

// Connect opens the link. On failure the session is back in Disconnected.
func (s *Session) Connect(ctx context.Context, address string, addrType device.AddressType) error {
	s.mu.Lock()
	if err := s.expect(StateDisconnected, "connect"); err != nil {
		s.mu.Unlock()
		return err
	}
	s.address = address
	s.setState(StateConnecting)
	s.mu.Unlock()

	link, err := s.radio.Connect(ctx, address, addrType)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.setState(StateDisconnected)
		if !errors.Is(err, device.ErrConnectionFailed) && !errors.Is(err, device.ErrRadioUnavailable) {
			err = fmt.Errorf("%w: %s: %w", device.ErrConnectionFailed, address, err)
		}
		return err
	}

	s.link = link
	s.disconnectOnce = &sync.Once{}
	s.disconnectErr = nil
	s.setState(StateConnected)

	s.logger.WithFields(logrus.Fields{
		"address":      address,
		"address_type": addrType,
	}).Info("Connected to BLE device")
	return nil
}

// ResolveServices enumerates the attribute table. A failure tears the
// connection down before the error is returned.
func (s *Session) ResolveServices(ctx context.Context) error {
	s.mu.Lock()
	if err := s.expect(StateConnected, "resolve services"); err != nil {
		s.mu.Unlock()
		return err
	}
	link := s.link
	s.mu.Unlock()

	services, err := link.Resolve(ctx)
	if err != nil {
		if !errors.Is(err, device.ErrResolution) {
			err = fmt.Errorf("%w: %w", device.ErrResolution, err)
		}
		s.logger.WithField("error", err).Error("GATT resolution failed")
		if derr := s.Disconnect(); derr != nil {
			s.logger.WithField("error", derr).Debug("Disconnect after failed resolution")
		}
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected {
		// disconnected while resolving
		return fmt.Errorf("%w: %w", device.ErrResolution, device.ErrNotConnected)
	}
	s.services = services
	s.setState(StateServicesResolved)
	return nil
}

// Services returns the resolved services.
func (s *Session) Services() []*device.Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*device.Service(nil), s.services...)
}

// Characteristics returns all resolved characteristics in table order.
func (s *Session) Characteristics() []*device.Characteristic {
	var out []*device.Characteristic
	for _, svc := range s.Services() {
		out = append(out, svc.Characteristics...)
	}
	return out
}

// FindService returns the resolved service with the given UUID.
func (s *Session) FindService(u bledb.UUID) (*device.Service, error) {
	for _, svc := range s.Services() {
		if svc.UUID.Equal(u) {
			return svc, nil
		}
	}
	return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{u.Short()}}
}

// FindCharacteristic locates a characteristic by UUID, within service when it
// is non-zero, otherwise in any service (first match in table order).
func (s *Session) FindCharacteristic(u bledb.UUID, service bledb.UUID) (*device.Characteristic, error) {
	if !service.IsZero() {
		svc, err := s.FindService(service)
		if err != nil {
			return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{service.Short(), u.Short()}}
		}
		for _, c := range svc.Characteristics {
			if c.UUID.Equal(u) {
				return c, nil
			}
		}
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{service.Short(), u.Short()}}
	}

	for _, c := range s.Characteristics() {
		if c.UUID.Equal(u) {
			return c, nil
		}
	}
	return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{u.Short()}}
}

// ControlHandle returns the handle the enable value is written to. The offset
// strategy assumes the CCCD sits right after the value attribute.
func (s *Session) ControlHandle(c *device.Characteristic) (uint16, error) {
	if s.opts.Strategy == StrategyDescriptor {
		d, ok := c.Descriptor(bledb.CCCD)
		if !ok {
			return 0, &device.NotFoundError{Resource: "descriptor", UUIDs: []string{c.UUID.Short(), bledb.CCCD.Short()}}
		}
		return d.Handle, nil
	}

	if c.ValueHandle == 0xFFFF {
		return 0, fmt.Errorf("%w: characteristic %s has its value at the last handle", device.ErrResolution, c.UUID.Short())
	}
	return c.ValueHandle + 1, nil
}

// BindingHandle returns the handle notifications for c are reported on. Links
// report a notification under the control handle that enabled it, so both
// strategies bind the control handle.
func (s *Session) BindingHandle(_ *device.Characteristic, control uint16) uint16 {
	return control
}

// WaitForEvent waits on the link for at most timeout. Without a link it fails
// immediately with ErrNotConnected.
func (s *Session) WaitForEvent(timeout time.Duration) (device.Notification, bool, error) {
	s.mu.Lock()
	link := s.link
	s.mu.Unlock()

	if link == nil {
		return device.Notification{}, false, device.ErrNotConnected
	}
	return link.WaitForEvent(timeout)
}

// Disconnect releases the link, the resolved table and every binding. It runs
// once per connection; later calls return the first result.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disconnectOnce == nil {
		return nil
	}

	s.disconnectOnce.Do(func() {
		s.setState(StateDisconnecting)

		cleared := s.dispatcher.Clear()
		s.services = nil

		if s.link != nil {
			s.disconnectErr = s.link.Close()
			s.link = nil
		}

		s.setState(StateDisconnected)
		s.logger.WithFields(logrus.Fields{
			"address":  s.address,
			"bindings": cleared,
		}).Info("GATT session closed")
	})
	return s.disconnectErr
}
