package goble

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/gattstream/internal/bledb"
	"github.com/srg/gattstream/internal/device"
)

// Client is the slice of ble.Client a connection uses.
type Client interface {
	DiscoverServices(filter []ble.UUID) ([]*ble.Service, error)
	DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error)
	DiscoverDescriptors(filter []ble.UUID, c *ble.Characteristic) ([]*ble.Descriptor, error)
	WriteDescriptor(d *ble.Descriptor, v []byte) error
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	ClearSubscriptions() error
	CancelConnection() error
	Disconnected() <-chan struct{}
}

// Connection implements device.Link over a go-ble client.
type Connection struct {
	client  Client
	address string
	logger  *logrus.Logger

	mu sync.Mutex
	// chars holds every resolved characteristic of this connection.
	chars []*ble.Characteristic
	// pinned maps a control handle to the subscription made through it.
	pinned map[uint16]pinnedSubscription

	events    chan device.Notification
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

var _ device.Link = (*Connection)(nil)

// pinnedSubscription is a characteristic copy whose CCCD points at the handle
// the caller wrote to.
type pinnedSubscription struct {
	char     *ble.Characteristic
	indicate bool
}

// NewConnection wraps an established client.
func NewConnection(client Client, address string, logger *logrus.Logger) *Connection {
	if logger == nil {
		logger = logrus.New()
	}
	return &Connection{
		client:  client,
		address: address,
		logger:  logger,
		pinned:  make(map[uint16]pinnedSubscription),
		events:  make(chan device.Notification, DefaultChannelBuffer),
		closed:  make(chan struct{}),
	}
}

func (c *Connection) Address() string {
	return c.address
}

func (c *Connection) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Resolve walks services, then characteristics per service, then descriptors
// per characteristic.
func (c *Connection) Resolve(ctx context.Context) ([]*device.Service, error) {
	if c.isClosed() {
		return nil, device.ErrNotConnected
	}

	bleServices, err := c.client.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: discover services: %w", device.ErrResolution, NormalizeError(err))
	}

	var chars []*ble.Characteristic
	services := make([]*device.Service, 0, len(bleServices))
	for _, bs := range bleServices {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", device.ErrResolution, err)
		}

		svc, err := convertService(bs)
		if err != nil {
			return nil, err
		}

		bleChars, err := c.client.DiscoverCharacteristics(nil, bs)
		if err != nil {
			return nil, fmt.Errorf("%w: discover characteristics of %s: %w", device.ErrResolution, svc.UUID.Short(), NormalizeError(err))
		}

		for _, bc := range bleChars {
			char, err := convertCharacteristic(bc, svc)
			if err != nil {
				return nil, err
			}

			descs, err := c.client.DiscoverDescriptors(nil, bc)
			if err != nil {
				c.logger.WithFields(logrus.Fields{
					"char_uuid": char.UUID.Short(),
					"handle":    fmt.Sprintf("0x%04X", char.Handle),
					"error":     err,
				}).Warn("Descriptor discovery failed")
			}
			for _, d := range descs {
				u, err := bledb.FromBLE(d.UUID)
				if err != nil || d.Handle == 0 {
					return nil, fmt.Errorf("%w: malformed descriptor under characteristic 0x%04X", device.ErrResolution, char.Handle)
				}
				char.Descriptors = append(char.Descriptors, device.Descriptor{UUID: u, Handle: d.Handle})
			}

			svc.Characteristics = append(svc.Characteristics, char)
			chars = append(chars, bc)
		}
		services = append(services, svc)
	}

	c.mu.Lock()
	c.chars = chars
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"address":  c.address,
		"services": len(services),
		"chars":    len(chars),
	}).Debug("GATT table resolved")

	return services, nil
}

func convertService(bs *ble.Service) (*device.Service, error) {
	u, err := bledb.FromBLE(bs.UUID)
	if err != nil {
		return nil, fmt.Errorf("%w: service at 0x%04X: %w", device.ErrResolution, bs.Handle, err)
	}
	if bs.Handle == 0 || bs.EndHandle < bs.Handle {
		return nil, fmt.Errorf("%w: service %s has handle range 0x%04X-0x%04X", device.ErrResolution, u.Short(), bs.Handle, bs.EndHandle)
	}
	return &device.Service{UUID: u, Handle: bs.Handle, EndHandle: bs.EndHandle}, nil
}

func convertCharacteristic(bc *ble.Characteristic, svc *device.Service) (*device.Characteristic, error) {
	u, err := bledb.FromBLE(bc.UUID)
	if err != nil {
		return nil, fmt.Errorf("%w: characteristic at 0x%04X: %w", device.ErrResolution, bc.Handle, err)
	}
	if bc.Handle == 0 || bc.ValueHandle <= bc.Handle || bc.ValueHandle > svc.EndHandle {
		return nil, fmt.Errorf("%w: characteristic %s has handle 0x%04X and value handle 0x%04X outside service %s",
			device.ErrResolution, u.Short(), bc.Handle, bc.ValueHandle, svc.UUID.Short())
	}
	return &device.Characteristic{
		UUID:        u,
		Handle:      bc.Handle,
		ValueHandle: bc.ValueHandle,
		// ble.Property uses the same bit layout as the declaration.
		Properties: device.Property(bc.Property),
		Service:    svc,
	}, nil
}

// controlTarget returns the characteristic a write to handle configures: the
// attribute right after its value, or its discovered CCCD.
func (c *Connection) controlTarget(handle uint16) *ble.Characteristic {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range c.chars {
		if ch.ValueHandle+1 == handle {
			return ch
		}
		if ch.CCCD != nil && ch.CCCD.Handle == handle {
			return ch
		}
	}
	return nil
}

// WriteAttribute writes with response. Two-byte writes to a control handle
// go through the subscription machinery with the CCCD pinned to that handle,
// so go-ble routes the notifications that follow. Those are reported under the
// control handle, not the value handle they arrive on.
func (c *Connection) WriteAttribute(handle uint16, value []byte) error {
	if c.isClosed() {
		return &device.HandleError{Op: "write", Handle: handle, Err: device.ErrNotConnected}
	}

	var err error
	if ch := c.controlTarget(handle); ch != nil && len(value) == 2 {
		err = c.writeControl(ch, handle, binary.LittleEndian.Uint16(value))
	} else {
		err = c.client.WriteDescriptor(&ble.Descriptor{Handle: handle}, value)
	}

	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"address": c.address,
			"handle":  fmt.Sprintf("0x%04X", handle),
			"error":   err,
		}).Error("Attribute write rejected")
		return &device.HandleError{Op: "write", Handle: handle, Err: fmt.Errorf("%w: %w", device.ErrSubscriptionWrite, NormalizeError(err))}
	}
	return nil
}

func (c *Connection) writeControl(ch *ble.Characteristic, handle uint16, cfg uint16) error {
	c.mu.Lock()
	prev, subscribed := c.pinned[handle]
	c.mu.Unlock()

	if cfg&0x0003 == 0 {
		if !subscribed {
			return c.client.WriteDescriptor(&ble.Descriptor{Handle: handle}, []byte{0x00, 0x00})
		}
		if err := c.client.Unsubscribe(prev.char, prev.indicate); err != nil {
			return err
		}
		c.mu.Lock()
		delete(c.pinned, handle)
		c.mu.Unlock()
		return nil
	}

	pinned := *ch
	pinned.CCCD = &ble.Descriptor{UUID: bledb.CCCD.BLE(), Handle: handle}
	valueHandle := ch.ValueHandle
	indicate := cfg&0x0001 == 0

	err := c.client.Subscribe(&pinned, indicate, func(data []byte) {
		payload := make([]byte, len(data))
		copy(payload, data)
		c.enqueue(device.Notification{Handle: handle, Payload: payload})
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.pinned[handle] = pinnedSubscription{char: &pinned, indicate: indicate}
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"handle":       fmt.Sprintf("0x%04X", handle),
		"value_handle": fmt.Sprintf("0x%04X", valueHandle),
		"indicate":     indicate,
	}).Debug("Notifications enabled")
	return nil
}

// enqueue hands a notification to the control goroutine in arrival order. It
// blocks while the queue is full and drops the value once the link is closed.
func (c *Connection) enqueue(n device.Notification) {
	select {
	case c.events <- n:
	case <-c.closed:
	}
}

// WaitForEvent blocks for at most timeout.
func (c *Connection) WaitForEvent(timeout time.Duration) (device.Notification, bool, error) {
	if c.isClosed() {
		return device.Notification{}, false, device.ErrNotConnected
	}

	select {
	case n := <-c.events:
		return n, true, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case n := <-c.events:
		return n, true, nil
	case <-timer.C:
		return device.Notification{}, false, nil
	case <-c.closed:
		return device.Notification{}, false, device.ErrNotConnected
	case <-c.client.Disconnected():
		return device.Notification{}, false, fmt.Errorf("%w: peripheral %s disconnected", device.ErrNotConnected, c.address)
	}
}

// Close drops subscriptions and cancels the connection. Later calls return
// the first call's result.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)

		if err := c.client.ClearSubscriptions(); err != nil {
			c.logger.WithField("error", err).Debug("Failed to clear subscriptions")
		}

		c.mu.Lock()
		c.pinned = make(map[uint16]pinnedSubscription)
		c.chars = nil
		c.mu.Unlock()

		if err := c.client.CancelConnection(); err != nil {
			norm := NormalizeError(err)
			select {
			case <-c.client.Disconnected():
				c.logger.WithField("error", err).Debug("Connection already dropped")
			default:
				c.closeErr = norm
			}
		}

		c.logger.WithField("address", c.address).Info("Disconnected from BLE device")
	})
	return c.closeErr
}
