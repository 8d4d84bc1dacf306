package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/srg/gattstream/internal/device"
)

// ConnectCall records one FakeRadio.Connect invocation.
type ConnectCall struct {
	Address     string
	AddressType device.AddressType
}

// FakeRadio is a scripted device.Radio. Scan replays Adverts in order and then
// blocks until the scan context ends, like a real adapter would.
type FakeRadio struct {
	Adverts    []device.Advertisement
	ScanErr    error
	ConnectErr error
	Link       *FakeLink

	mu       sync.Mutex
	connects []ConnectCall
	scans    int
}

var _ device.Radio = (*FakeRadio)(nil)

func (r *FakeRadio) Scan(ctx context.Context, handler func(device.Advertisement)) error {
	r.mu.Lock()
	r.scans++
	r.mu.Unlock()

	if r.ScanErr != nil {
		return r.ScanErr
	}
	for _, adv := range r.Adverts {
		if ctx.Err() != nil {
			break
		}
		handler(adv)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (r *FakeRadio) Connect(_ context.Context, address string, addrType device.AddressType) (device.Link, error) {
	r.mu.Lock()
	r.connects = append(r.connects, ConnectCall{Address: address, AddressType: addrType})
	r.mu.Unlock()

	if r.ConnectErr != nil {
		return nil, r.ConnectErr
	}
	if r.Link == nil {
		return nil, device.ErrConnectionFailed
	}
	r.Link.addr = address
	return r.Link, nil
}

func (r *FakeRadio) ConnectCalls() []ConnectCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ConnectCall(nil), r.connects...)
}

func (r *FakeRadio) ScanCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scans
}

// Write records one FakeLink.WriteAttribute invocation.
type Write struct {
	Handle uint16
	Value  []byte
}

// FakeLink is a scripted device.Link over a fixed GATT table.
type FakeLink struct {
	Services   []*device.Service
	ResolveErr error
	// WriteErrs fails writes to the listed handles.
	WriteErrs map[uint16]error
	// OnWrite runs after each successful write, e.g. to push notifications.
	OnWrite func(l *FakeLink, handle uint16, value []byte)

	addr string

	mu     sync.Mutex
	writes []Write
	closes int

	events    chan device.Notification
	closed    chan struct{}
	closeOnce sync.Once
	initOnce  sync.Once
}

var _ device.Link = (*FakeLink)(nil)

func NewFakeLink(services []*device.Service) *FakeLink {
	l := &FakeLink{Services: services}
	l.init()
	return l
}

func (l *FakeLink) init() {
	l.initOnce.Do(func() {
		l.events = make(chan device.Notification, 64)
		l.closed = make(chan struct{})
	})
}

func (l *FakeLink) Address() string {
	return l.addr
}

func (l *FakeLink) Resolve(context.Context) ([]*device.Service, error) {
	l.init()
	if l.ResolveErr != nil {
		return nil, l.ResolveErr
	}
	return l.Services, nil
}

func (l *FakeLink) WriteAttribute(handle uint16, value []byte) error {
	l.init()
	if l.IsClosed() {
		return &device.HandleError{Op: "write", Handle: handle, Err: device.ErrNotConnected}
	}
	if err, ok := l.WriteErrs[handle]; ok {
		return &device.HandleError{Op: "write", Handle: handle, Err: err}
	}

	l.mu.Lock()
	l.writes = append(l.writes, Write{Handle: handle, Value: append([]byte(nil), value...)})
	l.mu.Unlock()

	if l.OnWrite != nil {
		l.OnWrite(l, handle, value)
	}
	return nil
}

// Push queues a notification as if the peripheral sent it.
func (l *FakeLink) Push(handle uint16, payload ...byte) {
	l.init()
	select {
	case l.events <- device.Notification{Handle: handle, Payload: payload}:
	case <-l.closed:
	}
}

func (l *FakeLink) WaitForEvent(timeout time.Duration) (device.Notification, bool, error) {
	l.init()
	if l.IsClosed() {
		return device.Notification{}, false, device.ErrNotConnected
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case n := <-l.events:
		return n, true, nil
	case <-timer.C:
		return device.Notification{}, false, nil
	case <-l.closed:
		return device.Notification{}, false, device.ErrNotConnected
	}
}

func (l *FakeLink) Close() error {
	l.init()
	l.mu.Lock()
	l.closes++
	l.mu.Unlock()
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

func (l *FakeLink) IsClosed() bool {
	l.init()
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}

func (l *FakeLink) Writes() []Write {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Write(nil), l.writes...)
}

// CloseCount reports how often Close was called.
func (l *FakeLink) CloseCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closes
}
