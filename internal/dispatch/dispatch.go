// Package dispatch routes notifications to the decoder bound to their
// attribute handle and hands the results to a sink.
package dispatch

import (
	"fmt"
	"sort"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/gattstream/internal/bledb"
	"github.com/srg/gattstream/internal/device"
)

// Binding ties a monitored handle to the characteristic it came from and the
// decoder for its payload.
type Binding struct {
	Handle  uint16
	UUID    bledb.UUID
	Name    string
	Decoder Decoder
}

// Sample is one decoded notification.
type Sample struct {
	Handle   uint16
	UUID     bledb.UUID
	Name     string
	Value    uint64
	Raw      []byte
	Received time.Time
}

// Sink consumes dispatcher output. Implementations must not block for long:
// they run on the session's control goroutine.
type Sink interface {
	OnSample(s Sample)
	OnError(err error)
}

// MultiSink fans out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) OnSample(s Sample) {
	for _, sink := range m {
		sink.OnSample(s)
	}
}

func (m MultiSink) OnError(err error) {
	for _, sink := range m {
		sink.OnError(err)
	}
}

// Dispatcher owns the binding table of one connection. Lookups are lock-free
// so teardown can clear the table while a notification is in flight.
type Dispatcher struct {
	bindings *hashmap.Map[uint16, Binding]
	sink     Sink
	logger   *logrus.Logger
	now      func() time.Time
}

func New(sink Sink, logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	if sink == nil {
		sink = MultiSink(nil)
	}
	return &Dispatcher{
		bindings: hashmap.New[uint16, Binding](),
		sink:     sink,
		logger:   logger,
		now:      time.Now,
	}
}

// Bind registers b, replacing any binding on the same handle. A nil decoder
// selects BigEndianUint.
func (d *Dispatcher) Bind(b Binding) {
	if b.Decoder == nil {
		b.Decoder = BigEndianUint
	}
	if b.Name == "" {
		b.Name = bledb.Name(b.UUID)
	}
	d.bindings.Set(b.Handle, b)

	d.logger.WithFields(logrus.Fields{
		"handle": fmt.Sprintf("0x%04X", b.Handle),
		"uuid":   b.UUID.Short(),
	}).Debug("Notification binding registered")
}

// Unbind removes the binding on handle and reports whether one existed.
func (d *Dispatcher) Unbind(handle uint16) bool {
	return d.bindings.Del(handle)
}

// Clear drops every binding and returns how many there were.
func (d *Dispatcher) Clear() int {
	var handles []uint16
	d.bindings.Range(func(h uint16, _ Binding) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		d.bindings.Del(h)
	}
	return len(handles)
}

func (d *Dispatcher) Len() int {
	return d.bindings.Len()
}

// Lookup returns the binding on handle.
func (d *Dispatcher) Lookup(handle uint16) (Binding, bool) {
	return d.bindings.Get(handle)
}

// Bindings returns the current bindings ordered by handle.
func (d *Dispatcher) Bindings() []Binding {
	out := make([]Binding, 0, d.bindings.Len())
	d.bindings.Range(func(_ uint16, b Binding) bool {
		out = append(out, b)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

// OnNotification decodes raw with the decoder bound to handle and emits the
// sample. Unbound handles and malformed payloads are reported to the sink's
// error path and dropped.
func (d *Dispatcher) OnNotification(handle uint16, raw []byte) {
	b, ok := d.bindings.Get(handle)
	if !ok {
		d.logger.WithField("handle", fmt.Sprintf("0x%04X", handle)).Warn("Notification on unbound handle")
		d.sink.OnError(&device.HandleError{Op: "dispatch", Handle: handle, Err: device.ErrUnboundNotification})
		return
	}

	v, err := b.Decoder(raw)
	if err != nil {
		d.logger.WithFields(logrus.Fields{
			"handle": fmt.Sprintf("0x%04X", handle),
			"error":  err,
		}).Warn("Failed to decode notification")
		d.sink.OnError(&device.HandleError{Op: "decode", Handle: handle, Err: err})
		return
	}

	d.sink.OnSample(Sample{
		Handle:   handle,
		UUID:     b.UUID,
		Name:     b.Name,
		Value:    v,
		Raw:      raw,
		Received: d.now(),
	})
}
