// Package catalog keeps the devices found during one scan, in discovery order,
// so the operator can select one by index.
package catalog

import (
	"errors"

	"github.com/srg/gattstream/internal/device"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrFrozen is returned when recording into a catalog whose scan has ended.
var ErrFrozen = errors.New("catalog is frozen")

// EventType marks whether an advertisement introduced a device or refreshed one.
type EventType int

const (
	EventNew EventType = iota
	EventUpdated
)

func (t EventType) String() string {
	if t == EventUpdated {
		return "updated"
	}
	return "new"
}

// Event is one discovery observation. Device is a snapshot and stays valid
// after later merges.
type Event struct {
	Type   EventType
	Device device.DiscoveredDevice
	Adv    device.Advertisement
}

// Catalog is an ordered, address-keyed list of discovered devices. Indexes are
// stable only within one scan session. Not safe for concurrent use: the
// scanner populates it from its control goroutine and freezes it when done.
type Catalog struct {
	devices *orderedmap.OrderedMap[string, *device.DiscoveredDevice]
	frozen  bool
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{
		devices: orderedmap.New[string, *device.DiscoveredDevice](),
	}
}

// Has reports whether the address has been recorded.
func (c *Catalog) Has(address string) bool {
	_, ok := c.devices.Get(address)
	return ok
}

// Classify returns the event type an advertisement from address would produce.
func (c *Catalog) Classify(address string) EventType {
	if c.Has(address) {
		return EventUpdated
	}
	return EventNew
}

// Record applies an observation and returns the resulting snapshot. A known
// address is always merged, whatever the event type says, so an address never
// appears twice.
func (c *Catalog) Record(ev Event) (device.DiscoveredDevice, error) {
	if c.frozen {
		return device.DiscoveredDevice{}, ErrFrozen
	}

	adv := ev.Adv
	if adv.Address == "" {
		adv = advertisementFrom(ev.Device)
	}

	if d, ok := c.devices.Get(adv.Address); ok {
		d.Merge(adv)
		return d.Snapshot(), nil
	}

	d := device.NewDiscoveredDevice(adv)
	c.devices.Set(adv.Address, d)
	return d.Snapshot(), nil
}

// advertisementFrom rebuilds an advertisement from a snapshot, for events
// constructed without the raw advertisement.
func advertisementFrom(d device.DiscoveredDevice) device.Advertisement {
	return device.Advertisement{
		Address:     d.Address,
		AddressType: d.AddressType,
		RSSI:        d.RSSI,
		Name:        d.Name,
		Connectable: d.Connectable,
		Services:    d.Services,
		Records:     d.Records,
		Timestamp:   d.LastSeen,
	}
}

// Get returns the device at index.
func (c *Catalog) Get(index int) (device.DiscoveredDevice, error) {
	if index < 0 || index >= c.devices.Len() {
		return device.DiscoveredDevice{}, &device.IndexError{Index: index, Size: c.devices.Len()}
	}

	i := 0
	for pair := c.devices.Oldest(); pair != nil; pair = pair.Next() {
		if i == index {
			return pair.Value.Snapshot(), nil
		}
		i++
	}
	return device.DiscoveredDevice{}, &device.IndexError{Index: index, Size: c.devices.Len()}
}

// Len returns the number of devices.
func (c *Catalog) Len() int {
	return c.devices.Len()
}

// Devices returns snapshots in discovery order.
func (c *Catalog) Devices() []device.DiscoveredDevice {
	out := make([]device.DiscoveredDevice, 0, c.devices.Len())
	for pair := c.devices.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value.Snapshot())
	}
	return out
}

// Freeze ends the recording phase.
func (c *Catalog) Freeze() {
	c.frozen = true
}

// Frozen reports whether Freeze was called.
func (c *Catalog) Frozen() bool {
	return c.frozen
}
