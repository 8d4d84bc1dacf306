package device

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/srg/gattstream/internal/bledb"
)

// AddressType is the link-layer address type of a peripheral.
type AddressType int

const (
	AddressPublic AddressType = iota
	AddressRandom
)

func (t AddressType) String() string {
	if t == AddressRandom {
		return "random"
	}
	return "public"
}

// ParseAddressType accepts "public" or "random" (case-insensitive).
func ParseAddressType(s string) (AddressType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "public":
		return AddressPublic, nil
	case "random":
		return AddressRandom, nil
	default:
		return AddressPublic, fmt.Errorf("%w: address type must be public or random, got %q", ErrUsage, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t AddressType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Advertisement data types reported in AdRecord.Type.
const (
	AdFlags            uint8 = 0x01
	AdIncomplete16     uint8 = 0x02
	AdComplete16       uint8 = 0x03
	AdIncomplete128    uint8 = 0x06
	AdComplete128      uint8 = 0x07
	AdShortName        uint8 = 0x08
	AdCompleteName     uint8 = 0x09
	AdTxPower          uint8 = 0x0A
	AdSolicited16      uint8 = 0x14
	AdSolicited128     uint8 = 0x15
	AdServiceData16    uint8 = 0x16
	AdManufacturerData uint8 = 0xFF
)

// AdRecord is a single advertisement data structure.
type AdRecord struct {
	Type        uint8  `json:"type"`
	Description string `json:"description"`
	Value       string `json:"value"`
}

// Advertisement is a transport-neutral view of one received advertisement.
type Advertisement struct {
	Address     string
	AddressType AddressType
	RSSI        int
	Name        string
	Connectable bool
	Services    []bledb.UUID
	Records     []AdRecord
	Timestamp   time.Time
}

// DiscoveredDevice is what the catalog keeps per address.
type DiscoveredDevice struct {
	Address     string       `json:"address"`
	AddressType AddressType  `json:"address_type"`
	RSSI        int          `json:"rssi"`
	Name        string       `json:"name,omitempty"`
	Connectable bool         `json:"connectable"`
	Services    []bledb.UUID `json:"services,omitempty"`
	Records     []AdRecord   `json:"records"`
	LastSeen    time.Time    `json:"-"`
}

// NewDiscoveredDevice builds a device record from its first advertisement.
func NewDiscoveredDevice(adv Advertisement) *DiscoveredDevice {
	d := &DiscoveredDevice{Address: adv.Address}
	d.Merge(adv)
	return d
}

// Merge folds a later advertisement into d. Records of a type already known
// are replaced; new types are appended in arrival order.
func (d *DiscoveredDevice) Merge(adv Advertisement) {
	d.AddressType = adv.AddressType
	d.RSSI = adv.RSSI
	d.Connectable = d.Connectable || adv.Connectable
	if adv.Name != "" {
		d.Name = adv.Name
	}
	if !adv.Timestamp.IsZero() {
		d.LastSeen = adv.Timestamp
	}

	for _, svc := range adv.Services {
		if !containsUUID(d.Services, svc) {
			d.Services = append(d.Services, svc)
		}
	}

	for _, rec := range adv.Records {
		replaced := false
		for i := range d.Records {
			if d.Records[i].Type == rec.Type {
				d.Records[i] = rec
				replaced = true
				break
			}
		}
		if !replaced {
			d.Records = append(d.Records, rec)
		}
	}
}

// Snapshot returns a deep copy that later merges cannot mutate.
func (d *DiscoveredDevice) Snapshot() DiscoveredDevice {
	cp := *d
	cp.Services = append([]bledb.UUID(nil), d.Services...)
	cp.Records = append([]AdRecord(nil), d.Records...)
	return cp
}

func containsUUID(list []bledb.UUID, u bledb.UUID) bool {
	for _, v := range list {
		if v == u {
			return true
		}
	}
	return false
}

// Notification is one server-initiated value frame.
type Notification struct {
	Handle  uint16
	Payload []byte
}

// Property is the characteristic properties bitset (Bluetooth Core Vol 3, Part G, 3.3.1.1).
type Property uint8

const (
	PropBroadcast   Property = 0x01
	PropRead        Property = 0x02
	PropWriteNR     Property = 0x04
	PropWrite       Property = 0x08
	PropNotify      Property = 0x10
	PropIndicate    Property = 0x20
	PropSignedWrite Property = 0x40
	PropExtended    Property = 0x80
)

var propertyNames = []struct {
	p    Property
	name string
}{
	{PropBroadcast, "BROADCAST"},
	{PropRead, "READ"},
	{PropWriteNR, "WRITE NO RESPONSE"},
	{PropWrite, "WRITE"},
	{PropNotify, "NOTIFY"},
	{PropIndicate, "INDICATE"},
	{PropSignedWrite, "SIGNED WRITE"},
	{PropExtended, "EXTENDED PROPERTIES"},
}

// Has reports whether all bits of q are set.
func (p Property) Has(q Property) bool {
	return p&q == q
}

func (p Property) String() string {
	var names []string
	for _, pn := range propertyNames {
		if p.Has(pn.p) {
			names = append(names, pn.name)
		}
	}
	if len(names) == 0 {
		return "NONE"
	}
	return strings.Join(names, " ")
}

// Descriptor is a resolved characteristic descriptor.
type Descriptor struct {
	UUID   bledb.UUID
	Handle uint16
}

// Characteristic is a resolved characteristic. Handle is the declaration
// handle; ValueHandle is where the peripheral sends notifications from.
type Characteristic struct {
	UUID        bledb.UUID
	Handle      uint16
	ValueHandle uint16
	Properties  Property
	Descriptors []Descriptor

	// Service is the owning service; only valid while the link is up.
	Service *Service
}

// Descriptor returns the descriptor with the given UUID.
func (c *Characteristic) Descriptor(u bledb.UUID) (Descriptor, bool) {
	for _, d := range c.Descriptors {
		if d.UUID == u {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Service is a resolved primary service.
type Service struct {
	UUID            bledb.UUID
	Handle          uint16
	EndHandle       uint16
	Characteristics []*Characteristic
}

// Radio is the adapter capability: it scans and opens links.
type Radio interface {
	// Scan delivers advertisements to handler until ctx ends. The radio is
	// stopped before Scan returns.
	Scan(ctx context.Context, handler func(Advertisement)) error

	// Connect opens a link to the peripheral.
	Connect(ctx context.Context, address string, addrType AddressType) (Link, error)
}

// Link is a single peripheral connection.
type Link interface {
	Address() string

	// Resolve enumerates all primary services, their characteristics and
	// descriptors.
	Resolve(ctx context.Context) ([]*Service, error)

	// WriteAttribute writes value to the attribute at handle, with response.
	WriteAttribute(handle uint16, value []byte) error

	// WaitForEvent blocks for at most timeout. It reports (n, true, nil) when a
	// notification arrived, (zero, false, nil) on timeout, and an error once
	// the link is closed.
	WaitForEvent(timeout time.Duration) (Notification, bool, error)

	// Close tears the link down. Safe to call more than once.
	Close() error
}
