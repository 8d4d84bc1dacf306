package testutils

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-ble/ble"
	"github.com/srg/gattstream/internal/bledb"
	"github.com/srg/gattstream/internal/device"
)

// CharacteristicConfig describes one characteristic of a scripted GATT table.
// Handle 0 means "next free handle"; the value handle is Handle+1 unless set.
type CharacteristicConfig struct {
	UUID        string   `json:"uuid"`
	Handle      uint16   `json:"handle,omitempty"`
	ValueHandle uint16   `json:"valueHandle,omitempty"`
	Properties  string   `json:"properties,omitempty"`
	Descriptors []string `json:"descriptors,omitempty"`
}

type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Handle          uint16                 `json:"handle,omitempty"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

type GATTTableConfig struct {
	Services []ServiceConfig `json:"services"`
}

// GATTTableBuilder lays out a GATT table with consistent handles and renders
// it both as go-ble objects and as resolved device objects.
type GATTTableBuilder struct {
	config GATTTableConfig
}

func NewGATTTableBuilder() *GATTTableBuilder {
	return &GATTTableBuilder{}
}

func (b *GATTTableBuilder) WithService(uuid string) *GATTTableBuilder {
	b.config.Services = append(b.config.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service.
func (b *GATTTableBuilder) WithCharacteristic(uuid, properties string, descriptors ...string) *GATTTableBuilder {
	if len(b.config.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}
	last := &b.config.Services[len(b.config.Services)-1]
	last.Characteristics = append(last.Characteristics, CharacteristicConfig{
		UUID:        uuid,
		Properties:  properties,
		Descriptors: descriptors,
	})
	return b
}

// FromJSON replaces the table. Panics on invalid JSON.
func (b *GATTTableBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *GATTTableBuilder {
	var config GATTTableConfig
	if err := json.Unmarshal([]byte(fmt.Sprintf(jsonStrFmt, args...)), &config); err != nil {
		panic(fmt.Sprintf("GATTTableBuilder.FromJSON: failed to unmarshal: %v", err))
	}
	b.config = config
	return b
}

// ParseProperties converts "read,notify" style lists into a property bitset.
func ParseProperties(props string) ble.Property {
	if props == "" {
		return ble.CharRead | ble.CharNotify
	}

	var p ble.Property
	for _, name := range strings.Split(props, ",") {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "broadcast":
			p |= ble.CharBroadcast
		case "read":
			p |= ble.CharRead
		case "write-nr", "write-without-response":
			p |= ble.CharWriteNR
		case "write":
			p |= ble.CharWrite
		case "notify":
			p |= ble.CharNotify
		case "indicate":
			p |= ble.CharIndicate
		default:
			panic(fmt.Sprintf("ParseProperties: unknown property %q", name))
		}
	}
	return p
}

// BuildBLE renders the table as go-ble objects, the way a client's discovery
// calls would return them.
func (b *GATTTableBuilder) BuildBLE() []*ble.Service {
	var services []*ble.Service
	next := uint16(1)

	for _, sc := range b.config.Services {
		if sc.Handle != 0 {
			next = sc.Handle
		}
		svc := &ble.Service{UUID: bledb.MustParse(sc.UUID).BLE(), Handle: next}
		next++

		for _, cc := range sc.Characteristics {
			if cc.Handle != 0 {
				next = cc.Handle
			}
			ch := &ble.Characteristic{
				UUID:        bledb.MustParse(cc.UUID).BLE(),
				Property:    ParseProperties(cc.Properties),
				Handle:      next,
				ValueHandle: next + 1,
			}
			if cc.ValueHandle != 0 {
				ch.ValueHandle = cc.ValueHandle
			}
			next = ch.ValueHandle + 1

			for _, dc := range cc.Descriptors {
				d := &ble.Descriptor{UUID: bledb.MustParse(dc).BLE(), Handle: next}
				next++
				ch.Descriptors = append(ch.Descriptors, d)
				if bledb.MustParse(dc) == bledb.CCCD {
					ch.CCCD = d
				}
			}
			ch.EndHandle = next - 1
			svc.Characteristics = append(svc.Characteristics, ch)
		}

		svc.EndHandle = next - 1
		services = append(services, svc)
	}
	return services
}

// Build renders the table as resolved device services.
func (b *GATTTableBuilder) Build() []*device.Service {
	var out []*device.Service
	for _, bs := range b.BuildBLE() {
		u, _ := bledb.FromBLE(bs.UUID)
		svc := &device.Service{UUID: u, Handle: bs.Handle, EndHandle: bs.EndHandle}
		for _, bc := range bs.Characteristics {
			cu, _ := bledb.FromBLE(bc.UUID)
			ch := &device.Characteristic{
				UUID:        cu,
				Handle:      bc.Handle,
				ValueHandle: bc.ValueHandle,
				Properties:  device.Property(bc.Property),
				Service:     svc,
			}
			for _, bd := range bc.Descriptors {
				du, _ := bledb.FromBLE(bd.UUID)
				ch.Descriptors = append(ch.Descriptors, device.Descriptor{UUID: du, Handle: bd.Handle})
			}
			svc.Characteristics = append(svc.Characteristics, ch)
		}
		out = append(out, svc)
	}
	return out
}
