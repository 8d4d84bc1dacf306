package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/go-ble/ble"
	"github.com/srg/gattstream/internal/bledb"
)

// FakeAdvertisement is a canned ble.Advertisement.
type FakeAdvertisement struct {
	addr        ble.Addr
	name        string
	rssi        int
	txPower     int
	connectable bool
	services    []ble.UUID
	solicited   []ble.UUID
	manufData   []byte
	serviceData []ble.ServiceData
}

var _ ble.Advertisement = (*FakeAdvertisement)(nil)

func (a *FakeAdvertisement) LocalName() string              { return a.name }
func (a *FakeAdvertisement) ManufacturerData() []byte       { return a.manufData }
func (a *FakeAdvertisement) ServiceData() []ble.ServiceData { return a.serviceData }
func (a *FakeAdvertisement) Services() []ble.UUID           { return a.services }
func (a *FakeAdvertisement) OverflowService() []ble.UUID    { return nil }
func (a *FakeAdvertisement) TxPowerLevel() int              { return a.txPower }
func (a *FakeAdvertisement) Connectable() bool              { return a.connectable }
func (a *FakeAdvertisement) SolicitedService() []ble.UUID   { return a.solicited }
func (a *FakeAdvertisement) RSSI() int                      { return a.rssi }
func (a *FakeAdvertisement) Addr() ble.Addr                 { return a.addr }

// AdvertisementBuilder builds FakeAdvertisement values with a fluent API.
type AdvertisementBuilder struct {
	adv FakeAdvertisement
}

// NewAdvertisementBuilder starts from a connectable advertisement with no Tx
// Power field and RSSI -50.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{adv: FakeAdvertisement{
		addr:        ble.NewAddr("00:00:00:00:00:00"),
		rssi:        -50,
		txPower:     127,
		connectable: true,
	}}
}

func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.name = name
	return b
}

func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.addr = ble.NewAddr(addr)
	return b
}

// WithAddr sets a transport specific address, e.g. a random HCI address.
func (b *AdvertisementBuilder) WithAddr(addr ble.Addr) *AdvertisementBuilder {
	b.adv.addr = addr
	return b
}

func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.rssi = rssi
	return b
}

// WithServices adds advertised service UUIDs ("180D" or full form).
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	for _, u := range uuids {
		b.adv.services = append(b.adv.services, bledb.MustParse(u).BLE())
	}
	return b
}

func (b *AdvertisementBuilder) WithSolicitedServices(uuids ...string) *AdvertisementBuilder {
	for _, u := range uuids {
		b.adv.solicited = append(b.adv.solicited, bledb.MustParse(u).BLE())
	}
	return b
}

func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.adv.manufData = data
	return b
}

func (b *AdvertisementBuilder) WithServiceData(uuid string, data []byte) *AdvertisementBuilder {
	b.adv.serviceData = append(b.adv.serviceData, ble.ServiceData{UUID: bledb.MustParse(uuid).BLE(), Data: data})
	return b
}

func (b *AdvertisementBuilder) WithTxPower(power int) *AdvertisementBuilder {
	b.adv.txPower = power
	return b
}

func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.adv.connectable = c
	return b
}

// FromJSON fills the builder from a JSON object. Panics on invalid JSON as
// this is intended for test data setup.
func (b *AdvertisementBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *AdvertisementBuilder {
	var data struct {
		Name             *string           `json:"name"`
		Address          *string           `json:"address"`
		RSSI             *int              `json:"rssi"`
		Services         []string          `json:"services"`
		ManufacturerData []byte            `json:"manufacturerData"`
		ServiceData      map[string][]byte `json:"serviceData"`
		TxPower          *int              `json:"txPower"`
		Connectable      *bool             `json:"connectable"`
	}
	if err := json.Unmarshal([]byte(fmt.Sprintf(jsonStrFmt, args...)), &data); err != nil {
		panic(fmt.Sprintf("AdvertisementBuilder.FromJSON: %v", err))
	}

	if data.Name != nil {
		b.WithName(*data.Name)
	}
	if data.Address != nil {
		b.WithAddress(*data.Address)
	}
	if data.RSSI != nil {
		b.WithRSSI(*data.RSSI)
	}
	if data.TxPower != nil {
		b.WithTxPower(*data.TxPower)
	}
	if data.Connectable != nil {
		b.WithConnectable(*data.Connectable)
	}
	b.WithServices(data.Services...)
	if data.ManufacturerData != nil {
		b.WithManufacturerData(data.ManufacturerData)
	}
	for u, d := range data.ServiceData {
		b.WithServiceData(u, d)
	}
	return b
}

func (b *AdvertisementBuilder) Build() *FakeAdvertisement {
	adv := b.adv
	return &adv
}
