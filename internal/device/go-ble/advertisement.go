package goble

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/go-ble/ble"
	"github.com/srg/gattstream/internal/bledb"
	"github.com/srg/gattstream/internal/device"
)

// txPowerUnknown is what go-ble reports when the Tx Power Level field is absent.
const txPowerUnknown = 127

// NewAdvertisement converts a go-ble advertisement into the transport-neutral
// form. go-ble exposes parsed fields only, so the AD records are rebuilt from
// them in AD type order.
func NewAdvertisement(adv ble.Advertisement, now time.Time) device.Advertisement {
	out := device.Advertisement{
		Address:     adv.Addr().String(),
		AddressType: addressTypeOf(adv.Addr()),
		RSSI:        adv.RSSI(),
		Name:        adv.LocalName(),
		Connectable: adv.Connectable(),
		Timestamp:   now,
	}

	flags := "non-connectable"
	if out.Connectable {
		flags = "connectable"
	}
	out.Records = append(out.Records, device.AdRecord{Type: device.AdFlags, Description: "Flags", Value: flags})

	var short, long []bledb.UUID
	for _, u := range adv.Services() {
		id, err := bledb.FromBLE(u)
		if err != nil {
			continue
		}
		out.Services = append(out.Services, id)
		if len(u) == 2 {
			short = append(short, id)
		} else {
			long = append(long, id)
		}
	}
	if len(short) > 0 {
		out.Records = append(out.Records, device.AdRecord{Type: device.AdComplete16, Description: "Complete 16b Services", Value: joinUUIDs(short)})
	}
	if len(long) > 0 {
		out.Records = append(out.Records, device.AdRecord{Type: device.AdComplete128, Description: "Complete 128b Services", Value: joinUUIDs(long)})
	}

	if out.Name != "" {
		out.Records = append(out.Records, device.AdRecord{Type: device.AdCompleteName, Description: "Complete Local Name", Value: out.Name})
	}

	if tx := adv.TxPowerLevel(); tx != txPowerUnknown {
		out.Records = append(out.Records, device.AdRecord{Type: device.AdTxPower, Description: "Tx Power", Value: fmt.Sprintf("%d", tx)})
	}

	var solicited16, solicited128 []bledb.UUID
	for _, u := range adv.SolicitedService() {
		id, err := bledb.FromBLE(u)
		if err != nil {
			continue
		}
		if len(u) == 2 {
			solicited16 = append(solicited16, id)
		} else {
			solicited128 = append(solicited128, id)
		}
	}
	if len(solicited16) > 0 {
		out.Records = append(out.Records, device.AdRecord{Type: device.AdSolicited16, Description: "16b Service Solicitation", Value: joinUUIDs(solicited16)})
	}
	if len(solicited128) > 0 {
		out.Records = append(out.Records, device.AdRecord{Type: device.AdSolicited128, Description: "128b Service Solicitation", Value: joinUUIDs(solicited128)})
	}

	if sd := adv.ServiceData(); len(sd) > 0 {
		parts := make([]string, 0, len(sd))
		for _, d := range sd {
			id, err := bledb.FromBLE(d.UUID)
			if err != nil {
				continue
			}
			parts = append(parts, id.Short()+":"+hex.EncodeToString(d.Data))
		}
		if len(parts) > 0 {
			out.Records = append(out.Records, device.AdRecord{Type: device.AdServiceData16, Description: "16b Service Data", Value: strings.Join(parts, ",")})
		}
	}

	if md := adv.ManufacturerData(); len(md) > 0 {
		out.Records = append(out.Records, device.AdRecord{Type: device.AdManufacturerData, Description: "Manufacturer", Value: hex.EncodeToString(md)})
	}

	return out
}

func joinUUIDs(ids []bledb.UUID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}
