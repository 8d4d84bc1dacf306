package goble

import (
	"testing"
	"time"

	"github.com/srg/gattstream/internal/bledb"
	"github.com/srg/gattstream/internal/device"
	"github.com/srg/gattstream/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordsByType(recs []device.AdRecord) map[uint8]device.AdRecord {
	out := make(map[uint8]device.AdRecord, len(recs))
	for _, r := range recs {
		out[r.Type] = r
	}
	return out
}

func TestNewAdvertisementSynthesizesRecords(t *testing.T) {
	adv := testutils.NewAdvertisementBuilder().FromJSON(`{
		"name": "HR Strap",
		"address": "c0:ff:ee:00:00:01",
		"rssi": -62,
		"txPower": 4,
		"services": ["180D", "6e400001-b5a3-f393-e0a9-e50e24dcca9e"],
		"manufacturerData": "TAAB"
	}`).WithServiceData("180F", []byte{0x64}).Build()

	now := time.Now()
	got := NewAdvertisement(adv, now)

	assert.Equal(t, "c0:ff:ee:00:00:01", got.Address)
	assert.Equal(t, -62, got.RSSI)
	assert.Equal(t, "HR Strap", got.Name)
	assert.True(t, got.Connectable)
	assert.Equal(t, now, got.Timestamp)
	assert.Equal(t, []bledb.UUID{
		bledb.UUID16(0x180D),
		bledb.MustParse("6e400001-b5a3-f393-e0a9-e50e24dcca9e"),
	}, got.Services)

	recs := recordsByType(got.Records)
	assert.Equal(t, "connectable", recs[device.AdFlags].Value)
	assert.Equal(t, "HR Strap", recs[device.AdCompleteName].Value)
	assert.Equal(t, "4", recs[device.AdTxPower].Value)
	assert.Equal(t, "0000180d-0000-1000-8000-00805f9b34fb", recs[device.AdComplete16].Value)
	assert.Equal(t, "6e400001-b5a3-f393-e0a9-e50e24dcca9e", recs[device.AdComplete128].Value)
	assert.Equal(t, "180f:64", recs[device.AdServiceData16].Value)
	assert.Equal(t, "4c0001", recs[device.AdManufacturerData].Value)
}

func TestNewAdvertisementOmitsAbsentFields(t *testing.T) {
	adv := testutils.NewAdvertisementBuilder().WithAddress("11:22:33:44:55:66").WithConnectable(false).Build()

	got := NewAdvertisement(adv, time.Time{})

	require.Len(t, got.Records, 1)
	assert.Equal(t, device.AdRecord{Type: device.AdFlags, Description: "Flags", Value: "non-connectable"}, got.Records[0])
	assert.Equal(t, device.AddressPublic, got.AddressType)
}
