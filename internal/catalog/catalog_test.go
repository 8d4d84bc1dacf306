package catalog_test

import (
	"testing"

	"github.com/srg/gattstream/internal/catalog"
	"github.com/srg/gattstream/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type CatalogTestSuite struct {
	suite.Suite
	cat *catalog.Catalog
}

func (s *CatalogTestSuite) SetupTest() {
	s.cat = catalog.New()
}

func adv(address string, rssi int, records ...device.AdRecord) device.Advertisement {
	return device.Advertisement{Address: address, AddressType: device.AddressRandom, RSSI: rssi, Records: records}
}

func (s *CatalogTestSuite) TestAppendsInDiscoveryOrder() {
	for i, addr := range []string{"cc:00:00:00:00:03", "aa:00:00:00:00:01", "bb:00:00:00:00:02"} {
		_, err := s.cat.Record(catalog.Event{Type: catalog.EventNew, Adv: adv(addr, -40-i)})
		s.Require().NoError(err)
	}

	s.Equal(3, s.cat.Len())
	devs := s.cat.Devices()
	s.Equal("cc:00:00:00:00:03", devs[0].Address)
	s.Equal("aa:00:00:00:00:01", devs[1].Address)
	s.Equal("bb:00:00:00:00:02", devs[2].Address)

	d, err := s.cat.Get(1)
	s.Require().NoError(err)
	s.Equal("aa:00:00:00:00:01", d.Address)
}

func (s *CatalogTestSuite) TestSameAddressIsMergedNotDuplicated() {
	// GOAL: An address seen as NewDevice and then UpdatedData yields one merged entry
	//
	// TEST SCENARIO: new(flags, name) → updated(name, tx power) → one entry, three records
	addr := "aa:bb:cc:dd:ee:ff"
	_, err := s.cat.Record(catalog.Event{Type: catalog.EventNew, Adv: adv(addr, -70,
		device.AdRecord{Type: device.AdFlags, Description: "Flags", Value: "06"},
		device.AdRecord{Type: device.AdCompleteName, Description: "Complete Local Name", Value: "Lab"},
	)})
	s.Require().NoError(err)

	s.Equal(catalog.EventUpdated, s.cat.Classify(addr))

	snap, err := s.cat.Record(catalog.Event{Type: catalog.EventUpdated, Adv: adv(addr, -55,
		device.AdRecord{Type: device.AdCompleteName, Description: "Complete Local Name", Value: "Lab"},
		device.AdRecord{Type: device.AdTxPower, Description: "Tx Power", Value: "4"},
	)})
	s.Require().NoError(err)

	s.Equal(1, s.cat.Len())
	s.Equal(-55, snap.RSSI)
	s.Len(snap.Records, 3)
}

func (s *CatalogTestSuite) TestRepeatedNewEventDoesNotDuplicate() {
	_, err := s.cat.Record(catalog.Event{Type: catalog.EventNew, Adv: adv("11:22:33:44:55:66", -80)})
	s.Require().NoError(err)
	_, err = s.cat.Record(catalog.Event{Type: catalog.EventNew, Adv: adv("11:22:33:44:55:66", -81)})
	s.Require().NoError(err)

	s.Equal(1, s.cat.Len())
}

func (s *CatalogTestSuite) TestRecordFromSnapshotOnly() {
	_, err := s.cat.Record(catalog.Event{
		Type:   catalog.EventNew,
		Device: device.DiscoveredDevice{Address: "de:ad:be:ef:00:01", RSSI: -33},
	})
	s.Require().NoError(err)

	d, err := s.cat.Get(0)
	s.Require().NoError(err)
	s.Equal(-33, d.RSSI)
}

func (s *CatalogTestSuite) TestGetOutOfRange() {
	_, err := s.cat.Record(catalog.Event{Type: catalog.EventNew, Adv: adv("aa:00:00:00:00:01", -40)})
	s.Require().NoError(err)

	for _, idx := range []int{-1, 1, 42} {
		_, err := s.cat.Get(idx)
		s.ErrorIs(err, device.ErrIndexOutOfRange, "index %d", idx)
	}
}

func (s *CatalogTestSuite) TestFreezeRejectsRecording() {
	s.cat.Freeze()
	s.True(s.cat.Frozen())

	_, err := s.cat.Record(catalog.Event{Type: catalog.EventNew, Adv: adv("aa:00:00:00:00:01", -40)})
	s.ErrorIs(err, catalog.ErrFrozen)
	s.Equal(0, s.cat.Len())
}

func TestCatalogTestSuite(t *testing.T) {
	suite.Run(t, new(CatalogTestSuite))
}

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "new", catalog.EventNew.String())
	assert.Equal(t, "updated", catalog.EventUpdated.String())
}

func TestSnapshotsAreStable(t *testing.T) {
	cat := catalog.New()
	first, err := cat.Record(catalog.Event{Adv: adv("aa:00:00:00:00:01", -40)})
	require.NoError(t, err)

	_, err = cat.Record(catalog.Event{Type: catalog.EventUpdated, Adv: adv("aa:00:00:00:00:01", -90)})
	require.NoError(t, err)

	assert.Equal(t, -40, first.RSSI)
}
