package goble

import (
	"errors"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/srg/gattstream/internal/bledb"
	"github.com/srg/gattstream/internal/device"
	"github.com/srg/gattstream/internal/testutils"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type ConnectionTestSuite struct {
	suite.Suite
	client *testutils.MockGATTClient
	table  []*ble.Service
	conn   *Connection
}

func (s *ConnectionTestSuite) SetupTest() {
	s.table = testutils.NewGATTTableBuilder().FromJSON(`{
		"services": [
			{"uuid": "1800", "handle": 1, "characteristics": [
				{"uuid": "2A00", "properties": "read"}
			]},
			{"uuid": "180D", "handle": 35, "characteristics": [
				{"uuid": "2A37", "handle": 36, "properties": "notify", "descriptors": ["2902"]}
			]}
		]
	}`).BuildBLE()

	s.client = testutils.NewMockGATTClient().ExpectTable(s.table)
	s.conn = NewConnection(s.client, "aa:bb:cc:dd:ee:ff", testutils.NewSilentLogger())
}

func (s *ConnectionTestSuite) TestResolveConvertsTable() {
	services, err := s.conn.Resolve(s.T().Context())
	s.Require().NoError(err)
	s.Require().Len(services, 2)

	hr := services[1]
	s.Equal(bledb.UUID16(0x180D), hr.UUID)
	s.Equal(uint16(0x0023), hr.Handle)
	s.Equal(uint16(0x0026), hr.EndHandle)

	s.Require().Len(hr.Characteristics, 1)
	c := hr.Characteristics[0]
	s.Equal(bledb.UUID16(0x2A37), c.UUID)
	s.Equal(uint16(0x0024), c.Handle)
	s.Equal(uint16(0x0025), c.ValueHandle)
	s.True(c.Properties.Has(device.PropNotify))
	s.Same(hr, c.Service)

	d, ok := c.Descriptor(bledb.CCCD)
	s.Require().True(ok)
	s.Equal(uint16(0x0026), d.Handle)
}

func (s *ConnectionTestSuite) TestResolveRejectsValueHandleOutsideService() {
	// GOAL: Malformed attribute data fails resolution instead of producing a broken table
	//
	// TEST SCENARIO: value handle beyond the service end handle → ErrResolution
	s.table[1].Characteristics[0].ValueHandle = 0x0040

	_, err := s.conn.Resolve(s.T().Context())
	s.ErrorIs(err, device.ErrResolution)
}

func (s *ConnectionTestSuite) TestResolveDiscoveryFailure() {
	client := testutils.NewMockGATTClient()
	client.On("DiscoverServices", mock.Anything).Return(nil, errors.New("att: request timed out"))
	conn := NewConnection(client, "aa:bb:cc:dd:ee:ff", testutils.NewSilentLogger())

	_, err := conn.Resolve(s.T().Context())
	s.ErrorIs(err, device.ErrResolution)
	s.ErrorIs(err, device.ErrTimeout)
}

func (s *ConnectionTestSuite) TestEnableWritePinsControlHandle() {
	// GOAL: Writing 01 00 to the attribute after the value subscribes through that handle
	//
	// TEST SCENARIO: resolve → write 0x0026 → peripheral notifies 00 4B from value 0x0025 → WaitForEvent reports it on 0x0026
	_, err := s.conn.Resolve(s.T().Context())
	s.Require().NoError(err)

	s.client.On("Subscribe", mock.MatchedBy(func(c *ble.Characteristic) bool {
		return c.ValueHandle == 0x0025 && c.CCCD != nil && c.CCCD.Handle == 0x0026
	}), false, mock.Anything).Return(nil).Once()

	s.Require().NoError(s.conn.WriteAttribute(0x0026, []byte{0x01, 0x00}))
	s.Require().True(s.client.Notify(0x0025, []byte{0x00, 0x4B}))

	n, ok, err := s.conn.WaitForEvent(time.Second)
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal(uint16(0x0026), n.Handle)
	s.Equal([]byte{0x00, 0x4B}, n.Payload)

	s.client.AssertExpectations(s.T())
}

func (s *ConnectionTestSuite) TestOffsetControlHandleIsTheCCCD() {
	// GOAL: On a standard layout the value handle + 1 write lands on the discovered CCCD, never on the value
	//
	// TEST SCENARIO: 2A37 declared at 0x0024 with its CCCD discovered → enable via ValueHandle+1 → go-ble writes the CCCD, not 0x0025
	services, err := s.conn.Resolve(s.T().Context())
	s.Require().NoError(err)
	c := services[1].Characteristics[0]
	d, ok := c.Descriptor(bledb.CCCD)
	s.Require().True(ok)
	s.Equal(d.Handle, c.ValueHandle+1)

	var written uint16
	s.client.On("Subscribe", mock.MatchedBy(func(bc *ble.Characteristic) bool {
		written = bc.CCCD.Handle
		return bc.ValueHandle == c.ValueHandle
	}), false, mock.Anything).Return(nil).Once()

	s.Require().NoError(s.conn.WriteAttribute(c.ValueHandle+1, []byte{0x01, 0x00}))
	s.Equal(d.Handle, written)
	s.NotEqual(c.ValueHandle, written)
	s.client.AssertExpectations(s.T())
}

func (s *ConnectionTestSuite) TestEnableWriteThroughDiscoveredCCCD() {
	// GOAL: A CCCD that does not follow the value is still a control handle
	//
	// TEST SCENARIO: 2901 sits between value and CCCD → write 0x0027 subscribes with CCCD 0x0027 → notification reported on 0x0027
	s.table = testutils.NewGATTTableBuilder().FromJSON(`{
		"services": [
			{"uuid": "180D", "handle": 35, "characteristics": [
				{"uuid": "2A37", "handle": 36, "properties": "notify", "descriptors": ["2901", "2902"]}
			]}
		]
	}`).BuildBLE()
	s.client = testutils.NewMockGATTClient().ExpectTable(s.table)
	s.conn = NewConnection(s.client, "aa:bb:cc:dd:ee:ff", testutils.NewSilentLogger())

	_, err := s.conn.Resolve(s.T().Context())
	s.Require().NoError(err)

	s.client.On("Subscribe", mock.MatchedBy(func(c *ble.Characteristic) bool {
		return c.ValueHandle == 0x0025 && c.CCCD.Handle == 0x0027
	}), false, mock.Anything).Return(nil).Once()

	s.Require().NoError(s.conn.WriteAttribute(0x0027, []byte{0x01, 0x00}))
	s.Require().True(s.client.Notify(0x0025, []byte{0x01}))

	n, ok, err := s.conn.WaitForEvent(time.Second)
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal(uint16(0x0027), n.Handle)
	s.client.AssertExpectations(s.T())
}

func (s *ConnectionTestSuite) TestIndicationEnable() {
	_, err := s.conn.Resolve(s.T().Context())
	s.Require().NoError(err)

	s.client.On("Subscribe", mock.Anything, true, mock.Anything).Return(nil).Once()
	s.Require().NoError(s.conn.WriteAttribute(0x0026, []byte{0x02, 0x00}))

	s.client.On("Unsubscribe", mock.Anything, true).Return(nil).Once()
	s.Require().NoError(s.conn.WriteAttribute(0x0026, []byte{0x00, 0x00}))

	s.client.AssertExpectations(s.T())
}

func (s *ConnectionTestSuite) TestRejectedWriteIsSubscriptionWriteError() {
	_, err := s.conn.Resolve(s.T().Context())
	s.Require().NoError(err)

	s.client.On("Subscribe", mock.Anything, false, mock.Anything).
		Return(errors.New("ATT error: insufficient authentication")).Once()

	err = s.conn.WriteAttribute(0x0026, []byte{0x01, 0x00})
	s.ErrorIs(err, device.ErrSubscriptionWrite)

	var herr *device.HandleError
	s.Require().ErrorAs(err, &herr)
	s.Equal(uint16(0x0026), herr.Handle)
}

func (s *ConnectionTestSuite) TestPlainWriteUsesDescriptorWrite() {
	_, err := s.conn.Resolve(s.T().Context())
	s.Require().NoError(err)

	s.client.On("WriteDescriptor", mock.MatchedBy(func(d *ble.Descriptor) bool {
		return d.Handle == 0x0003
	}), []byte{0x10}).Return(nil).Once()

	s.Require().NoError(s.conn.WriteAttribute(0x0003, []byte{0x10}))
	s.client.AssertExpectations(s.T())
}

func (s *ConnectionTestSuite) TestWaitForEventTimesOut() {
	start := time.Now()
	_, ok, err := s.conn.WaitForEvent(20 * time.Millisecond)

	s.NoError(err)
	s.False(ok)
	s.GreaterOrEqual(time.Since(start), 20*time.Millisecond)
}

func (s *ConnectionTestSuite) TestCloseIsIdempotentAndFailsFast() {
	s.client.On("ClearSubscriptions").Return(nil).Once()
	s.client.On("CancelConnection").Return(nil).Once()

	s.NoError(s.conn.Close())
	s.NoError(s.conn.Close())

	start := time.Now()
	_, ok, err := s.conn.WaitForEvent(time.Minute)
	s.ErrorIs(err, device.ErrNotConnected)
	s.False(ok)
	s.Less(time.Since(start), time.Second)

	err = s.conn.WriteAttribute(0x0026, []byte{0x01, 0x00})
	s.ErrorIs(err, device.ErrNotConnected)

	s.client.AssertExpectations(s.T())
}

func (s *ConnectionTestSuite) TestRemoteDisconnectEndsWait() {
	go func() {
		time.Sleep(10 * time.Millisecond)
		s.client.Drop()
	}()

	_, _, err := s.conn.WaitForEvent(time.Minute)
	s.ErrorIs(err, device.ErrNotConnected)
}

func (s *ConnectionTestSuite) TestCloseAfterRemoteDropIgnoresCancelError() {
	s.client.Drop()
	s.client.On("ClearSubscriptions").Return(errors.New("device not connected"))
	s.client.On("CancelConnection").Return(errors.New("device not connected"))

	s.NoError(s.conn.Close())
}

func TestConnectionTestSuite(t *testing.T) {
	suite.Run(t, new(ConnectionTestSuite))
}
