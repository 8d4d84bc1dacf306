package main

import (
	"errors"
	"testing"

	"github.com/srg/gattstream/internal/device"
	"github.com/srg/gattstream/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type ScanTestSuite struct {
	CommandTestSuite
}

func (s *ScanTestSuite) TestScanCmd_Help() {
	// GOAL: Verify scan command displays help text with all flags
	//
	// TEST SCENARIO: Execute scan --help → returns success → output contains description and flag documentation
	out, _, err := s.ExecuteCommand(s.T().Context(), "", "scan", "--help")
	s.Require().NoError(err, "help command MUST succeed")

	s.Contains(out, "Scan for and display Bluetooth Low Energy devices", "help MUST contain command description")
	s.Contains(out, "--duration", "help MUST document --duration flag")
	s.Contains(out, "--format", "help MUST document --format flag")
	s.Zero(s.Radio.ScanCount(), "help MUST NOT scan")
}

func (s *ScanTestSuite) TestScanCmd_Table() {
	// GOAL: The table lists devices in discovery order with the index run --index accepts
	//
	// TEST SCENARIO: 3 advertisements from 2 addresses → 2 rows, merged RSSI for the first
	out, _, err := s.ExecuteCommand(s.T().Context(), "", "scan", "--duration", "20ms")
	s.Require().NoError(err)

	testutils.NewTextAsserter(s.T()).Assert(out, `
#  NAME       ADDRESS            TYPE    RSSI     SERVICES
0  Thermo     c0:00:00:00:00:01  public  -58 dBm
1  Lab Board  c0:00:00:00:00:02  random  -48 dBm  180d
`)
}

func (s *ScanTestSuite) TestScanCmd_JSON() {
	out, _, err := s.ExecuteCommand(s.T().Context(), "", "scan", "--duration", "20ms", "--format", "json")
	s.Require().NoError(err)

	testutils.NewJSONAsserter(s.T()).Assert(out, `[
		{"address": "c0:00:00:00:00:01", "address_type": "public", "rssi": -58, "name": "Thermo",
		 "records": [{"type": 9, "description": "Complete Local Name", "value": "Thermo"}]},
		{"address": "c0:00:00:00:00:02", "address_type": "random", "rssi": -48, "name": "Lab Board",
		 "connectable": true, "services": ["180d"], "records": "<<PRESENCE>>"}
	]`)
}

func (s *ScanTestSuite) TestScanCmd_Filters() {
	out, _, err := s.ExecuteCommand(s.T().Context(), "", "scan", "--duration", "20ms", "--services", "180D")
	s.Require().NoError(err)
	s.Contains(out, "Lab Board")
	s.NotContains(out, "Thermo")

	s.ResetFakes()
	out, _, err = s.ExecuteCommand(s.T().Context(), "", "scan", "--duration", "20ms", "--block", "C0:00:00:00:00:02")
	s.Require().NoError(err)
	s.Contains(out, "Thermo")
	s.NotContains(out, "Lab Board")
}

func (s *ScanTestSuite) TestScanCmd_NoDevices() {
	s.Radio.Adverts = nil

	out, _, err := s.ExecuteCommand(s.T().Context(), "", "scan", "--duration", "20ms")
	s.Require().NoError(err)
	s.Equal("No devices discovered\n", out)
}

func (s *ScanTestSuite) TestScanCmd_InvalidArguments() {
	// GOAL: Verify scan command rejects invalid arguments before scanning
	//
	// TEST SCENARIO: invalid format or service UUID → usage error → radio untouched
	_, _, err := s.ExecuteCommand(s.T().Context(), "", "scan", "--format=invalid")
	s.Require().ErrorIs(err, device.ErrUsage)
	s.Contains(err.Error(), "invalid format 'invalid': must be one of [table json]", "error MUST list valid formats")

	_, _, err = s.ExecuteCommand(s.T().Context(), "", "scan", "--services", "not-a-uuid")
	s.ErrorIs(err, device.ErrUsage)

	s.Zero(s.Radio.ScanCount())
}

func (s *ScanTestSuite) TestScanCmd_RadioUnavailable() {
	s.Radio.ScanErr = errors.New("can't init hci: no devices available")

	_, _, err := s.ExecuteCommand(s.T().Context(), "", "scan", "--duration", "20ms")
	s.ErrorIs(err, device.ErrRadioUnavailable)
	s.Contains(FormatUserError(err), "is Bluetooth on")
}

func TestScanTestSuite(t *testing.T) {
	suite.Run(t, new(ScanTestSuite))
}
