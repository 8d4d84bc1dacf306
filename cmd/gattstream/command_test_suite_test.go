package main

import (
	"bytes"
	"context"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/srg/gattstream/internal/bledb"
	"github.com/srg/gattstream/internal/device"
	"github.com/srg/gattstream/internal/testutils"
	"github.com/srg/gattstream/pkg/config"
	"github.com/stretchr/testify/suite"
)

// Test device addresses for consistent fake device identification
const (
	TestDeviceAddress1 = "c0:00:00:00:00:01"
	TestDeviceAddress2 = "c0:00:00:00:00:02"
)

const heartRateTable = `{
	"services": [
		{"uuid": "1809", "handle": 1, "characteristics": [
			{"uuid": "2A1C", "properties": "indicate", "descriptors": ["2902"]}
		]},
		{"uuid": "180D", "handle": 35, "characteristics": [
			{"uuid": "2A37", "handle": 36, "properties": "notify", "descriptors": ["2902"]}
		]}
	]
}`

// CommandTestSuite runs commands against a scripted radio. All cmd test
// suites embed it.
type CommandTestSuite struct {
	suite.Suite

	Radio *testutils.FakeRadio
	Link  *testutils.FakeLink

	originalNewRadio func(*config.Config, *logrus.Logger) device.Radio
	originalNoColor  bool
}

func (s *CommandTestSuite) SetupTest() {
	s.ResetFakes()

	s.originalNewRadio = newRadio
	newRadio = func(*config.Config, *logrus.Logger) device.Radio { return s.Radio }

	s.originalNoColor = color.NoColor
	color.NoColor = true
}

func (s *CommandTestSuite) TearDownTest() {
	newRadio = s.originalNewRadio
	color.NoColor = s.originalNoColor
}

// ResetFakes replaces the radio and link with fresh ones, e.g. between
// sub-tests.
func (s *CommandTestSuite) ResetFakes() {
	s.Link = testutils.NewFakeLink(testutils.NewGATTTableBuilder().FromJSON(heartRateTable).Build())
	s.Radio = &testutils.FakeRadio{
		Adverts: []device.Advertisement{
			{
				Address: TestDeviceAddress1, AddressType: device.AddressPublic, RSSI: -70, Name: "Thermo",
				Records: []device.AdRecord{{Type: device.AdCompleteName, Description: "Complete Local Name", Value: "Thermo"}},
			},
			{
				Address: TestDeviceAddress2, AddressType: device.AddressRandom, RSSI: -48, Name: "Lab Board",
				Connectable: true, Services: []bledb.UUID{bledb.UUID16(0x180D)},
				Records: []device.AdRecord{
					{Type: device.AdFlags, Description: "Flags", Value: "connectable"},
					{Type: device.AdCompleteName, Description: "Complete Local Name", Value: "Lab Board"},
				},
			},
			{
				Address: TestDeviceAddress1, AddressType: device.AddressPublic, RSSI: -58,
			},
		},
		Link: s.Link,
	}
}

// ExecuteCommand runs a fresh command tree with args and stdin, returns
// stdout, stderr and the command error.
func (s *CommandTestSuite) ExecuteCommand(ctx context.Context, stdin string, args ...string) (string, string, error) {
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}
