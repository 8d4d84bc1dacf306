package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/srg/gattstream/internal/bledb"
	"github.com/srg/gattstream/internal/catalog"
	"github.com/srg/gattstream/internal/device"
	"github.com/srg/gattstream/internal/dispatch"
	"github.com/srg/gattstream/internal/gatt"
	"github.com/srg/gattstream/internal/session"
)

// console prints the run to the operator. Device listings and samples go to
// out; warnings go to errOut in yellow.
type console struct {
	out    io.Writer
	errOut io.Writer
	warn   *color.Color
}

var (
	_ session.Presenter = (*console)(nil)
	_ dispatch.Sink     = (*console)(nil)
)

func newConsole(out, errOut io.Writer) *console {
	return &console{
		out:    out,
		errOut: errOut,
		warn:   color.New(color.FgYellow),
	}
}

func (c *console) Discovery(ev catalog.Event) {
	if ev.Type == catalog.EventNew {
		fmt.Fprintf(c.out, "Discovered device %s\n", ev.Device.Address)
		return
	}
	fmt.Fprintf(c.out, "Received new data from %s\n", ev.Device.Address)
}

func (c *console) Catalog(devices []device.DiscoveredDevice) {
	for i, d := range devices {
		fmt.Fprintf(c.out, "%d: Device %s (%s), RSSI=%d dB\n", i, d.Address, d.AddressType, d.RSSI)
		for _, rec := range d.Records {
			fmt.Fprintf(c.out, "  %s = %s\n", rec.Description, rec.Value)
		}
	}
}

func (c *console) Selected(index int, dev device.DiscoveredDevice) {
	fmt.Fprintf(c.out, "Device %d\n%s\nConnecting...\n", index, dev.Address)
}

func (c *console) Services(services []*device.Service) {
	fmt.Fprintln(c.out, "Services...")
	for _, svc := range services {
		fmt.Fprintf(c.out, "Service %s\n", bledb.Describe(svc.UUID))
		for _, ch := range svc.Characteristics {
			c.characteristic(ch)
		}
	}
	fmt.Fprintln(c.out, "Service end")
}

func (c *console) Informational(svc *device.Service) {
	for _, ch := range svc.Characteristics {
		c.characteristic(ch)
	}
}

func (c *console) characteristic(ch *device.Characteristic) {
	fmt.Fprintf(c.out, "  Characteristic %s, hnd=0x%04X, props=%s\n", bledb.Describe(ch.UUID), ch.ValueHandle, ch.Properties)
}

func (c *console) Subscriptions(report gatt.SubscribeReport) {
	for _, res := range report.Results {
		if res.Err != nil {
			c.warn.Fprintf(c.errOut, "WARNING: skipping %s: %v\n", res.Target, res.Err)
			continue
		}
		fmt.Fprintf(c.out, "Subscribed %s, notifications on 0x%04X\n", res.Target, res.BindingHandle)
	}
}

func (c *console) OnSample(s dispatch.Sample) {
	fmt.Fprintf(c.out, "Notification from Handle: 0x%02X\n%d\n", s.Handle, s.Value)
}

func (c *console) OnError(err error) {
	c.warn.Fprintf(c.errOut, "WARNING: %v\n", err)
}
