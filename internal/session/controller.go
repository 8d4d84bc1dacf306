// Package session orchestrates one run: scan, operator selection, connect,
// resolve, subscribe, stream, and the teardown that always follows a
// connection attempt.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattstream/internal/bledb"
	"github.com/srg/gattstream/internal/catalog"
	"github.com/srg/gattstream/internal/device"
	"github.com/srg/gattstream/internal/dispatch"
	"github.com/srg/gattstream/internal/gatt"
	"github.com/srg/gattstream/scanner"
)

// Presenter renders run progress for the operator. Calls come from the
// control goroutine in lifecycle order.
type Presenter interface {
	Discovery(ev catalog.Event)
	Catalog(devices []device.DiscoveredDevice)
	Selected(index int, dev device.DiscoveredDevice)
	Services(services []*device.Service)
	Informational(svc *device.Service)
	Subscriptions(report gatt.SubscribeReport)
}

// Config is the resolved run configuration.
type Config struct {
	Scan scanner.ScanOptions

	AddressType device.AddressType
	// AddressTypeFromScan connects with the type seen in advertisements
	// instead of AddressType.
	AddressTypeFromScan bool

	Strategy     gatt.CCCDStrategy
	RequireAll   bool
	PollInterval time.Duration

	// DumpPath receives the resolved table; empty disables the dump.
	DumpPath string

	Targets       []gatt.Target
	Informational []bledb.UUID
}

// DefaultTargets are the three lab axes on any service plus the heart rate
// measurement under the Heart Rate service.
func DefaultTargets() []gatt.Target {
	return []gatt.Target{
		{UUID: bledb.UUID16(0x2719)},
		{UUID: bledb.UUID16(0x271A)},
		{UUID: bledb.UUID16(0x271B)},
		{UUID: bledb.UUID16(0x2A37), Service: bledb.UUID16(0x180D), Decoder: dispatch.BigEndianUint},
	}
}

// DefaultInformational lists services whose characteristics are only shown.
func DefaultInformational() []bledb.UUID {
	return []bledb.UUID{bledb.UUID16(0x1809)}
}

// DefaultConfig mirrors pkg/config defaults.
func DefaultConfig() Config {
	return Config{
		Scan:          *scanner.DefaultScanOptions(),
		AddressType:   device.AddressRandom,
		Strategy:      gatt.StrategyOffset,
		PollInterval:  gatt.DefaultPollInterval,
		DumpPath:      "output.txt",
		Targets:       DefaultTargets(),
		Informational: DefaultInformational(),
	}
}

// Controller runs the lifecycle against one radio.
type Controller struct {
	scanner   *scanner.Scanner
	session   *gatt.Session
	selector  Selector
	presenter Presenter
	cfg       Config
	logger    *logrus.Logger
}

func NewController(radio device.Radio, sink dispatch.Sink, selector Selector, presenter Presenter, cfg Config, logger *logrus.Logger) (*Controller, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if selector == nil {
		return nil, fmt.Errorf("%w: no device selector", device.ErrUsage)
	}

	sc, err := scanner.NewScanner(radio, logger)
	if err != nil {
		return nil, err
	}

	return &Controller{
		scanner:   sc,
		session:   gatt.New(radio, dispatch.New(sink, logger), logger, gatt.Options{Strategy: cfg.Strategy}),
		selector:  selector,
		presenter: presenter,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Session exposes the GATT session, e.g. for an interrupt handler.
func (c *Controller) Session() *gatt.Session {
	return c.session
}

// Run executes one full lifecycle. Scan, selection, connect and resolve
// failures end the run. Per-target subscription failures and notification
// errors are reported and skipped. Once a connection was attempted the
// session is disconnected on every return path.
func (c *Controller) Run(ctx context.Context) (err error) {
	dev, err := c.discoverAndSelect(ctx)
	if err != nil {
		return err
	}

	addrType := c.cfg.AddressType
	if c.cfg.AddressTypeFromScan {
		addrType = dev.AddressType
	}

	defer func() {
		if derr := c.session.Disconnect(); derr != nil {
			c.logger.WithField("error", derr).Warn("Disconnect failed")
			if err == nil {
				err = derr
			}
		}
	}()

	if err := c.session.Connect(ctx, dev.Address, addrType); err != nil {
		return err
	}
	if err := c.session.ResolveServices(ctx); err != nil {
		return err
	}

	c.dump()
	c.present(func(p Presenter) { p.Services(c.session.Services()) })

	for _, u := range c.cfg.Informational {
		svc, ferr := c.session.FindService(u)
		if ferr != nil {
			c.logger.WithField("service_uuid", u.Short()).Info("Informational service not present")
			continue
		}
		c.present(func(p Presenter) { p.Informational(svc) })
	}

	c.logger.WithFields(logrus.Fields{
		"targets":       len(c.cfg.Targets),
		"cccd_strategy": c.session.Strategy().String(),
		"require_all":   c.cfg.RequireAll,
	}).Debug("Subscribing to targets")
	report, err := c.session.Subscribe(c.cfg.Targets, c.cfg.RequireAll)
	c.present(func(p Presenter) { p.Subscriptions(report) })
	if err != nil {
		return err
	}

	return c.session.Stream(ctx, c.cfg.PollInterval)
}

func (c *Controller) discoverAndSelect(ctx context.Context) (device.DiscoveredDevice, error) {
	scanOpts := c.cfg.Scan
	cat, err := c.scanner.Scan(ctx, &scanOpts, scanner.ObserverFunc(func(ev catalog.Event) {
		c.present(func(p Presenter) { p.Discovery(ev) })
	}))
	if err != nil {
		return device.DiscoveredDevice{}, err
	}

	c.present(func(p Presenter) { p.Catalog(cat.Devices()) })

	if cat.Len() == 0 {
		return device.DiscoveredDevice{}, fmt.Errorf("%w: no devices discovered", device.ErrIndexOutOfRange)
	}

	index, err := c.selector.Select(ctx, cat)
	if err != nil {
		return device.DiscoveredDevice{}, err
	}

	dev, err := cat.Get(index)
	if err != nil {
		return device.DiscoveredDevice{}, err
	}

	c.logger.WithFields(logrus.Fields{
		"index":   index,
		"address": dev.Address,
	}).Info("Device selected")
	c.present(func(p Presenter) { p.Selected(index, dev) })
	return dev, nil
}

// dump writes the resolved table to DumpPath. A failed dump is logged and
// the run continues.
func (c *Controller) dump() {
	if c.cfg.DumpPath == "" {
		return
	}

	f, err := os.Create(c.cfg.DumpPath)
	if err != nil {
		c.logger.WithFields(logrus.Fields{"path": c.cfg.DumpPath, "error": err}).Warn("Cannot create descriptor dump")
		return
	}
	werr := c.session.DumpDescriptors(f)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		c.logger.WithFields(logrus.Fields{"path": c.cfg.DumpPath, "error": err}).Warn("Descriptor dump incomplete")
		return
	}
	c.logger.WithField("path", c.cfg.DumpPath).Debug("Descriptor dump written")
}

func (c *Controller) present(f func(Presenter)) {
	if c.presenter != nil {
		f(c.presenter)
	}
}
