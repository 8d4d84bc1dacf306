// Package config loads the gattstream configuration file and turns it into
// the run configuration. Command line flags are applied on top by cmd.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/gattstream/internal/bledb"
	"github.com/srg/gattstream/internal/device"
	goble "github.com/srg/gattstream/internal/device/go-ble"
	"github.com/srg/gattstream/internal/dispatch"
	"github.com/srg/gattstream/internal/gatt"
	"github.com/srg/gattstream/internal/session"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel string        `yaml:"log_level" default:"info"`
	Scan     ScanConfig    `yaml:"scan"`
	Connect  ConnectConfig `yaml:"connect"`
	Stream   StreamConfig  `yaml:"stream"`
	Dump     DumpConfig    `yaml:"dump"`
	Targets  TargetsConfig `yaml:"targets"`
}

type ScanConfig struct {
	Duration        time.Duration `yaml:"duration" default:"10s"`
	AllowDuplicates bool          `yaml:"allow_duplicates" default:"true"`
	Allow           []string      `yaml:"allow,omitempty"`
	Block           []string      `yaml:"block,omitempty"`
	Services        []string      `yaml:"services,omitempty"`
}

type ConnectConfig struct {
	Timeout     time.Duration `yaml:"timeout" default:"30s"`
	AddressType string        `yaml:"address_type" default:"random"`
	// FromScan uses the address type seen while scanning.
	FromScan bool `yaml:"address_type_from_scan"`
}

type StreamConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" default:"1s"`
	CCCDStrategy string        `yaml:"cccd_strategy" default:"offset"`
	RequireAll   bool          `yaml:"require_all"`
}

type DumpConfig struct {
	Path string `yaml:"path" default:"output.txt"`
}

// TargetsConfig lists what to subscribe to. Services are informational only:
// their characteristics are printed but not subscribed.
type TargetsConfig struct {
	Services        []string       `yaml:"services"`
	Characteristics []TargetConfig `yaml:"characteristics"`
}

// TargetConfig names one characteristic. An empty service matches the first
// characteristic with the UUID in any service.
type TargetConfig struct {
	UUID    string `yaml:"uuid"`
	Service string `yaml:"service,omitempty"`
	Name    string `yaml:"name,omitempty"`
	Decoder string `yaml:"decoder,omitempty"`
}

// Default returns default configuration values
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)

	cfg.Targets = TargetsConfig{
		Services: []string{"1809"},
		Characteristics: []TargetConfig{
			{UUID: "2719"},
			{UUID: "271A"},
			{UUID: "271B"},
			{UUID: "2A37", Service: "180D", Decoder: dispatch.DefaultDecoderName},
		},
	}
	return cfg
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default; unknown keys are rejected.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", device.ErrUsage, err)
	}
	defer f.Close()

	return Read(f)
}

// Read decodes a YAML document over the defaults.
func Read(r io.Reader) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: invalid config: %w", device.ErrUsage, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every enumerated and UUID-valued field.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.Scan.Duration <= 0 {
		errs = append(errs, fmt.Errorf("scan.duration must be positive, got %s", c.Scan.Duration))
	}
	if _, err := bledb.ParseAll(c.Scan.Services...); err != nil {
		errs = append(errs, fmt.Errorf("scan.services: %w", err))
	}
	if c.Connect.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("connect.timeout must be positive, got %s", c.Connect.Timeout))
	}
	if _, err := device.ParseAddressType(c.Connect.AddressType); err != nil {
		errs = append(errs, fmt.Errorf("connect.address_type: %w", err))
	}
	if c.Stream.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("stream.poll_interval must be positive, got %s", c.Stream.PollInterval))
	}
	if _, err := gatt.ParseCCCDStrategy(c.Stream.CCCDStrategy); err != nil {
		errs = append(errs, fmt.Errorf("stream.cccd_strategy: %w", err))
	}
	if _, err := bledb.ParseAll(c.Targets.Services...); err != nil {
		errs = append(errs, fmt.Errorf("targets.services: %w", err))
	}
	for i, t := range c.Targets.Characteristics {
		if _, err := t.target(); err != nil {
			errs = append(errs, fmt.Errorf("targets.characteristics[%d]: %w", i, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", device.ErrUsage, err)
	}
	return nil
}

func (t TargetConfig) target() (gatt.Target, error) {
	if strings.TrimSpace(t.UUID) == "" {
		return gatt.Target{}, errors.New("uuid is required")
	}
	u, err := bledb.Parse(t.UUID)
	if err != nil {
		return gatt.Target{}, err
	}

	var svc bledb.UUID
	if t.Service != "" {
		if svc, err = bledb.Parse(t.Service); err != nil {
			return gatt.Target{}, fmt.Errorf("service: %w", err)
		}
	}

	dec, err := dispatch.DecoderByName(t.Decoder)
	if err != nil {
		return gatt.Target{}, err
	}
	return gatt.Target{UUID: u, Service: svc, Name: t.Name, Decoder: dec}, nil
}

// ToSession converts the file configuration into the controller config.
func (c *Config) ToSession() (session.Config, error) {
	if err := c.Validate(); err != nil {
		return session.Config{}, err
	}

	// Validate already parsed every field below.
	addrType, _ := device.ParseAddressType(c.Connect.AddressType)
	strategy, _ := gatt.ParseCCCDStrategy(c.Stream.CCCDStrategy)
	scanServices, _ := bledb.ParseAll(c.Scan.Services...)
	informational, _ := bledb.ParseAll(c.Targets.Services...)

	targets := make([]gatt.Target, 0, len(c.Targets.Characteristics))
	for _, tc := range c.Targets.Characteristics {
		t, _ := tc.target()
		targets = append(targets, t)
	}

	cfg := session.DefaultConfig()
	cfg.Scan.Duration = c.Scan.Duration
	cfg.Scan.ServiceUUIDs = scanServices
	cfg.Scan.AllowList = c.Scan.Allow
	cfg.Scan.BlockList = c.Scan.Block
	cfg.AddressType = addrType
	cfg.AddressTypeFromScan = c.Connect.FromScan
	cfg.Strategy = strategy
	cfg.RequireAll = c.Stream.RequireAll
	cfg.PollInterval = c.Stream.PollInterval
	cfg.DumpPath = c.Dump.Path
	cfg.Targets = targets
	cfg.Informational = informational
	return cfg, nil
}

// RadioOptions returns the go-ble radio settings.
func (c *Config) RadioOptions() goble.Options {
	return goble.Options{
		AllowDuplicates: c.Scan.AllowDuplicates,
		ConnectTimeout:  c.Connect.Timeout,
	}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
