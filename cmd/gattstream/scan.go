package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/gattstream/internal/bledb"
	"github.com/srg/gattstream/internal/device"
	"github.com/srg/gattstream/scanner"
)

// newScanCmd creates the scan command
func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for BLE devices",
		Long: `Scan for and display Bluetooth Low Energy devices in the vicinity.

This command lists every discovered device with its index, address, address
type, RSSI and advertised services. The index is the one "run --index"
accepts when the same devices are in range.`,
		RunE: runScan,
	}
	addScanFlags(cmd)
	return cmd
}

var (
	scanDuration  time.Duration
	scanFormat    string
	scanServices  []string
	scanAllowList []string
	scanBlockList []string
)

var validFormats = []string{"table", "json"}

func addScanFlags(cmd *cobra.Command) {
	cmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration")
	cmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	cmd.Flags().StringSliceVarP(&scanServices, "services", "s", nil, "Filter by service UUIDs")
	cmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only show devices with these addresses")
	cmd.Flags().StringSliceVar(&scanBlockList, "block", nil, "Hide devices with these addresses")
}

func runScan(cmd *cobra.Command, args []string) error {
	isValidFormat := false
	for _, format := range validFormats {
		if scanFormat == format {
			isValidFormat = true
			break
		}
	}
	if !isValidFormat {
		return fmt.Errorf("%w: invalid format '%s': must be one of %v", device.ErrUsage, scanFormat, validFormats)
	}

	cfg, fromFile, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, "verbose", cfg, fromFile)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("duration") {
		cfg.Scan.Duration = scanDuration
	}
	if cfg.Scan.Duration <= 0 {
		return fmt.Errorf("%w: scan duration must be positive", device.ErrUsage)
	}

	serviceUUIDs, err := bledb.ParseAll(scanServices...)
	if err != nil {
		return fmt.Errorf("%w: invalid service UUID: %w", device.ErrUsage, err)
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	s, err := scanner.NewScanner(newRadio(cfg, logger), logger)
	if err != nil {
		return fmt.Errorf("failed to create BLE scanner: %w", err)
	}

	opts := &scanner.ScanOptions{
		Duration:     cfg.Scan.Duration,
		ServiceUUIDs: serviceUUIDs,
		AllowList:    scanAllowList,
		BlockList:    scanBlockList,
	}

	errOut := cmd.ErrOrStderr()
	if isTerminal(errOut) {
		progress := NewCountdownProgressPrinter(errOut, "Scanning for BLE devices", "Scanning", opts.Duration, "Processing results")
		progress.Start()
		defer progress.Stop()
		opts.Progress = progress.Callback()
	}

	ctx, stop := interruptContext(cmd.Context(), errOut, logger)
	defer stop()

	cat, err := s.Scan(ctx, opts, nil)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	out := cmd.OutOrStdout()
	if scanFormat == "json" {
		return displayDevicesJSON(out, cat.Devices())
	}
	return displayDevicesTable(out, cat.Devices())
}

func displayDevicesTable(out io.Writer, devices []device.DiscoveredDevice) error {
	if len(devices) == 0 {
		fmt.Fprintln(out, "No devices discovered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tNAME\tADDRESS\tTYPE\tRSSI\tSERVICES")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	for i, d := range devices {
		name := d.Name
		if len(name) > 20 {
			name = name[:17] + "..."
		}

		uuids := make([]string, 0, len(d.Services))
		for _, u := range d.Services {
			uuids = append(uuids, u.Short())
		}
		services := strings.Join(uuids, ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}

		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d dBm\t%s\n", i, name, d.Address, d.AddressType, d.RSSI, services)
	}

	return w.Flush()
}

func displayDevicesJSON(out io.Writer, devices []device.DiscoveredDevice) error {
	if devices == nil {
		devices = []device.DiscoveredDevice{}
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(devices)
}
