package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/gattstream/internal/bledb"
	"github.com/srg/gattstream/internal/device"
	"github.com/srg/gattstream/internal/dispatch"
	"github.com/srg/gattstream/internal/session"
	"github.com/srg/gattstream/pkg/config"
)

// newRunCmd creates the run command
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scan, pick a device and stream its notifications",
		Long: `Scan for BLE devices, list them and ask for the number of the one to use.
The selected device is connected, its GATT table is written to the dump file,
and the configured characteristics are subscribed. Each notification is
printed as it arrives until Ctrl+C or until the device disconnects.

By default the lab characteristics 2719, 271A and 271B (any service) and the
heart rate measurement 2A37 (service 180D) are subscribed.`,
		Example: `  gattstream run
  gattstream run --index 0 --address-type public
  gattstream run --cccd descriptor --require-all --char 2a37@180d:heart-rate`,
		RunE: runRun,
	}
	addRunFlags(cmd)
	return cmd
}

var (
	runIndex        int
	runDuration     time.Duration
	runAddressType  string
	runTypeFromScan bool
	runCCCD         string
	runRequireAll   bool
	runDump         string
	runPoll         time.Duration
	runTimeout      time.Duration
	runChars        []string
)

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&runIndex, "index", "i", -1, "Device number to connect to (prompt when negative)")
	cmd.Flags().DurationVarP(&runDuration, "duration", "d", 10*time.Second, "Scan duration")
	cmd.Flags().StringVar(&runAddressType, "address-type", "random", "Address type to connect with (random, public)")
	cmd.Flags().BoolVar(&runTypeFromScan, "address-type-from-scan", false, "Connect with the address type seen while scanning")
	cmd.Flags().StringVar(&runCCCD, "cccd", "offset", "How to find the notification control handle (offset, descriptor)")
	cmd.Flags().BoolVar(&runRequireAll, "require-all", false, "Fail unless every characteristic subscribes")
	cmd.Flags().StringVar(&runDump, "dump", "output.txt", "GATT descriptor dump file (empty to skip)")
	cmd.Flags().DurationVar(&runPoll, "poll", time.Second, "Notification poll interval")
	cmd.Flags().DurationVar(&runTimeout, "timeout", 30*time.Second, "Connection timeout")
	cmd.Flags().StringSliceVar(&runChars, "char", nil, "Characteristic to subscribe as uuid[@service][:decoder]; replaces the defaults")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, fromFile, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}

	logger, err := configureLogger(cmd, "verbose", cfg, fromFile)
	if err != nil {
		return err
	}

	sessionCfg, err := cfg.ToSession()
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	con := newConsole(out, errOut)

	var selector session.Selector = session.FixedSelector(runIndex)
	if runIndex < 0 {
		ps := &session.PromptSelector{In: cmd.InOrStdin()}
		if isTerminal(cmd.InOrStdin()) {
			ps.Out = out
		}
		selector = ps
	}

	ctrl, err := session.NewController(newRadio(cfg, logger), con, selector, con, sessionCfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := interruptContext(cmd.Context(), errOut, logger)
	defer stop()

	return ctrl.Run(ctx)
}

// applyRunFlags overrides config values with the flags set on the command line.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("duration") {
		cfg.Scan.Duration = runDuration
	}
	if flags.Changed("address-type") {
		cfg.Connect.AddressType = runAddressType
	}
	if flags.Changed("address-type-from-scan") {
		cfg.Connect.FromScan = runTypeFromScan
	}
	if flags.Changed("timeout") {
		cfg.Connect.Timeout = runTimeout
	}
	if flags.Changed("cccd") {
		cfg.Stream.CCCDStrategy = runCCCD
	}
	if flags.Changed("require-all") {
		cfg.Stream.RequireAll = runRequireAll
	}
	if flags.Changed("poll") {
		cfg.Stream.PollInterval = runPoll
	}
	if flags.Changed("dump") {
		cfg.Dump.Path = runDump
	}
	if flags.Changed("char") {
		targets, err := parseCharFlags(runChars)
		if err != nil {
			return err
		}
		cfg.Targets.Characteristics = targets
	}
	return cfg.Validate()
}

// parseCharFlags reads uuid[@service][:decoder] entries.
func parseCharFlags(values []string) ([]config.TargetConfig, error) {
	targets := make([]config.TargetConfig, 0, len(values))
	for _, v := range values {
		var t config.TargetConfig
		entry := strings.TrimSpace(v)
		if i := strings.LastIndex(entry, ":"); i >= 0 {
			t.Decoder = entry[i+1:]
			entry = entry[:i]
		}
		if i := strings.Index(entry, "@"); i >= 0 {
			t.Service = entry[i+1:]
			entry = entry[:i]
		}
		t.UUID = entry

		if _, err := bledb.Parse(t.UUID); err != nil {
			return nil, fmt.Errorf("%w: --char %q: %w", device.ErrUsage, v, err)
		}
		if _, err := dispatch.DecoderByName(t.Decoder); err != nil {
			return nil, fmt.Errorf("--char %q: %w", v, err)
		}
		targets = append(targets, t)
	}
	return targets, nil
}
