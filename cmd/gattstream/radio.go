package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/gattstream/internal/device"
	goble "github.com/srg/gattstream/internal/device/go-ble"
	"github.com/srg/gattstream/internal/groutine"
	"github.com/srg/gattstream/pkg/config"
	"golang.org/x/term"
)

// newRadio builds the adapter-backed radio. Tests replace it with a fake.
var newRadio = func(cfg *config.Config, logger *logrus.Logger) device.Radio {
	return goble.NewRadio(logger, cfg.RadioOptions())
}

// loadConfig reads --config when given, otherwise returns the defaults. The
// second result reports whether a file was read.
func loadConfig(cmd *cobra.Command) (*config.Config, bool, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), false, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

// interruptContext cancels the returned context on SIGINT or SIGTERM. The
// caller must call stop.
func interruptContext(parent context.Context, errOut io.Writer, logger *logrus.Logger) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	groutine.Go(ctx, "signal-watcher", func(gctx context.Context) {
		select {
		case sig := <-sigCh:
			logger.WithFields(logrus.Fields{
				"goroutine": groutine.Name(gctx),
				"signal":    sig.String(),
			}).Debug("Interrupt received")
			fmt.Fprintln(errOut, "\nCtrl+C pressed, disconnecting...")
			cancel()
		case <-gctx.Done():
		}
	})

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

// isTerminal reports whether v is a file attached to a terminal.
func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
