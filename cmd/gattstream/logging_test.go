package main

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/gattstream/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureLogger(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		fallback string
		want     logrus.Level
		wantErr  bool
	}{
		{name: "silent by default", want: logrus.PanicLevel},
		{name: "verbose", args: []string{"--verbose"}, want: logrus.DebugLevel},
		{name: "log level wins over verbose", args: []string{"--verbose", "--log-level", "warn"}, want: logrus.WarnLevel},
		{name: "config fallback", fallback: "info", want: logrus.InfoLevel},
		{name: "flag wins over config", args: []string{"--log-level", "error"}, fallback: "debug", want: logrus.ErrorLevel},
		{name: "invalid level", args: []string{"--log-level", "trace"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
			cmd.Flags().String("log-level", "", "")
			cmd.Flags().Bool("verbose", false, "")
			require.NoError(t, cmd.ParseFlags(tt.args))

			var errOut bytes.Buffer
			cmd.SetErr(&errOut)

			cfg := config.Default()
			cfg.LogLevel = tt.fallback
			logger, err := configureLogger(cmd, "verbose", cfg, tt.fallback != "")
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "must be debug, info, warn, or error")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, logger.GetLevel())

			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			require.True(t, ok)
			assert.True(t, formatter.FullTimestamp)

			if logger.IsLevelEnabled(logrus.ErrorLevel) {
				logger.Error("routed to stderr")
				assert.Contains(t, errOut.String(), "routed to stderr")
			}
		})
	}
}
