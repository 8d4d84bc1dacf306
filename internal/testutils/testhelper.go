package testutils

import (
	"bytes"

	"github.com/sirupsen/logrus"
)

// NewTestLogger returns a debug-level logger writing into buf, so tests can
// assert on log output without polluting go test's.
func NewTestLogger(buf *bytes.Buffer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(buf)
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.TextFormatter{DisableColors: true, DisableTimestamp: true})
	return logger
}

// NewSilentLogger returns a logger that drops everything.
func NewSilentLogger() *logrus.Logger {
	return NewTestLogger(&bytes.Buffer{})
}
