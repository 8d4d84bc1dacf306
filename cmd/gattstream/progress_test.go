package main

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// lockedBuffer guards a bytes.Buffer shared with the display goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestProgressPrinterCountdown(t *testing.T) {
	var out lockedBuffer
	p := NewCountdownProgressPrinter(&out, "Scanning for BLE devices", "Scanning", 3*time.Second, "Processing results")
	p.Start()

	time.Sleep(3 * progressUpdateInterval)
	p.Callback()("Processing results")

	got := out.String()
	assert.True(t, strings.HasPrefix(got, "\rScanning for BLE devices (Scanning...)"))
	assert.Contains(t, got, "(Scanning 3s)")
	assert.True(t, strings.HasSuffix(got, clearLineSequence))

	// Stop after a stop phase is a no-op
	p.Stop()
	assert.Equal(t, got, out.String())
}

func TestProgressPrinterStartTwicePanics(t *testing.T) {
	p := NewCountdownProgressPrinter(&lockedBuffer{}, "x", "Scanning", time.Second)
	p.Start()
	defer p.Stop()

	assert.Panics(t, p.Start)
}
