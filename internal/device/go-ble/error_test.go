package goble

import (
	"errors"
	"testing"

	"github.com/srg/gattstream/internal/device"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "CoreBluetooth powered off",
			err:  errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"),
			want: device.ErrRadioUnavailable,
		},
		{name: "already connected", err: errors.New("Device already connected"), want: device.ErrInvalidState},
		{name: "missing CCCD", err: errors.New("CCCD not found"), want: device.ErrSubscriptionWrite},
		{name: "hci init", err: errors.New("can't init hci: no devices available"), want: device.ErrRadioUnavailable},
		{name: "dial timeout", err: errors.New("dial: context deadline exceeded"), want: device.ErrTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeError(tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.Contains(t, got.Error(), tt.err.Error(), "original message MUST be kept")
		})
	}

	assert.NoError(t, NormalizeError(nil))

	other := errors.New("something else")
	assert.Same(t, other, NormalizeError(other))
}
