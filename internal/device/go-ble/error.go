package goble

import (
	"fmt"
	"strings"

	"github.com/srg/gattstream/internal/device"
)

// NormalizeError maps go-ble error strings onto the device error taxonomy.
// The original error stays in the chain.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %v", device.ErrRadioUnavailable, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", device.ErrInvalidState, err)
	case containsIgnoreCase(msg, "CCCD not found"):
		return fmt.Errorf("%w: %v", device.ErrSubscriptionWrite, err)
	default:
		return device.NormalizeError(err)
	}
}

// containsIgnoreCase checks the substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
