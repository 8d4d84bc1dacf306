package main

import (
	"errors"
	"fmt"

	"github.com/srg/gattstream/internal/device"
)

// FormatUserError adds an operator hint to errors whose cause is usually
// outside the program.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var idx *device.IndexError
	switch {
	case errors.As(err, &idx):
		return fmt.Sprintf("%v; pick one of the listed device numbers", idx)
	case errors.Is(err, device.ErrRadioUnavailable):
		return fmt.Sprintf("%v (is Bluetooth on, and may this user access the adapter?)", err)
	case errors.Is(err, device.ErrConnectionFailed):
		return fmt.Sprintf("%v (is the device in range and advertising? try --address-type public)", err)
	case errors.Is(err, device.ErrNotConnected):
		return fmt.Sprintf("%v (the peripheral dropped the link)", err)
	default:
		return err.Error()
	}
}
