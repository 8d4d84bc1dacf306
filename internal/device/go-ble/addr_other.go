//go:build !linux

package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/gattstream/internal/device"
)

// CoreBluetooth identifies peripherals by UUID and hides the address type.
func peerAddress(address string, _ device.AddressType) ble.Addr {
	return ble.NewAddr(address)
}

func addressTypeOf(ble.Addr) device.AddressType {
	return device.AddressPublic
}
