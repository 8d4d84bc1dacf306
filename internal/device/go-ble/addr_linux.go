//go:build linux

package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux/hci"
	"github.com/srg/gattstream/internal/device"
)

// peerAddress wraps random addresses so the HCI layer sets the peer address
// type in the connection request.
func peerAddress(address string, t device.AddressType) ble.Addr {
	if t == device.AddressRandom {
		return hci.RandomAddress{Addr: ble.NewAddr(address)}
	}
	return ble.NewAddr(address)
}

func addressTypeOf(a ble.Addr) device.AddressType {
	if _, ok := a.(hci.RandomAddress); ok {
		return device.AddressRandom
	}
	return device.AddressPublic
}
