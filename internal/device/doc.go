// Package device defines the BLE domain model shared by every gattstream
// component: discovered devices and their advertisement records, the resolved
// GATT attribute table, the radio and link capabilities a transport has to
// provide, and the error taxonomy used across the session lifecycle.
//
// Transports live in sub-packages (see go-ble). Nothing outside a transport
// talks to the radio directly; the scanner drives Radio.Scan and the GATT
// session exclusively owns the Link returned by Radio.Connect.
package device
