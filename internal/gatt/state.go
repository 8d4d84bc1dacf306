package gatt

import (
	"fmt"
	"strings"

	"github.com/srg/gattstream/internal/device"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateServicesResolved
	StateSubscribed
	StateStreaming
	StateDisconnecting
)

var stateNames = [...]string{
	StateDisconnected:     "Disconnected",
	StateConnecting:       "Connecting",
	StateConnected:        "Connected",
	StateServicesResolved: "ServicesResolved",
	StateSubscribed:       "Subscribed",
	StateStreaming:        "Streaming",
	StateDisconnecting:    "Disconnecting",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// linked reports whether a link is held in this state.
func (s State) linked() bool {
	switch s {
	case StateConnected, StateServicesResolved, StateSubscribed, StateStreaming:
		return true
	default:
		return false
	}
}

// CCCDStrategy selects how the notification control handle is found.
type CCCDStrategy int

const (
	// StrategyOffset assumes the CCCD directly follows the characteristic
	// value (value handle + 1). Peripherals with another descriptor in between
	// reject the write or never start notifying.
	StrategyOffset CCCDStrategy = iota
	// StrategyDescriptor uses the discovered 0x2902 descriptor.
	StrategyDescriptor
)

func (c CCCDStrategy) String() string {
	if c == StrategyDescriptor {
		return "descriptor"
	}
	return "offset"
}

func (c CCCDStrategy) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// ParseCCCDStrategy accepts "offset" or "descriptor".
func ParseCCCDStrategy(s string) (CCCDStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "offset", "":
		return StrategyOffset, nil
	case "descriptor":
		return StrategyDescriptor, nil
	default:
		return StrategyOffset, fmt.Errorf("%w: cccd strategy must be offset or descriptor, got %q", device.ErrUsage, s)
	}
}
