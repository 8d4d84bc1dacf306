package device

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy. Scan, connect and resolve failures are fatal to a run;
// subscription and streaming failures are reported and skipped.
var (
	ErrRadioUnavailable       = errors.New("radio unavailable")
	ErrConnectionFailed       = errors.New("connection failed")
	ErrResolution             = errors.New("attribute resolution failed")
	ErrCharacteristicNotFound = errors.New("characteristic not found")
	ErrSubscriptionWrite      = errors.New("subscription write rejected")
	ErrUnboundNotification    = errors.New("unbound notification")
	ErrDecode                 = errors.New("decode error")
	ErrIndexOutOfRange        = errors.New("index out of range")
	ErrUsage                  = errors.New("usage error")
)

// State errors
var (
	ErrNotConnected = errors.New("not connected")
	ErrInvalidState = errors.New("invalid state")
	ErrTimeout      = errors.New("timeout")
)

// NotFoundError represents a BLE resource missing from the resolved GATT table.
type NotFoundError struct {
	Resource string   // "service", "characteristic", "descriptor"
	UUIDs    []string // [uuid] or [parent uuid, uuid]
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	parent := "service"
	if e.Resource == "descriptor" {
		parent = "characteristic"
	}
	return fmt.Sprintf("%s %q not found in %s %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], parent, e.UUIDs[0])
}

// Unwrap lets errors.Is match ErrCharacteristicNotFound for any missing
// attribute the subscription step looked for.
func (e *NotFoundError) Unwrap() error {
	return ErrCharacteristicNotFound
}

// HandleError ties a failed attribute operation to its handle.
type HandleError struct {
	Op     string
	Handle uint16
	Err    error
}

func (e *HandleError) Error() string {
	return fmt.Sprintf("%s handle 0x%04X: %v", e.Op, e.Handle, e.Err)
}

func (e *HandleError) Unwrap() error {
	return e.Err
}

// IndexError reports an operator selection outside the catalog.
type IndexError struct {
	Index int
	Size  int
}

func (e *IndexError) Error() string {
	if e.Size == 0 {
		return fmt.Sprintf("device index %d out of range: no devices discovered", e.Index)
	}
	return fmt.Sprintf("device index %d out of range [0, %d)", e.Index, e.Size)
}

func (e *IndexError) Unwrap() error {
	return ErrIndexOutOfRange
}

// NormalizeError maps transport error strings onto the taxonomy. The original
// error is kept in the chain for context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "is bluetooth turned on"),
		containsIgnoreCase(msg, "bluetooth is turned off"),
		containsIgnoreCase(msg, "can't init hci"),
		containsIgnoreCase(msg, "no devices available"),
		containsIgnoreCase(msg, "operation not permitted"):
		return fmt.Errorf("%w: %v", ErrRadioUnavailable, err)
	case containsIgnoreCase(msg, "device not connected"),
		containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case containsIgnoreCase(msg, "insufficient authentication"),
		containsIgnoreCase(msg, "insufficient encryption"),
		containsIgnoreCase(msg, "write not permitted"):
		return fmt.Errorf("%w: %v", ErrSubscriptionWrite, err)
	case containsIgnoreCase(msg, "deadline exceeded"),
		containsIgnoreCase(msg, "timed out"),
		containsIgnoreCase(msg, "timeout"):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		return err
	}
}

// containsIgnoreCase checks substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
