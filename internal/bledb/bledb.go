// Package bledb holds the Bluetooth UUID model used throughout gattstream and a
// small database of assigned numbers for human-readable dumps.
//
// Every UUID is kept in its full 128-bit form. 16- and 32-bit aliases such as
// 0x180D are expanded into the Bluetooth base UUID
// (0000xxxx-0000-1000-8000-00805F9B34FB) when parsed, so aliases and full forms
// of the same attribute compare equal.
package bledb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-ble/ble"
	"github.com/google/uuid"
)

// ErrInvalidUUID is returned when a string or byte form cannot be read as a UUID.
var ErrInvalidUUID = errors.New("invalid UUID")

// BaseUUID is the Bluetooth SIG base UUID.
var BaseUUID = UUID(uuid.MustParse("00000000-0000-1000-8000-00805f9b34fb"))

// CCCD is the Client Characteristic Configuration Descriptor.
var CCCD = UUID16(0x2902)

// UUID is a 128-bit Bluetooth UUID. The zero value is not a valid attribute UUID.
type UUID uuid.UUID

// UUID16 expands a 16-bit alias into the base UUID.
func UUID16(v uint16) UUID {
	return UUID32(uint32(v))
}

// UUID32 expands a 32-bit alias into the base UUID.
func UUID32(v uint32) UUID {
	u := BaseUUID
	binary.BigEndian.PutUint32(u[0:4], v)
	return u
}

// Parse reads a UUID from any of the forms operators and config files use:
// "0x180D", "180d", "0000180d", "0000180d-0000-1000-8000-00805f9b34fb",
// undashed 32-hex-digit form, or the braced form.
func Parse(s string) (UUID, error) {
	raw := strings.TrimSpace(s)
	trimmed := strings.ToLower(raw)
	trimmed = strings.TrimPrefix(trimmed, "0x")

	switch len(trimmed) {
	case 4:
		v, err := strconv.ParseUint(trimmed, 16, 16)
		if err != nil {
			return UUID{}, fmt.Errorf("%w: %q", ErrInvalidUUID, raw)
		}
		return UUID16(uint16(v)), nil
	case 8:
		v, err := strconv.ParseUint(trimmed, 16, 32)
		if err != nil {
			return UUID{}, fmt.Errorf("%w: %q", ErrInvalidUUID, raw)
		}
		return UUID32(uint32(v)), nil
	}

	u, err := uuid.Parse(trimmed)
	if err != nil {
		return UUID{}, fmt.Errorf("%w: %q", ErrInvalidUUID, raw)
	}
	return UUID(u), nil
}

// MustParse is like Parse but panics on malformed input. Intended for constants.
func MustParse(s string) UUID {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

// ParseAll parses every entry, stopping at the first malformed one.
func ParseAll(ss ...string) ([]UUID, error) {
	out := make([]UUID, 0, len(ss))
	for i, s := range ss {
		if strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("%w: entry %d is empty", ErrInvalidUUID, i)
		}
		u, err := Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// FromBLE converts a go-ble UUID (little-endian, 2, 4 or 16 bytes) into a UUID.
func FromBLE(b ble.UUID) (UUID, error) {
	switch len(b) {
	case 2:
		return UUID16(binary.LittleEndian.Uint16(b)), nil
	case 4:
		return UUID32(binary.LittleEndian.Uint32(b)), nil
	case 16:
		var u UUID
		for i := 0; i < 16; i++ {
			u[i] = b[15-i]
		}
		return u, nil
	default:
		return UUID{}, fmt.Errorf("%w: %d-byte attribute type", ErrInvalidUUID, len(b))
	}
}

// BLE returns the go-ble representation, using the 16-bit form for aliases.
func (u UUID) BLE() ble.UUID {
	if v, ok := u.Alias16(); ok {
		return ble.UUID16(v)
	}
	b := make(ble.UUID, 16)
	for i := 0; i < 16; i++ {
		b[i] = u[15-i]
	}
	return b
}

// inBase reports whether u only differs from the base UUID in its first 4 bytes.
func (u UUID) inBase() bool {
	for i := 4; i < 16; i++ {
		if u[i] != BaseUUID[i] {
			return false
		}
	}
	return true
}

// Alias16 returns the 16-bit alias when u lives in the base UUID.
func (u UUID) Alias16() (uint16, bool) {
	if !u.inBase() || u[0] != 0 || u[1] != 0 {
		return 0, false
	}
	return binary.BigEndian.Uint16(u[2:4]), true
}

// Short returns the shortest unambiguous form: "180d", "0001180d" or the full
// dashed form for vendor UUIDs.
func (u UUID) Short() string {
	if v, ok := u.Alias16(); ok {
		return fmt.Sprintf("%04x", v)
	}
	if u.inBase() {
		return fmt.Sprintf("%08x", binary.BigEndian.Uint32(u[0:4]))
	}
	return u.String()
}

// String returns the canonical lowercase dashed form.
func (u UUID) String() string {
	return uuid.UUID(u).String()
}

// IsZero reports whether u is the zero UUID.
func (u UUID) IsZero() bool {
	return u == UUID{}
}

// Equal compares two UUIDs in their expanded form.
func (u UUID) Equal(v UUID) bool {
	return u == v
}

// MarshalText implements encoding.TextMarshaler using the short form.
func (u UUID) MarshalText() ([]byte, error) {
	return []byte(u.Short()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *UUID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
