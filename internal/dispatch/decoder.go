package dispatch

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/srg/gattstream/internal/device"
)

// Decoder turns a notification payload into an unsigned sample value.
type Decoder func(payload []byte) (uint64, error)

// BigEndianUint reads the whole payload as a big-endian unsigned integer of
// the payload's length (1 to 8 bytes).
func BigEndianUint(payload []byte) (uint64, error) {
	if err := checkWidth(payload); err != nil {
		return 0, err
	}
	var v uint64
	for _, b := range payload {
		v = v<<8 | uint64(b)
	}
	return v, nil
}

// LittleEndianUint is BigEndianUint with the byte order reversed, which is how
// most SIG characteristics encode integers.
func LittleEndianUint(payload []byte) (uint64, error) {
	if err := checkWidth(payload); err != nil {
		return 0, err
	}
	var v uint64
	for i := len(payload) - 1; i >= 0; i-- {
		v = v<<8 | uint64(payload[i])
	}
	return v, nil
}

// HeartRateMeasurement decodes the BPM of a Heart Rate Measurement (0x2A37)
// value: a flags byte, then a uint8 or little-endian uint16 rate depending on
// flag bit 0.
func HeartRateMeasurement(payload []byte) (uint64, error) {
	if len(payload) < 2 {
		return 0, fmt.Errorf("%w: heart rate measurement needs at least 2 bytes, got %d", device.ErrDecode, len(payload))
	}
	if payload[0]&0x01 == 0 {
		return uint64(payload[1]), nil
	}
	if len(payload) < 3 {
		return 0, fmt.Errorf("%w: 16-bit heart rate needs 3 bytes, got %d", device.ErrDecode, len(payload))
	}
	return uint64(binary.LittleEndian.Uint16(payload[1:3])), nil
}

func checkWidth(payload []byte) error {
	if len(payload) == 0 || len(payload) > 8 {
		return fmt.Errorf("%w: payload of %d bytes does not fit an unsigned integer of 1 to 8 bytes", device.ErrDecode, len(payload))
	}
	return nil
}

var decoders = map[string]Decoder{
	"be-uint":    BigEndianUint,
	"le-uint":    LittleEndianUint,
	"heart-rate": HeartRateMeasurement,
}

// DefaultDecoderName is used when a target names no decoder.
const DefaultDecoderName = "be-uint"

// DecoderByName resolves a decoder name; "" selects the default.
func DecoderByName(name string) (Decoder, error) {
	if name == "" {
		name = DefaultDecoderName
	}
	d, ok := decoders[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown decoder %q (known: %v)", device.ErrUsage, name, DecoderNames())
	}
	return d, nil
}

// DecoderNames lists the registered decoder names, sorted.
func DecoderNames() []string {
	names := make([]string, 0, len(decoders))
	for n := range decoders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
