package scale

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Scale payload format (big-endian): raw weight uint16 (1/100 kg), raw impedance
// uint16 (1/10 ohm). Anything after the first 4 bytes is vendor-defined and ignored.
const (
	payloadMinLen    = 4
	weightDivisor    = 100.0
	impedanceDivisor = 10.0
)

// SentinelImpedance is the placeholder the scale emits while the reading is unstable.
const SentinelImpedance = 500.0

var ErrMalformedPayload = errors.New("malformed payload")

// Reading is the physical value pair carried by one advertisement.
type Reading struct {
	Weight    float64
	Impedance float64
}

// Decode extracts weight (kg) and impedance (ohm) from a scale advertisement payload.
// Zero and sentinel values decode normally; judging them is left to the caller.
func Decode(payload []byte) (Reading, error) {
	if len(payload) < payloadMinLen {
		return Reading{}, fmt.Errorf("%w: %d bytes, need %d", ErrMalformedPayload, len(payload), payloadMinLen)
	}
	rawWeight := binary.BigEndian.Uint16(payload[0:2])
	rawImpedance := binary.BigEndian.Uint16(payload[2:4])
	return Reading{
		Weight:    float64(rawWeight) / weightDivisor,
		Impedance: float64(rawImpedance) / impedanceDivisor,
	}, nil
}
