// Package decode converts raw Modbus register words into typed, scaled
// physical values.
//
// 32-bit types combine two words most-significant word first, with big-endian
// bytes inside each word (the standard Modbus convention). This word order is
// a schema-wide assumption: devices that transmit least-significant word
// first need their schema addresses verified against the device manual.
package decode

import (
	"math"

	"github.com/modmetrics/modmetrics/internal/errors"
	"github.com/modmetrics/modmetrics/internal/schema"
)

// Decode reinterprets raw register words per the definition's data type and
// applies its scale. len(words) must equal the definition's span; a mismatch
// returns a *errors.DecodeError. Decoding is deterministic and applies no
// rounding or clamping.
func Decode(words []uint16, def schema.RegisterDefinition) (float64, error) {
	if len(words) != int(def.Span()) {
		return 0, &errors.DecodeError{
			Register: def.Name.String(),
			Want:     int(def.Span()),
			Got:      len(words),
		}
	}

	var raw float64
	switch def.Type {
	case schema.Uint16:
		raw = float64(words[0])
	case schema.Int16:
		raw = float64(int16(words[0]))
	case schema.Uint32:
		raw = float64(combine(words))
	case schema.Int32:
		raw = float64(int32(combine(words)))
	case schema.Float32:
		raw = float64(math.Float32frombits(combine(words)))
	}
	return raw * def.Scale, nil
}

// combine packs two 16-bit words into a 32-bit pattern, most-significant
// word first.
func combine(words []uint16) uint32 {
	return uint32(words[0])<<16 | uint32(words[1])
}
