package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Variable-length integers
// ---------------------------------------------------------------------------
//
// HashLink stores most integers in one, two or four bytes:
//
//	0xxxxxxx                              0 .. 0x7F
//	10sxxxxx xxxxxxxx                     magnitude < 0x2000, s = sign
//	11sxxxxx xxxxxxxx xxxxxxxx xxxxxxxx   magnitude < 0x20000000

// MaxVarInt is the largest magnitude representable as a variable-length integer.
const MaxVarInt = 0x1FFFFFFF

// ErrVarIntRange reports a value too large for the variable-length encoding.
var ErrVarIntRange = errors.New("integer out of variable-length range")

// AppendVarInt appends the variable-length encoding of v to buf.
func AppendVarInt(buf []byte, v int32) ([]byte, error) {
	if v < 0 {
		m := -int64(v)
		if m < 0x2000 {
			return append(buf, byte(m>>8)|0xA0, byte(m)), nil
		}
		if m > MaxVarInt {
			return buf, fmt.Errorf("%w: %d", ErrVarIntRange, v)
		}
		return append(buf, byte(m>>24)|0xE0, byte(m>>16), byte(m>>8), byte(m)), nil
	}
	switch {
	case v < 0x80:
		return append(buf, byte(v)), nil
	case v < 0x2000:
		return append(buf, byte(v>>8)|0x80, byte(v)), nil
	case v > MaxVarInt:
		return buf, fmt.Errorf("%w: %d", ErrVarIntRange, v)
	}
	return append(buf, byte(v>>24)|0xC0, byte(v>>16), byte(v>>8), byte(v)), nil
}

// DecodeVarInt decodes a variable-length integer from the start of buf and
// returns it with the number of bytes consumed. n is zero if buf is too short.
func DecodeVarInt(buf []byte) (v int32, n int) {
	if len(buf) == 0 {
		return 0, 0
	}
	b := buf[0]
	if b&0x80 == 0 {
		return int32(b & 0x7F), 1
	}
	if b&0x40 == 0 {
		if len(buf) < 2 {
			return 0, 0
		}
		v = int32(buf[1]) | int32(b&0x1F)<<8
		n = 2
	} else {
		if len(buf) < 4 {
			return 0, 0
		}
		v = int32(b&0x1F)<<24 | int32(buf[1])<<16 | int32(buf[2])<<8 | int32(buf[3])
		n = 4
	}
	if b&0x20 != 0 {
		v = -v
	}
	return v, n
}

// ---------------------------------------------------------------------------
// Fixed-width little-endian values
// ---------------------------------------------------------------------------

// AppendInt32 appends v in little-endian order.
func AppendInt32(buf []byte, v int32) []byte {
	return binary.LittleEndian.AppendUint32(buf, uint32(v))
}

// AppendFloat64 appends v as little-endian IEEE 754.
func AppendFloat64(buf []byte, v float64) []byte {
	return binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
}

// ReadInt32 reads a little-endian int32 from the start of buf.
func ReadInt32(buf []byte) int32 {
	return int32(binary.LittleEndian.Uint32(buf))
}

// ReadFloat64 reads a little-endian float64 from the start of buf.
func ReadFloat64(buf []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(buf))
}
