// Package codec implements the binary record codec shared by every message
// family built on top of it (ITCH/OUCH/SQF-style protocols): typed
// primitive fields, ordered records, presence-bit records, length-prefixed
// arrays, and a message registry keyed by (app, id).
package codec

import (
	"fmt"
	"math"
	"strings"

	"github.com/Nasdaq/nasdaq-protocols/common"
)

// TypeDef is a typed field codec: it knows how to turn a Go value into its
// wire bytes and back. Encode/Decode both return the number of bytes
// consumed/produced alongside the value.
type TypeDef interface {
	// Encode renders v (which must be assignable to the type's Go
	// representation) to wire bytes.
	Encode(v any) (int, []byte, error)
	// Decode reads one value from the front of data.
	Decode(data []byte) (int, any, error)
	// Name is a short, stable identifier used in error messages and
	// registry introspection, e.g. "int_4".
	Name() string
}

// AltDecoder is implemented by TypeDefs with a zero-copy decode path. Among
// the primitive types only RawBytes has one; RecordType,
// RecordWithPresentBitType and ArrayDef implement it to pass the zero-copy
// choice down to their fields and elements.
type AltDecoder interface {
	DecodeAlt(data []byte) (int, any, error)
}

// --- fixed-width integers -------------------------------------------------

type intCodec struct {
	name   string
	size   int
	signed bool
	big    bool
}

func (c intCodec) Name() string { return c.name }

// signedRange returns the inclusive range a signed value of size bytes can
// hold.
func signedRange(size int) (int64, int64) {
	bits := uint(size * 8)
	if bits >= 64 {
		return math.MinInt64, math.MaxInt64
	}
	max := int64(1)<<(bits-1) - 1
	return -max - 1, max
}

// unsignedMax returns the maximum value an unsigned value of size bytes can
// hold.
func unsignedMax(size int) uint64 {
	bits := uint(size * 8)
	if bits >= 64 {
		return math.MaxUint64
	}
	return uint64(1)<<bits - 1
}

func (c intCodec) overflow(v any) error {
	return common.Wrap(common.KindValueOverflow, fmt.Sprintf("%s: value %v out of range", c.name, v), nil)
}

func (c intCodec) Encode(v any) (int, []byte, error) {
	var u uint64
	switch n := v.(type) {
	case int:
		s := int64(n)
		min, max := signedRange(c.size)
		if c.signed {
			if s < min || s > max {
				return 0, nil, c.overflow(v)
			}
		} else if s < 0 || uint64(s) > unsignedMax(c.size) {
			return 0, nil, c.overflow(v)
		}
		u = uint64(s)
	case int8:
		return c.Encode(int(n))
	case int16:
		return c.Encode(int(n))
	case int32:
		return c.Encode(int(n))
	case int64:
		return c.Encode(int(n))
	case uint:
		n64 := uint64(n)
		if c.signed {
			_, max := signedRange(c.size)
			if n64 > uint64(max) {
				return 0, nil, c.overflow(v)
			}
		} else if n64 > unsignedMax(c.size) {
			return 0, nil, c.overflow(v)
		}
		u = n64
	case uint8:
		return c.Encode(uint(n))
	case uint16:
		return c.Encode(uint(n))
	case uint32:
		return c.Encode(uint(n))
	case uint64:
		return c.Encode(uint(n))
	default:
		return 0, nil, common.Wrap(common.KindTypeMismatch, c.name+": expected an integer value", nil)
	}
	out := make([]byte, c.size)
	if c.big {
		for i := 0; i < c.size; i++ {
			out[i] = byte(u >> uint(8*(c.size-1-i)))
		}
	} else {
		for i := 0; i < c.size; i++ {
			out[i] = byte(u >> uint(8*i))
		}
	}
	return c.size, out, nil
}

func (c intCodec) Decode(data []byte) (int, any, error) {
	if len(data) < c.size {
		return 0, nil, common.Wrap(common.KindInvalidMessage, c.name+": short buffer", nil)
	}
	var u uint64
	if c.big {
		for i := 0; i < c.size; i++ {
			u = u<<8 | uint64(data[i])
		}
	} else {
		for i := c.size - 1; i >= 0; i-- {
			u = u<<8 | uint64(data[i])
		}
	}
	if !c.signed {
		switch c.size {
		case 1:
			return c.size, uint8(u), nil
		case 2:
			return c.size, uint16(u), nil
		case 4:
			return c.size, uint32(u), nil
		default:
			return c.size, u, nil
		}
	}
	// sign-extend
	shift := uint(64 - 8*c.size)
	s := int64(u<<shift) >> shift
	switch c.size {
	case 1:
		return c.size, int8(s), nil
	case 2:
		return c.size, int16(s), nil
	case 4:
		return c.size, int32(s), nil
	default:
		return c.size, s, nil
	}
}

const (
	sizeBool  = 1
	sizeByte  = 1
	sizeChar  = 1
	sizeShort = 2
	sizeInt   = 4
	sizeLong  = 8
)

var (
	Int32        TypeDef = intCodec{"int_4", sizeInt, true, false}
	Int32BE      TypeDef = intCodec{"int_4_be", sizeInt, true, true}
	Uint32       TypeDef = intCodec{"uint_4", sizeInt, false, false}
	Uint32BE     TypeDef = intCodec{"uint_4_be", sizeInt, false, true}
	Byte         TypeDef = intCodec{"byte", sizeByte, false, false}
	Int16        TypeDef = intCodec{"int_2", sizeShort, true, false}
	Int16BE      TypeDef = intCodec{"int_2_be", sizeShort, true, true}
	Uint16       TypeDef = intCodec{"uint_2", sizeShort, false, false}
	Uint16BE     TypeDef = intCodec{"uint_2_be", sizeShort, false, true}
	Int64        TypeDef = intCodec{"int_8", sizeLong, true, false}
	Int64BE      TypeDef = intCodec{"int_8_be", sizeLong, true, true}
	Uint64       TypeDef = intCodec{"uint_8", sizeLong, false, false}
	Uint64BE     TypeDef = intCodec{"uint_8_be", sizeLong, false, true}
)

// --- boolean ---------------------------------------------------------------

type boolCodec struct{}

func (boolCodec) Name() string { return "boolean" }

func (boolCodec) Encode(v any) (int, []byte, error) {
	b, ok := v.(bool)
	if !ok {
		return 0, nil, common.Wrap(common.KindTypeMismatch, "boolean: expected a bool value", nil)
	}
	if b {
		return sizeBool, []byte{0x01}, nil
	}
	return sizeBool, []byte{0x00}, nil
}

func (boolCodec) Decode(data []byte) (int, any, error) {
	if len(data) < sizeBool {
		return 0, nil, common.Wrap(common.KindInvalidMessage, "boolean: short buffer", nil)
	}
	return sizeBool, data[0] == 0x01, nil
}

// Bool is the one-byte boolean type (0x01 true, 0x00 false).
var Bool TypeDef = boolCodec{}

// --- single characters -------------------------------------------------

type charCodec struct {
	name string
	iso  bool
}

func (c charCodec) Name() string { return c.name }

func (c charCodec) Encode(v any) (int, []byte, error) {
	s, ok := v.(string)
	if !ok || len(s) == 0 {
		return 0, nil, common.Wrap(common.KindTypeMismatch, c.name+": expected a non-empty string", nil)
	}
	return sizeChar, []byte{s[0]}, nil
}

func (c charCodec) Decode(data []byte) (int, any, error) {
	if len(data) < sizeChar {
		return 0, nil, common.Wrap(common.KindInvalidMessage, c.name+": short buffer", nil)
	}
	return sizeChar, string(data[:sizeChar]), nil
}

var (
	CharAscii TypeDef = charCodec{"char_ascii", false}
	CharIso   TypeDef = charCodec{"char_iso-8859-1", true}
)

// --- length-prefixed strings ------------------------------------------

type varStringCodec struct {
	name string
	iso  bool
}

func (c varStringCodec) Name() string { return c.name }

func (c varStringCodec) Encode(v any) (int, []byte, error) {
	s, ok := v.(string)
	if !ok {
		return 0, nil, common.Wrap(common.KindTypeMismatch, c.name+": expected a string", nil)
	}
	_, lenBytes, err := Int16.Encode(len(s))
	if err != nil {
		return 0, nil, err
	}
	out := append(lenBytes, []byte(s)...)
	return len(out), out, nil
}

func (c varStringCodec) Decode(data []byte) (int, any, error) {
	n, lv, err := Int16.Decode(data)
	if err != nil {
		return 0, nil, err
	}
	length := int(lv.(int16))
	if length < 0 || n+length > len(data) {
		return 0, nil, common.Wrap(common.KindInvalidMessage, c.name+": short buffer", nil)
	}
	return n + length, string(data[n : n+length]), nil
}

var (
	AsciiString TypeDef = varStringCodec{"str_ascii", false}
	IsoString   TypeDef = varStringCodec{"str_iso-8859-1", true}
)

// --- fixed-width, padded strings ----------------------------------------

// FixedString is a fixed-length, space-padded string field. RightJustified
// controls which side the padding goes on: left-justified (padding on the
// right) is the default.
type FixedString struct {
	Length         int
	RightJustified bool
	Iso            bool
}

func (f FixedString) Name() string {
	if f.Iso {
		return "str_iso-8859-1_n"
	}
	return "str_ascii_n"
}

func (f FixedString) Encode(v any) (int, []byte, error) {
	s, ok := v.(string)
	if !ok {
		return 0, nil, common.Wrap(common.KindTypeMismatch, f.Name()+": expected a string", nil)
	}
	if len(s) > f.Length {
		s = s[:f.Length]
	}
	pad := strings.Repeat(" ", f.Length-len(s))
	if f.RightJustified {
		s = pad + s
	} else {
		s = s + pad
	}
	return f.Length, []byte(s), nil
}

func (f FixedString) Decode(data []byte) (int, any, error) {
	if len(data) < f.Length {
		return 0, nil, common.Wrap(common.KindInvalidMessage, f.Name()+": short buffer", nil)
	}
	return f.Length, strings.TrimSpace(string(data[:f.Length])), nil
}

// --- raw, uninterpreted byte blobs ---------------------------------------

// RawBytes is a fixed-length field of opaque bytes, used by message
// families that carry an uninterpreted payload tail. Decode defensively
// copies; DecodeAlt aliases the input slice for callers on a hot read path
// who promise not to retain the buffer past the current frame.
type RawBytes struct {
	Length int
}

func (r RawBytes) Name() string { return "raw_bytes" }

func (r RawBytes) Encode(v any) (int, []byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return 0, nil, common.Wrap(common.KindTypeMismatch, "raw_bytes: expected []byte", nil)
	}
	out := make([]byte, r.Length)
	copy(out, b)
	return r.Length, out, nil
}

func (r RawBytes) Decode(data []byte) (int, any, error) {
	if len(data) < r.Length {
		return 0, nil, common.Wrap(common.KindInvalidMessage, "raw_bytes: short buffer", nil)
	}
	out := make([]byte, r.Length)
	copy(out, data[:r.Length])
	return r.Length, out, nil
}

func (r RawBytes) DecodeAlt(data []byte) (int, any, error) {
	if len(data) < r.Length {
		return 0, nil, common.Wrap(common.KindInvalidMessage, "raw_bytes: short buffer", nil)
	}
	return r.Length, data[:r.Length:r.Length], nil
}
