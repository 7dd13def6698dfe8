// Package fix implements the FIX tag=value message model: typed fields,
// data segments with tag/name indexing, repeating group containers,
// three-segment (header/body/trailer) messages with checksum/body-length
// framing, an incremental reader, and a client session state machine.
package fix

import (
	"strconv"

	"github.com/Nasdaq/nasdaq-protocols/common"
)

// Type is a FIX field value codec: it renders a Go value to the ASCII bytes
// that go after the `tag=`, and parses those bytes back. Unlike codec.TypeDef,
// a fix.Type never sees the tag or the trailing SOH -- FieldDef owns that
// framing.
type Type interface {
	Name() string
	ToBytes(v any) (int, []byte, error)
	FromBytes(data []byte) (int, any, error)
	Default() any
}

type stringType struct{ name string }

func (t stringType) Name() string { return t.name }
func (t stringType) Default() any { return "" }

func (t stringType) ToBytes(v any) (int, []byte, error) {
	s, ok := v.(string)
	if !ok {
		return 0, nil, common.Wrap(common.KindTypeMismatch, t.name+": expected a string", nil)
	}
	return len(s), []byte(s), nil
}

func (t stringType) FromBytes(data []byte) (int, any, error) {
	return len(data), string(data), nil
}

type boolType struct{}

func (boolType) Name() string { return "fix_bool" }
func (boolType) Default() any { return false }

func (boolType) ToBytes(v any) (int, []byte, error) {
	b, ok := v.(bool)
	if !ok {
		return 0, nil, common.Wrap(common.KindTypeMismatch, "fix_bool: expected a bool", nil)
	}
	if b {
		return 1, []byte("Y"), nil
	}
	return 1, []byte("N"), nil
}

func (boolType) FromBytes(data []byte) (int, any, error) {
	return len(data), len(data) > 0 && data[0] == 'Y', nil
}

type intType struct{ name string }

func (t intType) Name() string { return t.name }
func (t intType) Default() any { return 0 }

func (t intType) ToBytes(v any) (int, []byte, error) {
	n, ok := asInt(v)
	if !ok {
		return 0, nil, common.Wrap(common.KindTypeMismatch, t.name+": expected an integer", nil)
	}
	s := strconv.Itoa(n)
	return len(s), []byte(s), nil
}

func (t intType) FromBytes(data []byte) (int, any, error) {
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, nil, common.Wrap(common.KindInvalidMessage, t.name+": not an integer", err)
	}
	return len(data), n, nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	}
	return 0, false
}

type floatType struct{ name string }

func (t floatType) Name() string { return t.name }
func (t floatType) Default() any { return 0.0 }

func (t floatType) ToBytes(v any) (int, []byte, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	default:
		return 0, nil, common.Wrap(common.KindTypeMismatch, t.name+": expected a float", nil)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	return len(s), []byte(s), nil
}

func (t floatType) FromBytes(data []byte) (int, any, error) {
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return 0, nil, common.Wrap(common.KindInvalidMessage, t.name+": not a float", err)
	}
	return len(data), f, nil
}

// Base scalar types.
var (
	String Type = stringType{"fix_string"}
	Bool   Type = boolType{}
	Int    Type = intType{"fix_int"}
	Float  Type = floatType{"fix_float"}
)

// The remaining FIX domain types are all aliases of one of the four base
// scalar codecs: Char, Quantity, Price, etc. carry no behavior beyond
// their underlying representation, so they're exported as vars bound to
// the same underlying codec rather than distinct types.
var (
	Char                 = String
	Quantity             = Float
	Price                = Float
	PriceOffset          = Float
	Amount               = Float
	MultipleValueString  = String
	Currency             = String
	Exchange             = String
	UTCTimeStamp         = String
	UTCTime              = String
	LocalMktDate         = String
	TzTime               = String
	TzTimestamp          = String
	DayOfMonth           = Int
	UTCTimeOnly          = String
	TzTimeonly           = String
)
