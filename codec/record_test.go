package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testRecordDef() *RecordDef {
	return NewRecordDef("TestRecord",
		Field{Name: "byte", Type: Byte},
		Field{Name: "short", Type: Uint16BE},
		Field{Name: "str", Type: AsciiString},
	)
}

func TestRecordRoundTrip(t *testing.T) {
	rd := testRecordDef()
	r := rd.New()
	require.NoError(t, r.Set("byte", byte(2)))
	require.NoError(t, r.Set("short", uint16(5)))
	require.NoError(t, r.Set("str", "test"))

	n, b, err := rd.Encode(r)
	require.NoError(t, err)
	require.Equal(t, []byte{0x02, 0x00, 0x05, 0x04, 0x00, 't', 'e', 's', 't'}, b)
	require.Equal(t, len(b), n)

	rn, r2, err := rd.Decode(b)
	require.NoError(t, err)
	require.Equal(t, n, rn)
	require.Equal(t, byte(2), r2.Get("byte"))
	require.Equal(t, uint16(5), r2.Get("short"))
	require.Equal(t, "test", r2.Get("str"))
}

func TestRecordSetUnknownFieldFails(t *testing.T) {
	r := testRecordDef().New()
	err := r.Set("nope", 1)
	require.Error(t, err)
}

func TestRecordWithPresentBitRoundTrip(t *testing.T) {
	inner := testRecordDef()
	wrapped := NewRecordWithPresentBitDef(inner)

	r := inner.New()
	require.NoError(t, r.Set("byte", byte(9)))
	require.NoError(t, r.Set("short", uint16(1)))
	require.NoError(t, r.Set("str", "x"))

	n, b, err := wrapped.Encode(r)
	require.NoError(t, err)
	require.Equal(t, byte(0x01), b[0])

	rn, r2, err := wrapped.Decode(b)
	require.NoError(t, err)
	require.Equal(t, n, rn)
	require.Equal(t, byte(9), r2.Get("byte"))

	an, absent, err := wrapped.Encode(nil)
	require.NoError(t, err)
	require.Equal(t, []byte{0x00}, absent)
	require.Equal(t, 1, an)

	_, r3, err := wrapped.Decode(absent)
	require.NoError(t, err)
	require.Nil(t, r3)
}

func TestArrayDefaultLengthTypeIsUint16BE(t *testing.T) {
	ad := NewArrayDef(Byte, nil)
	_, b, err := ad.Encode([]any{byte(1), byte(2), byte(3)})
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x03, 1, 2, 3}, b)

	n, v, err := ad.Decode(b)
	require.NoError(t, err)
	require.Equal(t, len(b), n)
	require.Equal(t, []any{byte(1), byte(2), byte(3)}, v)
}

func TestArrayOfRecordWithPresentBitSkipsPresenceByte(t *testing.T) {
	inner := testRecordDef()
	wrapped := NewRecordWithPresentBitDef(inner)
	ad := NewArrayDef(wrapped.AsType(), nil)

	r1 := inner.New()
	require.NoError(t, r1.Set("byte", byte(1)))
	require.NoError(t, r1.Set("short", uint16(1)))
	require.NoError(t, r1.Set("str", "a"))

	_, b, err := ad.Encode([]any{r1})
	require.NoError(t, err)
	// no leading 0x01 presence byte before the record's own bytes: length
	// prefix (2) + byte (1) + short (2) + str len-prefix+bytes (2+1)
	require.Equal(t, 2+1+2+2+1, len(b))
}

func TestRegistryDuplicateAndUnknown(t *testing.T) {
	reg := NewRegistry()
	rd := testRecordDef()
	_, err := reg.Register("app", "Foo", byte('F'), Byte, rd, Incoming)
	require.NoError(t, err)

	_, err = reg.Register("app", "Bar", byte('F'), Byte, rd, Incoming)
	require.Error(t, err)

	_, _, err = reg.Decode("app", Byte, []byte{'G'})
	require.Error(t, err)
}

func TestRegistryDecodeDispatchesByID(t *testing.T) {
	reg := NewRegistry()
	rd := testRecordDef()
	_, err := reg.Register("app", "Foo", byte('F'), Byte, rd, Incoming)
	require.NoError(t, err)

	payload := []byte{'F', 0x02, 0x00, 0x05, 0x04, 0x00, 't', 'e', 's', 't'}
	n, msg, err := reg.Decode("app", Byte, payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, "Foo", msg.Class().Name)
	require.Equal(t, byte(2), msg.Get("byte"))
}
