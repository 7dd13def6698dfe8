package codec

import (
	"testing"

	"github.com/Nasdaq/nasdaq-protocols/common"
	"github.com/stretchr/testify/require"
)

func TestIntCodecsRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		td   TypeDef
		v    any
	}{
		{"int16", Int16, int16(-1234)},
		{"int16be", Int16BE, int16(-1234)},
		{"uint16", Uint16, uint16(60000)},
		{"uint16be", Uint16BE, uint16(60000)},
		{"int32", Int32, int32(-70000)},
		{"int32be", Int32BE, int32(-70000)},
		{"uint32", Uint32, uint32(4000000000)},
		{"uint32be", Uint32BE, uint32(4000000000)},
		{"int64", Int64, int64(-1 << 40)},
		{"int64be", Int64BE, int64(-1 << 40)},
		{"uint64", Uint64, uint64(1) << 63},
		{"uint64be", Uint64BE, uint64(1) << 63},
		{"byte", Byte, byte(0x99)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			n, b, err := c.td.Encode(c.v)
			require.NoError(t, err)
			require.Equal(t, n, len(b))
			rn, rv, err := c.td.Decode(b)
			require.NoError(t, err)
			require.Equal(t, n, rn)
			require.Equal(t, c.v, rv)
		})
	}
}

func TestIntCodecEncodeOverflow(t *testing.T) {
	cases := []struct {
		name string
		td   TypeDef
		v    any
	}{
		{"byte over max", Byte, 300},
		{"uint16 over max", Uint16, 70000},
		{"int16 over max", Int16, 40000},
		{"int16 under min", Int16, -40000},
		{"uint32 negative", Uint32, -1},
		{"uint64 negative", Uint64, -1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, _, err := c.td.Encode(c.v)
			require.ErrorIs(t, err, common.ErrValueOverflow)
		})
	}
}

func TestIntCodecEncodeBoundaryValuesSucceed(t *testing.T) {
	cases := []struct {
		name string
		td   TypeDef
		v    any
	}{
		{"byte max", Byte, 255},
		{"uint16 max", Uint16, 65535},
		{"int16 max", Int16, 32767},
		{"int16 min", Int16, -32768},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, _, err := c.td.Encode(c.v)
			require.NoError(t, err)
		})
	}
}

func TestIntBEByteOrder(t *testing.T) {
	_, b, err := Uint16BE.Encode(uint16(0x0102))
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02}, b)

	_, b, err = Uint16.Encode(uint16(0x0102))
	require.NoError(t, err)
	require.Equal(t, []byte{0x02, 0x01}, b)
}

func TestBoolCodec(t *testing.T) {
	_, b, err := Bool.Encode(true)
	require.NoError(t, err)
	require.Equal(t, []byte{1}, b)

	_, v, err := Bool.Decode([]byte{0})
	require.NoError(t, err)
	require.Equal(t, false, v)
}

func TestCharCodecs(t *testing.T) {
	_, b, err := CharAscii.Encode("Q")
	require.NoError(t, err)
	require.Equal(t, []byte("Q"), b)

	n, v, err := CharAscii.Decode([]byte("Q!"))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "Q", v)
}

func TestVarStringRoundTrip(t *testing.T) {
	n, b, err := AsciiString.Encode("hello")
	require.NoError(t, err)
	require.Equal(t, 7, n) // 2-byte length prefix + 5 bytes
	require.Equal(t, []byte{0x05, 0x00, 'h', 'e', 'l', 'l', 'o'}, b)

	rn, v, err := AsciiString.Decode(b)
	require.NoError(t, err)
	require.Equal(t, n, rn)
	require.Equal(t, "hello", v)
}

func TestFixedStringRightJustified(t *testing.T) {
	fs := FixedString{Length: 10, RightJustified: true}
	_, b, err := fs.Encode("abc")
	require.NoError(t, err)
	require.Equal(t, "       abc", string(b))

	_, v, err := fs.Decode(b)
	require.NoError(t, err)
	require.Equal(t, "abc", v)
}

func TestFixedStringLeftJustified(t *testing.T) {
	fs := FixedString{Length: 6}
	_, b, err := fs.Encode("ab")
	require.NoError(t, err)
	require.Equal(t, "ab    ", string(b))
}

func TestRawBytesDecodeAltAliasesInput(t *testing.T) {
	rb := RawBytes{Length: 4}
	data := []byte{1, 2, 3, 4, 5, 6}
	n, copied, err := rb.Decode(data)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	_, aliased, err := rb.DecodeAlt(data)
	require.NoError(t, err)

	data[0] = 0xFF
	require.Equal(t, byte(1), copied.([]byte)[0], "Decode must defensively copy")
	require.Equal(t, byte(0xFF), aliased.([]byte)[0], "DecodeAlt must alias the input slice")
}
