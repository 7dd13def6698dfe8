package fix

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func encodeFullFrame(mc *MessageClass, msg *Message) ([]byte, error) {
	_, bb, err := msg.Encode()
	if err != nil {
		return nil, err
	}

	msgTypeField := "35=" + mc.MsgType + "\x01"
	bodyLength := len(bb) + len(msgTypeField)
	header := "8=FIX.4.4\x019=" + itoa(bodyLength) + "\x01" + msgTypeField
	withoutChecksum := []byte(header)
	withoutChecksum = append(withoutChecksum, bb...)
	cs := Checksum(withoutChecksum)
	return append(withoutChecksum, []byte("10="+cs+"\x01")...), nil
}

func buildFrame(t *testing.T, mc *MessageClass, msg *Message) []byte {
	t.Helper()
	b, err := encodeFullFrame(mc, msg)
	require.NoError(t, err)
	return b
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestReaderFeedsExactlyOneFullyBufferedMessage(t *testing.T) {
	mc := testMessageClass()
	reg := NewRegistry()
	require.NoError(t, reg.Register(mc))

	msg := mc.New()
	require.NoError(t, msg.Header().Set("SenderCompID", "A"))
	require.NoError(t, msg.Header().Set("TargetCompID", "B"))
	require.NoError(t, msg.Set("Username", "u"))
	frame := buildFrame(t, mc, msg)

	r := NewReader(reg)
	var got []*Message
	require.NoError(t, r.Feed(frame[:len(frame)-3], func(m any) error {
		got = append(got, m.(*Message))
		return nil
	}, func() {}, func() {}))
	require.Empty(t, got, "must wait for the full computed span")

	require.NoError(t, r.Feed(frame[len(frame)-3:], func(m any) error {
		got = append(got, m.(*Message))
		return nil
	}, func() {}, func() {}))
	require.Len(t, got, 1)
	require.Equal(t, "u", got[0].Get("Username"))
}

func TestReaderClassifiesHeartbeat(t *testing.T) {
	mc := testMessageClass()
	hbClass := &MessageClass{
		AppName: "test", Name: "Heartbeat", MsgType: HeartbeatMsgType,
		HeaderDef: mc.HeaderDef, BodyDef: NewSegmentDef("HeartbeatBody", false), TrailerDef: mc.TrailerDef,
	}
	reg := NewRegistry()
	require.NoError(t, reg.Register(hbClass))

	hb := hbClass.New()
	require.NoError(t, hb.Header().Set("SenderCompID", "A"))
	require.NoError(t, hb.Header().Set("TargetCompID", "B"))
	frame := buildFrame(t, hbClass, hb)

	r := NewReader(reg)
	var heartbeats int
	require.NoError(t, r.Feed(frame, nil, func() { heartbeats++ }, func() {}))
	require.Equal(t, 1, heartbeats)
}
