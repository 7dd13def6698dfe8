package soup

import (
	"testing"

	"github.com/Nasdaq/nasdaq-protocols/common"
	"github.com/stretchr/testify/require"
)

func TestLoginRequestEncoding(t *testing.T) {
	m := &LoginRequest{User: "nouser", Password: "nopassword", Session: "session", Sequence: "1"}
	n, b, err := m.Encode()
	require.NoError(t, err)
	require.Equal(t, 49, n)
	require.Equal(t, 49, len(b))

	expected := append([]byte{0x00, 0x2f, 'L'}, []byte("nouser")...)
	expected = append(expected, []byte("nopassword")...)
	expected = append(expected, []byte("session   ")...)
	expected = append(expected, []byte("                   1")...)
	require.Equal(t, expected, b)
}

func TestSequencedDataEncodeDecode(t *testing.T) {
	m := &SequencedData{Data: []byte("test_txt")}
	_, b, err := m.Encode()
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x09, 'S', 't', 'e', 's', 't', '_', 't', 'x', 't'}, b)

	n, decoded, err := Decode([]byte{0x00, 0x01, 'S'})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, &SequencedData{Data: []byte{}}, decoded)
}

func TestDecodeUnknownIndicator(t *testing.T) {
	_, _, err := Decode([]byte{0x00, 0x02, '>', 0x00})
	require.Error(t, err)
	var cerr *common.Error
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, common.KindInvalidMessage, cerr.Kind)
}

func TestDecodeShortBufferIsDistinctFromMalformed(t *testing.T) {
	_, _, err := Decode([]byte{0x00, 0x05, 'S', 'a'})
	require.Error(t, err) // not enough bytes yet, but distinct from a malformed frame
	require.ErrorIs(t, err, errShortBuffer)
}

func TestLoginRejectedError(t *testing.T) {
	m := &LoginRejected{Reason: NotAuthorized}
	require.Equal(t, "login rejected: not authorized", m.Error())
}

func TestRoundTripEveryMessageType(t *testing.T) {
	msgs := []Message{
		&LoginRequest{User: "u", Password: "p", Session: "s", Sequence: "1"},
		&LoginAccepted{SessionID: "sess", Sequence: "1"},
		&LoginRejected{Reason: SessionNotAvailable},
		&SequencedData{Data: []byte("hi")},
		&UnSequencedData{Data: []byte("bye")},
		&Debug{Text: "diag"},
		&ClientHeartbeat{},
		&ServerHeartbeat{},
		&EndOfSession{},
		&LogoutRequest{},
	}
	for _, m := range msgs {
		_, b, err := m.Encode()
		require.NoError(t, err)
		n, decoded, err := Decode(b)
		require.NoError(t, err)
		require.Equal(t, len(b), n)
		require.Equal(t, m.Indicator(), decoded.Indicator())
	}
}
