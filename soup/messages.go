// Package soup implements the SoupBinTCP framing/session layer: the ten
// wire messages, an incremental frame reader, and the client session
// state machine built on top of the common async session substrate.
package soup

import (
	"fmt"
	"strings"

	"github.com/Nasdaq/nasdaq-protocols/common"
)

// Message is the common contract every SoupBinTCP wire message satisfies.
type Message interface {
	common.Serializable
	Indicator() byte
	IsHeartbeat() bool
	IsLogout() bool
}

const headerLen = 3 // 2-byte length + 1-byte indicator

func encodeFrame(indicator byte, payload []byte) (int, []byte, error) {
	n := len(payload) + 1
	if n > 0xFFFF {
		return 0, nil, common.Wrap(common.KindInvalidMessage, "soup frame payload too large", nil)
	}
	out := make([]byte, 0, n+2)
	out = append(out, byte(n>>8), byte(n))
	out = append(out, indicator)
	out = append(out, payload...)
	return len(out), out, nil
}

func padASCII(s string, width int) []byte {
	if len(s) > width {
		s = s[:width]
	}
	return []byte(s + strings.Repeat(" ", width-len(s)))
}

func trimASCII(b []byte) string {
	return strings.TrimSpace(string(b))
}

func padASCIIRight(s string, width int) []byte {
	if len(s) > width {
		s = s[len(s)-width:]
	}
	return []byte(strings.Repeat(" ", width-len(s)) + s)
}

// LoginRejectReason is the single-character reason code in a LoginRejected
// message.
type LoginRejectReason byte

const (
	NotAuthorized       LoginRejectReason = 'A'
	SessionNotAvailable LoginRejectReason = 'S'
)

func (r LoginRejectReason) String() string {
	switch r {
	case NotAuthorized:
		return "not authorized"
	case SessionNotAvailable:
		return "session not available"
	}
	return fmt.Sprintf("unknown(%c)", byte(r))
}

// LoginRequest ('L'): 6-byte user, 10-byte password, 10-byte session (all
// left-justified, space-padded), 20-byte numeric sequence (right-justified,
// space-padded).
type LoginRequest struct {
	User     string
	Password string
	Session  string
	Sequence string
}

func (m *LoginRequest) Indicator() byte  { return 'L' }
func (m *LoginRequest) IsHeartbeat() bool { return false }
func (m *LoginRequest) IsLogout() bool    { return false }

func (m *LoginRequest) Encode() (int, []byte, error) {
	payload := make([]byte, 0, 46)
	payload = append(payload, padASCII(m.User, 6)...)
	payload = append(payload, padASCII(m.Password, 10)...)
	payload = append(payload, padASCII(m.Session, 10)...)
	payload = append(payload, padASCIIRight(m.Sequence, 20)...)
	return encodeFrame('L', payload)
}

func decodeLoginRequest(payload []byte) (*LoginRequest, error) {
	if len(payload) != 46 {
		return nil, common.Wrap(common.KindInvalidMessage, "LoginRequest: bad payload length", nil)
	}
	return &LoginRequest{
		User:     trimASCII(payload[0:6]),
		Password: trimASCII(payload[6:16]),
		Session:  trimASCII(payload[16:26]),
		Sequence: trimASCII(payload[26:46]),
	}, nil
}

// LoginAccepted ('A'): 10-byte session, 20-byte sequence.
type LoginAccepted struct {
	SessionID string
	Sequence  string
}

func (m *LoginAccepted) Indicator() byte  { return 'A' }
func (m *LoginAccepted) IsHeartbeat() bool { return false }
func (m *LoginAccepted) IsLogout() bool    { return false }

func (m *LoginAccepted) Encode() (int, []byte, error) {
	payload := make([]byte, 0, 30)
	payload = append(payload, padASCII(m.SessionID, 10)...)
	payload = append(payload, padASCIIRight(m.Sequence, 20)...)
	return encodeFrame('A', payload)
}

func decodeLoginAccepted(payload []byte) (*LoginAccepted, error) {
	if len(payload) != 30 {
		return nil, common.Wrap(common.KindInvalidMessage, "LoginAccepted: bad payload length", nil)
	}
	return &LoginAccepted{
		SessionID: trimASCII(payload[0:10]),
		Sequence:  trimASCII(payload[10:30]),
	}, nil
}

// LoginRejected ('J'): 1-byte reason.
type LoginRejected struct {
	Reason LoginRejectReason
}

func (m *LoginRejected) Indicator() byte  { return 'J' }
func (m *LoginRejected) IsHeartbeat() bool { return false }
func (m *LoginRejected) IsLogout() bool    { return false }

func (m *LoginRejected) Encode() (int, []byte, error) {
	return encodeFrame('J', []byte{byte(m.Reason)})
}

func (m *LoginRejected) Error() string { return "login rejected: " + m.Reason.String() }

func decodeLoginRejected(payload []byte) (*LoginRejected, error) {
	if len(payload) != 1 {
		return nil, common.Wrap(common.KindInvalidMessage, "LoginRejected: bad payload length", nil)
	}
	return &LoginRejected{Reason: LoginRejectReason(payload[0])}, nil
}

// SequencedData ('S'): application bytes, assigned an implicit sequence
// number by the server.
type SequencedData struct{ Data []byte }

func (m *SequencedData) Indicator() byte  { return 'S' }
func (m *SequencedData) IsHeartbeat() bool { return false }
func (m *SequencedData) IsLogout() bool    { return false }
func (m *SequencedData) Encode() (int, []byte, error) { return encodeFrame('S', m.Data) }

// UnSequencedData ('U'): application bytes sent outside the sequence
// stream.
type UnSequencedData struct{ Data []byte }

func (m *UnSequencedData) Indicator() byte  { return 'U' }
func (m *UnSequencedData) IsHeartbeat() bool { return false }
func (m *UnSequencedData) IsLogout() bool    { return false }
func (m *UnSequencedData) Encode() (int, []byte, error) { return encodeFrame('U', m.Data) }

// Debug ('+'): free-form ASCII diagnostic text.
type Debug struct{ Text string }

func (m *Debug) Indicator() byte  { return '+' }
func (m *Debug) IsHeartbeat() bool { return false }
func (m *Debug) IsLogout() bool    { return false }
func (m *Debug) Encode() (int, []byte, error) { return encodeFrame('+', []byte(m.Text)) }

// ClientHeartbeat ('R'): empty payload, sent by the client.
type ClientHeartbeat struct{}

func (m *ClientHeartbeat) Indicator() byte              { return 'R' }
func (m *ClientHeartbeat) IsHeartbeat() bool            { return true }
func (m *ClientHeartbeat) IsLogout() bool               { return false }
func (m *ClientHeartbeat) Encode() (int, []byte, error) { return encodeFrame('R', nil) }

// ServerHeartbeat ('H'): empty payload, sent by the server.
type ServerHeartbeat struct{}

func (m *ServerHeartbeat) Indicator() byte              { return 'H' }
func (m *ServerHeartbeat) IsHeartbeat() bool            { return true }
func (m *ServerHeartbeat) IsLogout() bool               { return false }
func (m *ServerHeartbeat) Encode() (int, []byte, error) { return encodeFrame('H', nil) }

// EndOfSession ('Z'): server-initiated graceful termination.
type EndOfSession struct{}

func (m *EndOfSession) Indicator() byte              { return 'Z' }
func (m *EndOfSession) IsHeartbeat() bool            { return false }
func (m *EndOfSession) IsLogout() bool               { return true }
func (m *EndOfSession) Encode() (int, []byte, error) { return encodeFrame('Z', nil) }

// LogoutRequest ('O'): client-initiated graceful termination.
type LogoutRequest struct{}

func (m *LogoutRequest) Indicator() byte              { return 'O' }
func (m *LogoutRequest) IsHeartbeat() bool            { return false }
func (m *LogoutRequest) IsLogout() bool               { return true }
func (m *LogoutRequest) Encode() (int, []byte, error) { return encodeFrame('O', nil) }

// Decode reads exactly one SoupBinTCP frame from the front of data. It
// returns an InvalidMessage error for an unknown indicator or for a
// LoginRequest/LoginAccepted/LoginRejected payload of the wrong length. A
// buffer shorter than the 3-byte header or than the declared length is
// reported as errShortBuffer, not as InvalidMessage, so the reader can
// tell "not enough bytes yet" apart from "malformed".
func Decode(data []byte) (int, Message, error) {
	if len(data) < headerLen {
		return 0, nil, errShortBuffer
	}
	length := int(data[0])<<8 | int(data[1])
	total := length + 2
	if len(data) < total {
		return 0, nil, errShortBuffer
	}
	indicator := data[2]
	payload := data[3:total]

	var (
		msg Message
		err error
	)
	switch indicator {
	case 'L':
		msg, err = decodeLoginRequest(payload)
	case 'A':
		msg, err = decodeLoginAccepted(payload)
	case 'J':
		msg, err = decodeLoginRejected(payload)
	case 'S':
		msg = &SequencedData{Data: append([]byte{}, payload...)}
	case 'U':
		msg = &UnSequencedData{Data: append([]byte{}, payload...)}
	case '+':
		msg = &Debug{Text: string(payload)}
	case 'R':
		msg = &ClientHeartbeat{}
	case 'H':
		msg = &ServerHeartbeat{}
	case 'Z':
		msg = &EndOfSession{}
	case 'O':
		msg = &LogoutRequest{}
	default:
		return 0, nil, common.Wrap(common.KindInvalidMessage, fmt.Sprintf("unknown soup indicator %q", indicator), nil)
	}
	if err != nil {
		return 0, nil, err
	}
	return total, msg, nil
}

// errShortBuffer signals "not enough bytes buffered yet" to the reader,
// distinct from a genuine framing error.
var errShortBuffer = fmt.Errorf("soup: short buffer")
