package fix

import (
	"bytes"

	"github.com/Nasdaq/nasdaq-protocols/common"
)

// trailerLength is len("10=" + 3 checksum digits + SOH): the fixed width
// of the CheckSum field once a message's body length is known.
const trailerLength = 7

// Reader incrementally frames FIX messages off a byte stream: it locates
// the 35= marker, reads the 9=<bodylen> field, computes the exact message
// span, and waits for the full span to be buffered before decoding.
type Reader struct {
	buf      []byte
	registry *Registry
}

// NewReader builds a Reader that resolves message classes via registry.
func NewReader(registry *Registry) *Reader {
	return &Reader{registry: registry}
}

// calcMsgLen computes the total message span: given the offset right
// after the BodyLength field's trailing SOH, and the BodyLength value
// itself, the span runs through the trailer's CheckSum field.
func calcMsgLen(afterBodyLength, bodyLength int) int {
	return afterBodyLength + bodyLength + trailerLength
}

// Feed implements common.Reader. It buffers data and, for every fully
// buffered message, decodes it via the registry and invokes onMessage
// (or onHeartbeat/onLogout for those message types) before advancing the
// buffer by the message's computed span -- not by whatever length
// MessageClass.Decode itself reports consuming, since the framing
// computation is authoritative over segment decode length.
func (r *Reader) Feed(data []byte, onMessage func(any) error, onHeartbeat func(), onLogout func()) error {
	r.buf = append(r.buf, data...)

	for {
		msgLen, ok, err := r.nextMessageLen()
		if err != nil {
			return err
		}
		if !ok || len(r.buf) < msgLen {
			return nil
		}

		frame := r.buf[:msgLen]
		_, msg, err := r.registry.Decode(frame)
		if err != nil {
			return err
		}
		r.buf = r.buf[msgLen:]

		switch {
		case msg.IsHeartbeat():
			if onHeartbeat != nil {
				onHeartbeat()
			}
		case msg.IsLogout():
			if onLogout != nil {
				onLogout()
			}
		default:
			if onMessage != nil {
				if err := onMessage(msg); err != nil {
					return err
				}
			}
		}
	}
}

// nextMessageLen reports the buffered message's total length once enough
// of it (through the BodyLength field) has arrived, or (0, false, nil) if
// the 35= marker itself hasn't arrived yet.
func (r *Reader) nextMessageLen() (int, bool, error) {
	if !bytes.Contains(r.buf, []byte("35=")) {
		return 0, false, nil
	}

	bodyLenEq := bytes.IndexByte(r.buf, '=')
	if bodyLenEq == -1 {
		return 0, false, nil
	}
	secondEq := bytes.IndexByte(r.buf[bodyLenEq+1:], '=')
	if secondEq == -1 {
		return 0, false, nil
	}
	secondEq += bodyLenEq + 1

	soh := bytes.IndexByte(r.buf[secondEq+1:], SOH)
	if soh == -1 {
		return 0, false, nil
	}
	soh += secondEq + 1

	n, v, err := Int.FromBytes(r.buf[secondEq+1 : soh])
	if err != nil {
		return 0, false, common.Wrap(common.KindInvalidMessage, "fix: malformed BodyLength field", err)
	}
	_ = n
	bodyLength := v.(int)

	return calcMsgLen(soh+1, bodyLength), true, nil
}

var _ common.Reader = (*Reader)(nil)
