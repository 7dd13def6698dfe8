package soup

import (
	"github.com/Nasdaq/nasdaq-protocols/common"
)

// Reader incrementally frames SoupBinTCP messages off a byte stream (spec
// C4, specialized for soup framing): peek 2 bytes for length, wait if the
// full frame isn't buffered yet, otherwise decode exactly that span and
// repeat. Grounded on original_source's SoupMessageReader._process.
type Reader struct {
	buf []byte
}

// NewReader builds an empty framer.
func NewReader() *Reader { return &Reader{} }

// Feed implements common.Reader. It appends data to the internal buffer
// and decodes as many complete frames as it holds, classifying each one
// via the three callbacks, stopping at the first incomplete frame so the
// leftover bytes wait for the next call.
func (r *Reader) Feed(data []byte, onMessage func(any) error, onHeartbeat func(), onLogout func()) error {
	if len(data) > 0 {
		r.buf = append(r.buf, data...)
	}
	for len(r.buf) > 1 {
		n, msg, err := Decode(r.buf)
		if err == errShortBuffer {
			return nil
		}
		if err != nil {
			return err
		}
		r.buf = r.buf[n:]

		if msg.IsLogout() {
			onLogout()
			return nil
		}
		if msg.IsHeartbeat() {
			onHeartbeat()
			continue
		}
		if err := onMessage(msg); err != nil {
			return common.Wrap(common.KindInvalidMessage, "soup: message handler failed", err)
		}
	}
	return nil
}

var _ common.Reader = (*Reader)(nil)
