package soup

import (
	"net"
	"time"

	"github.com/golang/snappy"
)

// CompressedConn wraps a net.Conn with Snappy framing on both directions.
// It is a purely local opt-in decorator -- SoupBinTCP itself never
// negotiates compression on the wire -- for deployments that tunnel soup
// traffic over an already-agreed-compressed link, e.g. a same-host pipe to
// a multiplexing proxy.
type CompressedConn struct {
	net.Conn
	w *snappy.Writer
	r *snappy.Reader
}

// NewCompressedConn wraps conn so Read/Write transparently snappy-frame
// their payloads. Both ends of the connection must agree to wrap.
func NewCompressedConn(conn net.Conn) *CompressedConn {
	return &CompressedConn{
		Conn: conn,
		w:    snappy.NewBufferedWriter(conn),
		r:    snappy.NewReader(conn),
	}
}

func (c *CompressedConn) Read(p []byte) (int, error)  { return c.r.Read(p) }
func (c *CompressedConn) Write(p []byte) (int, error) { return c.w.Write(p) }

// Flush pushes any buffered compressed output to the underlying
// transport. Callers that write a frame and then block in Receive should
// Flush first, since snappy.Writer batches small writes into larger
// blocks.
func (c *CompressedConn) Flush() error { return c.w.Flush() }

// Close flushes pending output before closing the underlying connection.
func (c *CompressedConn) Close() error {
	_ = c.w.Flush()
	return c.Conn.Close()
}

// SetDeadline, SetReadDeadline and SetWriteDeadline pass straight through
// to the wrapped connection; the snappy framing does not buffer across
// deadline boundaries on the read side (each Read pulls one block).
func (c *CompressedConn) SetDeadline(t time.Time) error      { return c.Conn.SetDeadline(t) }
func (c *CompressedConn) SetReadDeadline(t time.Time) error  { return c.Conn.SetReadDeadline(t) }
func (c *CompressedConn) SetWriteDeadline(t time.Time) error { return c.Conn.SetWriteDeadline(t) }
