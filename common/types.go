package common

import (
	"fmt"
	"net"

	"github.com/google/uuid"
)

// Serializable is implemented by anything with a wire encoding of its own
// (e.g. soup messages). Encode returns the number of bytes produced
// alongside the usual error.
type Serializable interface {
	Encode() (int, []byte, error)
}

// Stoppable is implemented by long-lived, explicitly torn down components;
// Queue and HeartbeatMonitor both satisfy it.
type Stoppable interface {
	Stop()
	IsStopped() bool
}

// SessionID identifies a session for logging and diagnostics. It is never
// part of any on-wire protocol (spec: "observable but not part of any
// on-wire protocol").
type SessionID struct {
	ID   uuid.UUID
	Host string
	Port uint16
}

// NewSessionID mints a SessionID with a fresh correlation UUID, tagging
// every session with a stable identifier for logging and diagnostics.
func NewSessionID(host string, port uint16) SessionID {
	return SessionID{ID: uuid.New(), Host: host, Port: port}
}

func (s SessionID) String() string {
	return fmt.Sprintf("%s@%s:%d", s.ID.String()[:8], s.Host, s.Port)
}

// PeerAddr extracts host/port from a net.Conn's remote address, falling
// back to zero values if the transport doesn't expose one (e.g. net.Pipe
// used in tests).
func PeerAddr(conn net.Conn) (host string, port uint16) {
	if conn == nil {
		return
	}
	ra := conn.RemoteAddr()
	if ra == nil {
		return
	}
	if tcp, ok := ra.(*net.TCPAddr); ok {
		return tcp.IP.String(), uint16(tcp.Port)
	}
	return ra.String(), 0
}
