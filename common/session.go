package common

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/Nasdaq/nasdaq-protocols/common/log"
	"golang.org/x/sync/errgroup"
)

// State is a session's position in its lifecycle: Connecting ->
// LoggingIn -> Dispatching -> Closing -> Closed, monotonic, never
// regressing.
type State int

const (
	StateConnecting State = iota
	StateLoggingIn
	StateDispatching
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateLoggingIn:
		return "LoggingIn"
	case StateDispatching:
		return "Dispatching"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	}
	return "Unknown"
}

// Reader is the protocol-specific framing layer: given newly-read transport
// bytes, it deserializes as many complete frames as the buffer holds and
// classifies each one via the three callbacks. Reader implementations
// (soup.Reader, fix.Reader) own their own internal buffering; Feed is called
// once per Read, and bytes that do not yet form a complete frame stay in
// the Reader's buffer for the next call.
//
// onHeartbeat is called for protocol heartbeats (observed, not forwarded to
// the application). onLogout is called for a peer-initiated logout/
// end-of-session frame and should be the last callback invoked. Everything
// else goes through onMessage. An error return from Feed itself (as opposed
// to from a callback) means the bytes were not parseable and the session
// must close.
type Reader interface {
	Feed(data []byte, onMessage func(any) error, onHeartbeat func(), onLogout func()) error
}

// CloseHook is invoked once, after the transport and all child goroutines
// have stopped, with the reason the session closed (nil for a clean,
// locally-initiated close).
type CloseHook func(reason error)

// Session is the generic async session substrate: it owns the transport,
// drives a Reader over it, feeds decoded application messages into a
// Queue, and runs the local/remote HeartbeatMonitor pair. Protocol
// packages (soup, fix) embed a *Session and add login/logout and
// message-send semantics on top.
type Session struct {
	id   fmt.Stringer
	conn net.Conn
	rdr  Reader
	log  *log.Logger

	Queue *Queue

	// GracefulShutdown, when set, makes a connection-lost event (as opposed
	// to a locally-initiated close) wait for the dispatcher to drain
	// whatever is already sitting in Queue before Close stops it, so the
	// application still observes messages that arrived before the peer
	// hung up. GracefulDrainTimeout bounds that wait (default 2s).
	GracefulShutdown     bool
	GracefulDrainTimeout time.Duration

	mtx       sync.Mutex
	state     State
	localHB   *HeartbeatMonitor
	remoteHB  *HeartbeatMonitor
	closeHook CloseHook
	closeOnce sync.Once
	closeErr  error

	eg       *errgroup.Group
	egCancel context.CancelFunc
	readDone chan struct{}
}

// NewSession wraps an established transport. The caller must still call
// StartReadLoop once login completes (or immediately, for protocols without
// a separate login phase) to begin dispatching inbound bytes.
func NewSession(id fmt.Stringer, conn net.Conn, rdr Reader, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	eg, _ := errgroup.WithContext(ctx)
	return &Session{
		id:       id,
		conn:     conn,
		rdr:      rdr,
		log:      logger,
		Queue:    NewQueue(id, logger),
		state:    StateConnecting,
		eg:       eg,
		egCancel: cancel,
		readDone: make(chan struct{}),
	}
}

func (s *Session) State() State {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.state
}

// SetState advances the lifecycle state. Callers (soup.Session, fix.Session)
// are responsible for calling it in the correct monotonic order; SetState
// itself does not reject a regression, since a protocol may need to
// surface a mid-login failure by jumping straight to Closing.
func (s *Session) SetState(st State) {
	s.mtx.Lock()
	s.state = st
	s.mtx.Unlock()
}

// SetCloseHook registers the function called once Close completes.
func (s *Session) SetCloseHook(f CloseHook) {
	s.mtx.Lock()
	s.closeHook = f
	s.mtx.Unlock()
}

// StartHeartbeats starts the local ("ping the peer") and/or remote ("peer
// went quiet") monitors. A zero interval omits that half of the pair, as
// does a nil sendLocalHeartbeat for the local half (e.g. a protocol variant
// with only server-driven heartbeats).
func (s *Session) StartHeartbeats(localInterval time.Duration, sendLocalHeartbeat func() error, remoteInterval time.Duration, remoteTolerateMissed int) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if localInterval > 0 && sendLocalHeartbeat != nil {
		s.localHB = StartHeartbeatMonitor(s.id, localInterval, 1, false, func(context.Context) error {
			return sendLocalHeartbeat()
		}, s.log)
	}
	if remoteInterval > 0 {
		s.remoteHB = StartHeartbeatMonitor(s.id, remoteInterval, remoteTolerateMissed, true, func(context.Context) error {
			s.log.Warnf("%s> no activity from peer, closing.", s.id)
			s.InitiateClose(Wrap(KindConnectionTimeout, "heartbeat tolerance exceeded", nil))
			return nil
		}, s.log)
	}
}

// PingRemote records inbound activity, feeding the remote heartbeat monitor.
// The read loop calls this on every transport read that returns bytes,
// heartbeat or not.
func (s *Session) PingRemote() {
	s.mtx.Lock()
	hb := s.remoteHB
	s.mtx.Unlock()
	if hb != nil {
		hb.Ping()
	}
}

// StartReadLoop launches the goroutine that reads off the transport and
// feeds bytes to the Reader. onLogout is called when the peer sends a
// protocol-level logout/end-of-session frame.
func (s *Session) StartReadLoop(onLogout func()) {
	s.eg.Go(func() error {
		defer close(s.readDone)
		buf := make([]byte, 64*1024)
		for {
			n, err := s.conn.Read(buf)
			if n > 0 {
				s.PingRemote()
				feedErr := s.rdr.Feed(buf[:n], func(msg any) error {
					return s.Queue.Put(msg)
				}, func() {
					// heartbeat observed, not forwarded
				}, func() {
					if onLogout != nil {
						onLogout()
					}
					s.InitiateClose(nil)
				})
				if feedErr != nil {
					s.log.Warnf("%s> reader error, closing: %v", s.id, feedErr)
					s.InitiateClose(Wrap(KindInvalidMessage, "reader parse failure", feedErr))
					return nil
				}
			}
			if err != nil {
				if err != io.EOF {
					s.log.Warnf("%s> transport read error: %v", s.id, err)
				}
				if s.GracefulShutdown {
					s.drainBeforeClose()
				}
				s.InitiateClose(err)
				return nil
			}
		}
	})
}

// drainBeforeClose blocks, up to GracefulDrainTimeout, until Queue has no
// pending items left -- giving an attached dispatcher a chance to deliver
// messages that were already buffered when the connection dropped, rather
// than having Close cut the dispatcher off mid-backlog.
func (s *Session) drainBeforeClose() {
	timeout := s.GracefulDrainTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Queue.Drain(ctx); err != nil {
		s.log.Debugf("%s> graceful shutdown: drain did not complete: %v", s.id, err)
	}
}

// Send writes an already-encoded frame to the transport.
func (s *Session) Send(frame []byte) error {
	_, err := s.conn.Write(frame)
	if err != nil {
		s.InitiateClose(err)
	}
	return err
}

// Receive proxies to the inbound queue; see Queue.Get.
func (s *Session) Receive(ctx context.Context) (any, error) { return s.Queue.Get(ctx) }

// ReceiveNowait proxies to the inbound queue; see Queue.GetNowait.
func (s *Session) ReceiveNowait() (any, error) { return s.Queue.GetNowait() }

// StartDispatching proxies to the inbound queue; see Queue.StartDispatching.
func (s *Session) StartDispatching(f DispatcherFunc) error { return s.Queue.StartDispatching(f) }

// InitiateClose schedules Close to run exactly once, in the background, with
// reason recorded as the close cause. It is safe to call from the read loop,
// a heartbeat trip action, or the application.
func (s *Session) InitiateClose(reason error) {
	go s.Close(reason)
}

// Close tears the session down: stops the heartbeat monitors, cancels the
// reader goroutine group, stops the inbound queue, closes the transport, and
// finally invokes the close hook. Close is idempotent; every caller after
// the first observes the same err.
func (s *Session) Close(reason error) error {
	s.closeOnce.Do(func() {
		s.SetState(StateClosing)
		s.closeErr = reason

		s.mtx.Lock()
		localHB, remoteHB := s.localHB, s.remoteHB
		s.mtx.Unlock()
		if localHB != nil {
			localHB.Stop()
		}
		if remoteHB != nil {
			remoteHB.Stop()
		}

		s.Queue.Stop()
		_ = s.conn.Close()
		s.egCancel()
		<-s.readDone
		_ = s.eg.Wait()

		s.SetState(StateClosed)

		s.mtx.Lock()
		hook := s.closeHook
		s.mtx.Unlock()
		if hook != nil {
			hook(reason)
		}
	})
	return s.closeErr
}

// IsStopped reports whether Close has completed.
func (s *Session) IsStopped() bool { return s.State() == StateClosed }
