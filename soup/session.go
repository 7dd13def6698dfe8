package soup

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/Nasdaq/nasdaq-protocols/common"
	"github.com/Nasdaq/nasdaq-protocols/common/log"
)

// SessionID extends common.SessionID with soup-specific identity fields:
// session type ("client"/"server"), authenticated user, and
// server-assigned session name. Like common.SessionID, this is for
// logging/diagnostics only.
type SessionID struct {
	common.SessionID
	SessionType string
	User        string
	Session     string
}

func (id SessionID) String() string {
	return fmt.Sprintf("%s-%s_%s@%s:%d", id.SessionType, id.User, id.Session, id.Host, id.Port)
}

// Handlers bundles the application callbacks a session dispatches to.
type Handlers struct {
	OnMessage func(Message)
	OnClose   func(reason error)
}

// Heartbeats configures both monitors started after a successful login.
type Heartbeats struct {
	ClientInterval time.Duration // local monitor: how often we ping the peer
	ServerInterval time.Duration // remote monitor: how long we tolerate peer silence
	ToleratedMissed int
}

// DefaultHeartbeats is a conservative 10-second default on both sides.
func DefaultHeartbeats() Heartbeats {
	return Heartbeats{ClientInterval: 10 * time.Second, ServerInterval: 10 * time.Second, ToleratedMissed: 1}
}

// ClientSession is a logged-in SoupBinTCP client: login, resume-by-
// sequence, send/receive, heartbeats, logout.
type ClientSession struct {
	*common.Session
	id       SessionID
	sequence string
	handlers Handlers
}

// DialOptions configures Dial.
type DialOptions struct {
	User           string
	Password       string
	SessionName    string
	Sequence       string // "1"=from start of day, "0"=live head only, else resume point
	Handlers       Handlers
	Heartbeats     Heartbeats
	ConnectTimeout time.Duration
	Logger         *log.Logger

	// GracefulShutdown and GracefulDrainTimeout configure common.Session's
	// connection-lost drain behavior; see common.Session.GracefulShutdown.
	GracefulShutdown     bool
	GracefulDrainTimeout time.Duration
}

func (o DialOptions) connectTimeout() time.Duration {
	if o.ConnectTimeout > 0 {
		return o.ConnectTimeout
	}
	return 5 * time.Second
}

// Dial establishes a transport, performs the SoupBinTCP login handshake,
// and returns a session in the Dispatching state on success. A rejected
// or malformed login reply closes the connection and reports
// ConnectionRefused; a dial timeout reports ConnectionTimeout. A login
// reply that does not arrive before the deadline reports ConnectionRefused.
func Dial(ctx context.Context, addr string, opts DialOptions) (*ClientSession, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.connectTimeout())
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, common.Wrap(common.KindConnectionTimeout, "soup: dial timed out", err)
		}
		return nil, common.Wrap(common.KindConnectionRefused, "soup: dial failed", err)
	}
	return newClientSessionOverConn(ctx, conn, opts)
}

func newClientSessionOverConn(ctx context.Context, conn net.Conn, opts DialOptions) (*ClientSession, error) {
	host, port := common.PeerAddr(conn)
	id := SessionID{
		SessionID:   common.NewSessionID(host, port),
		SessionType: "client",
		User:        opts.User,
		Session:     opts.SessionName,
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}

	sess := common.NewSession(id, conn, NewReader(), logger)
	sess.GracefulShutdown = opts.GracefulShutdown
	sess.GracefulDrainTimeout = opts.GracefulDrainTimeout
	cs := &ClientSession{Session: sess, id: id, sequence: opts.Sequence, handlers: opts.Handlers}
	sess.SetCloseHook(func(reason error) {
		if cs.handlers.OnClose != nil {
			cs.handlers.OnClose(reason)
		}
	})
	sess.SetState(common.StateLoggingIn)
	sess.StartReadLoop(nil)

	if err := cs.login(ctx, opts); err != nil {
		return nil, err
	}
	return cs, nil
}

func (s *ClientSession) login(ctx context.Context, opts DialOptions) error {
	req := &LoginRequest{User: opts.User, Password: opts.Password, Session: opts.SessionName, Sequence: opts.Sequence}
	if err := s.sendRaw(req); err != nil {
		return err
	}

	reply, err := s.Session.Receive(ctx)
	if err != nil {
		_ = s.Session.Close(err)
		return common.Wrap(common.KindConnectionRefused, "soup: login failed", err)
	}
	accepted, ok := reply.(*LoginAccepted)
	if !ok {
		_ = s.Session.Close(common.New(common.KindConnectionRefused, "soup: login rejected"))
		if rej, ok := reply.(*LoginRejected); ok {
			return common.Wrap(common.KindConnectionRefused, "soup: login rejected", rej)
		}
		return common.New(common.KindConnectionRefused, fmt.Sprintf("soup: unexpected login reply %T", reply))
	}

	s.id.Session = accepted.SessionID
	s.sequence = accepted.Sequence
	s.Session.SetState(common.StateDispatching)

	hb := opts.Heartbeats
	if hb.ClientInterval == 0 && hb.ServerInterval == 0 {
		hb = DefaultHeartbeats()
	}
	s.Session.StartHeartbeats(hb.ClientInterval, func() error { return s.sendRaw(&ClientHeartbeat{}) }, hb.ServerInterval, hb.ToleratedMissed)

	if s.handlers.OnMessage != nil {
		_ = s.Session.StartDispatching(func(m any) error {
			s.handlers.OnMessage(m.(Message))
			return nil
		})
	}
	return nil
}

// sendRaw encodes m and writes it to the transport. Login, heartbeats,
// Logout and Send all go through it; none of them counts sequence numbers.
func (s *ClientSession) sendRaw(m Message) error {
	_, b, err := m.Encode()
	if err != nil {
		return err
	}
	if err := s.Session.Send(b); err != nil {
		return err
	}
	return nil
}

// Send writes m to the transport. This library's client never sends
// SequencedData itself -- that is a server-side concept -- so no outbound
// sequence counter is maintained here.
func (s *ClientSession) Send(m Message) error {
	if err := s.sendRaw(m); err != nil {
		return err
	}
	return nil
}

// SendUnseqData wraps data in an UnSequencedData frame.
func (s *ClientSession) SendUnseqData(data []byte) error {
	return s.Send(&UnSequencedData{Data: data})
}

// SendDebug wraps text in a Debug frame.
func (s *ClientSession) SendDebug(text string) error {
	return s.Send(&Debug{Text: text})
}

// Logout sends LogoutRequest and initiates a graceful close.
func (s *ClientSession) Logout() error {
	if err := s.sendRaw(&LogoutRequest{}); err != nil {
		return err
	}
	s.Session.InitiateClose(nil)
	return nil
}

// ID returns the session's soup identity.
func (s *ClientSession) ID() SessionID { return s.id }

// ServerSessionHandler is the abstract hook set a server-side soup
// implementation would satisfy. It is the full extent of the server
// surface this library commits to; there is no accompanying accept loop.
type ServerSessionHandler interface {
	OnLogin(msg *LoginRequest) (Message, error) // returns *LoginAccepted or *LoginRejected
	OnUnsequenced(msg *UnSequencedData) error
}
