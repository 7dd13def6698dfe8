package fix

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/Nasdaq/nasdaq-protocols/common"
	"github.com/Nasdaq/nasdaq-protocols/common/log"
)

// SessionID extends common.SessionID with the FIX username, rendering as
// `fix-{username}@{host}:{port}`.
type SessionID struct {
	common.SessionID
	Username string
}

func (id SessionID) String() string {
	return fmt.Sprintf("fix-%s@%s:%d", id.Username, id.Host, id.Port)
}

// Handlers bundles the application callbacks a session dispatches to.
type Handlers struct {
	OnMessage func(*Message)
	OnClose   func(reason error)
}

// Heartbeats configures both monitors started after a successful logon.
type Heartbeats struct {
	ClientInterval  time.Duration
	ServerInterval  time.Duration
	ToleratedMissed int
}

// DefaultHeartbeats is an aggressive 1-second default on both sides.
func DefaultHeartbeats() Heartbeats {
	return Heartbeats{ClientInterval: time.Second, ServerInterval: time.Second, ToleratedMissed: 1}
}

// Dialect supplies the protocol-version-specific BeginString a session
// stamps into every outbound message.
type Dialect interface {
	BeginString() string
}

type fix44 struct{}

func (fix44) BeginString() string { return "FIX.4.4" }

// Fix44 is the FIX.4.4 dialect.
var Fix44 Dialect = fix44{}

type fix50 struct{}

func (fix50) BeginString() string { return "FIXT.1.1" }

// Fix50 is the FIXT.1.1 (FIX 5.0) dialect.
var Fix50 Dialect = fix50{}

// SessionOptions configures Connect.
type SessionOptions struct {
	Dialect        Dialect
	Registry       *Registry
	HeartbeatClass *MessageClass // built from the same Header/Trailer defs as logonClass if nil
	Handlers       Handlers
	Heartbeats     Heartbeats
	Logger         *log.Logger

	// GracefulShutdown and GracefulDrainTimeout configure common.Session's
	// connection-lost drain behavior; see common.Session.GracefulShutdown.
	GracefulShutdown     bool
	GracefulDrainTimeout time.Duration
}

// Session is a logged-in FIX client: handshake, sequence numbering,
// framing/checksum stamping on send, heartbeats, logout.
type Session struct {
	*common.Session
	id       SessionID
	dialect  Dialect
	registry *Registry
	heartbeatClass *MessageClass
	handlers Handlers

	sequence int64 // next outbound MsgSeqNum

	senderCompID string
	senderSubID  string
	targetCompID string
}

// Connect dials addr, performs the FIX logon handshake by sending logonMsg
// (whose Body the caller has already populated with any application-
// specific fields), and returns a session in the Dispatching state on
// success. logonMsg.Header must carry SenderCompID, TargetCompID,
// SenderSubID (optional) and MsgSeqNum (the starting sequence number);
// SendingTime is stamped automatically.
func Connect(ctx context.Context, addr string, logonMsg *Message, opts SessionOptions) (*Session, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, common.Wrap(common.KindConnectionTimeout, "fix: dial timed out", err)
		}
		return nil, common.Wrap(common.KindConnectionRefused, "fix: dial failed", err)
	}
	return newSessionOverConn(ctx, conn, logonMsg, opts)
}

func newSessionOverConn(ctx context.Context, conn net.Conn, logonMsg *Message, opts SessionOptions) (*Session, error) {
	host, port := common.PeerAddr(conn)
	username, _ := logonMsg.Get("Username").(string)
	sid := SessionID{SessionID: common.NewSessionID(host, port), Username: username}

	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}

	heartbeatClass := opts.HeartbeatClass
	if heartbeatClass == nil {
		heartbeatClass = &MessageClass{
			AppName:    logonMsg.Class().AppName,
			Name:       "Heartbeat",
			MsgType:    HeartbeatMsgType,
			HeaderDef:  logonMsg.Class().HeaderDef,
			BodyDef:    NewSegmentDef("HeartbeatBody", false),
			TrailerDef: logonMsg.Class().TrailerDef,
		}
	}

	sess := common.NewSession(sid, conn, NewReader(opts.registryOrDefault()), logger)
	sess.GracefulShutdown = opts.GracefulShutdown
	sess.GracefulDrainTimeout = opts.GracefulDrainTimeout
	s := &Session{
		Session:        sess,
		id:             sid,
		dialect:        opts.dialectOrDefault(),
		registry:       opts.registryOrDefault(),
		heartbeatClass: heartbeatClass,
		handlers:       opts.Handlers,
	}
	sess.SetCloseHook(func(reason error) {
		if s.handlers.OnClose != nil {
			s.handlers.OnClose(reason)
		}
	})
	sess.SetState(common.StateLoggingIn)
	sess.StartReadLoop(nil)

	if err := s.login(ctx, logonMsg, opts.heartbeatsOrDefault()); err != nil {
		return nil, err
	}
	return s, nil
}

func (o SessionOptions) dialectOrDefault() Dialect {
	if o.Dialect != nil {
		return o.Dialect
	}
	return Fix44
}

func (o SessionOptions) registryOrDefault() *Registry {
	if o.Registry != nil {
		return o.Registry
	}
	return NewRegistry()
}

func (o SessionOptions) heartbeatsOrDefault() Heartbeats {
	if o.Heartbeats.ClientInterval == 0 && o.Heartbeats.ServerInterval == 0 {
		return DefaultHeartbeats()
	}
	return o.Heartbeats
}

func (s *Session) login(ctx context.Context, logonMsg *Message, hb Heartbeats) error {
	s.senderCompID, _ = logonMsg.Header().Get("SenderCompID").(string)
	s.senderSubID, _ = logonMsg.Header().Get("SenderSubID").(string)
	s.targetCompID, _ = logonMsg.Header().Get("TargetCompID").(string)
	if seq, ok := logonMsg.Header().Get("MsgSeqNum").(int); ok {
		atomic.StoreInt64(&s.sequence, int64(seq))
	} else {
		atomic.StoreInt64(&s.sequence, 1)
	}

	if err := s.SendMsg(logonMsg); err != nil {
		return err
	}

	reply, err := s.Session.Receive(ctx)
	if err != nil {
		_ = s.Session.Close(err)
		return common.Wrap(common.KindConnectionRefused, "fix: logon failed", err)
	}
	replyMsg, ok := reply.(*Message)
	if !ok || replyMsg.Class().Name != logonMsg.Class().Name {
		_ = s.Session.Close(common.New(common.KindConnectionRefused, "fix: logon rejected"))
		return common.New(common.KindConnectionRefused, fmt.Sprintf("fix: unexpected logon reply %T", reply))
	}

	s.Session.SetState(common.StateDispatching)
	s.Session.StartHeartbeats(hb.ClientInterval, s.SendHeartbeat, hb.ServerInterval, hb.ToleratedMissed)

	if s.handlers.OnMessage != nil {
		_ = s.Session.StartDispatching(func(m any) error {
			s.handlers.OnMessage(m.(*Message))
			return nil
		})
	}
	return nil
}

// SendMsg validates msg's Body, stamps the session's identity and
// sequencing fields into its Header, frames it with authoritative
// BeginString/BodyLength/MsgType/CheckSum bytes, and writes it to the
// transport.
func (s *Session) SendMsg(msg *Message) error {
	if err := msg.Body().Validate(); err != nil {
		return err
	}

	hdr := msg.Header()
	if s.senderSubID != "" {
		_ = hdr.Set("SenderSubID", s.senderSubID)
	}
	_ = hdr.Set("TargetCompID", s.targetCompID)
	_ = hdr.Set("SenderCompID", s.senderCompID)
	_ = hdr.Set("MsgSeqNum", int(atomic.AddInt64(&s.sequence, 1)-1))
	_ = hdr.Set("SendingTime", time.Now().UTC().Format("20060102-15:04:05"))

	framed, err := s.frame(msg)
	if err != nil {
		return err
	}
	if err := s.Session.Send(framed); err != nil {
		return err
	}
	if !msg.IsHeartbeat() {
		s.Session.PingRemote()
	}
	return nil
}

// frame renders msg's business content via Message.Encode, then prepends
// BeginString/BodyLength/MsgType and appends a computed CheckSum --
// independently of whatever values happen to be set on the Header's
// BeginString/BodyLength or the Trailer's CheckSum fields.
func (s *Session) frame(msg *Message) ([]byte, error) {
	_, bb, err := msg.Encode()
	if err != nil {
		return nil, err
	}

	msgType := &FieldDef{Tag_: MsgTypeTag, Name_: "MsgType", Type: String}
	_, msgTypeBytes, err := msgType.EncodeValue(msg.Class().MsgType)
	if err != nil {
		return nil, err
	}
	msgTypeBytes = append(msgTypeBytes, SOH)

	bodyLength := len(bb) + len(msgTypeBytes)
	bodyLenField := &FieldDef{Tag_: BodyLengthTag, Name_: "BodyLength", Type: Int}
	_, bodyLenBytes, err := bodyLenField.EncodeValue(bodyLength)
	if err != nil {
		return nil, err
	}
	bodyLenBytes = append(bodyLenBytes, SOH)

	beginString := &FieldDef{Tag_: BeginStringTag, Name_: "BeginString", Type: String}
	_, beginBytes, err := beginString.EncodeValue(s.dialect.BeginString())
	if err != nil {
		return nil, err
	}
	beginBytes = append(beginBytes, SOH)

	out := make([]byte, 0, len(beginBytes)+len(bodyLenBytes)+len(msgTypeBytes)+len(bb)+16)
	out = append(out, beginBytes...)
	out = append(out, bodyLenBytes...)
	out = append(out, msgTypeBytes...)
	out = append(out, bb...)

	checksum := Checksum(out)
	checksumField := &FieldDef{Tag_: ChecksumTag, Name_: "CheckSum", Type: String}
	_, checksumBytes, err := checksumField.EncodeValue(checksum)
	if err != nil {
		return nil, err
	}
	out = append(out, checksumBytes...)
	out = append(out, SOH)

	return out, nil
}

// SendHeartbeat sends an empty heartbeat message.
func (s *Session) SendHeartbeat() error {
	return s.SendMsg(s.heartbeatClass.New())
}

// Logout sends a logout message (class name "Logout" must be registered)
// and initiates a graceful close. Callers that never registered a Logout
// class should instead call s.Session.InitiateClose directly.
func (s *Session) Logout() error {
	lc, ok := s.registry.ByName("Logout")
	if ok {
		_ = s.SendMsg(lc.New())
	}
	s.Session.InitiateClose(nil)
	return nil
}

// ID returns the session's FIX identity.
func (s *Session) ID() SessionID { return s.id }
