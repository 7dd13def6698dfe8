package soup

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/Nasdaq/nasdaq-protocols/common"
	"github.com/stretchr/testify/require"
)

// fakeLoginPeer plays the server side of the SoupBinTCP login handshake
// over conn: it reads exactly one framed LoginRequest, then writes back a
// LoginAccepted (accept=true) or LoginRejected (accept=false) reply.
func fakeLoginPeer(conn net.Conn, accept bool) (*LoginRequest, error) {
	buf := make([]byte, 0, 64)
	tmp := make([]byte, 64)
	for {
		n, rerr := conn.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			_, msg, derr := Decode(buf)
			if derr == nil {
				req, ok := msg.(*LoginRequest)
				if !ok {
					return nil, common.New(common.KindInvalidMessage, "fakeLoginPeer: expected a LoginRequest")
				}

				var reply Message
				if accept {
					reply = &LoginAccepted{SessionID: "srv-sess", Sequence: "1"}
				} else {
					reply = &LoginRejected{Reason: NotAuthorized}
				}
				_, out, eerr := reply.Encode()
				if eerr != nil {
					return nil, eerr
				}
				if _, werr := conn.Write(out); werr != nil {
					return nil, werr
				}
				return req, nil
			}
			if derr != errShortBuffer {
				return nil, derr
			}
		}
		if rerr != nil {
			return nil, rerr
		}
	}
}

func noTimeoutHeartbeats() Heartbeats {
	return Heartbeats{ClientInterval: time.Hour, ServerInterval: time.Hour, ToleratedMissed: 100}
}

func TestClientSessionLoginAccepted(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	peerDone := make(chan struct {
		req *LoginRequest
		err error
	}, 1)
	go func() {
		req, err := fakeLoginPeer(serverConn, true)
		peerDone <- struct {
			req *LoginRequest
			err error
		}{req, err}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cs, err := newClientSessionOverConn(ctx, clientConn, DialOptions{
		User:       "trader",
		Password:   "secret",
		Sequence:   "1",
		Heartbeats: noTimeoutHeartbeats(),
	})
	require.NoError(t, err)
	defer cs.Session.Close(nil)

	select {
	case got := <-peerDone:
		require.NoError(t, got.err)
		require.Equal(t, "trader", got.req.User)
		require.Equal(t, "secret", got.req.Password)
	case <-time.After(time.Second):
		t.Fatal("fake peer never observed the LoginRequest")
	}

	require.Equal(t, common.StateDispatching, cs.Session.State())
	require.Equal(t, "srv-sess", cs.ID().Session)
	require.Equal(t, "trader", cs.ID().User)
}

func TestClientSessionLoginRejected(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	peerDone := make(chan error, 1)
	go func() {
		_, err := fakeLoginPeer(serverConn, false)
		peerDone <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cs, err := newClientSessionOverConn(ctx, clientConn, DialOptions{
		User:     "trader",
		Password: "wrong",
		Sequence: "1",
	})
	require.Nil(t, cs)
	require.Error(t, err)
	require.ErrorIs(t, err, common.ErrConnectionRefused)

	require.NoError(t, <-peerDone)
}

func TestClientSessionSendAndLogout(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	peerDone := make(chan error, 1)
	go func() {
		_, err := fakeLoginPeer(serverConn, true)
		peerDone <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cs, err := newClientSessionOverConn(ctx, clientConn, DialOptions{
		User:       "trader",
		Password:   "secret",
		Sequence:   "1",
		Heartbeats: noTimeoutHeartbeats(),
	})
	require.NoError(t, err)
	require.NoError(t, <-peerDone)
	defer cs.Session.Close(nil)

	readFrame := func() (Message, error) {
		buf := make([]byte, 0, 64)
		tmp := make([]byte, 64)
		for {
			n, rerr := serverConn.Read(tmp)
			if n > 0 {
				buf = append(buf, tmp[:n]...)
				if _, msg, derr := Decode(buf); derr == nil {
					return msg, nil
				} else if derr != errShortBuffer {
					return nil, derr
				}
			}
			if rerr != nil {
				return nil, rerr
			}
		}
	}

	done := make(chan struct{ msg Message; err error }, 1)
	go func() {
		msg, err := readFrame()
		done <- struct{ msg Message; err error }{msg, err}
	}()
	require.NoError(t, cs.SendUnseqData([]byte("hello")))
	select {
	case got := <-done:
		require.NoError(t, got.err)
		u, ok := got.msg.(*UnSequencedData)
		require.True(t, ok)
		require.Equal(t, []byte("hello"), u.Data)
	case <-time.After(time.Second):
		t.Fatal("server never observed the UnSequencedData frame")
	}

	logoutDone := make(chan struct{ msg Message; err error }, 1)
	go func() {
		msg, err := readFrame()
		logoutDone <- struct{ msg Message; err error }{msg, err}
	}()
	require.NoError(t, cs.Logout())
	select {
	case got := <-logoutDone:
		require.NoError(t, got.err)
		_, ok := got.msg.(*LogoutRequest)
		require.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("server never observed the LogoutRequest frame")
	}

	require.Eventually(t, cs.Session.IsStopped, time.Second, 5*time.Millisecond)
}
