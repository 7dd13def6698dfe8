package common

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// lineReader is a minimal Reader: every byte fed in is treated as a
// complete one-byte "message" forwarded to onMessage, except the bytes
// 'H' and 'L' which classify as heartbeat/logout instead.
type lineReader struct{}

func (lineReader) Feed(data []byte, onMessage func(any) error, onHeartbeat func(), onLogout func()) error {
	for _, b := range data {
		switch b {
		case 'H':
			onHeartbeat()
		case 'L':
			onLogout()
		default:
			if err := onMessage(string(b)); err != nil {
				return err
			}
		}
	}
	return nil
}

type errorReader struct{ err error }

func (r errorReader) Feed(data []byte, onMessage func(any) error, onHeartbeat func(), onLogout func()) error {
	return r.err
}

func newPipeSession(t *testing.T, rdr Reader) (*Session, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	sess := NewSession(stringerID("test-session"), client, rdr, nil)
	sess.StartReadLoop(nil)
	t.Cleanup(func() { sess.Close(nil) })
	return sess, server
}

func TestSessionSendWritesToTransport(t *testing.T) {
	sess, server := newPipeSession(t, lineReader{})
	defer server.Close()

	readDone := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 8)
		n, _ := server.Read(buf)
		readDone <- buf[:n]
	}()

	require.NoError(t, sess.Send([]byte("x")))
	select {
	case got := <-readDone:
		require.Equal(t, []byte("x"), got)
	case <-time.After(time.Second):
		t.Fatal("server never observed the write")
	}
}

func TestSessionReadLoopDispatchesIntoQueue(t *testing.T) {
	sess, server := newPipeSession(t, lineReader{})
	defer server.Close()

	go func() { server.Write([]byte("a")) }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m, err := sess.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", m)
}

func TestSessionReadLoopClassifiesLogout(t *testing.T) {
	var mu sync.Mutex
	var loggedOut bool
	client, server := net.Pipe()
	sess := NewSession(stringerID("test-session"), client, lineReader{}, nil)
	sess.StartReadLoop(func() {
		mu.Lock()
		loggedOut = true
		mu.Unlock()
	})
	defer server.Close()

	go func() { server.Write([]byte("L")) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return loggedOut
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, sess.IsStopped, time.Second, 5*time.Millisecond)
}

func TestSessionReaderErrorClosesSession(t *testing.T) {
	client, server := net.Pipe()
	sess := NewSession(stringerID("test-session"), client, errorReader{err: errors.New("bad frame")}, nil)
	sess.StartReadLoop(nil)
	defer server.Close()

	go func() { server.Write([]byte("x")) }()

	require.Eventually(t, sess.IsStopped, time.Second, 5*time.Millisecond)
}

func TestSessionCloseIsIdempotentAndRunsHookOnce(t *testing.T) {
	sess, server := newPipeSession(t, lineReader{})
	defer server.Close()

	var hookCalls int
	var mu sync.Mutex
	sess.SetCloseHook(func(reason error) {
		mu.Lock()
		hookCalls++
		mu.Unlock()
	})

	require.NoError(t, sess.Close(nil))
	require.NoError(t, sess.Close(nil))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, hookCalls)
	require.True(t, sess.IsStopped())
}

func TestSessionStateTransitions(t *testing.T) {
	sess, server := newPipeSession(t, lineReader{})
	defer server.Close()

	require.Equal(t, StateConnecting, sess.State())
	sess.SetState(StateLoggingIn)
	require.Equal(t, StateLoggingIn, sess.State())
	sess.SetState(StateDispatching)
	require.Equal(t, StateDispatching, sess.State())
}

func TestSessionHeartbeatsStayAliveWhileReadsArrive(t *testing.T) {
	sess, server := newPipeSession(t, lineReader{})
	defer server.Close()

	sess.StartHeartbeats(0, nil, 15*time.Millisecond, 1)

	go func() {
		for i := 0; i < 10; i++ {
			server.Write([]byte("a"))
			time.Sleep(5 * time.Millisecond)
		}
	}()

	time.Sleep(100 * time.Millisecond)
	require.False(t, sess.IsStopped(), "remote heartbeat must not trip while reads keep arriving")
}

func TestSessionGracefulShutdownDrainsQueueBeforeClose(t *testing.T) {
	client, server := net.Pipe()
	sess := NewSession(stringerID("test-session"), client, lineReader{}, nil)
	sess.GracefulShutdown = true
	sess.GracefulDrainTimeout = 2 * time.Second
	sess.StartReadLoop(nil)
	defer sess.Close(nil)

	var mu sync.Mutex
	var got []string
	require.NoError(t, sess.StartDispatching(func(m any) error {
		time.Sleep(50 * time.Millisecond)
		mu.Lock()
		got = append(got, m.(string))
		mu.Unlock()
		return nil
	}))

	go func() {
		server.Write([]byte("abc"))
		server.Close()
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, time.Second, 5*time.Millisecond, "graceful shutdown must let the dispatcher drain the backlog before Close")

	mu.Lock()
	require.Equal(t, []string{"a", "b", "c"}, got)
	mu.Unlock()
}

func TestSessionHeartbeatsTripClosesSessionWhenPeerGoesQuiet(t *testing.T) {
	sess, server := newPipeSession(t, lineReader{})
	defer server.Close()

	sess.StartHeartbeats(0, nil, 15*time.Millisecond, 1)

	require.Eventually(t, sess.IsStopped, time.Second, 5*time.Millisecond)
}
