package common

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHeartbeatMonitorTripsAfterToleratedMisses(t *testing.T) {
	var trips int32
	m := StartHeartbeatMonitor(stringerID("hb"), 15*time.Millisecond, 2, false, func(context.Context) error {
		atomic.AddInt32(&trips, 1)
		return nil
	}, nil)
	defer m.Stop()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&trips) >= 1 }, time.Second, 5*time.Millisecond)
}

func TestHeartbeatMonitorPingPreventsTrip(t *testing.T) {
	var trips int32
	m := StartHeartbeatMonitor(stringerID("hb"), 10*time.Millisecond, 1, false, func(context.Context) error {
		atomic.AddInt32(&trips, 1)
		return nil
	}, nil)
	defer m.Stop()

	stop := time.After(120 * time.Millisecond)
loop:
	for {
		select {
		case <-stop:
			break loop
		case <-time.After(5 * time.Millisecond):
			m.Ping()
		}
	}
	require.Zero(t, atomic.LoadInt32(&trips), "continuous pinging must suppress trips")
}

func TestHeartbeatMonitorStopWhenNoActivityExitsAfterFirstTrip(t *testing.T) {
	var trips int32
	m := StartHeartbeatMonitor(stringerID("hb"), 10*time.Millisecond, 1, true, func(context.Context) error {
		atomic.AddInt32(&trips, 1)
		return nil
	}, nil)

	require.Eventually(t, func() bool { return m.IsStopped() }, time.Second, 5*time.Millisecond)
	require.EqualValues(t, 1, atomic.LoadInt32(&trips))
}

func TestHeartbeatMonitorStopFromWithinTripActionDoesNotDeadlock(t *testing.T) {
	done := make(chan struct{})
	var m *HeartbeatMonitor
	m = StartHeartbeatMonitor(stringerID("hb"), 10*time.Millisecond, 1, false, func(context.Context) error {
		m.Stop()
		close(done)
		return nil
	}, nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("trip action calling Stop() on itself deadlocked")
	}
}

func TestHeartbeatMonitorStopIsIdempotent(t *testing.T) {
	m := StartHeartbeatMonitor(stringerID("hb"), 10*time.Millisecond, 1, false, func(context.Context) error { return nil }, nil)
	m.Stop()
	m.Stop()
	require.True(t, m.IsStopped())
}
