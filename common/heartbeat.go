package common

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Nasdaq/nasdaq-protocols/common/log"
)

// TripFunc is invoked when a monitor decides the peer has gone quiet for
// too long. The context passed in carries no deadline; it exists so the
// action can be cancelled cooperatively if the session is already closing.
type TripFunc func(ctx context.Context) error

// HeartbeatMonitor is a periodic liveness timer: each tick, if Ping has not
// been called since the last tick, a missed-beat counter increments; once it
// reaches the tolerance the trip action fires and the counter resets. With
// StopWhenNoActivity set, the monitor exits for good after the first trip
// instead of continuing to watch.
//
// Two instances are used per session: a "local" monitor that pings the
// transport on an interval to keep it alive from our side, and a "remote"
// monitor that trips (closing the session) when the peer goes silent.
type HeartbeatMonitor struct {
	id                 fmt.Stringer
	interval           time.Duration
	tolerateMissed     int
	stopWhenNoActivity bool
	onTrip             TripFunc
	log                *log.Logger

	pinged   atomic.Bool
	inTrip   atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// StartHeartbeatMonitor builds and immediately starts a monitor. interval
// must be positive; tolerateMissed must be at least 1.
func StartHeartbeatMonitor(id fmt.Stringer, interval time.Duration, tolerateMissed int, stopWhenNoActivity bool, onTrip TripFunc, logger *log.Logger) *HeartbeatMonitor {
	if logger == nil {
		logger = log.Discard()
	}
	if tolerateMissed < 1 {
		tolerateMissed = 1
	}
	m := &HeartbeatMonitor{
		id:                 id,
		interval:           interval,
		tolerateMissed:     tolerateMissed,
		stopWhenNoActivity: stopWhenNoActivity,
		onTrip:             onTrip,
		log:                logger,
		stopCh:             make(chan struct{}),
		doneCh:             make(chan struct{}),
	}
	m.pinged.Store(true)
	go m.run()
	return m
}

// Ping records activity, resetting the missed-beat counter on the next tick.
func (m *HeartbeatMonitor) Ping() { m.pinged.Store(true) }

func (m *HeartbeatMonitor) run() {
	defer close(m.doneCh)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	missed := 0
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if m.pinged.Swap(false) {
				missed = 0
				continue
			}
			missed++
			if missed < m.tolerateMissed {
				continue
			}
			missed = 0
			m.log.Debugf("%s> heartbeat tolerance exceeded, tripping.", m.id)

			m.inTrip.Store(true)
			if err := m.onTrip(context.Background()); err != nil {
				m.log.Warnf("%s> heartbeat trip action failed: %v", m.id, err)
			}
			m.inTrip.Store(false)

			if m.stopWhenNoActivity {
				return
			}
		}
	}
}

// Stop halts the monitor. It is safe to call from within the trip action
// itself (the monitor will not deadlock waiting on its own goroutine) and is
// idempotent from any other caller.
func (m *HeartbeatMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	if m.inTrip.Load() {
		// Called re-entrantly from onTrip, which runs on this monitor's own
		// goroutine; waiting on doneCh here would deadlock. The run loop
		// will observe stopCh on its next iteration once onTrip returns.
		return
	}
	<-m.doneCh
}

// IsStopped reports whether the monitor's run loop has exited.
func (m *HeartbeatMonitor) IsStopped() bool {
	select {
	case <-m.doneCh:
		return true
	default:
		return false
	}
}
