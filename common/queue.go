package common

import (
	"context"
	"fmt"
	"time"

	"github.com/Nasdaq/nasdaq-protocols/common/log"
)

// DispatcherFunc is invoked once per message by a running dispatcher.
// Errors it returns are logged and swallowed -- the dispatcher keeps
// running unless f itself closes the session.
type DispatcherFunc func(msg any) error

// Queue is a single-consumer, cooperatively-scheduled FIFO with an optional
// dispatcher goroutine: Put never blocks the producer, Get is only legal
// while no dispatcher is attached, and the queue supports pausing and
// buffer-until-drained scopes.
type Queue struct {
	id  fmt.Stringer
	log *log.Logger

	mtx    chan struct{} // binary mutex; see lock()/unlock() below
	items  []any
	notify chan struct{}
	closed bool

	dispatchFn     DispatcherFunc
	dispatchActive bool
	dispatchStop   chan struct{}
	dispatchDone   chan struct{}

	buffering bool
	bufFrom   int
}

// NewQueue builds an empty queue. logger may be nil, in which case log
// output is discarded.
func NewQueue(id fmt.Stringer, logger *log.Logger) *Queue {
	if logger == nil {
		logger = log.Discard()
	}
	q := &Queue{
		id:     id,
		log:    logger,
		mtx:    make(chan struct{}, 1),
		notify: make(chan struct{}, 1),
	}
	q.mtx <- struct{}{}
	return q
}

func (q *Queue) lock()   { <-q.mtx }
func (q *Queue) unlock() { q.mtx <- struct{}{} }

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Put enqueues a message. It never blocks beyond acquiring the internal
// lock; if the queue has been stopped, Put reports EndOfQueue.
func (q *Queue) Put(msg any) error {
	q.lock()
	if q.closed {
		q.unlock()
		return Wrap(KindEndOfQueue, fmt.Sprintf("%s: queue stopped", q.id), nil)
	}
	q.items = append(q.items, msg)
	q.unlock()
	q.signal()
	return nil
}

// PutNowait is an alias for Put; Go's slice-backed queue never blocks a
// producer, so the two are identical here (kept for API parity with the
// source material's put/put_nowait pair).
func (q *Queue) PutNowait(msg any) error { return q.Put(msg) }

// popNowait is the unguarded pop used both by GetNowait and the dispatch
// loop. A nil, nil result means "no item yet, not closed".
func (q *Queue) popNowait() (any, error) {
	q.lock()
	defer q.unlock()
	if len(q.items) > 0 {
		m := q.items[0]
		q.items = q.items[1:]
		return m, nil
	}
	if q.closed {
		return nil, Wrap(KindEndOfQueue, fmt.Sprintf("%s: queue stopped", q.id), nil)
	}
	return nil, nil
}

// GetNowait returns the head item without blocking. It fails with
// StateError while a dispatcher is attached.
func (q *Queue) GetNowait() (any, error) {
	q.lock()
	active := q.dispatchActive
	q.unlock()
	if active {
		return nil, Wrap(KindStateError, fmt.Sprintf("%s: dispatcher is running, cannot use GetNowait", q.id), nil)
	}
	return q.popNowait()
}

// Get blocks until a message is available, the queue is stopped, or ctx is
// done. It fails with StateError while a dispatcher is attached.
func (q *Queue) Get(ctx context.Context) (any, error) {
	q.lock()
	active := q.dispatchActive
	q.unlock()
	if active {
		return nil, Wrap(KindStateError, fmt.Sprintf("%s: dispatcher is running, cannot use Get", q.id), nil)
	}
	for {
		m, err := q.popNowait()
		if err != nil {
			return nil, err
		}
		if m != nil {
			return m, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

// StartDispatching attaches a consumer goroutine that calls f for every
// message as it arrives, in order. It fails with StateError if a
// dispatcher is already running.
func (q *Queue) StartDispatching(f DispatcherFunc) error {
	q.lock()
	if q.dispatchActive {
		q.unlock()
		return Wrap(KindStateError, fmt.Sprintf("%s: dispatcher already running", q.id), nil)
	}
	q.dispatchFn = f
	q.dispatchActive = true
	stop := make(chan struct{})
	done := make(chan struct{})
	q.dispatchStop = stop
	q.dispatchDone = done
	q.unlock()

	go q.dispatchLoop(f, stop, done)
	q.log.Debugf("%s> queue dispatcher started.", q.id)
	return nil
}

func (q *Queue) dispatchLoop(f DispatcherFunc, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}
		m, err := q.popNowait()
		if err != nil {
			return // EndOfQueue: the queue was stopped
		}
		if m == nil {
			select {
			case <-stop:
				return
			case <-q.notify:
			}
			continue
		}
		if err := f(m); err != nil {
			q.log.Warnf("%s> exception handling dispatched message: %v", q.id, err)
		}
	}
}

// PauseDispatching stops the dispatcher goroutine and returns a resume
// function that restarts it with the same handler. It is meant to be used
// with defer: `resume, _ := q.PauseDispatching(); defer resume()`.
func (q *Queue) PauseDispatching() (resume func(), err error) {
	q.lock()
	if !q.dispatchActive {
		q.unlock()
		return nil, Wrap(KindStateError, fmt.Sprintf("%s: dispatcher is not running, cannot pause", q.id), nil)
	}
	fn := q.dispatchFn
	stop, done := q.dispatchStop, q.dispatchDone
	q.unlock()

	close(stop)
	<-done

	q.lock()
	q.dispatchActive = false
	q.unlock()
	q.log.Debugf("%s> queue dispatcher paused.", q.id)

	return func() {
		if err := q.StartDispatching(fn); err != nil {
			q.log.Warnf("%s> failed to resume dispatcher: %v", q.id, err)
			return
		}
		q.log.Debugf("%s> queue dispatcher resumed.", q.id)
	}, nil
}

// BufferUntilDrained pauses dispatch (if running) and returns a resume
// function. Messages put onto the queue while paused stay buffered in
// declared order; resume either lets the dispatcher drain them normally or
// discards everything accumulated since the scope was entered. Nested
// invocations fail with StateError.
func (q *Queue) BufferUntilDrained(discard bool) (resume func(), err error) {
	q.lock()
	if q.buffering {
		q.unlock()
		return nil, Wrap(KindStateError, fmt.Sprintf("%s: buffer_until_drained already active", q.id), nil)
	}
	q.buffering = true
	wasDispatching := q.dispatchActive
	q.bufFrom = len(q.items)
	q.unlock()

	var pauseResume func()
	if wasDispatching {
		pauseResume, err = q.PauseDispatching()
		if err != nil {
			q.lock()
			q.buffering = false
			q.unlock()
			return nil, err
		}
	}

	return func() {
		q.lock()
		if discard && len(q.items) > q.bufFrom {
			q.items = q.items[:q.bufFrom]
		}
		q.buffering = false
		q.unlock()
		if pauseResume != nil {
			pauseResume()
		}
	}, nil
}

// Drain blocks until no items remain queued, no dispatcher is attached, or
// ctx is done. Stopping the queue does not end the wait by itself. It
// does not itself stop the queue or its dispatcher -- it exists so a
// caller about to call Stop can first give an attached dispatcher a chance
// to empty the backlog.
func (q *Queue) Drain(ctx context.Context) error {
	for {
		q.lock()
		n := len(q.items)
		active := q.dispatchActive
		q.unlock()
		if n == 0 || !active {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// Stop closes the queue. Any goroutine blocked in Get or the dispatch loop
// observes EndOfQueue and returns. Stop is idempotent.
func (q *Queue) Stop() {
	q.lock()
	if q.closed {
		q.unlock()
		return
	}
	q.closed = true
	active := q.dispatchActive
	stop, done := q.dispatchStop, q.dispatchDone
	q.unlock()
	q.signal()

	if active {
		select {
		case <-stop:
		default:
			close(stop)
		}
		<-done
	}
}

// IsStopped reports whether Stop has been called.
func (q *Queue) IsStopped() bool {
	q.lock()
	defer q.unlock()
	return q.closed
}
