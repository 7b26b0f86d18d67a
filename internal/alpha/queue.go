package alpha

import (
	"context"
	"sync"
	"time"

	"github.com/mighkel/GdogTAK/internal/groutine"
)

// dispatchQueue serializes all session work onto one goroutine:
// transport callbacks, timers and state transitions all run here, never
// concurrently. The transport permits only one outstanding write at a
// time, and every piece of mutable session state relies on this queue
// for its (lock-free) safety.
//
// The pending list is unbounded and Do never blocks: a notification
// burst arriving while the worker sits in a synchronous transport call
// must only grow the backlog, not wedge the producers. Callbacks on the
// queue are themselves allowed to call Do and After.
type dispatchQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []func()
	stopped bool
	timers  map[*time.Timer]struct{}
	done    chan struct{}
}

func newDispatchQueue(name string) *dispatchQueue {
	q := &dispatchQueue{
		timers: make(map[*time.Timer]struct{}),
		done:   make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	groutine.Go(context.Background(), name, func(ctx context.Context) {
		defer close(q.done)
		q.run()
	})
	return q
}

// run pops and executes pending items until the queue is stopped and
// drained. The lock is released around each callback.
func (q *dispatchQueue) run() {
	q.mu.Lock()
	for {
		for len(q.pending) == 0 && !q.stopped {
			q.cond.Wait()
		}
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		fn := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()
		fn()
		q.mu.Lock()
	}
}

// Do enqueues fn for execution on the queue. Returns false when the
// queue is already stopped; late callbacks land here and are dropped,
// which is what keeps torn-down sessions from being mutated.
func (q *dispatchQueue) Do(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return false
	}
	q.pending = append(q.pending, fn)
	q.cond.Signal()
	return true
}

// After schedules fn on the queue after d. The timer is tracked so that
// Stop can cancel everything still pending.
func (q *dispatchQueue) After(d time.Duration, fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		q.mu.Lock()
		delete(q.timers, t)
		q.mu.Unlock()
		q.Do(fn)
	})
	q.timers[t] = struct{}{}
}

// Stop cancels all pending timers, rejects further work and waits for
// the worker to drain what was already enqueued. Safe to call more
// than once.
func (q *dispatchQueue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.stopped = true
	for t := range q.timers {
		t.Stop()
	}
	q.timers = nil
	q.cond.Signal()
	q.mu.Unlock()
	<-q.done
}
