// Package dispatch provides the serialized execution context used to deliver
// progress and completion callbacks. Work submitted to a Queue runs on a
// single goroutine in submission order, so callbacks never overlap.
package dispatch

import (
	"sync"
)

// Dispatcher runs callbacks on some execution context.
type Dispatcher interface {
	Dispatch(fn func())
}

// Queue is a FIFO executor backed by one worker goroutine. Unlike a
// worker pool it never drops work: Dispatch appends to an unbounded list.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []func()
	stopped bool
	done    chan struct{}
}

// NewQueue creates and starts a queue.
func NewQueue() *Queue {
	q := &Queue{done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	go q.worker()
	return q
}

// Dispatch schedules fn. Calls after Stop are ignored.
func (q *Queue) Dispatch(fn func()) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return
	}
	q.pending = append(q.pending, fn)
	q.cond.Signal()
}

// Stop lets already queued work finish, then stops the worker and waits for
// it to exit. Stop is idempotent.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.stopped {
		q.stopped = true
		q.cond.Broadcast()
	}
	q.mu.Unlock()
	<-q.done
}

// Flush blocks until every callback queued before the call has run.
func (q *Queue) Flush() {
	ch := make(chan struct{})
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, func() { close(ch) })
	q.cond.Signal()
	q.mu.Unlock()
	<-ch
}

func (q *Queue) worker() {
	defer close(q.done)

	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.stopped {
			q.cond.Wait()
		}
		if len(q.pending) == 0 && q.stopped {
			q.mu.Unlock()
			return
		}
		fn := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		fn()
	}
}

// Inline runs callbacks synchronously on the caller's goroutine.
type Inline struct{}

// Dispatch calls fn immediately.
func (Inline) Dispatch(fn func()) {
	if fn != nil {
		fn()
	}
}

var (
	mainQueue *Queue
	mainOnce  sync.Once
)

// Main returns the process-wide serialized queue, created on first use.
func Main() *Queue {
	mainOnce.Do(func() {
		mainQueue = NewQueue()
	})
	return mainQueue
}
