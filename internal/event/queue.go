package event

import (
	"log/slog"
	"sync"
)

// Executor runs delivery jobs on a context chosen by the host.
type Executor interface {
	Execute(job func())
}

// ExecutorFunc adapts a function, such as a UI thread poster, to Executor.
type ExecutorFunc func(job func())

// Execute calls f(job).
func (f ExecutorFunc) Execute(job func()) { f(job) }

// Queue is an Executor with one worker draining an unbounded FIFO, so jobs
// run in submission order and never on the submitter's goroutine.
type Queue struct {
	jobs   *ring[func()]
	logger *slog.Logger
	done   chan struct{}
}

// NewQueue starts a Queue whose buffer begins at initialCapacity and grows
// as needed.
func NewQueue(initialCapacity int, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		jobs:   newRing[func()](initialCapacity),
		logger: logger,
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// Execute enqueues job. Jobs submitted after Close are dropped.
func (q *Queue) Execute(job func()) {
	if !q.jobs.push(job) {
		q.logger.Debug("event queue closed, dropping job")
	}
}

// Close stops accepting jobs. Already queued jobs still run; Done is closed
// once the worker has drained them. Close does not wait, so it is safe to
// call from inside a job.
func (q *Queue) Close() {
	q.jobs.close()
}

// Done is closed when the worker has exited.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Stats reports queue counters.
func (q *Queue) Stats() QueueStats {
	return q.jobs.stats()
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		job, ok := q.jobs.pop()
		if !ok {
			return
		}
		job()
	}
}

// QueueStats contains queue counters.
type QueueStats struct {
	Pending    int
	Capacity   int
	Submitted  int64
	Dispatched int64
	Resizes    int
}

// ring is a blocking FIFO that doubles its capacity at 70% fill.
type ring[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []T
	head   int
	count  int
	closed bool

	pushed  int64
	popped  int64
	resizes int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	r := &ring[T]{buf: make([]T, capacity)}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *ring[T]) push(v T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}

	threshold := len(r.buf) * 70 / 100
	if threshold < 1 {
		threshold = 1
	}
	if r.count+1 >= threshold {
		r.grow()
	}

	r.buf[(r.head+r.count)%len(r.buf)] = v
	r.count++
	r.pushed++
	r.cond.Signal()
	return true
}

// pop blocks until an item is available. It returns false once the ring is
// closed and empty.
func (r *ring[T]) pop() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.count == 0 && !r.closed {
		r.cond.Wait()
	}

	var zero T
	if r.count == 0 {
		return zero, false
	}

	v := r.buf[r.head]
	r.buf[r.head] = zero
	r.head = (r.head + 1) % len(r.buf)
	r.count--
	r.popped++
	return v, true
}

func (r *ring[T]) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.cond.Broadcast()
}

func (r *ring[T]) stats() QueueStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return QueueStats{
		Pending:    r.count,
		Capacity:   len(r.buf),
		Submitted:  r.pushed,
		Dispatched: r.popped,
		Resizes:    r.resizes,
	}
}

// grow doubles the capacity. Must be called with lock held.
func (r *ring[T]) grow() {
	next := make([]T, len(r.buf)*2)
	n := copy(next, r.buf[r.head:min(r.head+r.count, len(r.buf))])
	if n < r.count {
		copy(next[n:], r.buf[:r.count-n])
	}
	r.buf = next
	r.head = 0
	r.resizes++
}
