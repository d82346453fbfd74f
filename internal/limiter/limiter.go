// Package limiter provides a bounded-admission primitive: at most
// maxConcurrency jobs run at once, excess jobs queue in submission order.
package limiter

import (
	"context"
	"errors"
	"sync"
)

// DefaultMaxConcurrency is used when neither local configuration nor the
// server supplies a valid value.
const DefaultMaxConcurrency = 5

// queueCapacity bounds how many jobs may wait for a worker. A full queue is
// a scheduling error surfaced to the caller, never a silent drop.
const queueCapacity = 4096

// ErrClosed is returned by Schedule after Close.
var ErrClosed = errors.New("limiter: closed")

// ErrQueueFull is returned by Schedule when the pending queue is at capacity.
var ErrQueueFull = errors.New("limiter: queue full")

// Counts is a snapshot of limiter occupancy.
type Counts struct {
	Queued  int
	Running int
	Done    int
}

// Limiter runs submitted jobs on a fixed-size worker set. Jobs are released
// to workers in FIFO submission order.
type Limiter struct {
	pending chan func()

	mu      sync.Mutex
	queued  int
	running int
	done    int
	closed  bool

	inflight sync.WaitGroup
	workers  sync.WaitGroup
}

// New creates a limiter with the given concurrency bound and starts its
// workers. A non-positive max falls back to DefaultMaxConcurrency.
func New(max int) *Limiter {
	if max <= 0 {
		max = DefaultMaxConcurrency
	}
	l := &Limiter{pending: make(chan func(), queueCapacity)}
	l.workers.Add(max)
	for i := 0; i < max; i++ {
		go l.worker()
	}
	return l
}

func (l *Limiter) worker() {
	defer l.workers.Done()
	for job := range l.pending {
		l.mu.Lock()
		l.queued--
		l.running++
		l.mu.Unlock()

		job()

		l.mu.Lock()
		l.running--
		l.done++
		l.mu.Unlock()
		l.inflight.Done()
	}
}

// Schedule enqueues a job for execution. It never blocks: a full queue or a
// closed limiter is reported as an error.
func (l *Limiter) Schedule(job func()) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	select {
	case l.pending <- job:
		l.queued++
		l.inflight.Add(1)
		l.mu.Unlock()
		return nil
	default:
		l.mu.Unlock()
		return ErrQueueFull
	}
}

// Counts returns a snapshot of queued, running and completed job counts.
func (l *Limiter) Counts() Counts {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Counts{Queued: l.queued, Running: l.running, Done: l.done}
}

// Drain waits for all accepted jobs to finish or for ctx to expire.
func (l *Limiter) Drain(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		l.inflight.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops admission. Jobs already queued still run; call Drain to wait
// for them.
func (l *Limiter) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.pending)
	l.mu.Unlock()
}
