// Package lane provides a serialized execution context: closures submitted to
// a Lane run one at a time, in submission order, on a single goroutine.
//
// Each store owns exactly one Lane, so no two operations against the same
// database file ever run concurrently.
package lane

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/ambient/internal/apperr"
)

// ErrClosed is returned for work offered to a Lane after Close. It matches
// apperr.ErrUnavailable.
var ErrClosed = fmt.Errorf("lane: closed: %w", apperr.ErrUnavailable)

const defaultBuffer = 256

// Lane is a FIFO single-worker queue.
//
// Concurrency model: the worker goroutine is the only place jobs execute.
// Submit returns as soon as the job is queued; Do and Query block until the
// job has run. Queued jobs cannot be cancelled.
type Lane struct {
	name   string
	logger *slog.Logger

	jobs    chan func()
	stopCh  chan struct{}
	stopped chan struct{}

	// mu makes "check closed, then enqueue" atomic with respect to Close, so
	// every accepted job is in the queue before the worker drains it.
	mu     sync.RWMutex
	closed bool
}

// New starts a lane whose queue holds up to buffer pending jobs.
// Submit blocks once the queue is full.
func New(name string, buffer int, logger *slog.Logger) *Lane {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &Lane{
		name:    name,
		logger:  logger.With(slog.String("lane", name)),
		jobs:    make(chan func(), buffer),
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Lane) run() {
	defer close(l.stopped)

	for {
		select {
		case job := <-l.jobs:
			l.exec(job)
		case <-l.stopCh:
			// Drain what was accepted before Close.
			for {
				select {
				case job := <-l.jobs:
					l.exec(job)
				default:
					return
				}
			}
		}
	}
}

func (l *Lane) exec(job func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("lane: job panicked", slog.Any("panic", r))
		}
	}()
	job()
}

// Submit queues job and returns without waiting for it to run. A nil error
// means the job will run, even if Close is called right after.
func (l *Lane) Submit(job func()) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}
	l.jobs <- job
	return nil
}

// Do queues fn and waits for it to finish, returning its error.
// ctx only bounds the wait for a free queue slot; once queued, fn runs to
// completion and Do waits for it regardless of ctx.
func (l *Lane) Do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	job := func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("lane %s: job panicked: %v", l.name, r)
			}
		}()
		done <- fn()
	}

	if err := l.enqueue(ctx, job); err != nil {
		return err
	}
	return <-done
}

func (l *Lane) enqueue(ctx context.Context, job func()) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}
	select {
	case l.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued jobs not yet started.
func (l *Lane) Pending() int {
	return len(l.jobs)
}

// Query runs fn on the lane and returns its result.
func Query[T any](ctx context.Context, l *Lane, fn func() (T, error)) (T, error) {
	var out T
	err := l.Do(ctx, func() error {
		v, err := fn()
		out = v
		return err
	})
	return out, err
}

// Close stops accepting work, runs every job already queued and waits for
// the worker to exit. It is safe to call more than once.
func (l *Lane) Close() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.stopCh)
	}
	l.mu.Unlock()
	<-l.stopped
}
