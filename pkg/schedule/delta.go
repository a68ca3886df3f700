// Package schedule provides a cancellable repeating task that guarantees a
// fixed delay between the completion of one run and the start of the next.
// Unlike a ticker, the period is delay plus execution time, so a slow run
// never overlaps its successor.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/heatlink/heatlink/pkg/log"
)

// Task is a repeating callback created by Repeat. A Task is in one of three
// states: waiting for its timer to fire, running the callback, or stopped.
// At most one run is ever in flight.
type Task struct {
	delay time.Duration
	fn    func(context.Context) error
	onErr func(context.Context, error)
	ctx   context.Context

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// Option customizes a Task.
type Option func(*Task)

// WithErrorHandler replaces the default error handler, which logs the error
// and keeps the cycle going.
func WithErrorHandler(fn func(context.Context, error)) Option {
	return func(t *Task) {
		t.onErr = fn
	}
}

// Repeat schedules fn to run after delay and then again delay after each
// completion, until Stop is called or ctx is cancelled. Errors returned by
// fn are passed to the error handler and do not end the cycle.
//
// Stopping before the timer fires cancels that run and all future runs.
// Stopping while fn is executing lets the execution finish but schedules no
// successor.
func Repeat(ctx context.Context, delay time.Duration, fn func(context.Context) error, opts ...Option) *Task {
	t := &Task{
		delay: delay,
		fn:    fn,
		ctx:   ctx,
		onErr: func(ctx context.Context, err error) {
			log.Ctx(ctx).ErrorContext(ctx, "scheduled task failed", slog.Any("error", err))
		},
	}
	for _, opt := range opts {
		opt(t)
	}

	context.AfterFunc(ctx, t.Stop)

	t.mu.Lock()
	t.timer = time.AfterFunc(delay, t.run)
	t.mu.Unlock()
	return t
}

func (t *Task) run() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	// mark that the timer has fired so Stop during execution can't cancel a
	// timer that no longer exists
	t.timer = nil
	t.mu.Unlock()

	if err := t.fn(t.ctx); err != nil {
		t.onErr(t.ctx, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.timer = time.AfterFunc(t.delay, t.run)
}

// Stop ends the cycle. It is safe to call multiple times and from any
// goroutine. Stop does not wait for an in-flight run to finish.
func (t *Task) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
