// Package runloop serializes every state mutation of the client onto a
// single goroutine. Inbound events, user actions and timer callbacks are
// all posted to the loop and run strictly in arrival order.
package runloop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ErrStopped is returned by Do once the loop has exited.
var ErrStopped = errors.New("run loop stopped")

// Timer is a pending one-shot callback.
type Timer interface {
	// Stop cancels the timer. After Stop returns (on the loop goroutine)
	// the callback is guaranteed not to run.
	Stop() bool
}

// Scheduler is what loop-bound components need: the current time, one-shot
// timers whose callbacks run on the loop, and a way to hop back onto the
// loop from other goroutines.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
	Post(f func())
}

// Loop is the cooperative executor.
type Loop struct {
	tasks    chan func()
	done     chan struct{}
	doneOnce sync.Once
	log      zerolog.Logger
}

// New creates a loop. Tasks posted before Run starts are buffered.
func New(log zerolog.Logger) *Loop {
	return &Loop{
		tasks: make(chan func(), 1024),
		done:  make(chan struct{}),
		log:   log,
	}
}

// Run executes posted tasks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	defer l.doneOnce.Do(func() { close(l.done) })
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-l.tasks:
			l.exec(f)
		}
	}
}

func (l *Loop) exec(f func()) {
	defer func() {
		if rv := recover(); rv != nil {
			l.log.Error().Interface("panic", rv).Msg("recovered from panic in run loop task")
		}
	}()
	f()
}

// Post enqueues f. Tasks posted after the loop exited are dropped.
func (l *Loop) Post(f func()) {
	select {
	case l.tasks <- f:
	case <-l.done:
	}
}

// Do runs f on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, f func()) error {
	finished := make(chan struct{})
	select {
	case l.tasks <- func() {
		defer close(finished)
		f()
	}:
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) Now() time.Time { return time.Now() }

// AfterFunc schedules f to be posted to the loop after d.
func (l *Loop) AfterFunc(d time.Duration, f func()) Timer {
	t := &loopTimer{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.stopped.Load() {
				return
			}
			f()
		})
	})
	return t
}

type loopTimer struct {
	timer   *time.Timer
	stopped atomic.Bool
}

// Stop also suppresses a callback that already fired but has not yet been
// picked up by the loop.
func (t *loopTimer) Stop() bool {
	t.stopped.Store(true)
	return t.timer.Stop()
}
