package convert

import (
	"context"

	"github.com/joouha/termview/pkg/errors"
)

// The conversion scheduler is a single long-lived background goroutine
// owning a task queue. All conversion work runs on it, so slow converters
// (subprocesses, large encodes) never block the interactive thread.
// Synchronous entry points enqueue a task and block on a completion
// channel.
//
// The scheduler's goroutine is identified by a private context value rather
// than a goroutine ID: every task runs under a context carrying the marker,
// and the blocking bridge refuses contexts that already carry it. Calling a
// blocking wrapper from inside a converter would otherwise deadlock waiting
// on the queue it is running from.
//
// Tasks execute serially. Concurrent callers requesting the same uncached
// conversion therefore queue behind each other: the second task finds the
// first one's output in the datum cache, so duplicate requests coalesce
// without per-key wait machinery.
type scheduler struct {
	tasks chan func(context.Context)
}

// schedulerCtxKey marks contexts belonging to a scheduler goroutine.
type schedulerCtxKey struct{}

// scheduler returns the registry's conversion scheduler, starting it on
// first use. The goroutine lives for the process lifetime.
func (r *Registry) scheduler() *scheduler {
	r.schedOnce.Do(func() {
		s := &scheduler{tasks: make(chan func(context.Context), 64)}
		base := context.WithValue(context.Background(), schedulerCtxKey{}, s)
		go func() {
			for task := range s.tasks {
				task(base)
			}
		}()
		r.sched = s
	})
	return r.sched
}

// onScheduler reports whether ctx belongs to a conversion scheduler
// goroutine.
func onScheduler(ctx context.Context) bool {
	_, ok := ctx.Value(schedulerCtxKey{}).(*scheduler)
	return ok
}

// errReentrant is returned when a blocking wrapper is invoked from the
// scheduler's own execution context. This is a programmer error and fails
// fast instead of deadlocking.
func errReentrant() error {
	return errors.New(errors.ErrCodeReentrantCall,
		"blocking conversion call from the conversion scheduler; use the Async variant inside converters")
}

// submit schedules fn on the registry's conversion scheduler and blocks
// until it completes or ctx is cancelled. fn receives the scheduler's
// context so nested conversions run inline.
func submit[T any](r *Registry, ctx context.Context, fn func(context.Context) T) (T, error) {
	var zero T
	if onScheduler(ctx) {
		return zero, errReentrant()
	}

	s := r.scheduler()
	done := make(chan T, 1)
	task := func(sctx context.Context) {
		done <- fn(sctx)
	}

	select {
	case s.tasks <- task:
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case v := <-done:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
