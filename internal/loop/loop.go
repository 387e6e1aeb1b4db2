// Package loop provides a single-threaded cooperative scheduler for host
// programs that embed the REPL.
//
// A Loop runs any number of tasks, but only the task holding the loop's baton
// executes at a given instant. A task gives the baton up only at explicit
// suspension points (Offload, Future.Await, Sleep), which makes the loop
// behave like a classic single-threaded event loop even though each task is
// backed by its own goroutine.
//
// The running loop travels in the context handed to every task. Code that
// receives such a context may suspend; code that needs to know whether it is
// already inside a scheduler calls Running.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrNestedLoop is returned by Run when the context already carries a
	// running loop.
	ErrNestedLoop = errors.New("cannot start a scheduler from inside a running scheduler")

	// ErrNotRunning is returned when a task is spawned without a running loop.
	ErrNotRunning = errors.New("scheduler is not running")

	// ErrAlreadyRunning is returned by Run when the loop is already driven by
	// another caller.
	ErrAlreadyRunning = errors.New("scheduler is already running")
)

type contextKey struct{}

// Loop is a cooperative scheduler. The zero value is not usable; call New.
type Loop struct {
	baton   chan struct{}
	running atomic.Bool
	tasks   sync.WaitGroup

	ownerMu sync.Mutex
	owner   any
}

// New creates an idle loop.
func New() *Loop {
	return &Loop{baton: make(chan struct{}, 1)}
}

// FromContext returns the running loop carried by ctx, or nil.
func FromContext(ctx context.Context) *Loop {
	l, ok := ctx.Value(contextKey{}).(*Loop)
	if !ok || l == nil || !l.running.Load() {
		return nil
	}

	return l
}

// Running reports whether ctx belongs to a task of a running loop.
func Running(ctx context.Context) bool {
	return FromContext(ctx) != nil
}

// Run drives the loop with main as its first task. main executes on the
// calling goroutine. Run returns main's error once main and every task it
// spawned have returned; remaining tasks observe a canceled context.
func (l *Loop) Run(ctx context.Context, main func(ctx context.Context) error) error {
	if Running(ctx) {
		return ErrNestedLoop
	}

	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer l.running.Store(false)

	loopCtx, cancel := context.WithCancel(context.WithValue(ctx, contextKey{}, l))

	l.acquire()

	err := runGuarded(loopCtx, main)

	l.release()
	cancel()
	l.tasks.Wait()

	return err
}

// Claim marks the loop as hosting owner. It returns false when another owner
// already holds the claim.
func (l *Loop) Claim(owner any) (release func(), ok bool) {
	l.ownerMu.Lock()
	defer l.ownerMu.Unlock()

	if l.owner != nil {
		return nil, false
	}

	l.owner = owner

	return func() {
		l.ownerMu.Lock()
		if l.owner == owner {
			l.owner = nil
		}
		l.ownerMu.Unlock()
	}, true
}

func (l *Loop) acquire() {
	l.baton <- struct{}{}
}

func (l *Loop) release() {
	<-l.baton
}

// Spawn schedules fn as a new task of the loop carried by ctx. The task starts
// once the current holder of the baton suspends or returns.
func Spawn[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := NewFuture[T]()

	l := FromContext(ctx)
	if l == nil {
		var zero T

		f.Resolve(zero, ErrNotRunning)

		return f
	}

	l.tasks.Add(1)

	go func() {
		defer l.tasks.Done()

		l.acquire()

		var (
			v   T
			err error
		)

		err = runGuarded(ctx, func(ctx context.Context) error {
			var fnErr error
			v, fnErr = fn(ctx)

			return fnErr
		})

		l.release()
		f.Resolve(v, err)
	}()

	return f
}

// Offload runs blocking work on a separate goroutine and resumes the caller
// with its result. When ctx belongs to a loop task, the task gives up the
// baton for the duration of fn so other tasks keep running; otherwise Offload
// simply blocks. fn must return once ctx is done. fn runs outside the loop:
// the context it receives does not carry the loop.
//
// Offload must only be called by the goroutine that currently holds the baton.
func Offload[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	l := FromContext(ctx)
	if l == nil {
		return fn(ctx)
	}

	type result struct {
		v   T
		err error
	}

	ch := make(chan result, 1)

	workCtx := context.WithValue(ctx, contextKey{}, (*Loop)(nil))

	l.release()

	go func() {
		var r result

		r.err = runGuarded(workCtx, func(ctx context.Context) error {
			var fnErr error
			r.v, fnErr = fn(ctx)

			return fnErr
		})
		ch <- r
	}()

	r := <-ch

	l.acquire()

	return r.v, r.err
}

// Sleep suspends the calling task for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	_, err := Offload(ctx, func(ctx context.Context) (struct{}, error) {
		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-timer.C:
			return struct{}{}, nil
		case <-ctx.Done():
			return struct{}{}, ctx.Err()
		}
	})

	return err
}

func runGuarded(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	return fn(ctx)
}
