// Package worker runs one interactive terminal application on a dedicated,
// OS-thread-locked goroutine and hands its single result back to the caller.
//
// Lifecycle: Spawn → (Wait | Await) → joined. A worker never outlives the
// context it was spawned with: the function it runs receives that context and
// must return once it is done.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/musher-dev/ember/internal/loop"
)

// Func is the body of a worker. It runs on its own locked OS thread.
type Func[T any] func(ctx context.Context) (T, error)

// Handle represents one running worker.
type Handle[T any] struct {
	id      string
	name    string
	started time.Time
	result  *loop.Future[T]
	logger  *slog.Logger
}

// Spawn starts fn on a dedicated goroutine locked to its own OS thread.
func Spawn[T any](ctx context.Context, name string, logger *slog.Logger, fn Func[T]) *Handle[T] {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handle[T]{
		id:      uuid.NewString(),
		name:    name,
		started: time.Now(),
		result:  loop.NewFuture[T](),
		logger:  logger,
	}

	h.logger.Debug("worker started",
		slog.String("event.type", "worker.start"),
		slog.String("worker.id", h.id),
		slog.String("worker.name", name),
	)

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		v, err := run(ctx, fn)
		h.result.Resolve(v, err)
	}()

	return h
}

// ID returns the worker identity.
func (h *Handle[T]) ID() string {
	return h.id
}

// Name returns the worker's descriptive name.
func (h *Handle[T]) Name() string {
	return h.name
}

// Done is closed when the worker has produced its result.
func (h *Handle[T]) Done() <-chan struct{} {
	return h.result.Done()
}

// Wait blocks the calling goroutine until the worker finishes.
func (h *Handle[T]) Wait() (T, error) {
	<-h.result.Done()

	v, err := h.result.Result()
	h.logJoined(err)

	return v, err
}

// Await waits for the worker as a suspension point of the loop task owning
// ctx. Without a running loop it behaves like Wait.
func (h *Handle[T]) Await(ctx context.Context) (T, error) {
	v, err := loop.Offload(ctx, func(context.Context) (T, error) {
		<-h.result.Done()
		return h.result.Result()
	})
	h.logJoined(err)

	return v, err
}

func (h *Handle[T]) logJoined(err error) {
	attrs := []any{
		slog.String("event.type", "worker.join"),
		slog.String("worker.id", h.id),
		slog.String("worker.name", h.name),
		slog.Duration("worker.duration", time.Since(h.started)),
	}

	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	h.logger.Debug("worker joined", attrs...)
}

func run[T any](ctx context.Context, fn Func[T]) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panicked: %v", r)
		}
	}()

	return fn(ctx)
}
