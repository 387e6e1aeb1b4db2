package loop

import (
	"context"
	"sync"
)

// Future is the eventual result of a task or of work running outside the loop.
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

// NewFuture creates an unresolved future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve sets the result. Only the first call has an effect.
func (f *Future[T]) Resolve(v T, err error) {
	f.once.Do(func() {
		f.val = v
		f.err = err
		close(f.done)
	})
}

// Done is closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Result returns the resolved value. It must only be called after Done is closed.
func (f *Future[T]) Result() (T, error) {
	return f.val, f.err
}

// Await waits for the future. Inside a loop task the wait is a suspension
// point; elsewhere it blocks the calling goroutine.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	default:
	}

	return Offload(ctx, func(ctx context.Context) (T, error) {
		select {
		case <-f.done:
			return f.val, f.err
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	})
}
