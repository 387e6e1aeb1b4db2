// Package resize polls terminal dimensions and reports changes.
//
// Polling is used instead of SIGWINCH because the watcher runs on the
// dedicated input thread, where signal delivery cannot be relied on.
package resize

import (
	"context"
	"fmt"
	"time"
)

// DefaultInterval is the default polling interval.
const DefaultInterval = 250 * time.Millisecond

// Minimum dimensions reported to applications.
const (
	MinWidth  = 20
	MinHeight = 2
)

// Size is a terminal size in cells.
type Size struct {
	Width  int
	Height int
}

// SizeFunc reads the current terminal size.
type SizeFunc func() (Size, error)

// Watcher polls a SizeFunc on a fixed interval.
type Watcher struct {
	interval time.Duration
	read     SizeFunc
	onError  func(error)
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithInterval overrides the polling interval.
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithErrorHandler is called when a size read fails.
func WithErrorHandler(fn func(error)) Option {
	return func(w *Watcher) {
		w.onError = fn
	}
}

// NewWatcher creates a watcher around read.
func NewWatcher(read SizeFunc, opts ...Option) *Watcher {
	w := &Watcher{
		interval: DefaultInterval,
		read:     read,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Interval returns the polling interval.
func (w *Watcher) Interval() time.Duration {
	return w.interval
}

// Current reads and clamps the current size.
func (w *Watcher) Current() (Size, error) {
	size, err := w.read()
	if err != nil {
		return Size{}, fmt.Errorf("read terminal size: %w", err)
	}

	return Clamp(size), nil
}

// Run polls until ctx is done, calling onResize with the initial size and
// after every change.
func (w *Watcher) Run(ctx context.Context, onResize func(Size)) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var (
		last  Size
		known bool
	)

	poll := func() {
		size, err := w.Current()
		if err != nil {
			if w.onError != nil {
				w.onError(err)
			}

			return
		}

		if known && size == last {
			return
		}

		last = size
		known = true

		onResize(size)
	}

	poll()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll()
		}
	}
}

// Watch runs the watcher in a goroutine and delivers sizes on the returned
// channel. The channel holds only the newest size; stale sizes are dropped.
func (w *Watcher) Watch(ctx context.Context) <-chan Size {
	ch := make(chan Size, 1)

	go func() {
		w.Run(ctx, func(s Size) {
			select {
			case <-ch:
			default:
			}

			ch <- s
		})
	}()

	return ch
}

// Clamp enforces the minimum dimensions.
func Clamp(s Size) Size {
	if s.Width < MinWidth {
		s.Width = MinWidth
	}

	if s.Height < MinHeight {
		s.Height = MinHeight
	}

	return s
}
