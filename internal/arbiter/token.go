package arbiter

import (
	"fmt"
	"sync/atomic"
)

// Token is the capability to write to and redraw the terminal.
type Token struct {
	a         *Arbiter
	id        uint64
	applicant string
	redraw    func()
	pending   chan struct{}
	released  atomic.Bool
}

// ID returns the token's sequence number.
func (t *Token) ID() uint64 {
	return t.id
}

// Applicant returns the name the token was issued to.
func (t *Token) Applicant() string {
	return t.applicant
}

// Valid reports whether the token is still the outstanding one.
func (t *Token) Valid() bool {
	return !t.released.Load()
}

// Write writes the holder's own output.
func (t *Token) Write(p []byte) (int, error) {
	t.a.mu.Lock()
	defer t.a.mu.Unlock()

	if t.a.holder != t {
		return 0, ErrNotHolder
	}

	n, err := t.a.out.Write(p)
	if err != nil {
		return n, fmt.Errorf("write terminal output: %w", err)
	}

	return n, nil
}

// Pending delivers a wakeup whenever complete background lines are queued.
func (t *Token) Pending() <-chan struct{} {
	return t.pending
}

// Flush hands the queued complete lines to emit as one batch and then asks
// the holder to redraw once. A nil emit writes the batch to the terminal.
// It returns the number of bytes flushed.
func (t *Token) Flush(emit func(batch []byte)) int {
	t.a.mu.Lock()
	if t.a.holder != t {
		t.a.mu.Unlock()
		return 0
	}

	batch := t.a.takeCompleteLocked()

	if len(batch) > 0 && emit == nil {
		_, _ = t.a.out.Write(batch)
	}
	t.a.mu.Unlock()

	if len(batch) == 0 {
		return 0
	}

	if emit != nil {
		emit(batch)
	}

	if t.redraw != nil {
		t.redraw()
	}

	return len(batch)
}

// Release gives the terminal back to the arbiter.
func (t *Token) Release() error {
	return t.a.Release(t)
}

func (t *Token) notify() {
	select {
	case t.pending <- struct{}{}:
	default:
	}
}
