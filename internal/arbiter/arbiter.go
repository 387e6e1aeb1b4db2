// Package arbiter serializes ownership of the terminal.
//
// Exactly one Token is outstanding at any instant. The holder of the Token
// (the input prompt, the result printer or the pager) is the only writer that
// may draw to the terminal. Background producers such as a logging goroutine
// never hold a Token: their output is queued and handed to the holder in
// whole lines, after which the holder redraws its own region below the
// flushed text. With no holder, queued lines are written straight through.
package arbiter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrNotHolder is returned when a released or foreign Token is used.
var ErrNotHolder = errors.New("terminal ownership token is not current")

// Arbiter issues and revokes terminal ownership Tokens.
type Arbiter struct {
	out    io.Writer
	logger *slog.Logger

	sem chan struct{}

	mu     sync.Mutex // guards out, queue and holder
	queue  []byte
	holder *Token
	nextID atomic.Uint64
}

// Option configures an Arbiter.
type Option func(*Arbiter)

// WithLogger sets the logger used for ownership transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Arbiter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an arbiter guarding out.
func New(out io.Writer, opts ...Option) *Arbiter {
	a := &Arbiter{
		out:    out,
		logger: slog.New(slog.DiscardHandler),
		sem:    make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Acquire blocks until no Token is outstanding, then issues one to applicant.
// redraw, if non-nil, is called once after every non-empty flushed batch.
func (a *Arbiter) Acquire(ctx context.Context, applicant string, redraw func()) (*Token, error) {
	select {
	case a.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire terminal for %s: %w", applicant, ctx.Err())
	}

	tok := &Token{
		a:         a,
		id:        a.nextID.Add(1),
		applicant: applicant,
		redraw:    redraw,
		pending:   make(chan struct{}, 1),
	}

	a.mu.Lock()
	a.holder = tok
	if completeLen(a.queue) > 0 {
		tok.notify()
	}
	a.mu.Unlock()

	a.logger.Debug("terminal acquired",
		slog.String("event.type", "terminal.acquire"),
		slog.String("terminal.applicant", applicant),
		slog.Uint64("terminal.seq", tok.id),
	)

	return tok, nil
}

// Release revokes tok. Complete background lines still queued are written
// straight through.
func (a *Arbiter) Release(tok *Token) error {
	if tok == nil {
		return ErrNotHolder
	}

	a.mu.Lock()
	if a.holder != tok {
		a.mu.Unlock()
		return ErrNotHolder
	}

	a.holder = nil
	tok.released.Store(true)
	a.writeCompleteLocked()
	a.mu.Unlock()

	<-a.sem

	a.logger.Debug("terminal released",
		slog.String("event.type", "terminal.release"),
		slog.String("terminal.applicant", tok.applicant),
		slog.Uint64("terminal.seq", tok.id),
	)

	return nil
}

// Holder returns the applicant currently holding the Token, or "".
func (a *Arbiter) Holder() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.holder == nil {
		return ""
	}

	return a.holder.applicant
}

// QueueBackgroundWrite queues output from a writer that does not own the
// terminal.
func (a *Arbiter) QueueBackgroundWrite(p []byte) {
	if len(p) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.queue = append(a.queue, p...)

	if a.holder == nil {
		a.writeCompleteLocked()
		return
	}

	if completeLen(a.queue) > 0 {
		a.holder.notify()
	}
}

// Writer returns an io.Writer that queues through QueueBackgroundWrite.
func (a *Arbiter) Writer() io.Writer {
	return backgroundWriter{a: a}
}

// Close writes any queued output, including a trailing partial line.
func (a *Arbiter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.queue) == 0 {
		return nil
	}

	_, err := a.out.Write(a.queue)
	a.queue = nil

	if err != nil {
		return fmt.Errorf("flush queued terminal output: %w", err)
	}

	return nil
}

func (a *Arbiter) writeCompleteLocked() {
	batch := a.takeCompleteLocked()
	if len(batch) > 0 {
		_, _ = a.out.Write(batch)
	}
}

func (a *Arbiter) takeCompleteLocked() []byte {
	n := completeLen(a.queue)
	if n == 0 {
		return nil
	}

	batch := make([]byte, n)
	copy(batch, a.queue[:n])

	rest := copy(a.queue, a.queue[n:])
	a.queue = a.queue[:rest]

	return batch
}

// completeLen returns the length of the prefix of p that ends in a newline.
func completeLen(p []byte) int {
	return bytes.LastIndexByte(p, '\n') + 1
}

type backgroundWriter struct {
	a *Arbiter
}

func (w backgroundWriter) Write(p []byte) (int, error) {
	w.a.QueueBackgroundWrite(p)
	return len(p), nil
}
