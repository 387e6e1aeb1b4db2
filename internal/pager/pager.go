// Package pager shows long output one screen at a time behind a
// "-- MORE --" prompt.
package pager

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/musher-dev/ember/internal/arbiter"
	"github.com/musher-dev/ember/internal/loop"
	"github.com/musher-dev/ember/internal/resize"
	"github.com/musher-dev/ember/internal/worker"
)

// Applicant is the name the pager acquires the terminal under.
const Applicant = "pager"

// Action is the user's answer to the MORE prompt.
type Action int

const (
	// NextLine shows one more line.
	NextLine Action = iota
	// NextPage shows one more screen.
	NextPage
	// ShowAll prints the rest without stopping.
	ShowAll
	// Abort stops paging.
	Abort
)

// Prompter asks the user how to continue. It runs on a dedicated worker and
// draws through tok.
type Prompter interface {
	More(ctx context.Context, tok *arbiter.Token) (Action, error)
}

// Session pages text through the arbiter.
type Session struct {
	arb      *arbiter.Arbiter
	prompter Prompter
	size     resize.SizeFunc
	logger   *slog.Logger
	suspend  bool
}

// Option configures a Session.
type Option func(*Session)

// WithPrompter replaces the bubbletea MORE prompt.
func WithPrompter(p Prompter) Option {
	return func(s *Session) {
		if p != nil {
			s.prompter = p
		}
	}
}

// WithSizeFunc sets how the terminal size is read.
func WithSizeFunc(fn resize.SizeFunc) Option {
	return func(s *Session) {
		if fn != nil {
			s.size = fn
		}
	}
}

// WithLogger sets the session's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSuspension makes Page yield the scheduler task it runs on while it
// waits for the terminal and for the MORE prompt. Without it Page blocks the
// calling goroutine, scheduler or not.
func WithSuspension(enabled bool) Option {
	return func(s *Session) { s.suspend = enabled }
}

// New creates a pager drawing through arb.
func New(arb *arbiter.Arbiter, opts ...Option) *Session {
	s := &Session{
		arb:      arb,
		prompter: NewTeaPrompter(os.Stdin),
		size:     resize.FileSize(os.Stdout),
		logger:   slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Size returns the clamped terminal size pages are cut to.
func (s *Session) Size() (resize.Size, error) {
	size, err := s.size()
	if err != nil {
		return resize.Size{}, err
	}

	return resize.Clamp(size), nil
}

// Page writes text, pausing after every screen. Between screens the MORE
// prompt runs on its own worker. With WithSuspension the waits are
// suspension points of the calling scheduler task.
func (s *Session) Page(ctx context.Context, text string) error {
	size, err := s.size()
	if err != nil {
		size = resize.Size{Width: 80, Height: 24}
	}

	size = resize.Clamp(size)
	lines := Wrap(text, size.Width)
	pageLen := max(size.Height-1, 1)

	tok, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tok.Release() }()

	pos, err := writeLines(tok, lines, 0, pageLen)
	if err != nil {
		return err
	}

	for pos < len(lines) {
		tok.Flush(nil)

		h := worker.Spawn(ctx, "pager-more", s.logger, func(ctx context.Context) (Action, error) {
			return s.prompter.More(ctx, tok)
		})

		var action Action
		if s.suspend {
			action, err = h.Await(ctx)
		} else {
			action, err = h.Wait()
		}

		if err != nil {
			return fmt.Errorf("pager prompt: %w", err)
		}

		var n int

		switch action {
		case NextLine:
			n = 1
		case NextPage:
			n = pageLen
		case ShowAll:
			n = len(lines) - pos
		case Abort:
			_, err := io.WriteString(tok, "...\n")
			return err
		}

		if pos, err = writeLines(tok, lines, pos, n); err != nil {
			return err
		}
	}

	return nil
}

func (s *Session) acquire(ctx context.Context) (*arbiter.Token, error) {
	if !s.suspend {
		return s.arb.Acquire(ctx, Applicant, nil)
	}

	return loop.Offload(ctx, func(ctx context.Context) (*arbiter.Token, error) {
		return s.arb.Acquire(ctx, Applicant, nil)
	})
}

func writeLines(w io.Writer, lines []string, from, n int) (int, error) {
	to := min(from+n, len(lines))

	if to > from {
		if _, err := io.WriteString(w, strings.Join(lines[from:to], "\n")+"\n"); err != nil {
			return from, fmt.Errorf("write page: %w", err)
		}
	}

	return to, nil
}

// Wrap splits text into terminal rows of at most width cells, keeping ANSI
// styling intact. A trailing newline does not produce an empty row.
func Wrap(text string, width int) []string {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}

	var rows []string

	for _, line := range strings.Split(text, "\n") {
		if ansi.StringWidth(line) <= width {
			rows = append(rows, line)
			continue
		}

		rows = append(rows, strings.Split(ansi.Hardwrap(line, width, true), "\n")...)
	}

	return rows
}
