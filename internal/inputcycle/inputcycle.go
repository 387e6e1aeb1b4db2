// Package inputcycle runs one interactive input cycle: a prompt application
// on its own OS thread that yields exactly one Completion.
//
// Lifecycle of a cycle: probe capabilities → acquire the terminal Token →
// start the resize watcher → render until the user submits, aborts or ends
// input → release the Token. At most one cycle is alive per Runner and it is
// always joined before the next one starts.
package inputcycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/musher-dev/ember/internal/arbiter"
	clierrors "github.com/musher-dev/ember/internal/errors"
	"github.com/musher-dev/ember/internal/resize"
	"github.com/musher-dev/ember/internal/terminal"
	"github.com/musher-dev/ember/internal/worker"
)

// ErrCycleActive is returned by Start while a previous cycle is still alive.
var ErrCycleActive = errors.New("an input cycle is already running")

// Applicant is the name the input cycle acquires the terminal under.
const Applicant = "prompt"

// CompletionKind classifies how a cycle ended.
type CompletionKind int

const (
	// SourceReady carries submitted source text.
	SourceReady CompletionKind = iota
	// EndOfInput means the user ended input (Ctrl-D on an empty buffer).
	EndOfInput
	// Aborted means the user abandoned the current buffer (Ctrl-C).
	Aborted
)

func (k CompletionKind) String() string {
	switch k {
	case SourceReady:
		return "source_ready"
	case EndOfInput:
		return "end_of_input"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Completion is the single result of an input cycle.
type Completion struct {
	Kind CompletionKind
	Text string
}

// Validator decides whether a buffer may be submitted. A nil error accepts.
type Validator interface {
	CheckSyntax(text string) error
}

// History supplies previously submitted entries, oldest first.
type History interface {
	Entries() []string
}

// Prompt describes what to draw.
type Prompt struct {
	Message      string // first-line prompt, e.g. ">>> " or "In [3]: "
	Continuation string // prompt for further lines
	Title        string // terminal title, empty for none
}

// Request is everything one cycle needs.
type Request struct {
	Prompt    Prompt
	Validator Validator
	History   History
}

// Renderer draws the prompt and reports the user's decision through ev.
type Renderer interface {
	RenderPrompt(ctx context.Context, req Request, ev *Events) error
}

// Runner starts input cycles.
type Runner struct {
	arb        *arbiter.Arbiter
	renderer   Renderer
	size       resize.SizeFunc
	interval   time.Duration
	capability func() error
	logger     *slog.Logger

	mu     sync.Mutex
	active *Handle
}

// Option configures a Runner.
type Option func(*Runner)

// WithSizeFunc sets how the terminal size is read.
func WithSizeFunc(fn resize.SizeFunc) Option {
	return func(r *Runner) {
		if fn != nil {
			r.size = fn
		}
	}
}

// WithResizeInterval sets the resize polling interval.
func WithResizeInterval(d time.Duration) Option {
	return func(r *Runner) {
		r.interval = d
	}
}

// WithCapabilityCheck replaces the terminal capability probe.
func WithCapabilityCheck(fn func() error) Option {
	return func(r *Runner) {
		if fn != nil {
			r.capability = fn
		}
	}
}

// WithLogger sets the runner's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a Runner drawing through arb with renderer.
func NewRunner(arb *arbiter.Arbiter, renderer Renderer, opts ...Option) *Runner {
	r := &Runner{
		arb:        arb,
		renderer:   renderer,
		size:       resize.FileSize(os.Stdout),
		interval:   resize.DefaultInterval,
		capability: terminal.Probe,
		logger:     slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Handle is one running cycle.
type Handle struct {
	w *worker.Handle[Completion]
}

// ID returns the worker identity of the cycle.
func (h *Handle) ID() string {
	return h.w.ID()
}

// Done is closed once the cycle has completed.
func (h *Handle) Done() <-chan struct{} {
	return h.w.Done()
}

// Wait blocks the calling goroutine until the cycle completes.
func (h *Handle) Wait() (Completion, error) {
	return h.w.Wait()
}

// Await waits for the cycle as a suspension point of the scheduler task
// owning ctx.
func (h *Handle) Await(ctx context.Context) (Completion, error) {
	return h.w.Await(ctx)
}

// Start launches a cycle on a dedicated worker.
func (r *Runner) Start(ctx context.Context, req Request) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		select {
		case <-r.active.Done():
		default:
			return nil, ErrCycleActive
		}
	}

	h := &Handle{w: worker.Spawn(ctx, "input-cycle", r.logger, func(ctx context.Context) (Completion, error) {
		return r.cycle(ctx, req)
	})}
	r.active = h

	return h, nil
}

// RunOnce starts a cycle and waits for it. With suspend set the wait is a
// scheduler suspension point; otherwise it blocks.
func (r *Runner) RunOnce(ctx context.Context, req Request, suspend bool) (Completion, error) {
	h, err := r.Start(ctx, req)
	if err != nil {
		return Completion{}, err
	}

	if suspend {
		return h.Await(ctx)
	}

	return h.Wait()
}

func (r *Runner) cycle(ctx context.Context, req Request) (Completion, error) {
	if err := r.capability(); err != nil {
		return Completion{}, clierrors.TerminalUnavailable(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tok, err := r.arb.Acquire(ctx, Applicant, nil)
	if err != nil {
		return Completion{}, err
	}
	defer func() { _ = tok.Release() }()

	watcher := resize.NewWatcher(r.size,
		resize.WithInterval(r.interval),
		resize.WithErrorHandler(func(err error) {
			r.logger.Debug("terminal size unavailable", slog.String("error", err.Error()))
		}),
	)

	initial, sizeErr := watcher.Current()
	if sizeErr != nil {
		initial = resize.Size{Width: 80, Height: 24}
	}

	ev := &Events{
		Token:  tok,
		Size:   initial,
		Resize: watcher.Watch(ctx),
	}

	if err := r.renderer.RenderPrompt(ctx, req, ev); err != nil {
		return Completion{}, fmt.Errorf("render prompt: %w", err)
	}

	c, ok := ev.Completion()
	if !ok {
		c = Completion{Kind: Aborted}
	}

	r.logger.Debug("input cycle completed",
		slog.String("event.type", "input.complete"),
		slog.String("input.completion", c.Kind.String()),
	)

	return c, nil
}

// Events is the renderer's side of a running cycle.
type Events struct {
	// Token is the terminal ownership held for the whole cycle.
	Token *arbiter.Token
	// Size is the terminal size when the cycle started.
	Size resize.Size
	// Resize delivers later sizes.
	Resize <-chan resize.Size

	mu   sync.Mutex
	done bool
	c    Completion
}

// Submit completes the cycle with source text.
func (e *Events) Submit(text string) {
	e.complete(Completion{Kind: SourceReady, Text: text})
}

// Abort completes the cycle as Aborted.
func (e *Events) Abort() {
	e.complete(Completion{Kind: Aborted})
}

// EndOfInput completes the cycle as EndOfInput.
func (e *Events) EndOfInput() {
	e.complete(Completion{Kind: EndOfInput})
}

// Completion returns the first completion reported, if any.
func (e *Events) Completion() (Completion, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.c, e.done
}

func (e *Events) complete(c Completion) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.done {
		return
	}

	e.c = c
	e.done = true
}
