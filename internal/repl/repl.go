// Package repl embeds an interactive Starlark read-eval-print loop into a
// host program.
//
// Embed runs a session on the calling goroutine and returns when the user
// ends it. EmbedAsync runs one as a task of the host's running loop.Loop, so
// the host's other tasks keep running while the prompt waits for input.
//
// A session moves through AwaitingInput, Evaluating and Printing until the
// user ends input, calls exit() or quit(), or the terminal becomes unusable.
// Interrupts cancel only the evaluation phase.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.starlark.net/starlark"

	"github.com/musher-dev/ember/internal/arbiter"
	"github.com/musher-dev/ember/internal/config"
	clierrors "github.com/musher-dev/ember/internal/errors"
	"github.com/musher-dev/ember/internal/eval"
	"github.com/musher-dev/ember/internal/inputcycle"
	"github.com/musher-dev/ember/internal/interrupt"
	"github.com/musher-dev/ember/internal/loop"
	"github.com/musher-dev/ember/internal/observability"
	"github.com/musher-dev/ember/internal/pager"
)

// Mode is how a session relates to the caller's scheduler.
type Mode int

const (
	// ModeBlocking runs the session on the calling goroutine.
	ModeBlocking Mode = iota
	// ModeAwaitable runs the session as a scheduler task that suspends while
	// waiting for input.
	ModeAwaitable
)

func (m Mode) String() string {
	if m == ModeAwaitable {
		return "awaitable"
	}

	return "blocking"
}

// Applicant is the name results are printed under.
const Applicant = "printer"

type activeKey struct{}

// recorder is implemented by histories that persist submissions.
type recorder interface {
	RecordInput(index int, text string) error
	RecordResult(index int, outcome, text string) error
}

// Session is one embedded REPL.
type Session struct {
	id     string
	mode   Mode
	ns     starlark.StringDict
	active atomic.Bool
	index  int
	router *interrupt.Router

	style        promptStyle
	styleName    string
	pagerEnabled bool
	title        string
	startupFiles []string
	configure    func(*Session)

	arb       *arbiter.Arbiter
	ownsArb   bool
	runner    *inputcycle.Runner
	exec      *eval.Executor
	pager     *pager.Session
	printer   *printer
	validator inputcycle.Validator
	history   inputcycle.History
	notifier  interrupt.Notifier
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Embed runs a session on the calling goroutine against ns and returns once
// it terminates. ns is borrowed for the session and mutated in place. Embed
// fails with ErrReentrantEmbed when ctx already belongs to an active session
// or its running loop already hosts one.
func Embed(ctx context.Context, ns starlark.StringDict, opts ...Option) error {
	if Active(ctx) {
		return clierrors.ReentrantEmbed()
	}

	s, err := newSession(ModeBlocking, ns, opts...)
	if err != nil {
		return err
	}

	if l := loop.FromContext(ctx); l != nil {
		release, ok := l.Claim(s)
		if !ok {
			return clierrors.ReentrantEmbed()
		}
		defer release()
	}

	return s.run(ctx)
}

// EmbedAsync starts a session as a task of the loop running ctx and returns
// its completion. The prompt wait is a suspension point, so the loop's other
// tasks run while the user types.
func EmbedAsync(ctx context.Context, ns starlark.StringDict, opts ...Option) *loop.Future[struct{}] {
	failed := func(err error) *loop.Future[struct{}] {
		f := loop.NewFuture[struct{}]()
		f.Resolve(struct{}{}, err)

		return f
	}

	l := loop.FromContext(ctx)
	if l == nil {
		return failed(loop.ErrNotRunning)
	}

	if Active(ctx) {
		return failed(clierrors.ReentrantEmbed())
	}

	s, err := newSession(ModeAwaitable, ns, opts...)
	if err != nil {
		return failed(err)
	}

	release, ok := l.Claim(s)
	if !ok {
		return failed(clierrors.ReentrantEmbed())
	}

	return loop.Spawn(ctx, func(ctx context.Context) (struct{}, error) {
		defer release()
		return struct{}{}, s.run(ctx)
	})
}

// Active reports whether ctx belongs to a running session.
func Active(ctx context.Context) bool {
	s, ok := ctx.Value(activeKey{}).(*Session)
	return ok && s.active.Load()
}

func newSession(mode Mode, ns starlark.StringDict, opts ...Option) (*Session, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	o.resolve()

	style, ok := lookupPromptStyle(o.promptStyle)
	if !ok {
		return nil, clierrors.InvalidPromptStyle(o.promptStyle, config.PromptStyles())
	}

	if ns == nil {
		ns = starlark.StringDict{}
	}

	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	id := uuid.NewString()
	logger = logger.With(slog.String("repl.session", id))

	out := o.out
	if out == nil {
		out = os.Stdout
	}

	arb, ownsArb := o.arb, false
	if arb == nil {
		arb, ownsArb = arbiter.New(out, arbiter.WithLogger(logger)), true
	}

	renderer := o.renderer
	if renderer == nil {
		renderer = inputcycle.NewTeaRenderer()
	}

	validator := o.validator
	if validator == nil {
		validator = eval.NewValidator()
	}

	hist := o.history
	if hist == nil {
		hist = &memoryHistory{}
	}

	runnerOpts := []inputcycle.Option{inputcycle.WithLogger(logger)}
	pagerOpts := []pager.Option{pager.WithLogger(logger), pager.WithSuspension(mode == ModeAwaitable)}

	if o.capability != nil {
		runnerOpts = append(runnerOpts, inputcycle.WithCapabilityCheck(o.capability))
	}

	if o.size != nil {
		runnerOpts = append(runnerOpts, inputcycle.WithSizeFunc(o.size))
		pagerOpts = append(pagerOpts, pager.WithSizeFunc(o.size))
	}

	if o.prompter != nil {
		pagerOpts = append(pagerOpts, pager.WithPrompter(o.prompter))
	}

	notifier := o.notifier
	if notifier == nil {
		notifier = interrupt.OSNotifier()
	}

	return &Session{
		id:           id,
		mode:         mode,
		ns:           ns,
		index:        1,
		router:       interrupt.NewRouter(logger),
		style:        style,
		styleName:    o.promptStyle,
		pagerEnabled: *o.pager,
		title:        *o.title,
		startupFiles: o.startupFiles,
		configure:    o.configure,
		arb:          arb,
		ownsArb:      ownsArb,
		runner:       inputcycle.NewRunner(arb, renderer, runnerOpts...),
		exec:         eval.New(eval.WithStdout(arb.Writer()), eval.WithLogger(logger)),
		pager:        pager.New(arb, pagerOpts...),
		printer:      newPrinter(out),
		validator:    validator,
		history:      hist,
		notifier:     notifier,
		logger:       logger,
		tracer:       observability.Tracer("ember.repl"),
	}, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Mode returns how the session was started.
func (s *Session) Mode() Mode { return s.mode }

// Namespace returns the namespace user code runs against.
func (s *Session) Namespace() starlark.StringDict { return s.ns }

// Route returns the phase interrupts are currently routed to.
func (s *Session) Route() interrupt.Route { return s.router.Route() }

// Index returns the number the next statement will get.
func (s *Session) Index() int { return s.index }

// Arbiter returns the terminal arbiter the session draws through.
func (s *Session) Arbiter() *arbiter.Arbiter { return s.arb }

// Logger returns a logger whose info-and-above records also appear above
// the prompt while the session is active.
func (s *Session) Logger() *slog.Logger {
	return observability.WithTerminal(s.logger, s.arb.Writer(), slog.LevelInfo)
}

// SetPromptStyle switches between "classic" and "ipython" prompts.
func (s *Session) SetPromptStyle(name string) error {
	style, ok := lookupPromptStyle(name)
	if !ok {
		return clierrors.InvalidPromptStyle(name, config.PromptStyles())
	}

	s.style, s.styleName = style, name

	return nil
}

// SetPager turns paging of long results on or off.
func (s *Session) SetPager(enabled bool) { s.pagerEnabled = enabled }

// SetTitle sets the terminal title shown while prompting.
func (s *Session) SetTitle(title string) { s.title = title }

func (s *Session) run(ctx context.Context) (err error) {
	ctx = context.WithValue(ctx, activeKey{}, s)

	ctx, span := s.tracer.Start(ctx, "repl.session",
		trace.WithAttributes(
			attribute.String("repl.session", s.id),
			attribute.String("repl.mode", s.mode.String()),
		),
	)
	defer span.End()

	s.active.Store(true)
	defer s.active.Store(false)

	ctrl := interrupt.Install(s.router, interrupt.WithNotifier(s.notifier), interrupt.WithLogger(s.logger))
	defer func() { _ = ctrl.Close() }()

	if s.ownsArb {
		defer func() { _ = s.arb.Close() }()
	}

	s.logger.Info("repl session started",
		slog.String("event.type", "repl.start"),
		slog.String("repl.mode", s.mode.String()),
		slog.String("repl.prompt_style", s.styleName),
	)

	defer func() {
		attrs := []any{
			slog.String("event.type", "repl.finish"),
			slog.Int("repl.statements", s.index-1),
		}

		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}

		observability.FailSpan(span, err)

		s.logger.Info("repl session finished", attrs...)
	}()

	if s.configure != nil {
		s.configure(s)
	}

	s.exec.Install(s.ns)

	if quit := s.runStartupFiles(ctx); quit {
		return nil
	}

	for {
		comp, err := s.read(ctx)
		if err != nil {
			return err
		}

		switch comp.Kind {
		case inputcycle.EndOfInput:
			return nil
		case inputcycle.Aborted:
			continue
		case inputcycle.SourceReady:
			if s.process(ctx, comp.Text) {
				return nil
			}
		}
	}
}

func (s *Session) read(ctx context.Context) (inputcycle.Completion, error) {
	restore := s.router.Enter(interrupt.RouteInputCycle, nil)
	defer restore()

	req := inputcycle.Request{
		Prompt:    makePrompt(s.style, s.index, s.title),
		Validator: s.validator,
		History:   s.history,
	}

	comp, err := s.runner.RunOnce(ctx, req, s.mode == ModeAwaitable)

	switch {
	case err == nil:
		return comp, nil
	case ctx.Err() != nil:
		return comp, ctx.Err()
	case errors.Is(err, clierrors.ErrTerminalUnavailable):
		return comp, err
	default:
		return comp, fmt.Errorf("read input: %w", err)
	}
}

// process handles one submission and reports whether the session should end.
func (s *Session) process(ctx context.Context, text string) (quit bool) {
	if strings.TrimSpace(text) == "" {
		return false
	}

	if strings.HasPrefix(text, "\x1a") {
		return true
	}

	index := s.index
	s.index++

	s.record(func(r recorder) error { return r.RecordInput(index, text) })

	if strings.HasPrefix(strings.TrimSpace(text), "!") {
		s.shell(ctx, index, strings.TrimSpace(text))
		return false
	}

	res := s.evaluate(ctx, text)

	switch res.Kind {
	case eval.KindExit:
		return true
	case eval.KindValue:
		s.ns["_"] = res.Value
		s.ns[fmt.Sprintf("_%d", index)] = res.Value
		s.emit(ctx, s.printer.value(res.Value, s.style.out(index)))
		s.record(func(r recorder) error { return r.RecordResult(index, res.Kind.String(), res.Value.String()) })
	case eval.KindRaised:
		s.emit(ctx, s.printer.raised(res.Err))
		s.record(func(r recorder) error { return r.RecordResult(index, res.Kind.String(), res.Err.Error()) })
	case eval.KindCancelled:
		s.emit(ctx, s.printer.cancelled())
		s.record(func(r recorder) error { return r.RecordResult(index, res.Kind.String(), "") })
	case eval.KindNoValue:
		s.record(func(r recorder) error { return r.RecordResult(index, res.Kind.String(), "") })
	}

	return false
}

// evaluate runs source with interrupts routed to it.
func (s *Session) evaluate(ctx context.Context, source string) eval.Result {
	evalCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	restore := s.router.Enter(interrupt.RouteEvaluation, cancel)
	defer restore()

	return s.exec.Evaluate(evalCtx, source, s.ns, s.mode == ModeAwaitable)
}

func (s *Session) shell(ctx context.Context, index int, line string) {
	shellCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	restore := s.router.Enter(interrupt.RouteEvaluation, cancel)
	var err error
	if s.mode == ModeAwaitable {
		_, err = loop.Offload(shellCtx, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, runShell(ctx, line, s.arb.Writer())
		})
	} else {
		err = runShell(shellCtx, line, s.arb.Writer())
	}
	restore()

	switch {
	case err == nil:
		s.record(func(r recorder) error { return r.RecordResult(index, "shell", "") })
	case errors.Is(err, context.Canceled):
		s.emit(ctx, s.printer.cancelled())
	default:
		s.emit(ctx, s.printer.cliError(err))
		s.record(func(r recorder) error { return r.RecordResult(index, "shell", err.Error()) })
	}
}

// runStartupFiles executes the configured files in order. A missing file is
// a warning; a failing one is reported and the rest still run.
func (s *Session) runStartupFiles(ctx context.Context) (quit bool) {
	for _, path := range s.startupFiles {
		if _, err := os.Stat(path); err != nil {
			s.emit(ctx, s.printer.warning("File not found: "+path))
			continue
		}

		evalCtx, cancel := context.WithCancel(ctx)
		restore := s.router.Enter(interrupt.RouteEvaluation, cancel)
		err := s.exec.ExecFile(evalCtx, path, s.ns, s.mode == ModeAwaitable)
		restore()
		cancel()

		var raised *eval.RaisedError

		switch {
		case err == nil:
		case errors.Is(err, eval.ErrExit):
			return true
		case errors.Is(err, context.Canceled):
			s.emit(ctx, s.printer.cancelled())
		case errors.As(err, &raised):
			s.emit(ctx, s.printer.raised(raised))
		default:
			s.emit(ctx, s.printer.cliError(clierrors.StartupFileFailed(path, err)))
		}
	}

	return false
}

// emit writes text under a printer Token, paging it when it would not fit
// on one screen.
func (s *Session) emit(ctx context.Context, text string) {
	if text == "" {
		return
	}

	if s.pagerEnabled && s.exceedsScreen(text) {
		if err := s.pager.Page(ctx, text); err != nil {
			s.logger.Warn("paging failed", slog.String("error", err.Error()))
		}

		return
	}

	tok, err := s.acquire(ctx)
	if err != nil {
		s.logger.Warn("terminal unavailable for output", slog.String("error", err.Error()))
		return
	}
	defer func() { _ = tok.Release() }()

	if _, err := io.WriteString(tok, text); err != nil {
		s.logger.Warn("write result", slog.String("error", err.Error()))
	}
}

// acquire takes the printer Token. Only an Awaitable session yields its
// scheduler task while waiting; a Blocking one blocks the goroutine even when
// a host loop is running on it.
func (s *Session) acquire(ctx context.Context) (*arbiter.Token, error) {
	if s.mode != ModeAwaitable {
		return s.arb.Acquire(ctx, Applicant, nil)
	}

	return loop.Offload(ctx, func(ctx context.Context) (*arbiter.Token, error) {
		return s.arb.Acquire(ctx, Applicant, nil)
	})
}

func (s *Session) exceedsScreen(text string) bool {
	size, err := s.pager.Size()
	if err != nil {
		return false
	}

	return len(pager.Wrap(text, size.Width)) > size.Height-1
}

func (s *Session) record(fn func(recorder) error) {
	r, ok := s.history.(recorder)
	if !ok {
		return
	}

	if err := fn(r); err != nil {
		s.logger.Debug("history not recorded", slog.String("error", err.Error()))
	}
}
