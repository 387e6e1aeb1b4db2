// Package eval compiles and runs Starlark source against a host-owned
// namespace.
//
// Evaluation tries the source as a single expression first and falls back to
// a statement chunk. A chunk that calls the builtin wait() outside any def or
// lambda is a suspending evaluation: it runs on a cooperative scheduler, the
// host's when one is available to the caller and a private one otherwise.
// User errors never escape as Go errors; they come back as a Result.
package eval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	clierrors "github.com/musher-dev/ember/internal/errors"
	"github.com/musher-dev/ember/internal/loop"
	"github.com/musher-dev/ember/internal/observability"
)

// StdinName is the file name reported for interactively entered source.
const StdinName = "<stdin>"

// Kind classifies the outcome of an evaluation.
type Kind int

const (
	// KindNoValue is a successful evaluation that produced nothing to print.
	KindNoValue Kind = iota
	// KindValue is a successful expression evaluation with a printable value.
	KindValue
	// KindRaised is an evaluation that failed with a user-visible error.
	KindRaised
	// KindCancelled is an evaluation stopped by an interrupt.
	KindCancelled
	// KindExit is an evaluation that called exit() or quit().
	KindExit
)

// String returns the kind name used in logs and spans.
func (k Kind) String() string {
	switch k {
	case KindNoValue:
		return "no_value"
	case KindValue:
		return "value"
	case KindRaised:
		return "raised"
	case KindCancelled:
		return "cancelled"
	case KindExit:
		return "exit"
	default:
		return "unknown"
	}
}

// Result is the outcome of one evaluation.
type Result struct {
	Kind     Kind
	Value    starlark.Value // set for KindValue
	Err      *RaisedError   // set for KindRaised
	Duration time.Duration
}

// RaisedError describes a failure raised by user code.
type RaisedError struct {
	Kind    string // e.g. "ValueError", "SyntaxError", "NestedSchedulerError"
	Message string
	Trace   string // Starlark backtrace, empty when there is none
	Line    int    // source position for syntax errors, 0 otherwise
	Col     int
}

func (e *RaisedError) Error() string {
	if e.Message == "" {
		return e.Kind
	}

	return e.Kind + ": " + e.Message
}

// Executor evaluates source text. It is safe to reuse across evaluations but
// not for concurrent evaluations against the same namespace.
type Executor struct {
	fileOpts *syntax.FileOptions
	stdout   io.Writer
	logger   *slog.Logger
	tracer   trace.Tracer
	builtins starlark.StringDict
}

// Option configures an Executor.
type Option func(*Executor)

// WithStdout sets where user print() output goes.
func WithStdout(w io.Writer) Option {
	return func(e *Executor) {
		if w != nil {
			e.stdout = w
		}
	}
}

// WithLogger sets the executor's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithBuiltins adds host values to the builtins installed into a namespace.
func WithBuiltins(extra starlark.StringDict) Option {
	return func(e *Executor) {
		for name, v := range extra {
			e.builtins[name] = v
		}
	}
}

// New creates an Executor.
func New(opts ...Option) *Executor {
	e := &Executor{
		fileOpts: FileOptions(),
		stdout:   os.Stdout,
		logger:   slog.New(slog.DiscardHandler),
		tracer:   observability.Tracer("ember.eval"),
		builtins: Builtins(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// FileOptions returns the dialect accepted at the prompt: the full language
// including top-level control flow and rebinding of globals.
func FileOptions() *syntax.FileOptions {
	return &syntax.FileOptions{
		Set:             true,
		While:           true,
		TopLevelControl: true,
		GlobalReassign:  true,
		Recursion:       true,
	}
}

// Install adds the builtins to ns. Names the host already bound are left
// alone.
func (e *Executor) Install(ns starlark.StringDict) {
	for name, v := range e.builtins {
		if _, ok := ns[name]; !ok {
			ns[name] = v
		}
	}
}

// Evaluate runs source against ns. supportsSuspension reports whether the
// caller is itself a task of a running scheduler that may be suspended. A
// suspending chunk evaluated without that support while ctx already carries
// a running scheduler fails with NestedSchedulerError before anything runs.
//
// ns is mutated in place in source order; nothing is rolled back on failure.
// Cancelling ctx stops the evaluation and yields KindCancelled.
func (e *Executor) Evaluate(ctx context.Context, source string, ns starlark.StringDict, supportsSuspension bool) Result {
	return e.evaluate(ctx, StdinName, source, ns, supportsSuspension)
}

// ExecFile runs a Starlark file against ns, for startup files.
// supportsSuspension has the same meaning as for Evaluate. Any failure is
// returned as a *RaisedError; a file calling exit() returns ErrExit.
func (e *Executor) ExecFile(ctx context.Context, path string, ns starlark.StringDict, supportsSuspension bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	res := e.evaluate(ctx, path, string(data), ns, supportsSuspension)

	switch res.Kind {
	case KindRaised:
		return res.Err
	case KindCancelled:
		return context.Canceled
	case KindExit:
		return ErrExit
	default:
		return nil
	}
}

func (e *Executor) evaluate(ctx context.Context, filename, source string, ns starlark.StringDict, supportsSuspension bool) Result {
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "repl.evaluate",
		trace.WithAttributes(
			attribute.String("eval.file", filename),
			attribute.Int("eval.source_length", len(source)),
			attribute.Bool("eval.supports_suspension", supportsSuspension),
		),
	)
	defer span.End()

	res := e.run(ctx, filename, source, ns, supportsSuspension)
	res.Duration = time.Since(start)

	span.SetAttributes(attribute.String("eval.result", res.Kind.String()))

	if res.Kind == KindRaised {
		span.SetStatus(codes.Error, res.Err.Kind)
	}

	e.logger.Debug("evaluation finished",
		slog.String("event.type", "eval.finish"),
		slog.String("eval.file", filename),
		slog.String("eval.result", res.Kind.String()),
		slog.Duration("eval.duration", res.Duration),
	)

	return res
}

func (e *Executor) run(ctx context.Context, filename, source string, ns starlark.StringDict, supportsSuspension bool) Result {
	expr, exprErr := e.fileOpts.ParseExpr(filename, source, 0)

	var file *syntax.File

	if exprErr != nil {
		f, err := e.fileOpts.Parse(filename, source, 0)
		if err != nil {
			return raised(classify(err))
		}

		file = f
	}

	var suspends bool
	if file != nil {
		suspends = FileSuspends(file)
	} else {
		suspends = ExprSuspends(expr)
	}

	if suspends && !supportsSuspension && loop.Running(ctx) {
		nested := clierrors.NestedScheduler()

		return raised(&RaisedError{Kind: "NestedSchedulerError", Message: nested.Message})
	}

	e.Install(ns)

	exec := func(ctx context.Context) (starlark.Value, error) {
		thread := e.newThread(ctx, filename)

		stop := context.AfterFunc(ctx, func() {
			thread.Cancel(cancelReason(ctx))
		})
		defer stop()

		if file != nil {
			return starlark.None, starlark.ExecREPLChunk(file, thread, ns)
		}

		return starlark.EvalExprOptions(e.fileOpts, thread, expr, ns)
	}

	var (
		value starlark.Value
		err   error
	)

	if suspends && !loop.Running(ctx) {
		err = loop.New().Run(ctx, func(ctx context.Context) error {
			var runErr error
			value, runErr = exec(ctx)

			return runErr
		})
	} else {
		value, err = exec(ctx)
	}

	return e.result(ctx, value, err)
}

func (e *Executor) result(ctx context.Context, value starlark.Value, err error) Result {
	switch {
	case err == nil && (value == nil || value == starlark.None):
		return Result{Kind: KindNoValue}
	case err == nil:
		return Result{Kind: KindValue, Value: value}
	case errors.Is(err, ErrExit):
		return Result{Kind: KindExit}
	case ctx.Err() != nil:
		return Result{Kind: KindCancelled}
	default:
		return raised(classify(err))
	}
}

func (e *Executor) newThread(ctx context.Context, name string) *starlark.Thread {
	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			_, _ = io.WriteString(e.stdout, msg+"\n")
		},
	}
	thread.SetLocal(contextLocal, ctx)

	return thread
}

func raised(err *RaisedError) Result {
	return Result{Kind: KindRaised, Err: err}
}

func cancelReason(ctx context.Context) string {
	if cause := context.Cause(ctx); cause != nil {
		return cause.Error()
	}

	return "interrupted"
}

// classify turns any evaluation failure into a RaisedError.
func classify(err error) *RaisedError {
	var trace string

	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		trace = evalErr.Backtrace()
	}

	var user *RaisedError
	if errors.As(err, &user) {
		out := *user
		out.Trace = trace

		return &out
	}

	var synErr syntax.Error
	if errors.As(err, &synErr) {
		return &RaisedError{
			Kind:    "SyntaxError",
			Message: synErr.Msg,
			Line:    int(synErr.Pos.Line),
			Col:     int(synErr.Pos.Col),
		}
	}

	var resolveErrs resolve.ErrorList
	if errors.As(err, &resolveErrs) && len(resolveErrs) > 0 {
		first := resolveErrs[0]
		kind := "SyntaxError"

		if strings.HasPrefix(first.Msg, "undefined:") {
			kind = "NameError"
		}

		return &RaisedError{
			Kind:    kind,
			Message: first.Msg,
			Line:    int(first.Pos.Line),
			Col:     int(first.Pos.Col),
		}
	}

	if evalErr != nil {
		return &RaisedError{Kind: runtimeKind(evalErr.Msg), Message: evalErr.Msg, Trace: trace}
	}

	return &RaisedError{Kind: "Error", Message: err.Error()}
}

var runtimeKinds = []struct {
	needle string
	kind   string
}{
	{"division by zero", "ZeroDivisionError"},
	{"modulo by zero", "ZeroDivisionError"},
	{"out of range", "IndexError"},
	{"not in dict", "KeyError"},
	{"key ", "KeyError"},
	{"has no ", "AttributeError"},
	{"unhashable", "TypeError"},
	{"unknown binary op", "TypeError"},
	{"not callable", "TypeError"},
	{"missing argument", "TypeError"},
	{"unexpected keyword", "TypeError"},
	{"got ", "TypeError"},
	{"frozen", "RuntimeError"},
	{"cancelled", "RuntimeError"},
}

func runtimeKind(msg string) string {
	for _, k := range runtimeKinds {
		if strings.Contains(msg, k.needle) {
			return k.kind
		}
	}

	return "Error"
}
