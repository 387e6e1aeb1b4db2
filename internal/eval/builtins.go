package eval

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.starlark.net/starlark"

	"github.com/musher-dev/ember/internal/loop"
)

const contextLocal = "ember.context"

// ErrExit is the signal raised by exit() and quit().
var ErrExit = errors.New("exit requested")

// ErrorKinds lists the error constructors available to user code.
var ErrorKinds = []string{"ValueError", "TypeError", "KeyError", "RuntimeError"}

// Builtins returns the values every namespace receives: wait, sleep, gather,
// throw, exit, quit and one constructor per entry of ErrorKinds.
func Builtins() starlark.StringDict {
	d := starlark.StringDict{
		"wait":   starlark.NewBuiltin("wait", builtinWait),
		"sleep":  starlark.NewBuiltin("sleep", builtinSleep),
		"gather": starlark.NewBuiltin("gather", builtinGather),
		"throw":  starlark.NewBuiltin("throw", builtinThrow),
		"exit":   starlark.NewBuiltin("exit", builtinExit),
		"quit":   starlark.NewBuiltin("quit", builtinExit),
	}

	for _, kind := range ErrorKinds {
		d[kind] = errorConstructor(kind)
	}

	return d
}

// Awaitable is a deferred computation that user code resumes with wait().
// Like a coroutine it can be awaited once.
type Awaitable struct {
	name    string
	run     func(ctx context.Context) (starlark.Value, error)
	awaited atomic.Bool
}

var _ starlark.Value = (*Awaitable)(nil)

// NewAwaitable wraps fn so that a host can hand suspending work to user code.
// fn runs as part of a scheduler task and may itself suspend with
// loop.Offload or loop.Sleep.
func NewAwaitable(name string, fn func(ctx context.Context) (starlark.Value, error)) *Awaitable {
	return &Awaitable{name: name, run: fn}
}

// FromFuture returns an Awaitable resolved by f.
func FromFuture(name string, f *loop.Future[starlark.Value]) *Awaitable {
	return NewAwaitable(name, f.Await)
}

func (a *Awaitable) String() string        { return fmt.Sprintf("<awaitable %s>", a.name) }
func (a *Awaitable) Type() string          { return "awaitable" }
func (a *Awaitable) Freeze()               {}
func (a *Awaitable) Truth() starlark.Bool  { return starlark.True }
func (a *Awaitable) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: awaitable") }

func (a *Awaitable) await(ctx context.Context) (starlark.Value, error) {
	if !a.awaited.CompareAndSwap(false, true) {
		return nil, &RaisedError{Kind: "RuntimeError", Message: "cannot reuse already awaited " + a.String()}
	}

	v, err := a.run(ctx)
	if err != nil {
		return nil, err
	}

	if v == nil {
		return starlark.None, nil
	}

	return v, nil
}

// ThreadContext returns the context of the evaluation running on thread, so
// host builtins can observe cancellation and the running scheduler.
func ThreadContext(thread *starlark.Thread) context.Context {
	if ctx, ok := thread.Local(contextLocal).(context.Context); ok && ctx != nil {
		return ctx
	}

	return context.Background()
}

func toAwaitable(fn string, v starlark.Value) (*Awaitable, error) {
	aw, ok := v.(*Awaitable)
	if !ok {
		return nil, &RaisedError{Kind: "TypeError", Message: fmt.Sprintf("%s: got %s, want awaitable", fn, v.Type())}
	}

	return aw, nil
}

// wait(awaitable) suspends the calling chunk until awaitable completes.
func builtinWait(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}

	aw, err := toAwaitable(b.Name(), v)
	if err != nil {
		return nil, err
	}

	ctx := ThreadContext(thread)
	if !loop.Running(ctx) {
		return nil, &RaisedError{Kind: "RuntimeError", Message: "wait() is only allowed at the top level of an evaluation"}
	}

	return aw.await(ctx)
}

// sleep(seconds, result=None) returns an awaitable that completes with result
// after seconds.
func builtinSleep(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		seconds starlark.Value
		result  starlark.Value = starlark.None
	)

	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "seconds", &seconds, "result?", &result); err != nil {
		return nil, err
	}

	secs, ok := starlark.AsFloat(seconds)
	if !ok {
		return nil, &RaisedError{Kind: "TypeError", Message: fmt.Sprintf("sleep: got %s, want number", seconds.Type())}
	}

	if secs < 0 {
		return nil, &RaisedError{Kind: "ValueError", Message: "sleep length must be non-negative"}
	}

	d := time.Duration(secs * float64(time.Second))

	return NewAwaitable(fmt.Sprintf("sleep(%s)", seconds), func(ctx context.Context) (starlark.Value, error) {
		if err := loop.Sleep(ctx, d); err != nil {
			return nil, err
		}

		return result, nil
	}), nil
}

// gather(*awaitables) returns an awaitable that runs its arguments as
// concurrent tasks and completes with the list of their results.
func builtinGather(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
	}

	children := make([]*Awaitable, 0, len(args))

	for _, arg := range args {
		aw, err := toAwaitable(b.Name(), arg)
		if err != nil {
			return nil, err
		}

		children = append(children, aw)
	}

	return NewAwaitable(fmt.Sprintf("gather(%d)", len(children)), func(ctx context.Context) (starlark.Value, error) {
		futures := make([]*loop.Future[starlark.Value], 0, len(children))
		for _, child := range children {
			futures = append(futures, loop.Spawn(ctx, child.await))
		}

		results := make([]starlark.Value, 0, len(futures))

		for _, f := range futures {
			v, err := f.Await(ctx)
			if err != nil {
				return nil, err
			}

			results = append(results, v)
		}

		return starlark.NewList(results), nil
	}), nil
}

// throw(error) raises error, which must come from one of the constructors.
func builtinThrow(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}

	ev, ok := v.(*ErrorValue)
	if !ok {
		return nil, &RaisedError{Kind: "TypeError", Message: fmt.Sprintf("throw: got %s, want an error such as ValueError(...)", v.Type())}
	}

	return nil, &RaisedError{Kind: ev.kind, Message: ev.message}
}

func builtinExit(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}

	return nil, ErrExit
}

// ErrorValue is an error object built by ValueError(...) and friends.
type ErrorValue struct {
	kind    string
	message string
}

var _ starlark.HasAttrs = (*ErrorValue)(nil)

func errorConstructor(kind string) *starlark.Builtin {
	return starlark.NewBuiltin(kind, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var msg starlark.Value = starlark.String("")
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0, &msg); err != nil {
			return nil, err
		}

		text, ok := starlark.AsString(msg)
		if !ok {
			text = msg.String()
		}

		return &ErrorValue{kind: kind, message: text}, nil
	})
}

func (e *ErrorValue) String() string {
	return fmt.Sprintf("%s(%q)", e.kind, e.message)
}

func (e *ErrorValue) Type() string          { return e.kind }
func (e *ErrorValue) Freeze()               {}
func (e *ErrorValue) Truth() starlark.Bool  { return starlark.True }
func (e *ErrorValue) Hash() (uint32, error) { return starlark.String(e.kind + ":" + e.message).Hash() }

// Attr exposes kind and message.
func (e *ErrorValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "kind":
		return starlark.String(e.kind), nil
	case "message":
		return starlark.String(e.message), nil
	default:
		return nil, nil
	}
}

// AttrNames lists the attributes of an error object.
func (e *ErrorValue) AttrNames() []string {
	return []string{"kind", "message"}
}
