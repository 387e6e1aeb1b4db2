package eval

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.starlark.net/starlark"

	"github.com/musher-dev/ember/internal/loop"
)

func TestEvaluateExpression(t *testing.T) {
	e := New()
	ns := starlark.StringDict{}

	res := e.Evaluate(context.Background(), "1+1", ns, false)

	if res.Kind != KindValue {
		t.Fatalf("Kind = %v, want value (err = %v)", res.Kind, res.Err)
	}

	if got := res.Value.String(); got != "2" {
		t.Fatalf("Value = %s, want 2", got)
	}
}

func TestEvaluateNoneIsNoValue(t *testing.T) {
	res := New().Evaluate(context.Background(), "None", starlark.StringDict{}, false)

	if res.Kind != KindNoValue {
		t.Fatalf("Kind = %v, want no_value", res.Kind)
	}
}

func TestNamespaceEffectsAccumulate(t *testing.T) {
	e := New()
	ns := starlark.StringDict{}

	steps := []struct {
		source string
		want   Kind
	}{
		{"x = 1", KindNoValue},
		{"def add(n):\n    return x + n", KindNoValue},
		{"x = add(41)", KindNoValue},
		{"x", KindValue},
	}

	var last Result

	for _, step := range steps {
		last = e.Evaluate(context.Background(), step.source, ns, false)
		if last.Kind != step.want {
			t.Fatalf("Evaluate(%q) kind = %v, want %v (err = %v)", step.source, last.Kind, step.want, last.Err)
		}
	}

	if got := last.Value.String(); got != "42" {
		t.Fatalf("x = %s, want 42", got)
	}
}

func TestThrowValueError(t *testing.T) {
	res := New().Evaluate(context.Background(), `throw(ValueError("x"))`, starlark.StringDict{}, false)

	if res.Kind != KindRaised {
		t.Fatalf("Kind = %v, want raised", res.Kind)
	}

	if res.Err.Kind != "ValueError" || res.Err.Message != "x" {
		t.Fatalf("Err = %+v, want ValueError x", res.Err)
	}

	if res.Err.Trace == "" {
		t.Fatal("expected a backtrace for a runtime error")
	}
}

func TestFailureDoesNotRollBack(t *testing.T) {
	ns := starlark.StringDict{}

	res := New().Evaluate(context.Background(), "a = 1\nthrow(RuntimeError('boom'))\nb = 2", ns, false)

	if res.Kind != KindRaised || res.Err.Kind != "RuntimeError" {
		t.Fatalf("result = %+v, want RuntimeError", res)
	}

	if _, ok := ns["a"]; !ok {
		t.Fatal("binding made before the failure was rolled back")
	}

	if _, ok := ns["b"]; ok {
		t.Fatal("binding after the failure should not exist")
	}
}

func TestSyntaxAndNameErrors(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		wantKind string
	}{
		{"syntax", "1 +* 2", "SyntaxError"},
		{"undefined name", "undefined_name", "NameError"},
		{"undefined in statement", "y = undefined_name", "NameError"},
		{"division by zero", "1 // 0", "ZeroDivisionError"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := New().Evaluate(context.Background(), tt.source, starlark.StringDict{}, false)

			if res.Kind != KindRaised {
				t.Fatalf("Kind = %v, want raised", res.Kind)
			}

			if res.Err.Kind != tt.wantKind {
				t.Fatalf("Err.Kind = %q, want %q (message %q)", res.Err.Kind, tt.wantKind, res.Err.Message)
			}
		})
	}
}

func TestExitBuiltins(t *testing.T) {
	for _, src := range []string{"exit()", "quit()"} {
		if res := New().Evaluate(context.Background(), src, starlark.StringDict{}, false); res.Kind != KindExit {
			t.Errorf("Evaluate(%q) kind = %v, want exit", src, res.Kind)
		}
	}
}

func TestPrintGoesToStdout(t *testing.T) {
	var buf bytes.Buffer

	res := New(WithStdout(&buf)).Evaluate(context.Background(), `print("hello", 1)`, starlark.StringDict{}, false)
	if res.Kind != KindNoValue {
		t.Fatalf("Kind = %v, want no_value", res.Kind)
	}

	if buf.String() != "hello 1\n" {
		t.Fatalf("stdout = %q", buf.String())
	}
}

func TestBlockingSuspensionUsesPrivateScheduler(t *testing.T) {
	ns := starlark.StringDict{}

	res := New().Evaluate(context.Background(), "y = wait(sleep(0.01, 5))", ns, false)
	if res.Kind != KindNoValue {
		t.Fatalf("Kind = %v, want no_value (err = %v)", res.Kind, res.Err)
	}

	if got := ns["y"]; got == nil || got.String() != "5" {
		t.Fatalf("y = %v, want 5", got)
	}
}

func TestGatherRunsConcurrently(t *testing.T) {
	ns := starlark.StringDict{}

	start := time.Now()

	res := New().Evaluate(context.Background(), "r = wait(gather(sleep(0.2, 1), sleep(0.2, 2)))", ns, false)
	if res.Kind != KindNoValue {
		t.Fatalf("Kind = %v, want no_value (err = %v)", res.Kind, res.Err)
	}

	if got := ns["r"].String(); got != "[1, 2]" {
		t.Fatalf("r = %s, want [1, 2]", got)
	}

	if elapsed := time.Since(start); elapsed > 350*time.Millisecond {
		t.Fatalf("gather took %v, want the sleeps to overlap", elapsed)
	}
}

func TestNestedSchedulerLeavesNamespaceUnchanged(t *testing.T) {
	ns := starlark.StringDict{"x": starlark.MakeInt(1)}

	err := loop.New().Run(context.Background(), func(ctx context.Context) error {
		res := New().Evaluate(ctx, "x = wait(sleep(0, 2))", ns, false)

		if res.Kind != KindRaised || res.Err.Kind != "NestedSchedulerError" {
			t.Errorf("result = %+v, want NestedSchedulerError", res)
		}

		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(ns) != 1 || ns["x"].String() != "1" {
		t.Fatalf("namespace changed: %v", ns)
	}
}

func TestNonSuspendingEvaluationInsideRunningLoop(t *testing.T) {
	err := loop.New().Run(context.Background(), func(ctx context.Context) error {
		res := New().Evaluate(ctx, "2 * 21", starlark.StringDict{}, false)
		if res.Kind != KindValue || res.Value.String() != "42" {
			t.Errorf("result = %+v, want 42", res)
		}

		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestAwaitableModeSuspendsHostTask(t *testing.T) {
	ns := starlark.StringDict{}

	var ticks atomic.Int32

	err := loop.New().Run(context.Background(), func(ctx context.Context) error {
		ticker := loop.Spawn(ctx, func(ctx context.Context) (struct{}, error) {
			for i := 0; i < 3; i++ {
				ticks.Add(1)

				if err := loop.Sleep(ctx, 5*time.Millisecond); err != nil {
					return struct{}{}, err
				}
			}

			return struct{}{}, nil
		})

		res := New().Evaluate(ctx, "done = wait(sleep(0.1, True))", ns, true)
		if res.Kind != KindNoValue {
			t.Errorf("Kind = %v, want no_value (err = %v)", res.Kind, res.Err)
		}

		_, err := ticker.Await(ctx)

		return err
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if ticks.Load() != 3 {
		t.Fatalf("ticks = %d, want 3", ticks.Load())
	}

	if ns["done"] != starlark.True {
		t.Fatalf("done = %v, want True", ns["done"])
	}
}

func TestWhileLoops(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   int64
	}{
		{"top level", "x = 0\nwhile x < 3:\n    x += 1", 3},
		{"inside if", "x = 0\nif True:\n    while x < 2:\n        x += 1", 2},
		{"inside for", "x = 0\nfor _ in range(2):\n    n = 0\n    while n < 2:\n        n += 1\n        x += 1", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ns := starlark.StringDict{}

			res := New().Evaluate(context.Background(), tt.source, ns, false)
			if res.Kind != KindNoValue {
				t.Fatalf("Kind = %v, want no value (err = %v)", res.Kind, res.Err)
			}

			got, ok := ns["x"].(starlark.Int)
			if !ok {
				t.Fatalf("x = %v, want an int", ns["x"])
			}

			if n, _ := got.Int64(); n != tt.want {
				t.Fatalf("x = %d, want %d", n, tt.want)
			}
		})
	}
}

func TestCancellation(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"busy loop", "while True:\n    pass"},
		{"suspended", "wait(sleep(60))"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			time.AfterFunc(20*time.Millisecond, cancel)

			res := New().Evaluate(ctx, tt.source, starlark.StringDict{}, false)
			if res.Kind != KindCancelled {
				t.Fatalf("Kind = %v, want cancelled (err = %v)", res.Kind, res.Err)
			}
		})
	}
}

func TestWaitOutsideTopLevel(t *testing.T) {
	ns := starlark.StringDict{}
	e := New()

	if res := e.Evaluate(context.Background(), "def f():\n    return wait(sleep(0))", ns, false); res.Kind != KindNoValue {
		t.Fatalf("defining f: %+v", res)
	}

	res := e.Evaluate(context.Background(), "f()", ns, false)
	if res.Kind != KindRaised || res.Err.Kind != "RuntimeError" {
		t.Fatalf("result = %+v, want RuntimeError", res)
	}
}

func TestAwaitableIsSingleUse(t *testing.T) {
	ns := starlark.StringDict{}
	e := New()

	e.Evaluate(context.Background(), "s = sleep(0)", ns, false)
	e.Evaluate(context.Background(), "wait(s)", ns, false)

	res := e.Evaluate(context.Background(), "wait(s)", ns, false)
	if res.Kind != KindRaised || res.Err.Kind != "RuntimeError" {
		t.Fatalf("result = %+v, want RuntimeError on reuse", res)
	}
}

func TestInstallKeepsHostBindings(t *testing.T) {
	own := starlark.String("mine")
	ns := starlark.StringDict{"wait": own}

	New().Install(ns)

	if ns["wait"] != own {
		t.Fatal("Install replaced a host binding")
	}

	if _, ok := ns["gather"]; !ok {
		t.Fatal("Install did not add missing builtins")
	}
}

func TestHostAwaitable(t *testing.T) {
	f := loop.NewFuture[starlark.Value]()
	f.Resolve(starlark.String("ready"), nil)

	ns := starlark.StringDict{"job": FromFuture("job", f)}

	res := New().Evaluate(context.Background(), "wait(job)", ns, false)
	if res.Kind != KindValue || res.Value.String() != `"ready"` {
		t.Fatalf("result = %+v, want \"ready\"", res)
	}
}
