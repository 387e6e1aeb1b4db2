package repl

import (
	"bytes"
	"strings"
	"testing"

	"go.starlark.net/starlark"

	clierrors "github.com/musher-dev/ember/internal/errors"
	"github.com/musher-dev/ember/internal/eval"
	"github.com/musher-dev/ember/internal/testutil"
)

func TestPrinterValue(t *testing.T) {
	p := newPrinter(&bytes.Buffer{})

	tests := []struct {
		name      string
		value     starlark.Value
		outPrompt string
		want      string
	}{
		{"classic int", starlark.MakeInt(2), "", "2\n"},
		{"classic string is quoted", starlark.String("hi"), "", "\"hi\"\n"},
		{"ipython", starlark.MakeInt(2), "Out[3]: ", "Out[3]: 2\n\n"},
		{"string repr escapes newlines", starlark.String("a\nb"), "Out[1]: ", "Out[1]: \"a\\nb\"\n\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.value(tt.value, tt.outPrompt); got != tt.want {
				t.Fatalf("value() = %q, want %q", got, tt.want)
			}
		})
	}
}

type multiline struct{ starlark.Value }

func (m multiline) String() string { return "first\nsecond" }

func TestPrinterAlignsMultilineValues(t *testing.T) {
	p := newPrinter(&bytes.Buffer{})

	got := p.value(multiline{starlark.String("")}, "Out[12]: ")
	want := "Out[12]: first\n         second\n\n"

	if got != want {
		t.Fatalf("value() = %q, want %q", got, want)
	}
}

func TestPrinterRaised(t *testing.T) {
	p := newPrinter(&bytes.Buffer{})

	tests := []struct {
		name string
		err  *eval.RaisedError
		want string
	}{
		{
			name: "backtrace frames are kept",
			err: &eval.RaisedError{
				Kind:    "ValueError",
				Message: "x",
				Trace:   "Traceback (most recent call last):\n  <stdin>:1:6: in <toplevel>\nError in throw: ValueError: x",
			},
			want: "Traceback (most recent call last):\n  <stdin>:1:6: in <toplevel>\nValueError: x\n\n",
		},
		{
			name: "syntax error shows position",
			err:  &eval.RaisedError{Kind: "SyntaxError", Message: "got newline", Line: 1, Col: 4},
			want: "Traceback (most recent call last):\n  File \"<stdin>\", line 1, column 4\nSyntaxError: got newline\n\n",
		},
		{
			name: "no trace",
			err:  &eval.RaisedError{Kind: "NestedSchedulerError", Message: "nope"},
			want: "NestedSchedulerError: nope\n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.raised(tt.err); got != tt.want {
				t.Fatalf("raised() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrinterCLIErrorIncludesHint(t *testing.T) {
	p := newPrinter(&bytes.Buffer{})

	got := p.cliError(clierrors.ShellCommandFailed(127, "sh: nope: command not found"))
	if !strings.Contains(got, "Error: Shell command not found\n") || !strings.Contains(got, "Hint: Check the command name") {
		t.Fatalf("cliError() = %q", got)
	}
}

func TestIPythonContinuationIsRightAligned(t *testing.T) {
	prompt := makePrompt(ipythonPrompt{}, 10, "t")

	if prompt.Message != "In [10]: " || prompt.Continuation != "    ...: " || prompt.Title != "t" {
		t.Fatalf("makePrompt() = %+v", prompt)
	}
}

func TestPrinterTranscript_Golden(t *testing.T) {
	p := newPrinter(&bytes.Buffer{})

	var b strings.Builder

	b.WriteString(p.value(starlark.MakeInt(2), "Out[1]: "))
	b.WriteString(p.value(starlark.NewList([]starlark.Value{starlark.MakeInt(1), starlark.String("a")}), "Out[2]: "))
	b.WriteString(p.raised(&eval.RaisedError{Kind: "SyntaxError", Message: "got newline", Line: 1, Col: 4}))
	b.WriteString(p.cliError(clierrors.ShellCommandFailed(127, "sh: nope: command not found")))
	b.WriteString(p.warning("history unavailable"))

	testutil.AssertGoldenPlain(t, b.String(), "printer_transcript.golden")
}
