package prompt

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/musher-dev/ember/internal/output"
	"github.com/musher-dev/ember/internal/terminal"
)

func newTestPrompter(input string, tty bool) (*Prompter, *bytes.Buffer) {
	var buf bytes.Buffer

	out := output.NewWriter(&buf, &buf, &terminal.Info{NoColor: true, Width: 80, Height: 24})

	return NewWithReader(out, strings.NewReader(input), func() bool { return tty }), &buf
}

func TestIsCanceled(t *testing.T) {
	if !IsCanceled(errCanceled) {
		t.Fatal("IsCanceled(errCanceled) = false, want true")
	}

	if !IsCanceled(errors.Join(errors.New("other"), errCanceled)) {
		t.Fatal("IsCanceled(wrapped errCanceled) = false, want true")
	}

	if IsCanceled(errors.New("not canceled")) {
		t.Fatal("IsCanceled(unrelated error) = true, want false")
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		def      bool
		want     bool
		canceled bool
	}{
		{name: "yes", input: "y\n", want: true},
		{name: "full yes mixed case", input: "Yes\n", want: true},
		{name: "no", input: "n\n", def: true, want: false},
		{name: "empty takes default", input: "\n", def: true, want: true},
		{name: "answer without newline", input: "yes", want: true},
		{name: "eof cancels", input: "", def: false, want: false, canceled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, buf := newTestPrompter(tt.input, true)

			got, err := p.Confirm("Delete 3 sessions?", tt.def)
			if tt.canceled {
				if !IsCanceled(err) {
					t.Fatalf("Confirm() error = %v, want canceled", err)
				}
			} else if err != nil {
				t.Fatalf("Confirm() error = %v", err)
			}

			if got != tt.want {
				t.Fatalf("Confirm() = %v, want %v", got, tt.want)
			}

			if !strings.HasPrefix(buf.String(), "Delete 3 sessions? [") {
				t.Fatalf("prompt = %q", buf.String())
			}
		})
	}
}

func TestCanPrompt(t *testing.T) {
	p, _ := newTestPrompter("", true)
	if !p.CanPrompt() {
		t.Fatal("CanPrompt() = false on a tty")
	}

	p.out.NoInput = true
	if p.CanPrompt() {
		t.Fatal("CanPrompt() = true with --no-input")
	}

	p, _ = newTestPrompter("", false)
	if p.CanPrompt() {
		t.Fatal("CanPrompt() = true without a tty")
	}
}
