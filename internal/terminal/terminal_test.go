package terminal

import (
	"errors"
	"os"
	"testing"

	"github.com/creack/pty"
)

func TestProbeFilesAcceptsPTY(t *testing.T) {
	t.Setenv("TERM", "xterm-256color")

	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	defer ptmx.Close()
	defer tty.Close()

	if err := ProbeFiles(tty, tty); err != nil {
		t.Fatalf("ProbeFiles() error = %v", err)
	}
}

func TestProbeFilesRejects(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe() error = %v", err)
	}
	defer r.Close()
	defer w.Close()

	tests := []struct {
		name    string
		in, out *os.File
	}{
		{"pipe input", r, w},
		{"nil input", nil, w},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ProbeFiles(tt.in, tt.out); !errors.Is(err, ErrNotInteractive) {
				t.Fatalf("ProbeFiles() error = %v, want ErrNotInteractive", err)
			}
		})
	}
}

func TestProbeFilesRejectsDumbTerminal(t *testing.T) {
	t.Setenv("TERM", "dumb")

	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	defer ptmx.Close()
	defer tty.Close()

	if err := ProbeFiles(tty, tty); !errors.Is(err, ErrNotInteractive) {
		t.Fatalf("ProbeFiles() error = %v, want ErrNotInteractive", err)
	}
}

func TestColorEnabled(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want bool
	}{
		{"tty", Info{IsTTY: true}, true},
		{"no tty", Info{}, false},
		{"NO_COLOR", Info{IsTTY: true, NoColor: true}, false},
		{"flag", Info{IsTTY: true, ForceFlag: true}, false},
	}

	for _, tt := range tests {
		if got := tt.info.ColorEnabled(); got != tt.want {
			t.Errorf("%s: ColorEnabled() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestDetectFile(t *testing.T) {
	env := func(vars map[string]string) func(string) (string, bool) {
		return func(key string) (string, bool) {
			v, ok := vars[key]
			return v, ok
		}
	}

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe() error = %v", err)
	}
	defer r.Close()
	defer w.Close()

	info := DetectFile(w, env(map[string]string{"TERM": "xterm"}))
	if info.IsTTY || info.NoColor || info.Width != 80 || info.Height != 24 {
		t.Fatalf("pipe info = %+v, want non-TTY 80x24 with color allowed", info)
	}

	if info := DetectFile(w, env(map[string]string{"NO_COLOR": ""})); !info.NoColor {
		t.Fatal("empty NO_COLOR should still disable color")
	}

	if info := DetectFile(w, env(map[string]string{"TERM": "dumb"})); !info.NoColor {
		t.Fatal("TERM=dumb should disable color")
	}

	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	defer ptmx.Close()
	defer tty.Close()

	if err := pty.Setsize(ptmx, &pty.Winsize{Rows: 40, Cols: 120}); err != nil {
		t.Fatalf("Setsize() error = %v", err)
	}

	info = DetectFile(tty, env(nil))
	if !info.IsTTY || info.Width != 120 || info.Height != 40 {
		t.Fatalf("pty info = %+v, want TTY 120x40", info)
	}
}
