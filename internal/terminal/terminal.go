// Package terminal reports what the controlling terminal can do: whether
// output is a TTY, whether color is wanted, its size, and whether it can host
// the REPL's redrawing input cycle.
package terminal

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"
)

// ErrNotInteractive is returned by Probe when the terminal cannot host an
// interactive input cycle.
var ErrNotInteractive = errors.New("terminal is not interactive")

const (
	defaultWidth  = 80
	defaultHeight = 24
)

// Info holds terminal capability information.
type Info struct {
	IsTTY     bool
	NoColor   bool
	Width     int
	Height    int
	ForceFlag bool // set by --no-color
}

// Detect describes stdout under the process environment.
func Detect() *Info {
	return DetectFile(os.Stdout, os.LookupEnv)
}

// DetectFile describes f. lookupEnv supplies NO_COLOR and TERM.
func DetectFile(f *os.File, lookupEnv func(string) (string, bool)) *Info {
	info := &Info{Width: defaultWidth, Height: defaultHeight}

	if f != nil && term.IsTerminal(int(f.Fd())) {
		info.IsTTY = true

		if w, h, err := term.GetSize(int(f.Fd())); err == nil && w > 0 && h > 0 {
			info.Width, info.Height = w, h
		}
	}

	// https://no-color.org/
	_, info.NoColor = lookupEnv("NO_COLOR")

	if name, _ := lookupEnv("TERM"); name == "dumb" {
		info.NoColor = true
	}

	return info
}

// ColorEnabled reports whether colored output should be used.
func (t *Info) ColorEnabled() bool {
	if t.ForceFlag {
		return false
	}

	return t.IsTTY && !t.NoColor
}

// SpinnersEnabled reports whether animated progress may be drawn.
func (t *Info) SpinnersEnabled() bool {
	return t.IsTTY && !t.NoColor
}

// Name returns $TERM, or "unknown TERM" when it is unset.
func Name() string {
	if name := os.Getenv("TERM"); name != "" {
		return name
	}

	return "unknown TERM"
}

// ProbeFiles checks that in and out can host an interactive, redrawing
// input application. It returns nil when both are terminals and TERM allows
// cursor control.
func ProbeFiles(in, out *os.File) error {
	if in == nil || !term.IsTerminal(int(in.Fd())) {
		return fmt.Errorf("%w: input is not a terminal", ErrNotInteractive)
	}

	if out == nil || !term.IsTerminal(int(out.Fd())) {
		return fmt.Errorf("%w: output is not a terminal", ErrNotInteractive)
	}

	if os.Getenv("TERM") == "dumb" {
		return fmt.Errorf("%w: TERM=dumb does not support cursor control", ErrNotInteractive)
	}

	return nil
}

// Probe runs ProbeFiles against the process's stdin and stdout.
func Probe() error {
	return ProbeFiles(os.Stdin, os.Stdout)
}
