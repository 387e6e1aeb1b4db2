// Package output writes ember's command output.
//
// Commands take a Writer from their context so tests can capture stdout and
// stderr separately, switch to JSON for scripting, and render status lines
// without color when the terminal does not support it.
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"

	"github.com/musher-dev/ember/internal/terminal"
)

type contextKey struct{}

// Writer handles command output in text, JSON, and quiet modes.
type Writer struct {
	Out     io.Writer
	Err     io.Writer
	JSON    bool
	Quiet   bool
	Verbose bool
	NoInput bool

	terminal *terminal.Info

	successColor *color.Color
	errorColor   *color.Color
	warningColor *color.Color
	infoColor    *color.Color
	mutedColor   *color.Color
	headingColor *color.Color
}

// Default returns a Writer for stdout and stderr.
func Default() *Writer {
	return NewWriter(os.Stdout, os.Stderr, terminal.Detect())
}

// NewWriter creates a Writer with custom writers and terminal info.
func NewWriter(out, err io.Writer, term *terminal.Info) *Writer {
	w := &Writer{
		Out:          out,
		Err:          err,
		terminal:     term,
		successColor: color.New(color.FgGreen),
		errorColor:   color.New(color.FgRed),
		warningColor: color.New(color.FgYellow),
		infoColor:    color.New(color.FgCyan),
		mutedColor:   color.New(color.FgHiBlack),
		headingColor: color.New(color.Bold),
	}

	if !term.ColorEnabled() {
		color.NoColor = true
	}

	return w
}

// WithContext stores the Writer in the context.
func (w *Writer) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, w)
}

// FromContext retrieves the Writer from context, or returns Default().
func FromContext(ctx context.Context) *Writer {
	if w, ok := ctx.Value(contextKey{}).(*Writer); ok {
		return w
	}

	return Default()
}

// Terminal returns the terminal info.
func (w *Writer) Terminal() *terminal.Info {
	return w.terminal
}

// SetNoColor disables colored output.
func (w *Writer) SetNoColor(disabled bool) {
	w.terminal.ForceFlag = disabled
	if disabled {
		color.NoColor = true
	}
}

// Print writes to stdout unless quiet.
func (w *Writer) Print(format string, args ...interface{}) {
	if !w.Quiet {
		fmt.Fprintf(w.Out, format, args...)
	}
}

// Println writes a line to stdout unless quiet.
func (w *Writer) Println(args ...interface{}) {
	if !w.Quiet {
		fmt.Fprintln(w.Out, args...)
	}
}

// PrintJSON writes v as indented JSON. Quiet mode does not apply.
func (w *Writer) PrintJSON(v interface{}) error {
	enc := json.NewEncoder(w.Out)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// Error writes to stderr.
func (w *Writer) Error(format string, args ...interface{}) {
	fmt.Fprintf(w.Err, format, args...)
}

// Write implements io.Writer, writing to Out.
func (w *Writer) Write(p []byte) (n int, err error) {
	if w.Quiet {
		return len(p), nil
	}

	return w.Out.Write(p)
}

// Debug writes to stderr only in verbose mode, keeping stdout clean for
// piped results.
func (w *Writer) Debug(format string, args ...interface{}) {
	if w.Verbose {
		w.mutedColor.Fprintf(w.Err, "[debug] "+format+"\n", args...)
	}
}

// Heading prints a title underlined to its own width, followed by a blank
// line.
func (w *Writer) Heading(title string) {
	if w.Quiet {
		return
	}

	if w.terminal.ColorEnabled() {
		w.headingColor.Fprintln(w.Out, title)
	} else {
		fmt.Fprintln(w.Out, title)
	}

	fmt.Fprintln(w.Out, strings.Repeat("=", len(title)))
	fmt.Fprintln(w.Out)
}

func (w *Writer) writeStatus(writer io.Writer, tone *color.Color, prefix, message string) {
	if w.terminal.ColorEnabled() {
		tone.Fprint(writer, prefix+" ")
		fmt.Fprintln(writer, message)

		return
	}

	fmt.Fprintln(writer, prefix+" "+message)
}

// Success writes a message prefixed with a checkmark.
func (w *Writer) Success(format string, args ...interface{}) {
	if w.Quiet {
		return
	}

	w.writeStatus(w.Out, w.successColor, CheckMark, fmt.Sprintf(format, args...))
}

// Failure writes to stderr with an X mark. Quiet mode does not apply.
func (w *Writer) Failure(format string, args ...interface{}) {
	w.writeStatus(w.Err, w.errorColor, XMark, fmt.Sprintf(format, args...))
}

// Warning writes a warning message.
func (w *Writer) Warning(format string, args ...interface{}) {
	if w.Quiet {
		return
	}

	w.writeStatus(w.Out, w.warningColor, WarningMark, fmt.Sprintf(format, args...))
}

// Info writes an info message.
func (w *Writer) Info(format string, args ...interface{}) {
	if w.Quiet {
		return
	}

	w.writeStatus(w.Out, w.infoColor, InfoMark, fmt.Sprintf(format, args...))
}

// Muted writes gray text.
func (w *Writer) Muted(format string, args ...interface{}) {
	if w.Quiet {
		return
	}

	msg := fmt.Sprintf(format, args...)
	if w.terminal.ColorEnabled() {
		w.mutedColor.Fprintln(w.Out, msg)
	} else {
		fmt.Fprintln(w.Out, msg)
	}
}

// Status symbols
const (
	CheckMark   = "\u2713" // ✓
	XMark       = "\u2717" // ✗
	WarningMark = "\u26A0" // ⚠
	InfoMark    = "\u2139" // ℹ
)

// Busy runs fn while a spinner shows message. The spinner only animates on
// an interactive terminal; otherwise fn runs silently so that captured
// output matches what a script would read.
func (w *Writer) Busy(message string, fn func()) {
	if w.Quiet || w.JSON || !w.terminal.SpinnersEnabled() {
		fn()
		return
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Writer = w.Err
	s.Suffix = " " + message

	s.Start()
	defer s.Stop()

	fn()
}
