package repl

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.starlark.net/starlark"

	clierrors "github.com/musher-dev/ember/internal/errors"
	"github.com/musher-dev/ember/internal/eval"
)

const tracebackHeader = "Traceback (most recent call last):"

type printStyles struct {
	out   lipgloss.Style
	err   lipgloss.Style
	hint  lipgloss.Style
	trace lipgloss.Style
}

// printer formats evaluation outcomes. Colours follow what w supports.
type printer struct {
	styles printStyles
}

func newPrinter(w io.Writer) *printer {
	r := lipgloss.NewRenderer(w)

	return &printer{styles: printStyles{
		out:   r.NewStyle().Foreground(lipgloss.Color("1")),
		err:   r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		hint:  r.NewStyle().Foreground(lipgloss.Color("8")),
		trace: r.NewStyle().Foreground(lipgloss.Color("8")),
	}}
}

// value renders a result value. Every line after the first is aligned under
// the first one when an output prompt is shown.
func (p *printer) value(v starlark.Value, outPrompt string) string {
	lines := strings.Split(v.String(), "\n")

	var b strings.Builder

	if outPrompt != "" {
		b.WriteString(p.styles.out.Render(outPrompt))
	}

	pad := "\n" + strings.Repeat(" ", len(outPrompt))
	b.WriteString(strings.Join(lines, pad))
	b.WriteString("\n")

	if outPrompt != "" {
		b.WriteString("\n")
	}

	return b.String()
}

// raised renders a traceback-like block ending in "Kind: message".
func (p *printer) raised(err *eval.RaisedError) string {
	var b strings.Builder

	switch {
	case err.Trace != "":
		for _, line := range traceFrames(err.Trace) {
			b.WriteString(p.styles.trace.Render(line))
			b.WriteString("\n")
		}
	case err.Line > 0:
		b.WriteString(p.styles.trace.Render(tracebackHeader))
		b.WriteString("\n")
		b.WriteString(p.styles.trace.Render(positionLine(err)))
		b.WriteString("\n")
	}

	b.WriteString(p.styles.err.Render(err.Error()))
	b.WriteString("\n\n")

	return b.String()
}

// traceFrames keeps the header and frame lines of a Starlark backtrace and
// drops its final error line, which is replaced by the classified one.
func traceFrames(trace string) []string {
	lines := strings.Split(strings.TrimRight(trace, "\n"), "\n")

	frames := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == tracebackHeader || strings.HasPrefix(line, "  ") {
			frames = append(frames, line)
		}
	}

	if len(frames) == 0 || frames[0] != tracebackHeader {
		frames = append([]string{tracebackHeader}, frames...)
	}

	return frames
}

func positionLine(err *eval.RaisedError) string {
	return fmt.Sprintf("  File %q, line %d, column %d", eval.StdinName, err.Line, err.Col)
}

func (p *printer) cancelled() string {
	return "\rKeyboardInterrupt\n\n"
}

// cliError renders a host-side failure with its hint.
func (p *printer) cliError(err error) string {
	var b strings.Builder

	var cliErr *clierrors.CLIError
	if clierrors.As(err, &cliErr) {
		b.WriteString(p.styles.err.Render("Error: " + cliErr.Message))
		b.WriteString("\n")

		if cliErr.Hint != "" {
			b.WriteString(p.styles.hint.Render("Hint: " + cliErr.Hint))
			b.WriteString("\n")
		}
	} else {
		b.WriteString(p.styles.err.Render("Error: " + err.Error()))
		b.WriteString("\n")
	}

	b.WriteString("\n")

	return b.String()
}

func (p *printer) warning(msg string) string {
	return p.styles.err.Render("WARNING | "+msg) + "\n\n"
}
