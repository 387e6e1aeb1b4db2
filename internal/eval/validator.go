package eval

import (
	"errors"
	"fmt"
	"strings"

	"go.starlark.net/syntax"
)

// SyntaxError is the position and message of a rejected submission.
type SyntaxError struct {
	Line int
	Col  int
	Msg  string

	// Incomplete is set when the source ends before the construct it opened
	// is finished, so more lines would make it valid.
	Incomplete bool
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Col, e.Msg)
}

// IsIncomplete reports whether more input could make the source valid.
func (e *SyntaxError) IsIncomplete() bool {
	return e.Incomplete
}

// Validator accepts or rejects prompt submissions by parsing them.
type Validator struct {
	opts *syntax.FileOptions
}

// NewValidator creates a Validator for the prompt dialect.
func NewValidator() *Validator {
	return &Validator{opts: FileOptions()}
}

// CheckSyntax returns nil when text may be submitted, or a *SyntaxError.
// Blank text, shell escapes starting with '!' and the Ctrl-Z quit marker are
// always accepted.
func (v *Validator) CheckSyntax(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || strings.HasPrefix(trimmed, "!") || strings.HasPrefix(text, "\x1a") {
		return nil
	}

	if _, err := v.opts.ParseExpr(StdinName, text, 0); err == nil {
		return nil
	}

	_, err := v.opts.Parse(StdinName, text, 0)
	if err == nil {
		return nil
	}

	var synErr syntax.Error
	if !errors.As(err, &synErr) {
		return &SyntaxError{Line: 1, Col: 1, Msg: err.Error()}
	}

	return &SyntaxError{
		Line:       int(synErr.Pos.Line),
		Col:        int(synErr.Pos.Col),
		Msg:        synErr.Msg,
		Incomplete: incomplete(synErr.Msg),
	}
}

func incomplete(msg string) bool {
	return strings.Contains(msg, "end of file") || strings.Contains(msg, "EOF")
}
