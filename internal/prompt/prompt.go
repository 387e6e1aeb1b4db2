// Package prompt provides interactive prompts for the Ember CLI.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/musher-dev/ember/internal/output"
)

// errCanceled is returned when input ends before an answer was given.
var errCanceled = errors.New("prompt canceled")

// IsCanceled reports whether err came from an abandoned prompt.
func IsCanceled(err error) bool {
	return errors.Is(err, errCanceled)
}

// Prompter handles interactive prompts.
type Prompter struct {
	out    *output.Writer
	reader *bufio.Reader
	isTTY  func() bool
}

// New creates a Prompter reading from stdin.
func New(out *output.Writer) *Prompter {
	return NewWithReader(out, os.Stdin, func() bool {
		return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
	})
}

// NewWithReader creates a Prompter reading answers from in. isTTY reports
// whether prompting is possible at all.
func NewWithReader(out *output.Writer, in io.Reader, isTTY func() bool) *Prompter {
	return &Prompter{
		out:    out,
		reader: bufio.NewReader(in),
		isTTY:  isTTY,
	}
}

// CanPrompt returns true if interactive prompts are available.
func (p *Prompter) CanPrompt() bool {
	return p.isTTY() && !p.out.NoInput
}

// Confirm prompts for a yes/no confirmation.
func (p *Prompter) Confirm(message string, defaultValue bool) (bool, error) {
	defaultStr := "y/N"
	if defaultValue {
		defaultStr = "Y/n"
	}

	p.out.Print("%s [%s]: ", message, defaultStr)

	input, err := p.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && input == "" {
			p.out.Println()
			return defaultValue, errCanceled
		}

		if !errors.Is(err, io.EOF) {
			return defaultValue, fmt.Errorf("failed to read input: %w", err)
		}
	}

	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return defaultValue, nil
	}

	return input == "y" || input == "yes", nil
}
