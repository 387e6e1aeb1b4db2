package repl

import (
	"fmt"
	"strings"

	"github.com/musher-dev/ember/internal/config"
	"github.com/musher-dev/ember/internal/inputcycle"
)

// promptStyle decides the input and output prompts for a statement index.
type promptStyle interface {
	in(index int) string
	continuation(width int) string
	out(index int) string
}

type classicPrompt struct{}

func (classicPrompt) in(int) string           { return ">>> " }
func (classicPrompt) continuation(int) string { return "... " }
func (classicPrompt) out(int) string          { return "" }

type ipythonPrompt struct{}

func (ipythonPrompt) in(index int) string { return fmt.Sprintf("In [%d]: ", index) }

func (ipythonPrompt) continuation(width int) string {
	const dots = "...: "
	if width <= len(dots) {
		return dots
	}

	return strings.Repeat(" ", width-len(dots)) + dots
}

func (ipythonPrompt) out(index int) string { return fmt.Sprintf("Out[%d]: ", index) }

func lookupPromptStyle(name string) (promptStyle, bool) {
	switch name {
	case config.PromptStyleClassic:
		return classicPrompt{}, true
	case config.PromptStyleIPython:
		return ipythonPrompt{}, true
	default:
		return nil, false
	}
}

func makePrompt(style promptStyle, index int, title string) inputcycle.Prompt {
	in := style.in(index)

	return inputcycle.Prompt{
		Message:      in,
		Continuation: style.continuation(len(in)),
		Title:        title,
	}
}
