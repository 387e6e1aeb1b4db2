package pager

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/musher-dev/ember/internal/arbiter"
)

// MorePrompt is the text shown between screens.
const MorePrompt = "-- MORE --"

// TeaPrompter is the default Prompter, a one-line bubbletea program.
type TeaPrompter struct {
	in    io.Reader
	style lipgloss.Style
}

// NewTeaPrompter creates a prompter reading keys from in.
func NewTeaPrompter(in io.Reader) *TeaPrompter {
	return &TeaPrompter{
		in:    in,
		style: lipgloss.NewStyle().Reverse(true),
	}
}

// More shows the prompt and returns the chosen action.
func (p *TeaPrompter) More(ctx context.Context, tok *arbiter.Token) (Action, error) {
	prog := tea.NewProgram(moreModel{style: p.style, action: Abort},
		tea.WithInput(p.in),
		tea.WithOutput(tok),
		tea.WithContext(ctx),
		tea.WithoutSignalHandler(),
	)

	final, err := prog.Run()
	if err != nil {
		return Abort, err
	}

	m, ok := final.(moreModel)
	if !ok {
		return Abort, nil
	}

	return m.action, nil
}

type moreModel struct {
	style  lipgloss.Style
	action Action
	done   bool
}

func (m moreModel) Init() tea.Cmd {
	return nil
}

func (m moreModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	action, ok := keyAction(key)
	if !ok {
		return m, nil
	}

	m.action = action
	m.done = true

	return m, tea.Quit
}

func (m moreModel) View() string {
	if m.done {
		return ""
	}

	return m.style.Render(MorePrompt)
}

// keyAction maps a key to a pager action. Unbound keys report false.
func keyAction(key tea.KeyMsg) (Action, bool) {
	switch key.Type {
	case tea.KeyEnter, tea.KeyDown:
		return NextLine, true
	case tea.KeySpace:
		return NextPage, true
	case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
		return Abort, true
	case tea.KeyRunes:
		switch string(key.Runes) {
		case "a":
			return ShowAll, true
		case "q":
			return Abort, true
		case " ":
			return NextPage, true
		}
	}

	return 0, false
}
