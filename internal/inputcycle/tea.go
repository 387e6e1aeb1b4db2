package inputcycle

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Styles controls how the prompt is drawn.
type Styles struct {
	Prompt       lipgloss.Style
	Continuation lipgloss.Style
	Error        lipgloss.Style
}

// DefaultStyles returns the standard prompt styles.
func DefaultStyles() Styles {
	return Styles{
		Prompt:       lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		Continuation: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Error:        lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	}
}

// TeaRenderer is the default Renderer: a bubbletea program around a
// multi-line textarea.
type TeaRenderer struct {
	in     io.Reader
	styles Styles
}

// TeaOption configures a TeaRenderer.
type TeaOption func(*TeaRenderer)

// WithInput sets the keyboard source. It defaults to os.Stdin.
func WithInput(r io.Reader) TeaOption {
	return func(t *TeaRenderer) {
		if r != nil {
			t.in = r
		}
	}
}

// WithStyles replaces the prompt styles.
func WithStyles(s Styles) TeaOption {
	return func(t *TeaRenderer) {
		t.styles = s
	}
}

// NewTeaRenderer creates the default renderer.
func NewTeaRenderer(opts ...TeaOption) *TeaRenderer {
	t := &TeaRenderer{in: os.Stdin, styles: DefaultStyles()}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// pendingMsg reports queued background output on the Token.
type pendingMsg struct{}

// printedMsg follows a batch of background lines once the renderer has
// taken them.
type printedMsg struct{}

// RenderPrompt runs the prompt program until the user decides. All drawing
// goes through ev.Token.
func (t *TeaRenderer) RenderPrompt(ctx context.Context, req Request, ev *Events) error {
	m := newPromptModel(req, ev, t.styles)

	p := tea.NewProgram(m,
		tea.WithInput(t.in),
		tea.WithOutput(ev.Token),
		tea.WithContext(ctx),
		tea.WithoutSignalHandler(),
	)

	fwdCtx, stop := context.WithCancel(ctx)
	defer stop()

	go forward(fwdCtx, p, ev)

	_, err := p.Run()
	if err != nil && errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return ctx.Err()
	}

	return err
}

// forward feeds resize events and background output wakeups into the
// program until ctx is done. Lines are only taken off the Token by the live
// model, so a wakeup that arrives after the prompt finished leaves them queued
// for the arbiter to write on release.
func forward(ctx context.Context, p *tea.Program, ev *Events) {
	for {
		select {
		case <-ctx.Done():
			return
		case size, ok := <-ev.Resize:
			if !ok {
				return
			}

			p.Send(tea.WindowSizeMsg{Width: size.Width, Height: size.Height})
		case <-ev.Token.Pending():
			p.Send(pendingMsg{})
		}
	}
}

type promptModel struct {
	ta      textarea.Model
	req     Request
	ev      *Events
	styles  Styles
	height  int
	history []string
	histPos int
	draft   string
	errText string
	done    bool
	// printing counts batches handed to tea.Println and not yet
	// acknowledged; quitting waits for it to drop to zero.
	printing int
}

func newPromptModel(req Request, ev *Events, styles Styles) promptModel {
	message := req.Prompt.Message
	cont := req.Prompt.Continuation

	if cont == "" {
		cont = strings.Repeat(".", max(lipgloss.Width(message)-1, 0)) + " "
	}

	first := styles.Prompt.Render(message)
	rest := styles.Continuation.Render(cont)

	ta := textarea.New()
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.MaxHeight = 0
	ta.Placeholder = ""
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.SetPromptFunc(max(lipgloss.Width(message), lipgloss.Width(cont)), func(lineIdx int) string {
		if lineIdx == 0 {
			return first
		}

		return rest
	})
	ta.SetWidth(ev.Size.Width)
	ta.SetHeight(1)
	ta.Focus()

	var history []string
	if req.History != nil {
		history = req.History.Entries()
	}

	return promptModel{
		ta:      ta,
		req:     req,
		ev:      ev,
		styles:  styles,
		height:  ev.Size.Height,
		history: history,
		histPos: len(history),
	}
}

func (m promptModel) Init() tea.Cmd {
	if m.req.Prompt.Title != "" {
		return tea.Batch(textarea.Blink, tea.SetWindowTitle(m.req.Prompt.Title))
	}

	return textarea.Blink
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case pendingMsg:
		if m.done {
			return m, nil
		}

		return m.printBackground()
	case printedMsg:
		m.printing--
		if m.done && m.printing == 0 {
			return m, tea.Quit
		}

		return m, nil
	case tea.WindowSizeMsg:
		m.ta.SetWidth(msg.Width)
		m.height = msg.Height
		m.fitHeight()

		return m, nil
	case tea.KeyMsg:
		if m.done {
			return m, nil
		}

		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.ta, cmd = m.ta.Update(msg)

	return m, cmd
}

func (m promptModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Type == tea.KeyCtrlC:
		m.ev.Abort()
		return m.finish()
	case msg.Type == tea.KeyCtrlD && m.ta.Value() == "":
		m.ev.EndOfInput()
		return m.finish()
	case msg.Type == tea.KeyCtrlZ && m.ta.Value() == "":
		m.ev.Submit("\x1a")
		return m.finish()
	case msg.Type == tea.KeyCtrlJ, msg.Type == tea.KeyEnter && msg.Alt:
		m.insertNewline()
		return m, nil
	case msg.Type == tea.KeyEnter:
		return m.submit()
	case msg.Type == tea.KeyUp && m.ta.Line() == 0 && len(m.history) > 0:
		m.recall(-1)
		return m, nil
	case msg.Type == tea.KeyDown && m.ta.Line() == m.ta.LineCount()-1 && m.histPos < len(m.history):
		m.recall(1)
		return m, nil
	}

	m.errText = ""

	var cmd tea.Cmd
	m.ta, cmd = m.ta.Update(msg)
	m.fitHeight()

	return m, cmd
}

func (m promptModel) submit() (tea.Model, tea.Cmd) {
	text := m.ta.Value()

	if m.req.Validator != nil {
		if err := m.req.Validator.CheckSyntax(text); err != nil {
			var incomplete interface{ IsIncomplete() bool }
			if errors.As(err, &incomplete) && incomplete.IsIncomplete() {
				m.insertNewline()
				return m, nil
			}

			m.errText = err.Error()

			return m, nil
		}
	}

	m.ev.Submit(text)

	return m.finish()
}

func (m *promptModel) insertNewline() {
	m.errText = ""
	m.ta.InsertString("\n")
	m.fitHeight()
}

// recall moves through history; step is -1 for older and +1 for newer.
func (m *promptModel) recall(step int) {
	if m.histPos == len(m.history) {
		m.draft = m.ta.Value()
	}

	m.histPos = min(max(m.histPos+step, 0), len(m.history))

	if m.histPos == len(m.history) {
		m.ta.SetValue(m.draft)
	} else {
		m.ta.SetValue(m.history[m.histPos])
	}

	m.errText = ""
	m.fitHeight()
}

func (m *promptModel) fitHeight() {
	limit := max(m.height-2, 1)
	m.ta.SetHeight(min(max(m.ta.LineCount(), 1), limit))
}

// printBackground moves queued background lines above the prompt.
func (m promptModel) printBackground() (tea.Model, tea.Cmd) {
	var sb strings.Builder

	m.ev.Token.Flush(func(batch []byte) {
		sb.Write(batch)
	})

	if sb.Len() == 0 {
		return m, nil
	}

	m.printing++
	text := strings.TrimSuffix(sb.String(), "\n")

	return m, tea.Sequence(tea.Println(text), func() tea.Msg { return printedMsg{} })
}

func (m promptModel) finish() (tea.Model, tea.Cmd) {
	m.done = true
	m.ta.Blur()

	if m.printing > 0 {
		return m, nil
	}

	return m, tea.Quit
}

func (m promptModel) View() string {
	if m.done {
		return m.transcript() + "\n"
	}

	view := m.ta.View()
	if m.errText != "" {
		view += "\n" + m.styles.Error.Render(m.errText)
	}

	return view
}

// transcript is the final, cursor-free rendering of what was entered.
func (m promptModel) transcript() string {
	lines := strings.Split(m.ta.Value(), "\n")

	var sb strings.Builder

	for i, line := range lines {
		if i == 0 {
			sb.WriteString(m.styles.Prompt.Render(m.req.Prompt.Message))
		} else {
			sb.WriteString("\n")
			sb.WriteString(m.styles.Continuation.Render(m.continuation()))
		}

		sb.WriteString(line)
	}

	return sb.String()
}

func (m promptModel) continuation() string {
	if m.req.Prompt.Continuation != "" {
		return m.req.Prompt.Continuation
	}

	return strings.Repeat(".", max(lipgloss.Width(m.req.Prompt.Message)-1, 0)) + " "
}
