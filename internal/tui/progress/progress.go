// Package progress shows a spinner on the terminal while a long-running task
// (fetching remote state, applying a plan) runs.
package progress

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	stepStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Reporter updates the step line shown next to the spinner.
type Reporter func(step string)

// StepMsg sets the step line.
type StepMsg string

// DoneMsg ends the program with the task's error.
type DoneMsg struct{ Err error }

// Model is the Bubble Tea model behind Run.
type Model struct {
	Title       string
	Step        string
	Spinner     spinner.Model
	Done        bool
	Err         error
	Interrupted bool
}

// NewModel creates a spinner model showing title.
func NewModel(title string) Model {
	return Model{
		Title:   title,
		Spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return m.Spinner.Tick
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.Interrupted = true
			return m, tea.Quit
		}
		return m, nil

	case StepMsg:
		m.Step = string(msg)
		return m, nil

	case DoneMsg:
		m.Done = true
		m.Err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model
func (m Model) View() string {
	if m.Done || m.Interrupted {
		return ""
	}
	line := m.Spinner.View() + " " + titleStyle.Render(m.Title)
	if m.Step != "" {
		line += " " + stepStyle.Render(m.Step)
	}
	return line + "\n"
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Run calls fn while a spinner titled title is drawn on w. When w is not a
// terminal fn runs with no spinner. Ctrl+C cancels the context passed to fn;
// Run still waits for fn to return.
func Run(ctx context.Context, w io.Writer, title string, fn func(ctx context.Context, report Reporter) error) error {
	if !IsTerminal(w) {
		return fn(ctx, func(string) {})
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewModel(title), tea.WithOutput(w))
	result := make(chan error, 1)
	go func() {
		err := fn(ctx, func(step string) { p.Send(StepMsg(step)) })
		result <- err
		p.Send(DoneMsg{Err: err})
	}()

	final, runErr := p.Run()
	if m, ok := final.(Model); ok && m.Interrupted {
		cancel()
	}
	err := <-result
	if err == nil && runErr != nil && ctx.Err() == nil {
		return runErr
	}
	return err
}
