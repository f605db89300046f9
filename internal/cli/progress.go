package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ProgressSpinner shows a spinner on stderr while a request is in flight
type ProgressSpinner struct {
	program *tea.Program
	done    chan struct{}
	message string
	plain   bool
	started bool
	out     io.Writer
}

// NewProgressSpinner creates a spinner. Without a terminal, or with
// noColor, it degrades to a single line of text.
func NewProgressSpinner(message string, noColor bool) *ProgressSpinner {
	p := &ProgressSpinner{
		done:    make(chan struct{}),
		message: message,
		out:     os.Stderr,
		plain:   noColor || os.Getenv("CI") != "" || !isTerminal(os.Stderr),
	}
	if p.plain {
		return p
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	model := spinnerModel{
		spinner: s,
		message: message,
		style:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
	p.program = tea.NewProgram(model, tea.WithOutput(os.Stderr), tea.WithInput(nil))
	return p
}

// Start begins the spinner in a goroutine
func (p *ProgressSpinner) Start() {
	p.started = true
	if p.plain {
		fmt.Fprintf(p.out, "%s...\n", p.message)
		close(p.done)
		return
	}
	go func() {
		defer close(p.done)
		_, _ = p.program.Run()
	}()
}

// Stop stops the spinner and waits for the terminal to be restored
func (p *ProgressSpinner) Stop() {
	if !p.started {
		return
	}
	if p.program != nil {
		p.program.Quit()
	}
	<-p.done
}

type spinnerModel struct {
	spinner spinner.Model
	message string
	style   lipgloss.Style
}

func (m spinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m spinnerModel) View() string {
	return fmt.Sprintf("%s %s\n", m.spinner.View(), m.style.Render(m.message))
}
