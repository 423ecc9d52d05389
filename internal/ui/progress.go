package ui

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// SimpleProgress prints one line per step.
type SimpleProgress struct {
	out io.Writer
}

// NewSimpleProgress creates a SimpleProgress.
func NewSimpleProgress(out io.Writer) *SimpleProgress {
	return &SimpleProgress{out: out}
}

// Step prints the step label.
func (p *SimpleProgress) Step(step Step) {
	_, _ = fmt.Fprintln(p.out, step.String())
}

// Hide does nothing; printed lines stay.
func (p *SimpleProgress) Hide() {}

type stepMsg Step

type hideMsg struct{}

// spinnerModel is the Bubble Tea model behind SpinnerProgress.
type spinnerModel struct {
	spinner spinner.Model
	label   string
	style   lipgloss.Style
	done    bool
}

func newSpinnerModel(step Step) spinnerModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	return spinnerModel{
		spinner: s,
		label:   step.String(),
		style:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
	}
}

func (m spinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stepMsg:
		m.label = Step(msg).String()
		return m, nil
	case hideMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m spinnerModel) View() string {
	if m.done {
		return ""
	}
	return m.spinner.View() + " " + m.style.Render(m.label)
}

// SpinnerProgress animates the current step on a terminal. A program runs
// from the first Step until Hide.
type SpinnerProgress struct {
	out io.Writer

	mu      sync.Mutex
	program *tea.Program
	done    chan struct{}
}

// NewSpinnerProgress creates a SpinnerProgress writing to out.
func NewSpinnerProgress(out io.Writer) *SpinnerProgress {
	return &SpinnerProgress{out: out}
}

// Step shows step, starting the spinner if needed.
func (p *SpinnerProgress) Step(step Step) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.program != nil {
		p.program.Send(stepMsg(step))
		return
	}

	p.program = tea.NewProgram(newSpinnerModel(step),
		tea.WithOutput(p.out),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)
	p.done = make(chan struct{})

	program, done := p.program, p.done
	go func() {
		defer close(done)
		_, _ = program.Run()
	}()
}

// Hide stops the spinner and waits until its line is cleared.
func (p *SpinnerProgress) Hide() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.program == nil {
		return
	}

	p.program.Send(hideMsg{})
	<-p.done

	p.program = nil
	p.done = nil
}
