// Package ui renders the controller's View in a terminal or to the log.
package ui

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"voice-agent/internal/application"
)

// Presser is the single button the terminal exposes.
type Presser interface {
	Press()
}

var (
	titleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	buttonStyle     = lipgloss.NewStyle().Padding(0, 2).Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63"))
	recordingStyle  = buttonStyle.BorderForeground(lipgloss.Color("196")).Foreground(lipgloss.Color("196"))
	disabledStyle   = buttonStyle.BorderForeground(lipgloss.Color("240")).Foreground(lipgloss.Color("240"))
	statusStyle     = lipgloss.NewStyle().Italic(true)
	transcriptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Width(60)
	noticeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	mutedStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type viewMsg application.View

// Renderer hands views from the controller goroutine to the terminal program.
// Render never blocks; only the newest view is kept.
type Renderer struct {
	latest  atomic.Pointer[application.View]
	changed chan struct{}
}

func NewRenderer() *Renderer {
	return &Renderer{changed: make(chan struct{}, 1)}
}

func (r *Renderer) Render(view application.View) {
	r.latest.Store(&view)
	select {
	case r.changed <- struct{}{}:
	default:
	}
}

func (r *Renderer) wait() tea.Cmd {
	return func() tea.Msg {
		<-r.changed
		return viewMsg(*r.latest.Load())
	}
}

type Model struct {
	presser  Presser
	renderer *Renderer
	view     application.View
	spinner  spinner.Model
}

func NewModel(presser Presser, renderer *Renderer, initial application.View) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return Model{
		presser:  presser,
		renderer: renderer,
		view:     initial,
		spinner:  s,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.renderer.wait())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ", "enter":
			if m.view.Enabled {
				m.presser.Press()
			}
		}
		return m, nil
	case viewMsg:
		m.view = application.View(msg)
		return m, m.renderer.wait()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Voice Agent"))
	b.WriteString("\n\n")
	b.WriteString(m.button())
	b.WriteString("\n")
	b.WriteString(statusStyle.Render(m.view.Status))
	b.WriteString("\n")

	if m.view.Transcript != "" {
		b.WriteString("\n")
		b.WriteString(transcriptStyle.Render(m.view.Transcript))
		b.WriteString("\n")
	}
	if m.view.Notice != "" {
		b.WriteString("\n")
		b.WriteString(noticeStyle.Render(m.view.Notice))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("session " + m.view.SessionID + "  space: talk  q: quit"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) button() string {
	switch {
	case m.view.Icon == application.IconSpinner:
		return disabledStyle.Render(m.spinner.View() + " wait")
	case m.view.Recording:
		return recordingStyle.Render("■ stop")
	case !m.view.Enabled:
		return disabledStyle.Render("● mic")
	default:
		return buttonStyle.Render("● mic")
	}
}

// Run blocks until the user quits or ctx is cancelled.
func Run(ctx context.Context, presser Presser, renderer *Renderer, initial application.View) error {
	program := tea.NewProgram(
		NewModel(presser, renderer, initial),
		tea.WithContext(ctx),
		tea.WithAltScreen(),
	)

	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
