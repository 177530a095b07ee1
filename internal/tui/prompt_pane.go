package tui

import (
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

// PromptMode says what a completed prompt is for.
type PromptMode int

const (
	PromptSubmit PromptMode = iota // Start a new task
	PromptAnswer                   // Answer a paused task's question
)

// PromptDoneMsg is emitted when the user completes the prompt form.
type PromptDoneMsg struct {
	Mode    PromptMode
	TaskID  string
	Query   string
	Factors []string
}

// PromptPaneModel is the modal form for new queries and clarification answers.
type PromptPaneModel struct {
	form    *huh.Form
	mode    PromptMode
	taskID  string
	title   string
	visible bool
	width   int
	height  int
	input   *promptInput // Bound to the form fields
}

type promptInput struct {
	query   string
	factors string
}

// NewPromptPaneModel creates a hidden prompt pane.
func NewPromptPaneModel() PromptPaneModel {
	return PromptPaneModel{}
}

// OpenSubmit shows the form for a new research query.
func (m *PromptPaneModel) OpenSubmit() tea.Cmd {
	m.mode = PromptSubmit
	m.taskID = ""
	m.title = "New research"
	m.input = &promptInput{}
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("query").
				Title("What should be researched?").
				Placeholder("CRM software for small teams").
				Validate(required).
				Value(&m.input.query),
			huh.NewInput().
				Key("factors").
				Title("Comparison factors").
				Description("Comma separated, leave empty to let the clarifier choose").
				Placeholder("pricing, integrations").
				Value(&m.input.factors),
		),
	)
	return m.show()
}

// OpenAnswer shows the form answering a paused task's question.
func (m *PromptPaneModel) OpenAnswer(taskID, question string) tea.Cmd {
	m.mode = PromptAnswer
	m.taskID = taskID
	m.title = "Clarification"
	m.input = &promptInput{}
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("The research needs more detail").
				Description(question),
			huh.NewInput().
				Key("query").
				Title("Refined query").
				Validate(required).
				Value(&m.input.query),
		),
	)
	return m.show()
}

func (m *PromptPaneModel) show() tea.Cmd {
	m.visible = true
	if m.width > 0 {
		m.form.WithWidth(m.width - 8)
	}
	return m.form.Init()
}

// Update forwards msg to the form and emits PromptDoneMsg once it completes.
func (m PromptPaneModel) Update(msg tea.Msg) (PromptPaneModel, tea.Cmd) {
	if !m.visible || m.form == nil {
		return m, nil
	}
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == KeyEsc {
		m.visible = false
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateAborted:
		m.visible = false
		return m, nil
	case huh.StateCompleted:
		m.visible = false
		done := PromptDoneMsg{
			Mode:    m.mode,
			TaskID:  m.taskID,
			Query:   strings.TrimSpace(m.input.query),
			Factors: splitFactors(m.input.factors),
		}
		return m, func() tea.Msg { return done }
	}
	return m, cmd
}

// View renders the form in a bordered box.
func (m PromptPaneModel) View() string {
	if !m.visible || m.form == nil {
		return ""
	}
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render(m.title)
	body := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(max(m.width-4, 20)).
		Render(m.form.View())
	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}

// SetSize updates the pane dimensions.
func (m *PromptPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8)
	}
}

// IsVisible reports whether the form is open.
func (m PromptPaneModel) IsVisible() bool {
	return m.visible
}

func required(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("required")
	}
	return nil
}

func splitFactors(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
