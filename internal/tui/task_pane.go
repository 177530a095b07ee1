package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/researcher/internal/events"
	"github.com/aristath/researcher/internal/store"
)

const listWidth = 30

// TaskState is what the TUI knows about one research task.
type TaskState struct {
	ID           string
	Query        string
	Status       string // One of the store.Status* values
	Stage        string
	Question     string
	Rounds       int
	Records      int
	Completeness float64
	Log          []string
	StartTime    time.Time
	Duration     time.Duration
}

// TaskPaneModel shows the task list and the event log of the selected task.
type TaskPaneModel struct {
	tasks       map[string]*TaskState
	order       []string // Submission order
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
	updateTag   int
}

// NewTaskPaneModel creates an empty task pane.
func NewTaskPaneModel() TaskPaneModel {
	return TaskPaneModel{
		tasks:    make(map[string]*TaskState),
		viewport: viewport.New(0, 0),
	}
}

// tickMsg debounces viewport refreshes while a round is streaming events.
type tickMsg struct {
	tag int
}

// Update handles keys and bus events.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.order)-1 {
				m.selectedIdx++
				m.refresh()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.refresh()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TaskSubmittedEvent:
		if _, exists := m.tasks[msg.ID]; !exists {
			m.tasks[msg.ID] = &TaskState{
				ID:        msg.ID,
				Query:     msg.Query,
				Status:    store.StatusRunning,
				Stage:     "created",
				StartTime: msg.Timestamp,
			}
			m.order = append(m.order, msg.ID)
			if len(m.order) == 1 {
				m.selectedIdx = 0
			}
		}
		return m.logLine(msg.ID, msg.Timestamp, fmt.Sprintf("submitted %q factors=%s", msg.Query, strings.Join(msg.Factors, ",")))

	case events.StateChangedEvent:
		if task, ok := m.tasks[msg.ID]; ok {
			task.Stage = msg.To
			task.Status = msg.Status
		}
		return m.logLine(msg.ID, msg.Timestamp, fmt.Sprintf("%s -> %s", msg.From, msg.To))

	case events.TaskPausedEvent:
		if task, ok := m.tasks[msg.ID]; ok {
			task.Status = store.StatusPaused
			task.Question = msg.Question
		}
		return m.logLine(msg.ID, msg.Timestamp, "needs clarification: "+msg.Question)

	case events.TaskResumedEvent:
		if task, ok := m.tasks[msg.ID]; ok {
			task.Status = store.StatusRunning
			task.Question = ""
			task.Query = msg.Query
		}
		return m.logLine(msg.ID, msg.Timestamp, fmt.Sprintf("resumed with %q", msg.Query))

	case events.RoundCompletedEvent:
		if task, ok := m.tasks[msg.ID]; ok {
			task.Rounds = msg.Round
			task.Records = msg.Records
			task.Completeness = msg.Completeness
		}
		return m.logLine(msg.ID, msg.Timestamp, fmt.Sprintf("round %d: %d new sources, %d accepted, %d records, completeness %.2f, %s",
			msg.Round, msg.NewSources, msg.Accepted, msg.Records, msg.Completeness, msg.Decision))

	case events.SourceFailedEvent:
		return m.logLine(msg.ID, msg.Timestamp, fmt.Sprintf("round %d: %s failed: %s", msg.Round, msg.Source, msg.Err))

	case events.EnrichmentDegradedEvent:
		return m.logLine(msg.ID, msg.Timestamp, "enrichment skipped: "+msg.Reason)

	case events.TaskCompletedEvent:
		if task, ok := m.tasks[msg.ID]; ok {
			task.Status = store.StatusCompleted
			task.Records = msg.Records
			task.Rounds = msg.Rounds
			task.Duration = msg.Duration
		}
		return m.logLine(msg.ID, msg.Timestamp, fmt.Sprintf("completed in %v: %d records", msg.Duration.Round(time.Millisecond), msg.Records))

	case events.TaskFailedEvent:
		if task, ok := m.tasks[msg.ID]; ok {
			task.Status = store.StatusFailed
			task.Duration = msg.Duration
		}
		return m.logLine(msg.ID, msg.Timestamp, fmt.Sprintf("failed (%s): %s", msg.Kind, msg.Detail))

	case tickMsg:
		if msg.tag == m.updateTag {
			m.refresh()
		}
	}

	return m, cmd
}

// logLine appends a line to a task's log and schedules a debounced refresh
// when that task is on screen.
func (m TaskPaneModel) logLine(id string, at time.Time, line string) (TaskPaneModel, tea.Cmd) {
	task, ok := m.tasks[id]
	if !ok {
		return m, nil
	}
	task.Log = append(task.Log, at.Format("15:04:05")+" "+line)
	if m.SelectedID() != id {
		return m, nil
	}
	m.updateTag++
	tag := m.updateTag
	return m, tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
		return tickMsg{tag: tag}
	})
}

// View renders the pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderList(),
		lipgloss.NewStyle().
			Width(m.width-listWidth-4).
			Height(m.height-2).
			Render(m.renderDetail()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m TaskPaneModel) renderList() string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(listWidth, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.order) == 0 {
		b.WriteString(StyleStatusPending.Render("Press n to start"))
	}
	for i, id := range m.order {
		task := m.tasks[id]
		line := fmt.Sprintf("%s %s", StatusIcon(task.Status), truncate(task.Query, listWidth-4))
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(listWidth).
		Height(m.height - 2).
		Render(b.String())
}

func (m TaskPaneModel) renderDetail() string {
	task, ok := m.Selected()
	if !ok {
		return m.viewport.View()
	}
	header := fmt.Sprintf("%s  %s  stage=%s rounds=%d records=%d",
		StatusIcon(task.Status), task.ID, task.Stage, task.Rounds, task.Records)
	if task.Question != "" {
		header += "\n" + StyleStatusPaused.Render("? "+task.Question+"  (r to answer)")
	}
	return header + "\n\n" + m.viewport.View()
}

// StatusIcon returns a styled indicator for a client-facing status.
func StatusIcon(status string) string {
	switch status {
	case store.StatusRunning:
		return StyleStatusRunning.Render("●")
	case store.StatusPaused:
		return StyleStatusPaused.Render("?")
	case store.StatusCompleted:
		return StyleStatusComplete.Render("✓")
	case store.StatusFailed:
		return StyleStatusFailed.Render("✗")
	default:
		return StyleStatusPending.Render("○")
	}
}

// SelectedID returns the id of the selected task, or "" when there is none.
func (m TaskPaneModel) SelectedID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.order) {
		return m.order[m.selectedIdx]
	}
	return ""
}

// Selected returns a copy of the selected task.
func (m TaskPaneModel) Selected() (TaskState, bool) {
	task, ok := m.tasks[m.SelectedID()]
	if !ok {
		return TaskState{}, false
	}
	return *task, true
}

// Counts returns how many tasks are in each client-facing status.
func (m TaskPaneModel) Counts() map[string]int {
	counts := make(map[string]int, 4)
	for _, task := range m.tasks {
		counts[task.Status]++
	}
	return counts
}

func (m *TaskPaneModel) refresh() {
	task, ok := m.Selected()
	if !ok {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}
	m.viewport.SetContent(strings.Join(task.Log, "\n"))
	m.viewport.GotoBottom()
}

func (m *TaskPaneModel) resizeViewport() {
	m.viewport.Width = max(m.width-listWidth-4, 10)
	m.viewport.Height = max(m.height-7, 5) // Borders and the detail header
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 3 || len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
