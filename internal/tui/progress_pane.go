package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/researcher/internal/store"
)

// ProgressPaneModel summarizes every task and the selected task's completeness.
type ProgressPaneModel struct {
	bar      progress.Model
	counts   map[string]int
	selected TaskState
	hasTask  bool
	width    int
	height   int
	focused  bool
}

// NewProgressPaneModel creates an empty progress pane.
func NewProgressPaneModel() ProgressPaneModel {
	return ProgressPaneModel{
		bar:    progress.New(progress.WithDefaultGradient()),
		counts: map[string]int{},
	}
}

// Sync copies the figures to show from the task pane.
func (m *ProgressPaneModel) Sync(tasks TaskPaneModel) {
	m.counts = tasks.Counts()
	m.selected, m.hasTask = tasks.Selected()
}

// View renders the pane.
func (m ProgressPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Progress")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	total := 0
	for _, n := range m.counts {
		total += n
	}
	fmt.Fprintf(&b, "Total:     %d\n", total)
	fmt.Fprintf(&b, "Running:   %s\n", StyleStatusRunning.Render(fmt.Sprint(m.counts[store.StatusRunning])))
	fmt.Fprintf(&b, "Paused:    %s\n", StyleStatusPaused.Render(fmt.Sprint(m.counts[store.StatusPaused])))
	fmt.Fprintf(&b, "Completed: %s\n", StyleStatusComplete.Render(fmt.Sprint(m.counts[store.StatusCompleted])))
	fmt.Fprintf(&b, "Failed:    %s\n", StyleStatusFailed.Render(fmt.Sprint(m.counts[store.StatusFailed])))

	if m.hasTask {
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s\n", truncate(m.selected.Query, max(m.width-6, 10)))
		fmt.Fprintf(&b, "Round %d, %d records\n", m.selected.Rounds, m.selected.Records)
		b.WriteString(m.bar.ViewAs(min(m.selected.Completeness, 1)))
		b.WriteString("\n")
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// SetSize updates the pane dimensions.
func (m *ProgressPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.bar.Width = min(max(w-6, 10), 40)
}

// SetFocused updates the focus state.
func (m *ProgressPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
