// Package tui is the terminal front end: it follows research tasks through
// the event bus and submits queries and clarification answers.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/researcher/internal/config"
	"github.com/aristath/researcher/internal/events"
	"github.com/aristath/researcher/internal/research"
	"github.com/aristath/researcher/internal/store"
)

// Controller is the part of the orchestrator service the TUI drives.
type Controller interface {
	Submit(query string, factors []string) (research.Task, error)
	Resume(id, query string) (store.View, error)
}

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneTasks PaneID = iota
	PaneProgress
	paneCount
)

// controllerDoneMsg reports the outcome of a Submit or Resume call.
type controllerDoneMsg struct {
	err error
}

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	taskPane     TaskPaneModel
	progressPane ProgressPaneModel
	promptPane   PromptPaneModel
	settingsPane SettingsPaneModel
	controller   Controller
	focusedPane  PaneID
	eventSub     <-chan events.Event
	width        int
	height       int
	quitting     bool
	showSettings bool
	lastErr      error
}

// New creates the TUI model. It subscribes to every topic of bus.
func New(bus *events.Bus, controller Controller, cfg *config.Config, globalPath, projectPath string) Model {
	return Model{
		taskPane:     NewTaskPaneModel(),
		progressPane: NewProgressPaneModel(),
		promptPane:   NewPromptPaneModel(),
		settingsPane: NewSettingsPaneModel(cfg, globalPath, projectPath),
		controller:   controller,
		focusedPane:  PaneTasks,
		eventSub:     bus.SubscribeAll(256),
	}
}

// Init starts listening for bus events.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.eventSub)
}

// waitForEvent returns a command that waits for the next bus event.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.promptPane.IsVisible() {
			var cmd tea.Cmd
			m.promptPane, cmd = m.promptPane.Update(msg)
			return m, cmd
		}
		if m.showSettings {
			var cmd tea.Cmd
			m.settingsPane, cmd = m.settingsPane.Update(msg)
			if !m.settingsPane.IsVisible() {
				m.showSettings = false
			}
			return m, cmd
		}

		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeyNew:
			m.lastErr = nil
			cmds = append(cmds, m.promptPane.OpenSubmit())

		case KeyAnswer:
			task, ok := m.taskPane.Selected()
			if ok && task.Status == store.StatusPaused {
				m.lastErr = nil
				cmds = append(cmds, m.promptPane.OpenAnswer(task.ID, task.Question))
			}

		case KeySettings:
			m.showSettings = true
			m.settingsPane.SetVisible(true)
			cmds = append(cmds, m.settingsPane.Init())

		case KeyTab:
			m.focusedPane = (m.focusedPane + 1) % paneCount
			m.updateFocusStates()

		case KeyShiftTab:
			m.focusedPane = (m.focusedPane + paneCount - 1) % paneCount
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneTasks
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneProgress
			m.updateFocusStates()

		default:
			if m.focusedPane == PaneTasks {
				var cmd tea.Cmd
				m.taskPane, cmd = m.taskPane.Update(msg)
				cmds = append(cmds, cmd)
				m.progressPane.Sync(m.taskPane)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.promptPane.SetSize(msg.Width, msg.Height)
		m.settingsPane.SetSize(msg.Width, msg.Height)

	case PromptDoneMsg:
		cmds = append(cmds, m.runPrompt(msg))

	case controllerDoneMsg:
		m.lastErr = msg.err

	case events.Event:
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		m.progressPane.Sync(m.taskPane)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case tickMsg:
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		cmds = append(cmds, cmd)

	default:
		if m.promptPane.IsVisible() {
			var cmd tea.Cmd
			m.promptPane, cmd = m.promptPane.Update(msg)
			cmds = append(cmds, cmd)
		} else if m.showSettings {
			var cmd tea.Cmd
			m.settingsPane, cmd = m.settingsPane.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

// runPrompt calls the controller off the UI goroutine.
func (m Model) runPrompt(msg PromptDoneMsg) tea.Cmd {
	controller := m.controller
	return func() tea.Msg {
		var err error
		switch msg.Mode {
		case PromptSubmit:
			_, err = controller.Submit(msg.Query, msg.Factors)
		case PromptAnswer:
			_, err = controller.Resume(msg.TaskID, msg.Query)
		}
		return controllerDoneMsg{err: err}
	}
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if m.promptPane.IsVisible() {
		return m.promptPane.View()
	}
	if m.showSettings {
		return m.settingsPane.View()
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, m.taskPane.View(), m.progressPane.View())

	footer := HelpView()
	if m.lastErr != nil {
		footer = StyleError.Render("error: " + m.lastErr.Error())
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, footer)
}

// computeLayout gives the task pane 70% of the width and the progress pane the rest.
func (m *Model) computeLayout() {
	availableHeight := m.height - 1 // help bar
	taskWidth := (m.width * 70) / 100

	m.taskPane.SetSize(taskWidth, availableHeight)
	m.progressPane.SetSize(m.width-taskWidth, availableHeight)
	m.updateFocusStates()
}

func (m *Model) updateFocusStates() {
	m.taskPane.SetFocused(m.focusedPane == PaneTasks)
	m.progressPane.SetFocused(m.focusedPane == PaneProgress)
}
