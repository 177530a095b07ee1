package tui

import (
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/researcher/internal/config"
)

// SettingsPaneModel edits the agent and pipeline settings and saves them to
// the global or project config file. Changes apply on the next start.
type SettingsPaneModel struct {
	form        *huh.Form
	config      *config.Config
	globalPath  string
	projectPath string
	fields      *settingsFields
	width       int
	height      int
	visible     bool
	saved       bool
	err         error
}

// settingsFields holds the form values as strings for huh.
type settingsFields struct {
	saveTarget        string
	clarifierProvider string
	clarifierModel    string
	extractorProvider string
	extractorModel    string
	enricherProvider  string
	enricherModel     string
	threshold         string
	maxRounds         string
	targetRecords     string
}

// NewSettingsPaneModel creates a hidden settings pane over cfg.
func NewSettingsPaneModel(cfg *config.Config, globalPath, projectPath string) SettingsPaneModel {
	m := SettingsPaneModel{
		config:      cfg,
		globalPath:  globalPath,
		projectPath: projectPath,
	}
	m.buildForm()
	return m
}

// buildForm resets the fields from the config and constructs the form.
func (m *SettingsPaneModel) buildForm() {
	cfg := m.config
	m.fields = &settingsFields{
		saveTarget:        "global",
		clarifierProvider: cfg.Agents[config.RoleClarifier].Provider,
		clarifierModel:    cfg.Agents[config.RoleClarifier].Model,
		extractorProvider: cfg.Agents[config.RoleExtractor].Provider,
		extractorModel:    cfg.Agents[config.RoleExtractor].Model,
		enricherProvider:  cfg.Agents[config.RoleEnricher].Provider,
		enricherModel:     cfg.Agents[config.RoleEnricher].Model,
		threshold:         strconv.FormatFloat(cfg.Pipeline.Threshold, 'f', -1, 64),
		maxRounds:         strconv.Itoa(cfg.Pipeline.MaxRounds),
		targetRecords:     strconv.Itoa(cfg.Pipeline.TargetRecords),
	}
	f := m.fields

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("Global ("+m.globalPath+")", "global"),
					huh.NewOption("Project ("+m.projectPath+")", "project"),
				).
				Value(&f.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(
			providerInput("Clarifier Provider", &f.clarifierProvider),
			huh.NewInput().Title("Clarifier Model").Value(&f.clarifierModel),
			providerInput("Extractor Provider", &f.extractorProvider),
			huh.NewInput().Title("Extractor Model").Value(&f.extractorModel),
			providerInput("Enricher Provider", &f.enricherProvider),
			huh.NewInput().Title("Enricher Model").Value(&f.enricherModel),
		).Title("Agents"),

		huh.NewGroup(
			huh.NewInput().
				Title("Completeness Threshold").
				Value(&f.threshold).
				Validate(func(s string) error {
					v, err := strconv.ParseFloat(s, 64)
					if err != nil || v < 0 {
						return fmt.Errorf("must be a number >= 0")
					}
					return nil
				}),
			huh.NewInput().
				Title("Max Rounds").
				Value(&f.maxRounds).
				Validate(intAtLeast(1)),
			huh.NewInput().
				Title("Target Records").
				Value(&f.targetRecords).
				Validate(intAtLeast(0)),
		).Title("Pipeline"),
	)
}

func providerInput(title string, value *string) *huh.Input {
	return huh.NewInput().
		Title(title).
		Placeholder("claude").
		Value(value)
}

func intAtLeast(lo int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(s)
		if err != nil || n < lo {
			return fmt.Errorf("must be an integer >= %d", lo)
		}
		return nil
	}
}

// Init initializes the settings form.
func (m SettingsPaneModel) Init() tea.Cmd {
	return m.form.Init()
}

// Update forwards msg to the form and saves once it completes.
func (m SettingsPaneModel) Update(msg tea.Msg) (SettingsPaneModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == KeyEsc {
		m.visible = false
		m.saved = false
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.applyFormToConfig()

		target := m.globalPath
		if m.fields.saveTarget == "project" {
			target = m.projectPath
		}
		if err := config.Save(m.config, target); err != nil {
			m.err = err
			m.saved = false
		} else {
			m.saved = true
			m.err = nil
			m.visible = false
		}
	}

	return m, cmd
}

// applyFormToConfig copies the validated form values into the config.
func (m *SettingsPaneModel) applyFormToConfig() {
	f := m.fields
	if m.config.Agents == nil {
		m.config.Agents = make(map[string]config.AgentConfig)
	}
	setAgent := func(role, provider, model string) {
		if provider == "" {
			return
		}
		m.config.Agents[role] = config.AgentConfig{Provider: provider, Model: model}
	}
	setAgent(config.RoleClarifier, f.clarifierProvider, f.clarifierModel)
	setAgent(config.RoleExtractor, f.extractorProvider, f.extractorModel)
	setAgent(config.RoleEnricher, f.enricherProvider, f.enricherModel)

	if v, err := strconv.ParseFloat(f.threshold, 64); err == nil {
		m.config.Pipeline.Threshold = v
	}
	if n, err := strconv.Atoi(f.maxRounds); err == nil {
		m.config.Pipeline.MaxRounds = n
	}
	if n, err := strconv.Atoi(f.targetRecords); err == nil {
		m.config.Pipeline.TargetRecords = n
	}
}

// View renders the settings form, or the outcome of the last save.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	var content string
	switch {
	case m.err != nil:
		content = StyleError.Bold(true).Render(fmt.Sprintf("✗ Error saving: %v", m.err))
	default:
		content = m.form.View()
	}

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render("⚙ Settings")
	body := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(max(m.width-4, 20)).
		Height(max(m.height-4, 5)).
		Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// SetVisible shows or hides the pane. Showing it rebuilds the form from
// the current config.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.saved = false
	m.err = nil
	if v {
		m.buildForm()
		if m.width > 0 {
			m.form.WithWidth(m.width - 8).WithHeight(m.height - 8)
		}
	}
}

// IsVisible reports whether the pane is shown.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}

// Saved reports whether the last completed form was written to disk.
func (m SettingsPaneModel) Saved() bool {
	return m.saved
}
