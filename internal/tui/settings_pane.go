package tui

import (
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/planner/internal/config"
	"github.com/aristath/planner/internal/scheduler"
)

// SettingsPaneModel manages the scheduling settings form overlay.
type SettingsPaneModel struct {
	form        *huh.Form
	config      *config.PlannerConfig
	globalPath  string
	projectPath string
	width       int
	height      int
	visible     bool
	saved       bool
	err         error

	// Form field bindings (strings for Huh)
	saveTarget   string
	policy       string
	dayStart     string
	dayEnd       string
	probeMinutes string
	fitWindow    bool
}

// NewSettingsPaneModel creates a new settings pane.
func NewSettingsPaneModel(cfg *config.PlannerConfig, globalPath, projectPath string) SettingsPaneModel {
	m := SettingsPaneModel{
		config:      cfg,
		globalPath:  globalPath,
		projectPath: projectPath,
	}
	m.loadFields()
	m.buildForm()
	return m
}

func (m *SettingsPaneModel) loadFields() {
	sc := m.config.Scheduling
	m.saveTarget = "global"
	m.policy = sc.Policy
	m.dayStart = sc.DayStart
	m.dayEnd = sc.DayEnd
	m.probeMinutes = strconv.Itoa(sc.ProbeMinutes)
	m.fitWindow = sc.FitsWindow()
}

func validateClock(s string) error {
	_, err := config.ParseClock(s)
	return err
}

func validateMinutes(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fmt.Errorf("must be a positive number of minutes")
	}
	return nil
}

// buildForm constructs the Huh form with all settings fields.
func (m *SettingsPaneModel) buildForm() {
	policies := make([]huh.Option[string], 0, len(scheduler.Policies()))
	for _, p := range scheduler.Policies() {
		policies = append(policies, huh.NewOption(p.String(), p.String()))
	}

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("Global (~/.planner/config.json)", "global"),
					huh.NewOption("Project (.planner/config.json)", "project"),
				).
				Value(&m.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(
			huh.NewSelect[string]().
				Key("policy").
				Title("Policy").
				Options(policies...).
				Value(&m.policy),

			huh.NewInput().
				Key("dayStart").
				Title("Day Start").
				Value(&m.dayStart).
				Placeholder("09:00").
				Validate(validateClock),

			huh.NewInput().
				Key("dayEnd").
				Title("Day End").
				Value(&m.dayEnd).
				Placeholder("17:00").
				Validate(validateClock),

			huh.NewInput().
				Key("probeMinutes").
				Title("Probe Step (minutes)").
				Value(&m.probeMinutes).
				Placeholder("15").
				Validate(validateMinutes),

			huh.NewConfirm().
				Key("fitWindow").
				Title("Slots must end inside the window").
				Value(&m.fitWindow),
		).Title("Scheduling"),
	)
}

// Init initializes the settings pane.
func (m SettingsPaneModel) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the settings pane.
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

		targetPath := m.globalPath
		if m.saveTarget == "project" {
			targetPath = m.projectPath
		}

		if err := config.Save(m.config, targetPath); err != nil {
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

// applyFormToConfig copies form field values back to the config struct.
func (m *SettingsPaneModel) applyFormToConfig() {
	sc := &m.config.Scheduling
	sc.Policy = m.policy
	sc.DayStart = m.dayStart
	sc.DayEnd = m.dayEnd
	if n, err := strconv.Atoi(m.probeMinutes); err == nil {
		sc.ProbeMinutes = n
	}
	fit := m.fitWindow
	sc.FitWindow = &fit
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	var content string
	if m.err != nil {
		content = StyleStatusUnscheduled.Render(fmt.Sprintf("✗ Error saving: %v", m.err))
	} else {
		content = m.form.View()
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(m.width - 4).
		Height(m.height - 4)

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render("⚙ Settings")

	return lipgloss.JoinVertical(lipgloss.Left, title, style.Render(content))
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// SetVisible shows or hides the settings pane. Showing it rebuilds the form
// from the current config.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.saved = false
	m.err = nil

	if v {
		m.loadFields()
		m.buildForm()
		m.form.WithWidth(m.width - 8).WithHeight(m.height - 8)
	}
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}

// Saved reports whether the last submission was written to disk.
func (m SettingsPaneModel) Saved() bool {
	return m.saved
}
