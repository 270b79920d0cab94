// Package tui is the interactive schedule view: the day's slots, dependency
// state fed from the event bus, and a settings form.
package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/planner/internal/config"
	"github.com/aristath/planner/internal/coordinator"
	"github.com/aristath/planner/internal/events"
	"github.com/aristath/planner/internal/planner"
	"github.com/aristath/planner/internal/task"
)

// Planner is the part of the planner service the TUI drives.
type Planner interface {
	GenerateSchedule(ctx context.Context, req planner.ScheduleRequest) (*planner.ScheduleReport, error)
	DailySchedule(ctx context.Context, date time.Time) ([]*task.Task, error)
	Summary() coordinator.Summary
}

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneSchedule PaneID = iota
	PaneDeps
	paneCount
)

// Options configures the root model.
type Options struct {
	Bus         *events.EventBus
	Planner     Planner
	Config      *config.PlannerConfig
	Date        time.Time
	Profile     string
	GlobalPath  string
	ProjectPath string
}

type dailyLoadedMsg struct {
	tasks []*task.Task
	err   error
}

type scheduleDoneMsg struct {
	report *planner.ScheduleReport
	err    error
}

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	schedulePane SchedulePaneModel
	depsPane     DepsPaneModel
	settingsPane SettingsPaneModel
	focusedPane  PaneID
	eventSub     <-chan events.Event
	planner      Planner
	date         time.Time
	profile      string
	status       string
	busy         bool
	width        int
	height       int
	quitting     bool
	showSettings bool
}

// New creates a new TUI model subscribed to every topic on the bus.
func New(opts Options) Model {
	return Model{
		schedulePane: NewSchedulePaneModel(),
		depsPane:     NewDepsPaneModel(),
		settingsPane: NewSettingsPaneModel(opts.Config, opts.GlobalPath, opts.ProjectPath),
		focusedPane:  PaneSchedule,
		eventSub:     opts.Bus.SubscribeAll(256),
		planner:      opts.Planner,
		date:         opts.Date,
		profile:      opts.Profile,
	}
}

// Init loads the day's schedule and starts listening for events.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.eventSub), m.loadDaily(), m.summarize())
}

// waitForEvent returns a command that waits for the next event from the event bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

func (m Model) loadDaily() tea.Cmd {
	return func() tea.Msg {
		tasks, err := m.planner.DailySchedule(context.Background(), m.date)
		return dailyLoadedMsg{tasks: tasks, err: err}
	}
}

func (m Model) reschedule() tea.Cmd {
	return func() tea.Msg {
		report, err := m.planner.GenerateSchedule(context.Background(), planner.ScheduleRequest{
			Date:    m.date,
			Profile: m.profile,
		})
		return scheduleDoneMsg{report: report, err: err}
	}
}

// summarize asks the planner for a summary; it arrives as a bus event.
func (m Model) summarize() tea.Cmd {
	return func() tea.Msg {
		m.planner.Summary()
		return nil
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// The settings overlay is modal.
		if m.showSettings {
			var cmd tea.Cmd
			m.settingsPane, cmd = m.settingsPane.Update(msg)
			cmds = append(cmds, cmd)
			if !m.settingsPane.IsVisible() {
				m.showSettings = false
				if m.settingsPane.Saved() {
					m.status = "settings saved"
				}
			}
			return m, tea.Batch(cmds...)
		}

		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeySettings:
			m.showSettings = true
			m.settingsPane.SetVisible(true)
			cmds = append(cmds, m.settingsPane.Init())

		case KeyReschedule:
			if !m.busy {
				m.busy = true
				m.status = "scheduling..."
				cmds = append(cmds, m.reschedule())
			}

		case KeyTab:
			m.focusedPane = (m.focusedPane + 1) % paneCount
			m.updateFocusStates()

		case KeyShiftTab:
			m.focusedPane = (m.focusedPane + paneCount - 1) % paneCount
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneSchedule
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneDeps
			m.updateFocusStates()

		default:
			if m.focusedPane == PaneSchedule {
				var cmd tea.Cmd
				m.schedulePane, cmd = m.schedulePane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.settingsPane.SetSize(msg.Width, msg.Height)

	case dailyLoadedMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("load failed: %v", msg.err)
		} else {
			m.schedulePane.SetTasks(msg.tasks)
		}

	case scheduleDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.status = fmt.Sprintf("scheduling failed: %v", msg.err)
		} else {
			m.status = fmt.Sprintf("%s: %d scheduled, %d left over",
				msg.report.Policy, len(msg.report.Scheduled), len(msg.report.Unscheduled))
			cmds = append(cmds, m.summarize())
		}

	case events.TaskScheduledEvent, events.TaskUnscheduledEvent:
		var cmd tea.Cmd
		m.schedulePane, cmd = m.schedulePane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case events.ScheduleProgressEvent, events.DependencySummaryEvent,
		events.TaskUnblockedEvent, events.DeadlockResolvedEvent:
		var cmd tea.Cmd
		m.depsPane, cmd = m.depsPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	default:
		// Forward settings form internals (cursor blink and the like).
		if m.showSettings {
			var cmd tea.Cmd
			m.settingsPane, cmd = m.settingsPane.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if m.showSettings {
		return m.settingsPane.View()
	}

	main := lipgloss.JoinHorizontal(lipgloss.Top, m.schedulePane.View(), m.depsPane.View())

	footer := HelpView()
	if m.status != "" {
		footer = StyleHelp.Render(m.date.Format("2006-01-02")+" | "+m.status) + "  " + footer
	}
	return lipgloss.JoinVertical(lipgloss.Left, main, footer)
}

// computeLayout gives the schedule 60% of the width and the dependency pane the rest.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 60) / 100
	availableHeight := m.height - 1 // help bar

	m.schedulePane.SetSize(leftWidth, availableHeight)
	m.depsPane.SetSize(m.width-leftWidth, availableHeight)
	m.updateFocusStates()
}

func (m *Model) updateFocusStates() {
	m.schedulePane.SetFocused(m.focusedPane == PaneSchedule)
	m.depsPane.SetFocused(m.focusedPane == PaneDeps)
}
