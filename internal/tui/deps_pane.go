package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/planner/internal/events"
)

const maxActivity = 50

// DepsPaneModel shows run progress, the dependency summary and recent
// dependency activity.
type DepsPaneModel struct {
	policy    string
	total     int
	scheduled int
	remaining int
	done      bool

	tasks     int
	completed int
	waiting   int
	deadlocks int

	activity []string
	width    int
	height   int
	focused  bool
}

// NewDepsPaneModel creates an empty dependency pane.
func NewDepsPaneModel() DepsPaneModel {
	return DepsPaneModel{}
}

// Update handles messages for the dependency pane.
func (m DepsPaneModel) Update(msg tea.Msg) (DepsPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case events.ScheduleProgressEvent:
		m.policy = msg.Policy
		m.total = msg.Total
		m.scheduled = msg.Scheduled
		m.remaining = msg.Remaining
		m.done = msg.Done

	case events.DependencySummaryEvent:
		m.tasks = msg.Total
		m.completed = msg.Completed
		m.waiting = msg.Waiting
		m.deadlocks = msg.Deadlocks

	case events.TaskUnblockedEvent:
		m.log(fmt.Sprintf("%s unblocked by %s", msg.ID, msg.CompletedBy))

	case events.DeadlockResolvedEvent:
		m.log(fmt.Sprintf("cycle %s: dropped %s -> %s",
			strings.Join(msg.Cycle, " -> "), msg.ID, msg.RemovedDep))
	}

	return m, nil
}

func (m *DepsPaneModel) log(line string) {
	m.activity = append(m.activity, line)
	if len(m.activity) > maxActivity {
		m.activity = m.activity[len(m.activity)-maxActivity:]
	}
}

// View renders the dependency pane.
func (m DepsPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Dependencies")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Tasks:     %d\n", m.tasks)
	fmt.Fprintf(&b, "Completed: %s\n", StyleStatusScheduled.Render(fmt.Sprint(m.completed)))
	fmt.Fprintf(&b, "Waiting:   %s\n", StyleStatusWaiting.Render(fmt.Sprint(m.waiting)))
	fmt.Fprintf(&b, "Deadlocks: %s\n", StyleStatusUnscheduled.Render(fmt.Sprint(m.deadlocks)))
	b.WriteString("\n")

	if m.total > 0 {
		barWidth := min(m.width-4, 40)
		filled := (m.scheduled * barWidth) / m.total
		bar := StyleStatusScheduled.Render(strings.Repeat("=", filled)) +
			StyleStatusMuted.Render(strings.Repeat(".", barWidth-filled))

		state := "running"
		if m.done {
			state = "done"
		}
		fmt.Fprintf(&b, "%s [%s] %d/%d %s\n\n", m.policy, bar, m.scheduled, m.total, state)
	}

	// Only the lines that fit under the counters.
	room := m.height - 14
	lines := m.activity
	if room > 0 && len(lines) > room {
		lines = lines[len(lines)-room:]
	}
	for _, line := range lines {
		b.WriteString(StyleStatusMuted.Render(line))
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
func (m *DepsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *DepsPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
