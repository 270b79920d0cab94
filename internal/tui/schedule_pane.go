package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/planner/internal/events"
	"github.com/aristath/planner/internal/task"
)

const listWidth = 32

// SlotState is one row of the schedule list.
type SlotState struct {
	TaskID   string
	Name     string
	Policy   string
	Start    time.Time
	End      time.Time
	Reason   string // set for tasks left without a slot
	Priority int
	Deps     []string
}

// Scheduled reports whether the row has a slot.
func (s *SlotState) Scheduled() bool { return s.Reason == "" }

// SchedulePaneModel lists the day's slots and shows the selected one in a viewport.
type SchedulePaneModel struct {
	slots       map[string]*SlotState
	order       []string
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
}

// NewSchedulePaneModel creates an empty schedule pane.
func NewSchedulePaneModel() SchedulePaneModel {
	return SchedulePaneModel{
		slots:    make(map[string]*SlotState),
		viewport: viewport.New(0, 0),
	}
}

// SetTasks replaces the rows with the scheduled tasks of a day.
func (m *SchedulePaneModel) SetTasks(tasks []*task.Task) {
	m.slots = make(map[string]*SlotState, len(tasks))
	m.order = m.order[:0]
	for _, t := range tasks {
		if !t.IsScheduled() {
			continue
		}
		m.slots[t.ID] = &SlotState{
			TaskID:   t.ID,
			Name:     t.Name,
			Start:    *t.ScheduledStart,
			End:      *t.ScheduledEnd,
			Priority: t.Priority,
			Deps:     t.Dependencies,
		}
		m.order = append(m.order, t.ID)
	}
	m.sortRows()
	m.selectedIdx = 0
	m.updateViewportContent()
}

// Update handles messages for the schedule pane.
func (m SchedulePaneModel) Update(msg tea.Msg) (SchedulePaneModel, tea.Cmd) {
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
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TaskScheduledEvent:
		row := m.row(msg.ID, msg.Name)
		row.Policy = msg.Policy
		row.Start = msg.Start
		row.End = msg.End
		row.Reason = ""
		m.sortRows()
		m.updateViewportContent()

	case events.TaskUnscheduledEvent:
		row := m.row(msg.ID, msg.Name)
		row.Reason = msg.Reason
		m.sortRows()
		m.updateViewportContent()
	}

	return m, cmd
}

func (m *SchedulePaneModel) row(id, name string) *SlotState {
	row, ok := m.slots[id]
	if !ok {
		row = &SlotState{TaskID: id, Name: name}
		m.slots[id] = row
		m.order = append(m.order, id)
	}
	return row
}

// sortRows puts slots in start order, followed by unscheduled tasks by name.
func (m *SchedulePaneModel) sortRows() {
	selected := m.selectedTaskID()
	sort.SliceStable(m.order, func(i, j int) bool {
		a, b := m.slots[m.order[i]], m.slots[m.order[j]]
		if a.Scheduled() != b.Scheduled() {
			return a.Scheduled()
		}
		if a.Scheduled() {
			return a.Start.Before(b.Start)
		}
		return a.Name < b.Name
	})
	for i, id := range m.order {
		if id == selected {
			m.selectedIdx = i
		}
	}
}

// View renders the schedule pane.
func (m SchedulePaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	detailWidth := m.width - listWidth - 4
	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderList(),
		lipgloss.NewStyle().
			Width(detailWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
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

func (m SchedulePaneModel) renderList() string {
	var b strings.Builder

	title := StyleTitle.Render("Schedule")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(listWidth, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.order) == 0 {
		b.WriteString(StyleStatusMuted.Render("Nothing scheduled. Press r."))
	}
	for i, id := range m.order {
		row := m.slots[id]
		name := row.Name
		if len(name) > listWidth-16 {
			name = name[:listWidth-19] + "..."
		}

		var line string
		if row.Scheduled() {
			line = fmt.Sprintf("%s %s %s", StyleStatusScheduled.Render("●"), row.Start.Format("15:04"), name)
		} else {
			line = fmt.Sprintf("%s  --:-- %s", StyleStatusUnscheduled.Render("✗"), name)
		}
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

func (m SchedulePaneModel) selectedTaskID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.order) {
		return m.order[m.selectedIdx]
	}
	return ""
}

// updateViewportContent shows the details of the selected row.
func (m *SchedulePaneModel) updateViewportContent() {
	row, ok := m.slots[m.selectedTaskID()]
	if !ok {
		m.viewport.SetContent("No task selected.")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", StyleTitle.Render(row.Name))
	fmt.Fprintf(&b, "ID:       %s\n", row.TaskID)
	if row.Scheduled() {
		fmt.Fprintf(&b, "Slot:     %s - %s (%s)\n", row.Start.Format("15:04"), row.End.Format("15:04"), row.End.Sub(row.Start))
	} else {
		fmt.Fprintf(&b, "Status:   %s\n", StyleStatusUnscheduled.Render(row.Reason))
	}
	if row.Policy != "" {
		fmt.Fprintf(&b, "Policy:   %s\n", row.Policy)
	}
	if row.Priority > 0 {
		fmt.Fprintf(&b, "Priority: %d\n", row.Priority)
	}
	if len(row.Deps) > 0 {
		fmt.Fprintf(&b, "Needs:    %s\n", strings.Join(row.Deps, ", "))
	}

	m.viewport.SetContent(b.String())
	m.viewport.GotoTop()
}

func (m *SchedulePaneModel) resizeViewport() {
	m.viewport.Width = max(m.width-listWidth-4, 10)
	m.viewport.Height = max(m.height-4, 5)
}

// SetSize updates the pane dimensions.
func (m *SchedulePaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *SchedulePaneModel) SetFocused(focused bool) {
	m.focused = focused
}
