// Package scheduler assigns contiguous time slots to tasks inside a bounded
// window using one of several greedy policies.
package scheduler

import (
	"log/slog"
	"time"

	"github.com/aristath/planner/internal/coordinator"
	"github.com/aristath/planner/internal/events"
	"github.com/aristath/planner/internal/task"
)

// DefaultProbeStep is how far the cursor moves when nothing is schedulable.
const DefaultProbeStep = 15 * time.Minute

// Reasons reported for tasks left without a slot.
const (
	ReasonDeadline     = "deadline unreachable"
	ReasonDependencies = "dependencies not satisfied"
	ReasonWindow       = "window exhausted"
)

// Config controls a single scheduling run.
type Config struct {
	Start  time.Time
	End    time.Time
	Policy Policy

	// Coordinator is optional. When set, every task is loaded into it, cycles
	// are broken before the run, and commits are reported back as completions.
	Coordinator *coordinator.Coordinator

	ProbeStep time.Duration
	// FitWindow also requires a slot to end by End.
	FitWindow bool

	Logger    *slog.Logger
	Publisher events.Publisher
}

// Unscheduled pairs a task left without a slot with the reason.
type Unscheduled struct {
	Task   *task.Task
	Reason string
}

// Result is the outcome of one run.
type Result struct {
	Policy      Policy
	Scheduled   []*task.Task
	Unscheduled []Unscheduled
	Resolutions []coordinator.Resolution
	// End is the latest scheduled end, or the window start when nothing was scheduled.
	End time.Time
}

// Engine runs a greedy scheduling pass over a task set. It writes the
// scheduled fields of the tasks it commits and is not safe for concurrent use.
type Engine struct {
	tasks       []*task.Task
	cfg         Config
	logger      *slog.Logger
	scheduled   []*task.Task
	resolutions []coordinator.Resolution
}

// NewEngine prepares a run. If cfg.Coordinator is set, the tasks are loaded
// into it and existing deadlocks are resolved immediately.
func NewEngine(tasks []*task.Task, cfg Config) *Engine {
	if cfg.ProbeStep <= 0 {
		cfg.ProbeStep = DefaultProbeStep
	}
	if cfg.Policy == "" {
		cfg.Policy = RoundRobin
	} else {
		cfg.Policy, _ = ParsePolicy(string(cfg.Policy))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		tasks:  tasks,
		cfg:    cfg,
		logger: logger.With("policy", cfg.Policy.String()),
	}

	if cfg.Coordinator != nil {
		cfg.Coordinator.Load(tasks)
		e.resolutions = cfg.Coordinator.ResolveAll()
		for _, r := range e.resolutions {
			e.emit(events.DeadlockResolvedEvent{
				ID:         r.TaskID,
				RemovedDep: r.RemovedDep,
				Cycle:      r.Cycle,
				Timestamp:  time.Now(),
			})
		}
	}

	return e
}

// IsSchedulable reports whether t may start at now: every dependency is
// satisfied and the deadline, if any, is still reachable. Without a
// coordinator a dependency counts as satisfied only when it was scheduled
// earlier in this run and ends by now.
func (e *Engine) IsSchedulable(t *task.Task, now time.Time) bool {
	if !e.dependenciesMet(t, now) {
		return false
	}

	end := now.Add(t.Length())
	if t.Deadline != nil && end.After(*t.Deadline) {
		return false
	}
	if e.cfg.FitWindow && end.After(e.cfg.End) {
		return false
	}
	return true
}

func (e *Engine) dependenciesMet(t *task.Task, now time.Time) bool {
	if e.cfg.Coordinator != nil {
		for _, done := range e.cfg.Coordinator.DependencyStatus(t.ID) {
			if !done {
				return false
			}
		}
		return true
	}

	for _, depID := range task.UniqueDependencies(t.Dependencies) {
		found := false
		for _, s := range e.scheduled {
			if s.ID == depID && !s.ScheduledEnd.After(now) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Schedule runs the greedy loop until every task has a slot or the cursor
// reaches the end of the window.
func (e *Engine) Schedule() Result {
	remaining := presort(e.cfg.Policy, e.tasks)
	total := len(remaining)
	cursor := e.cfg.Start
	end := e.cfg.Start

	for len(remaining) > 0 && cursor.Before(e.cfg.End) {
		now := cursor
		idx := pick(e.cfg.Policy, remaining, func(t *task.Task) bool {
			return e.IsSchedulable(t, now)
		})
		if idx < 0 {
			cursor = cursor.Add(e.cfg.ProbeStep)
			e.logger.Debug("no schedulable task, probing", "cursor", cursor)
			continue
		}

		t := remaining[idx]
		remaining = append(remaining[:idx:idx], remaining[idx+1:]...)

		t.SetSchedule(cursor)
		e.scheduled = append(e.scheduled, t)
		cursor = *t.ScheduledEnd
		end = cursor

		e.logger.Info("scheduled task",
			"task", t.ID,
			"name", t.Name,
			"start", t.ScheduledStart.Format(time.RFC3339),
			"end", t.ScheduledEnd.Format(time.RFC3339),
		)
		e.emit(events.TaskScheduledEvent{
			ID:        t.ID,
			Name:      t.Name,
			Policy:    e.cfg.Policy.String(),
			Start:     *t.ScheduledStart,
			End:       *t.ScheduledEnd,
			Timestamp: time.Now(),
		})

		if e.cfg.Coordinator != nil {
			for _, id := range e.cfg.Coordinator.MarkCompleted(t.ID) {
				e.emit(events.TaskUnblockedEvent{ID: id, CompletedBy: t.ID, Timestamp: time.Now()})
			}
		}

		e.emit(events.ScheduleProgressEvent{
			Policy:    e.cfg.Policy.String(),
			Total:     total,
			Scheduled: len(e.scheduled),
			Remaining: len(remaining),
			Cursor:    cursor,
			Timestamp: time.Now(),
		})
	}

	result := Result{
		Policy:      e.cfg.Policy,
		Scheduled:   append([]*task.Task(nil), e.scheduled...),
		Resolutions: append([]coordinator.Resolution(nil), e.resolutions...),
		End:         end,
	}

	if len(remaining) > 0 {
		names := make([]string, 0, len(remaining))
		for _, t := range remaining {
			reason := e.reason(t, cursor)
			result.Unscheduled = append(result.Unscheduled, Unscheduled{Task: t, Reason: reason})
			names = append(names, t.Name)
			e.emit(events.TaskUnscheduledEvent{ID: t.ID, Name: t.Name, Reason: reason, Timestamp: time.Now()})
		}
		e.logger.Warn("tasks left unscheduled", "count", len(remaining), "tasks", names)
	}

	e.emit(events.ScheduleProgressEvent{
		Policy:    e.cfg.Policy.String(),
		Total:     total,
		Scheduled: len(e.scheduled),
		Remaining: len(remaining),
		Cursor:    cursor,
		Done:      true,
		Timestamp: time.Now(),
	})

	return result
}

// reason explains why t did not receive a slot by the time the loop stopped at cursor.
func (e *Engine) reason(t *task.Task, cursor time.Time) string {
	if !e.dependenciesMet(t, cursor) {
		return ReasonDependencies
	}
	if t.Deadline != nil && cursor.Add(t.Length()).After(*t.Deadline) {
		return ReasonDeadline
	}
	return ReasonWindow
}

func (e *Engine) emit(ev events.Event) {
	if e.cfg.Publisher != nil {
		e.cfg.Publisher.Emit(ev)
	}
}
