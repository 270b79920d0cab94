// Package task defines the task record shared by the coordinator, the scheduler,
// and the persistence layer.
package task

import (
	"errors"
	"fmt"
	"time"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Priority bounds (1 = lowest, 5 = highest).
const (
	MinPriority = 1
	MaxPriority = 5
)

// Validation errors. The coordinator and scheduler assume input that already passed Validate.
var (
	ErrInvalidDuration = errors.New("duration must be a positive number of minutes")
	ErrInvalidPriority = errors.New("priority must be between 1 and 5")
	ErrSelfDependency  = errors.New("task cannot depend on itself")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrMissingName     = errors.New("task name is required")
)

// Task is a unit of work with a duration, priority, optional deadline, and dependencies.
type Task struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	Duration     int        `json:"duration"` // minutes
	Priority     int        `json:"priority"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	Dependencies []string   `json:"dependencies"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	ScheduledStart *time.Time `json:"scheduled_start_time,omitempty"`
	ScheduledEnd   *time.Time `json:"scheduled_end_time,omitempty"`
	ActualStart    *time.Time `json:"actual_start_time,omitempty"`
	ActualEnd      *time.Time `json:"actual_end_time,omitempty"`
}

// Length returns the task duration as a time.Duration.
func (t *Task) Length() time.Duration {
	return time.Duration(t.Duration) * time.Minute
}

// IsScheduled reports whether the task carries a scheduled slot.
func (t *Task) IsScheduled() bool {
	return t.ScheduledStart != nil
}

// SetSchedule assigns the slot [start, start+duration).
func (t *Task) SetSchedule(start time.Time) {
	end := start.Add(t.Length())
	t.ScheduledStart = &start
	t.ScheduledEnd = &end
}

// ClearSchedule removes the scheduled slot.
func (t *Task) ClearSchedule() {
	t.ScheduledStart = nil
	t.ScheduledEnd = nil
}

// Validate checks the fields callers must guarantee before handing a task to the core.
func (t *Task) Validate() error {
	if t.Name == "" {
		return ErrMissingName
	}
	if t.Duration <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidDuration, t.Duration)
	}
	if t.Priority < MinPriority || t.Priority > MaxPriority {
		return fmt.Errorf("%w: got %d", ErrInvalidPriority, t.Priority)
	}
	for _, dep := range t.Dependencies {
		if dep == t.ID {
			return fmt.Errorf("%w: %q", ErrSelfDependency, t.ID)
		}
	}
	if t.Status != "" {
		if _, err := ParseStatus(string(t.Status)); err != nil {
			return err
		}
	}
	return nil
}

// ParseStatus converts a string into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return Status(s), nil
	}
	return "", fmt.Errorf("%w %q: must be one of pending, in_progress, completed, cancelled", ErrInvalidStatus, s)
}

// UniqueDependencies returns ids with duplicates and empty entries removed, keeping first-seen order.
func UniqueDependencies(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Clone returns a deep copy of the task.
func Clone(t *Task) *Task {
	if t == nil {
		return nil
	}

	cp := *t
	if t.Dependencies != nil {
		cp.Dependencies = append([]string(nil), t.Dependencies...)
	}
	cp.Deadline = cloneTime(t.Deadline)
	cp.ScheduledStart = cloneTime(t.ScheduledStart)
	cp.ScheduledEnd = cloneTime(t.ScheduledEnd)
	cp.ActualStart = cloneTime(t.ActualStart)
	cp.ActualEnd = cloneTime(t.ActualEnd)
	return &cp
}

// CloneAll deep-copies a slice of tasks.
func CloneAll(tasks []*Task) []*Task {
	out := make([]*Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, Clone(t))
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
