package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicSchedule = "schedule"
	TopicDeps     = "deps"
)

// Event type constants
const (
	EventTypeTaskScheduled     = "schedule.task_scheduled"
	EventTypeTaskUnscheduled   = "schedule.task_unscheduled"
	EventTypeScheduleProgress  = "schedule.progress"
	EventTypeTaskUnblocked     = "deps.task_unblocked"
	EventTypeDeadlockResolved  = "deps.deadlock_resolved"
	EventTypeDependencySummary = "deps.summary"
)

// TopicOf maps an event type to the topic it is published on.
func TopicOf(e Event) string {
	switch e.(type) {
	case TaskUnblockedEvent, DeadlockResolvedEvent, DependencySummaryEvent:
		return TopicDeps
	default:
		return TopicSchedule
	}
}

// TaskScheduledEvent is published when a task is committed to a slot.
type TaskScheduledEvent struct {
	ID        string
	Name      string
	Policy    string
	Start     time.Time
	End       time.Time
	Timestamp time.Time
}

func (e TaskScheduledEvent) EventType() string { return EventTypeTaskScheduled }
func (e TaskScheduledEvent) TaskID() string    { return e.ID }

// TaskUnscheduledEvent is published for every task left without a slot at
// the end of a run.
type TaskUnscheduledEvent struct {
	ID        string
	Name      string
	Reason    string
	Timestamp time.Time
}

func (e TaskUnscheduledEvent) EventType() string { return EventTypeTaskUnscheduled }
func (e TaskUnscheduledEvent) TaskID() string    { return e.ID }

// ScheduleProgressEvent is published after every commit and when a run ends.
type ScheduleProgressEvent struct {
	Policy    string
	Total     int
	Scheduled int
	Remaining int
	Cursor    time.Time
	Done      bool
	Timestamp time.Time
}

func (e ScheduleProgressEvent) EventType() string { return EventTypeScheduleProgress }
func (e ScheduleProgressEvent) TaskID() string    { return "" }

// TaskUnblockedEvent is published when a completion makes a task ready.
type TaskUnblockedEvent struct {
	ID          string
	CompletedBy string
	Timestamp   time.Time
}

func (e TaskUnblockedEvent) EventType() string { return EventTypeTaskUnblocked }
func (e TaskUnblockedEvent) TaskID() string    { return e.ID }

// DeadlockResolvedEvent is published when a dependency edge is broken to
// repair a cycle.
type DeadlockResolvedEvent struct {
	ID         string
	RemovedDep string
	Cycle      []string
	Timestamp  time.Time
}

func (e DeadlockResolvedEvent) EventType() string { return EventTypeDeadlockResolved }
func (e DeadlockResolvedEvent) TaskID() string    { return e.ID }

// DependencySummaryEvent carries aggregate dependency counts.
type DependencySummaryEvent struct {
	Total     int
	Completed int
	Waiting   int
	Deadlocks int
	Timestamp time.Time
}

func (e DependencySummaryEvent) EventType() string { return EventTypeDependencySummary }
func (e DependencySummaryEvent) TaskID() string    { return "" }
