package scheduler

import (
	"sort"
	"strings"

	"github.com/aristath/planner/internal/task"
)

// Policy selects which schedulable task is committed next.
type Policy string

const (
	RoundRobin Policy = "round_robin"
	FCFS       Policy = "fcfs"
	SJF        Policy = "sjf"
	LJF        Policy = "ljf"
	Priority   Policy = "priority"
)

// Policies lists every policy in a fixed order.
func Policies() []Policy {
	return []Policy{RoundRobin, FCFS, SJF, LJF, Priority}
}

// ParsePolicy maps a name to a Policy. Unknown names fall back to RoundRobin;
// the boolean reports whether the name was recognized.
func ParsePolicy(name string) (Policy, bool) {
	p := Policy(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Policies() {
		if p == known {
			return p, true
		}
	}
	return RoundRobin, false
}

func (p Policy) String() string { return string(p) }

// presort returns the candidate order the policy walks each iteration.
// sjf and ljf keep input order and choose by duration in pick.
func presort(p Policy, tasks []*task.Task) []*task.Task {
	ordered := append([]*task.Task(nil), tasks...)

	switch p {
	case RoundRobin:
		sort.SliceStable(ordered, func(i, j int) bool {
			a, b := ordered[i], ordered[j]
			if a.Priority != b.Priority {
				return a.Priority > b.Priority
			}
			return deadlineBefore(a, b)
		})
	case FCFS:
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		})
	case Priority:
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].Priority > ordered[j].Priority
		})
	}
	return ordered
}

// deadlineBefore orders earlier deadlines first and missing deadlines last.
func deadlineBefore(a, b *task.Task) bool {
	switch {
	case a.Deadline == nil:
		return false
	case b.Deadline == nil:
		return true
	default:
		return a.Deadline.Before(*b.Deadline)
	}
}

// pick returns the index in remaining of the task the policy commits next,
// or -1 when nothing is eligible.
func pick(p Policy, remaining []*task.Task, eligible func(*task.Task) bool) int {
	best := -1
	for i, t := range remaining {
		if !eligible(t) {
			continue
		}
		switch p {
		case SJF:
			if best < 0 || t.Duration < remaining[best].Duration {
				best = i
			}
		case LJF:
			if best < 0 || t.Duration > remaining[best].Duration {
				best = i
			}
		default:
			return i
		}
	}
	return best
}
