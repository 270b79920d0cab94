package planner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/planner/internal/config"
	"github.com/aristath/planner/internal/coordinator"
	"github.com/aristath/planner/internal/observability"
	"github.com/aristath/planner/internal/persistence"
	"github.com/aristath/planner/internal/scheduler"
	"github.com/aristath/planner/internal/task"
)

const dateLayout = "2006-01-02"

// ScheduleRequest selects the day, window and policy of a run. Empty fields
// fall back to the named profile, then to the scheduling defaults.
type ScheduleRequest struct {
	Date    time.Time
	Start   string // HH:MM
	End     string // HH:MM
	Policy  string
	Profile string
}

// ScheduleReport is the outcome of a persisted run.
type ScheduleReport struct {
	RunID       string
	Date        string
	Policy      scheduler.Policy
	WindowStart time.Time
	WindowEnd   time.Time
	Scheduled   []*task.Task
	Unscheduled []scheduler.Unscheduled
	Resolutions []coordinator.Resolution
}

// PolicyComparison summarizes one policy over a shared candidate set.
type PolicyComparison struct {
	Policy      scheduler.Policy
	Scheduled   int
	Unscheduled int
	End         time.Time
	// Busy is the total scheduled time.
	Busy time.Duration
}

// ParseDate parses YYYY-MM-DD in loc. An empty string means today.
func ParseDate(s string, loc *time.Location, now time.Time) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		y, m, d := now.In(loc).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
	}
	t, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: want YYYY-MM-DD", ErrInvalidDate, s)
	}
	return t, nil
}

// ParseWindow builds [start, end) on the day of date from HH:MM clock times.
func ParseWindow(date time.Time, start, end string) (time.Time, time.Time, error) {
	startOff, err := config.ParseClock(start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start: %w", ErrInvalidWindow, err)
	}
	endOff, err := config.ParseClock(end)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end: %w", ErrInvalidWindow, err)
	}
	if endOff <= startOff {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end %s is not after start %s", ErrInvalidWindow, end, start)
	}

	y, m, d := date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, date.Location())
	return day.Add(startOff), day.Add(endOff), nil
}

// resolved is a ScheduleRequest with defaults applied.
type resolved struct {
	day       time.Time
	start     time.Time
	end       time.Time
	policy    scheduler.Policy
	probe     time.Duration
	fitWindow bool
}

func (s *Service) resolveRequest(req ScheduleRequest) (resolved, error) {
	sc := s.cfg.Scheduling
	if req.Profile != "" {
		p, ok := s.cfg.Profile(req.Profile)
		if !ok {
			return resolved{}, fmt.Errorf("%w: %s", ErrUnknownProfile, req.Profile)
		}
		sc = p
	}
	if req.Start != "" {
		sc.DayStart = req.Start
	}
	if req.End != "" {
		sc.DayEnd = req.End
	}
	if req.Policy != "" {
		sc.Policy = req.Policy
	}

	day := req.Date
	if day.IsZero() {
		day, _ = ParseDate("", s.loc, s.now())
	}
	start, end, err := ParseWindow(day.In(s.loc), sc.DayStart, sc.DayEnd)
	if err != nil {
		return resolved{}, err
	}

	policy, known := scheduler.ParsePolicy(sc.Policy)
	if !known {
		s.logger.Warn("unknown scheduling policy, using round_robin", "policy", sc.Policy)
	}

	return resolved{
		day:       start,
		start:     start,
		end:       end,
		policy:    policy,
		probe:     time.Duration(sc.ProbeMinutes) * time.Minute,
		fitWindow: sc.FitsWindow(),
	}, nil
}

// candidates returns the tasks a run may place: pending or in progress with
// no scheduled start. The second slice holds every other task, used to seed
// the run's coordinator.
func (s *Service) candidates(ctx context.Context) ([]*task.Task, []*task.Task, error) {
	all, err := s.store.ListTasks(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("listing tasks: %w", err)
	}

	var cands, rest []*task.Task
	for _, t := range all {
		open := t.Status == task.StatusPending || t.Status == task.StatusInProgress
		if open && !t.IsScheduled() {
			cands = append(cands, t)
		} else {
			rest = append(rest, t)
		}
	}
	return cands, rest, nil
}

// runCoordinator builds a coordinator private to one run. Completed tasks and
// tasks already scheduled to finish by windowStart count as done. The shared
// coordinator is left alone because the engine reports every placement as a
// completion.
func (s *Service) runCoordinator(rest []*task.Task, windowStart time.Time) *coordinator.Coordinator {
	coord := coordinator.New(s.logger)
	for _, t := range rest {
		seed := task.Clone(t)
		if t.Status != task.StatusCompleted && t.ScheduledEnd != nil && !t.ScheduledEnd.After(windowStart) {
			seed.Status = task.StatusCompleted
		}
		coord.Register(seed)
	}
	return coord
}

// GenerateSchedule places every candidate it can into the requested window,
// persists the slots and records the run.
func (s *Service) GenerateSchedule(ctx context.Context, req ScheduleRequest) (*ScheduleReport, error) {
	r, err := s.resolveRequest(req)
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "schedule.generate",
		attribute.String("planner.policy", r.policy.String()),
		attribute.String("planner.window_start", r.start.Format(time.RFC3339)),
		attribute.String("planner.window_end", r.end.Format(time.RFC3339)),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	cands, rest, err := s.candidates(ctx)
	if err != nil {
		return nil, err
	}

	engine := scheduler.NewEngine(cands, scheduler.Config{
		Start:       r.start,
		End:         r.end,
		Policy:      r.policy,
		Coordinator: s.runCoordinator(rest, r.start),
		ProbeStep:   r.probe,
		FitWindow:   r.fitWindow,
		Logger:      s.logger,
		Publisher:   s.pub,
	})
	result := engine.Schedule()

	for _, res := range result.Resolutions {
		if err := s.persistRepair(ctx, res); err != nil {
			return nil, err
		}
	}

	if len(result.Scheduled) > 0 {
		err := s.write(ctx, func(ctx context.Context) error { return s.store.SaveSchedules(ctx, result.Scheduled) })
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("saving schedule: %w", err)
		}
	}

	run := &persistence.ScheduleRun{
		Date:        r.day.Format(dateLayout),
		Policy:      r.policy.String(),
		WindowStart: r.start,
		WindowEnd:   r.end,
		Scheduled:   len(result.Scheduled),
		Unscheduled: len(result.Unscheduled),
	}
	if err := s.write(ctx, func(ctx context.Context) error { return s.store.RecordRun(ctx, run) }); err != nil {
		return nil, fmt.Errorf("recording run: %w", err)
	}

	span.SetAttributes(
		attribute.Int("planner.scheduled", len(result.Scheduled)),
		attribute.Int("planner.unscheduled", len(result.Unscheduled)),
	)
	s.logger.Info("schedule generated",
		"date", run.Date,
		"policy", run.Policy,
		"scheduled", run.Scheduled,
		"unscheduled", run.Unscheduled,
	)

	return &ScheduleReport{
		RunID:       run.ID,
		Date:        run.Date,
		Policy:      r.policy,
		WindowStart: r.start,
		WindowEnd:   r.end,
		Scheduled:   result.Scheduled,
		Unscheduled: result.Unscheduled,
		Resolutions: result.Resolutions,
	}, nil
}

// DailySchedule returns the tasks whose scheduled start falls on date, ordered by start.
func (s *Service) DailySchedule(ctx context.Context, date time.Time) ([]*task.Task, error) {
	all, err := s.store.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}

	y, m, d := date.In(s.loc).Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	to := from.AddDate(0, 0, 1)

	var day []*task.Task
	for _, t := range all {
		if t.ScheduledStart == nil {
			continue
		}
		if !t.ScheduledStart.Before(from) && t.ScheduledStart.Before(to) {
			day = append(day, t)
		}
	}
	sort.SliceStable(day, func(i, j int) bool {
		return day[i].ScheduledStart.Before(*day[j].ScheduledStart)
	})
	return day, nil
}

// ResetSchedule clears the slots of every task scheduled on date and returns
// how many were cleared.
func (s *Service) ResetSchedule(ctx context.Context, date time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day, err := s.DailySchedule(ctx, date)
	if err != nil {
		return 0, err
	}
	if len(day) == 0 {
		return 0, nil
	}

	ids := make([]string, len(day))
	for i, t := range day {
		ids[i] = t.ID
	}

	var cleared int
	err = s.write(ctx, func(ctx context.Context) error {
		n, err := s.store.ClearSchedules(ctx, ids)
		cleared = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("clearing schedule: %w", err)
	}

	s.logger.Info("schedule reset", "date", date.In(s.loc).Format(dateLayout), "cleared", cleared)
	return cleared, nil
}

// ComparePolicies runs every policy over copies of the current candidates
// without persisting anything.
func (s *Service) ComparePolicies(ctx context.Context, req ScheduleRequest) ([]PolicyComparison, error) {
	r, err := s.resolveRequest(req)
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "schedule.compare")
	defer span.End()

	cands, rest, err := s.candidates(ctx)
	if err != nil {
		return nil, err
	}

	policies := scheduler.Policies()
	results := make([]PolicyComparison, len(policies))

	g, gctx := errgroup.WithContext(ctx)
	for i, policy := range policies {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			engine := scheduler.NewEngine(task.CloneAll(cands), scheduler.Config{
				Start:       r.start,
				End:         r.end,
				Policy:      policy,
				Coordinator: s.runCoordinator(rest, r.start),
				ProbeStep:   r.probe,
				FitWindow:   r.fitWindow,
				Logger:      s.logger,
			})
			res := engine.Schedule()

			var busy time.Duration
			for _, t := range res.Scheduled {
				busy += t.Length()
			}
			results[i] = PolicyComparison{
				Policy:      policy,
				Scheduled:   len(res.Scheduled),
				Unscheduled: len(res.Unscheduled),
				End:         res.End,
				Busy:        busy,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
