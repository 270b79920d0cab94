package planner

import (
	"context"
	"fmt"

	"github.com/aristath/planner/internal/coordinator"
	"github.com/aristath/planner/internal/events"
	"github.com/aristath/planner/internal/observability"
	"github.com/aristath/planner/internal/persistence"
)

// ResolveDeadlocks breaks every cycle in the shared graph, persists each
// removed edge and records it as a repair.
func (s *Service) ResolveDeadlocks(ctx context.Context) ([]coordinator.Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.resolveDeadlocks(ctx)
}

func (s *Service) resolveDeadlocks(ctx context.Context) ([]coordinator.Resolution, error) {
	resolutions := s.coord.ResolveAll()
	if len(resolutions) == 0 {
		return nil, nil
	}

	ids := make([]string, len(resolutions))
	for i, res := range resolutions {
		ids[i] = res.TaskID
	}
	ctx, span := observability.StartSpan(ctx, "deps.resolve", taskAttrs(ids...))
	defer span.End()

	for _, res := range resolutions {
		if err := s.persistRepair(ctx, res); err != nil {
			span.RecordError(err)
			return nil, err
		}
		s.emit(events.DeadlockResolvedEvent{
			ID:         res.TaskID,
			RemovedDep: res.RemovedDep,
			Cycle:      res.Cycle,
			Timestamp:  s.now(),
		})
	}
	return resolutions, nil
}

// persistRepair drops the removed edge from the stored task and records the
// repair. The shared coordinator is brought in line when it still holds the edge.
func (s *Service) persistRepair(ctx context.Context, res coordinator.Resolution) error {
	t, err := s.getTask(ctx, res.TaskID)
	if err != nil {
		return err
	}

	deps := make([]string, 0, len(t.Dependencies))
	for _, dep := range t.Dependencies {
		if dep != res.RemovedDep {
			deps = append(deps, dep)
		}
	}

	err = s.write(ctx, func(ctx context.Context) error { return s.store.SetDependencies(ctx, t.ID, deps) })
	if err != nil {
		return fmt.Errorf("saving repaired dependencies of %s: %w", t.ID, err)
	}

	repair := persistence.Repair{TaskID: res.TaskID, RemovedDep: res.RemovedDep, Cycle: res.Cycle}
	if err := s.write(ctx, func(ctx context.Context) error { return s.store.RecordRepair(ctx, repair) }); err != nil {
		return fmt.Errorf("recording repair: %w", err)
	}

	if _, held := s.coord.DependencyStatus(t.ID)[res.RemovedDep]; held {
		t.Dependencies = deps
		s.coord.Register(t)
	}

	s.logger.Warn("dependency removed to break cycle",
		"task", res.TaskID,
		"dependency", res.RemovedDep,
		"cycle", res.Cycle,
	)
	return nil
}

// DependencyStatus maps each dependency of id to whether it has completed.
func (s *Service) DependencyStatus(id string) (map[string]bool, error) {
	if !s.coord.IsRegistered(id) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return s.coord.DependencyStatus(id), nil
}

// Summary reports the dependency state and publishes it.
func (s *Service) Summary() coordinator.Summary {
	sum := s.coord.Summary()
	s.emit(events.DependencySummaryEvent{
		Total:     sum.TotalTasks,
		Completed: sum.CompletedTasks,
		Waiting:   sum.WaitingTasks,
		Deadlocks: sum.Deadlocks,
		Timestamp: s.now(),
	})
	return sum
}

// Deadlocks returns the cycles currently in the graph.
func (s *Service) Deadlocks() [][]string {
	return s.coord.DetectDeadlocks()
}

// WaitingTasks maps each blocked task to its unmet dependencies.
func (s *Service) WaitingTasks() map[string][]string {
	return s.coord.WaitingTasks()
}

// Order returns task ids with dependencies first.
func (s *Service) Order() ([]string, error) {
	order, err := s.coord.Order()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCircularDependency, err)
	}
	return order, nil
}

// Runs returns the most recent schedule runs.
func (s *Service) Runs(ctx context.Context, limit int) ([]persistence.ScheduleRun, error) {
	runs, err := s.store.ListRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// Repairs returns every recorded cycle repair.
func (s *Service) Repairs(ctx context.Context) ([]persistence.Repair, error) {
	repairs, err := s.store.ListRepairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing repairs: %w", err)
	}
	return repairs, nil
}
