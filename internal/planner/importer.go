package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aristath/planner/internal/coordinator"
	"github.com/aristath/planner/internal/observability"
	"github.com/aristath/planner/internal/persistence"
	"github.com/aristath/planner/internal/task"
)

// ImportTasks creates a batch of tasks, typically read from a manifest. The
// whole batch is checked before anything is written: ids must be new and
// unique, every dependency must exist in the batch or the store, and the
// combined graph must be acyclic. Tasks are created dependencies first; if a
// write fails, the tasks already created by the batch are removed again.
func (s *Service) ImportTasks(ctx context.Context, batch []*task.Task) ([]*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, len(batch))
	for i, t := range batch {
		ids[i] = t.ID
	}
	ctx, span := observability.StartSpan(ctx, "tasks.import", taskAttrs(ids...))
	defer span.End()

	byID := make(map[string]*task.Task, len(batch))
	for _, t := range batch {
		if strings.TrimSpace(t.ID) == "" {
			return nil, fmt.Errorf("import: task %q has no id", t.Name)
		}
		if _, dup := byID[t.ID]; dup {
			return nil, fmt.Errorf("%w: %s appears twice", ErrTaskExists, t.ID)
		}
		if s.coord.IsRegistered(t.ID) {
			return nil, fmt.Errorf("%w: %s", ErrTaskExists, t.ID)
		}
		t.Dependencies = task.UniqueDependencies(t.Dependencies)
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("import %s: %w", t.ID, err)
		}
		byID[t.ID] = t
	}

	existing, err := s.store.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}

	trial := coordinator.New(s.logger)
	trial.Load(existing)
	for _, t := range batch {
		for _, dep := range t.Dependencies {
			if _, ok := byID[dep]; !ok && !s.coord.IsRegistered(dep) {
				return nil, fmt.Errorf("%w: %s (required by %s)", ErrUnknownDependency, dep, t.ID)
			}
		}
		trial.Register(t)
	}
	if cycles := trial.DetectDeadlocks(); len(cycles) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrCircularDependency, strings.Join(cycles[0], " -> "))
	}

	order, err := trial.Order()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCircularDependency, err)
	}

	created := make([]*task.Task, 0, len(batch))
	for _, id := range order {
		t, ok := byID[id]
		if !ok {
			continue
		}
		in := TaskInput{
			ID:           t.ID,
			Name:         t.Name,
			Description:  t.Description,
			Duration:     t.Duration,
			Priority:     t.Priority,
			Deadline:     t.Deadline,
			Dependencies: t.Dependencies,
		}
		nt, err := s.createLocked(ctx, in)
		if err != nil {
			span.RecordError(err)
			s.rollbackImport(ctx, created)
			return nil, fmt.Errorf("import %s: %w", id, err)
		}
		created = append(created, nt)
	}

	s.logger.Info("tasks imported", "count", len(created))
	return created, nil
}

// rollbackImport deletes created tasks, dependents first. Deletes bypass the
// breaker, which may be open after the failed write.
func (s *Service) rollbackImport(ctx context.Context, created []*task.Task) {
	ctx = context.WithoutCancel(ctx)
	for i := len(created) - 1; i >= 0; i-- {
		id := created[i].ID
		if err := s.store.DeleteTask(ctx, id); err != nil && !errors.Is(err, persistence.ErrNotFound) {
			s.logger.Error("import rollback failed", "task", id, "error", err)
		}
		s.coord.Remove(id)
	}
	if len(created) > 0 {
		s.logger.Warn("import rolled back", "count", len(created))
	}
}
