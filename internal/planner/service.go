// Package planner is the application layer around the dependency coordinator
// and the scheduling engine. It validates input, keeps the store and the
// shared coordinator in step, and publishes events.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"

	"github.com/aristath/planner/internal/config"
	"github.com/aristath/planner/internal/coordinator"
	"github.com/aristath/planner/internal/events"
	"github.com/aristath/planner/internal/observability"
	"github.com/aristath/planner/internal/persistence"
	"github.com/aristath/planner/internal/task"
)

// Options configures a Service. Store is required; the rest have defaults.
type Options struct {
	Store     persistence.Store
	Config    *config.PlannerConfig
	Logger    *slog.Logger
	Publisher events.Publisher
	Retry     *RetryConfig
	Location  *time.Location
	Now       func() time.Time
}

// Service owns the process-wide coordinator and coordinates it with the store.
type Service struct {
	// mu serializes flows that touch both the store and the coordinator.
	mu sync.Mutex

	store   persistence.Store
	cfg     *config.PlannerConfig
	coord   *coordinator.Coordinator
	logger  *slog.Logger
	pub     events.Publisher
	breaker *gobreaker.CircuitBreaker
	retry   RetryConfig
	loc     *time.Location
	now     func() time.Time
}

// TaskInput describes a new task. An empty ID is replaced by a UUID.
type TaskInput struct {
	ID           string
	Name         string
	Description  string
	Duration     int
	Priority     int
	Deadline     *time.Time
	Dependencies []string
}

// TaskUpdate carries a partial update; nil fields are left unchanged.
type TaskUpdate struct {
	Name          *string
	Description   *string
	Duration      *int
	Priority      *int
	Deadline      *time.Time
	ClearDeadline bool
	Dependencies  *[]string
}

// New builds a Service, loads every stored task into a fresh coordinator and
// repairs any cycles found in the stored graph.
func New(ctx context.Context, opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, errors.New("planner: store is required")
	}

	s := &Service{
		store:  opts.Store,
		cfg:    opts.Config,
		logger: opts.Logger,
		pub:    opts.Publisher,
		loc:    opts.Location,
		now:    opts.Now,
		retry:  DefaultRetryConfig(),
	}
	if s.cfg == nil {
		s.cfg = config.DefaultConfig()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.Retry != nil {
		s.retry = *opts.Retry
	}
	s.breaker = newStoreBreaker("planner-store", s.logger)
	s.coord = coordinator.New(s.logger)

	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading tasks: %w", err)
	}
	s.coord.Load(tasks)

	if _, err := s.resolveDeadlocks(ctx); err != nil {
		return nil, fmt.Errorf("repairing stored dependency cycles: %w", err)
	}

	s.logger.Debug("planner ready", "tasks", len(tasks))
	return s, nil
}

// Coordinator exposes the shared coordinator for read-only callers.
func (s *Service) Coordinator() *coordinator.Coordinator { return s.coord }

// Config returns the active configuration.
func (s *Service) Config() *config.PlannerConfig { return s.cfg }

// Location is the time zone used for dates and windows.
func (s *Service) Location() *time.Location { return s.loc }

// CreateTask validates and stores a new task and registers it with the coordinator.
func (s *Service) CreateTask(ctx context.Context, in TaskInput) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.createLocked(ctx, in)
}

func (s *Service) createLocked(ctx context.Context, in TaskInput) (*task.Task, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}
	if s.coord.IsRegistered(id) {
		return nil, fmt.Errorf("%w: %s", ErrTaskExists, id)
	}

	now := s.now()
	t := &task.Task{
		ID:           id,
		Name:         strings.TrimSpace(in.Name),
		Description:  in.Description,
		Duration:     in.Duration,
		Priority:     in.Priority,
		Deadline:     in.Deadline,
		Dependencies: task.UniqueDependencies(in.Dependencies),
		Status:       task.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.validate(t); err != nil {
		return nil, err
	}

	if err := s.write(ctx, func(ctx context.Context) error { return s.store.SaveTask(ctx, t) }); err != nil {
		return nil, fmt.Errorf("saving task: %w", err)
	}
	s.coord.Register(t)

	s.logger.Info("task created", "task", t.ID, "name", t.Name, "dependencies", t.Dependencies)
	return t, nil
}

// UpdateTask applies a partial update. Changed dependencies are re-validated
// against the graph before anything is written.
func (s *Service) UpdateTask(ctx context.Context, id string, upd TaskUpdate) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.getTask(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		t.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.Duration != nil {
		t.Duration = *upd.Duration
	}
	if upd.Priority != nil {
		t.Priority = *upd.Priority
	}
	if upd.ClearDeadline {
		t.Deadline = nil
	} else if upd.Deadline != nil {
		t.Deadline = upd.Deadline
	}
	if upd.Dependencies != nil {
		t.Dependencies = task.UniqueDependencies(*upd.Dependencies)
	}

	if err := s.validate(t); err != nil {
		return nil, err
	}

	if err := s.write(ctx, func(ctx context.Context) error { return s.store.SaveTask(ctx, t) }); err != nil {
		return nil, fmt.Errorf("saving task: %w", err)
	}
	if upd.Dependencies != nil {
		s.coord.Register(t)
		s.publishUnblocked(s.coord.Refresh(t.ID), t.ID)
	}

	s.logger.Info("task updated", "task", t.ID)
	return t, nil
}

// DeleteTask removes a task from the store and the graph. Dependents whose
// remaining dependencies are all complete are reported as unblocked.
func (s *Service) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.write(ctx, func(ctx context.Context) error { return s.store.DeleteTask(ctx, id) })
	if errors.Is(err, persistence.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}

	unblocked := s.coord.Remove(id)
	s.publishUnblocked(unblocked, id)
	s.logger.Info("task deleted", "task", id, "unblocked", unblocked)
	return nil
}

// GetTask returns a stored task.
func (s *Service) GetTask(ctx context.Context, id string) (*task.Task, error) {
	return s.getTask(ctx, id)
}

// ListTasks returns stored tasks, optionally filtered by status.
func (s *Service) ListTasks(ctx context.Context, statuses ...task.Status) ([]*task.Task, error) {
	tasks, err := s.store.ListTasks(ctx, statuses...)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	return tasks, nil
}

// SetStatus moves a task to a new status. Starting a task takes its readiness
// permit; a task with unmet dependencies is queued as a waiter and
// ErrDependenciesPending is returned. Completing a task propagates readiness
// to its dependents.
func (s *Service) SetStatus(ctx context.Context, id string, status task.Status) (*task.Task, error) {
	if _, err := task.ParseStatus(string(status)); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.getTask(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var actualStart, actualEnd *time.Time

	switch status {
	case task.StatusInProgress:
		if unmet := s.unmetDependencies(id); len(unmet) > 0 {
			// Queue as a waiter so completion of the last dependency hands over the permit.
			s.coord.CanStart(id)
			return nil, fmt.Errorf("%w: %s waits on %s", ErrDependenciesPending, id, strings.Join(unmet, ", "))
		}
		if state, ok := s.coord.GateState(id); ok && state == coordinator.GateReady {
			s.coord.CanStart(id)
		}
		actualStart = &now
	case task.StatusCompleted:
		actualEnd = &now
	}

	err = s.write(ctx, func(ctx context.Context) error {
		return s.store.UpdateTaskStatus(ctx, id, status, actualStart, actualEnd)
	})
	if err != nil {
		return nil, fmt.Errorf("updating status: %w", err)
	}

	t.Status = status
	if actualStart != nil {
		t.ActualStart = actualStart
	}
	if actualEnd != nil {
		t.ActualEnd = actualEnd
	}

	if status == task.StatusCompleted {
		s.publishUnblocked(s.coord.MarkCompleted(id), id)
	}

	s.logger.Info("task status changed", "task", id, "status", string(status))
	return t, nil
}

// validate applies the checks the core leaves to its callers.
func (s *Service) validate(t *task.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	for _, dep := range t.Dependencies {
		if !s.coord.IsRegistered(dep) {
			return fmt.Errorf("%w: %s", ErrUnknownDependency, dep)
		}
	}
	if s.coord.CheckCircularDependency(t.ID, t.Dependencies) {
		return fmt.Errorf("%w: %s -> %s", ErrCircularDependency, t.ID, strings.Join(t.Dependencies, ", "))
	}
	return nil
}

func (s *Service) getTask(ctx context.Context, id string) (*task.Task, error) {
	t, err := s.store.GetTask(ctx, id)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading task: %w", err)
	}
	return t, nil
}

func (s *Service) unmetDependencies(id string) []string {
	var unmet []string
	for dep, done := range s.coord.DependencyStatus(id) {
		if !done {
			unmet = append(unmet, dep)
		}
	}
	sort.Strings(unmet)
	return unmet
}

// write runs a store mutation with retry and circuit breaking inside a span.
func (s *Service) write(ctx context.Context, op func(context.Context) error) error {
	ctx, span := observability.StartSpan(ctx, "store.write")
	defer span.End()

	err := withRetry(ctx, s.breaker, s.retry, op)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (s *Service) publishUnblocked(ids []string, by string) {
	for _, id := range ids {
		s.emit(events.TaskUnblockedEvent{ID: id, CompletedBy: by, Timestamp: s.now()})
	}
}

func (s *Service) emit(ev events.Event) {
	if s.pub != nil {
		s.pub.Emit(ev)
	}
}

func taskAttrs(ids ...string) attribute.KeyValue {
	return attribute.StringSlice("planner.task_ids", ids)
}
