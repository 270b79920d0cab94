package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/planner/internal/task"
)

// testStore creates an in-memory store for testing and registers cleanup.
func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewMemoryStore(context.Background())
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func saveTask(t *testing.T, store *SQLiteStore, tk *task.Task) {
	t.Helper()
	if err := store.SaveTask(context.Background(), tk); err != nil {
		t.Fatalf("failed to save %s: %v", tk.ID, err)
	}
}

func newTask(id string, deps ...string) *task.Task {
	return &task.Task{ID: id, Name: "Task " + id, Duration: 30, Priority: 3, Dependencies: deps}
}

func TestSaveAndGetTask(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	loc := time.FixedZone("CEST", 2*60*60)
	deadline := time.Date(2026, 10, 20, 17, 0, 0, 0, loc)
	start := time.Date(2026, 10, 19, 9, 0, 0, 0, loc)
	end := start.Add(45 * time.Minute)

	saveTask(t, store, newTask("dep-2"))
	saveTask(t, store, newTask("dep-1"))

	tk := &task.Task{
		ID:             "task-1",
		Name:           "Write report",
		Description:    "Quarterly numbers",
		Duration:       45,
		Priority:       5,
		Deadline:       &deadline,
		Dependencies:   []string{"dep-2", "dep-1", "dep-2"},
		Status:         task.StatusPending,
		ScheduledStart: &start,
		ScheduledEnd:   &end,
	}
	saveTask(t, store, tk)

	got, err := store.GetTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("failed to get task: %v", err)
	}

	if got.Name != tk.Name || got.Description != tk.Description {
		t.Errorf("text fields mismatch: %+v", got)
	}
	if got.Duration != 45 || got.Priority != 5 {
		t.Errorf("duration/priority = %d/%d, want 45/5", got.Duration, got.Priority)
	}
	if got.Status != task.StatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
	if got.Deadline == nil || !got.Deadline.Equal(deadline) {
		t.Errorf("deadline = %v, want %v", got.Deadline, deadline)
	}
	if _, offset := got.Deadline.Zone(); offset != 2*60*60 {
		t.Errorf("deadline offset = %d, want +02:00", offset)
	}
	if got.ScheduledStart == nil || !got.ScheduledStart.Equal(start) || !got.ScheduledEnd.Equal(end) {
		t.Errorf("schedule = %v-%v", got.ScheduledStart, got.ScheduledEnd)
	}
	if got.ActualStart != nil || got.ActualEnd != nil {
		t.Error("actual times should be empty")
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at not populated")
	}

	// Declaration order kept, duplicates dropped.
	if len(got.Dependencies) != 2 || got.Dependencies[0] != "dep-2" || got.Dependencies[1] != "dep-1" {
		t.Errorf("dependencies = %v, want [dep-2 dep-1]", got.Dependencies)
	}
}

func TestSaveTaskIdempotent(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	tk := newTask("task-idempotent")
	saveTask(t, store, tk)
	created := tk.CreatedAt

	tk.Name = "Renamed"
	tk.Status = task.StatusCompleted
	saveTask(t, store, tk)

	got, err := store.GetTask(ctx, "task-idempotent")
	if err != nil {
		t.Fatalf("failed to get task: %v", err)
	}
	if got.Name != "Renamed" || got.Status != task.StatusCompleted {
		t.Errorf("update not applied: %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("created_at changed from %v to %v", created, got.CreatedAt)
	}

	tasks, err := store.ListTasks(ctx)
	if err != nil {
		t.Fatalf("failed to list tasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("expected 1 task after repeated saves, got %d", len(tasks))
	}
}

func TestSaveTaskMissingDependency(t *testing.T) {
	store := testStore(t)

	err := store.SaveTask(context.Background(), newTask("orphan", "ghost"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// The transaction rolled back, so the task itself was not stored.
	if _, err := store.GetTask(context.Background(), "orphan"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected orphan to be absent, got %v", err)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	store := testStore(t)

	_, err := store.GetTask(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateTaskStatus(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	saveTask(t, store, newTask("task-status"))

	started := time.Date(2026, 10, 19, 9, 5, 0, 0, time.UTC)
	if err := store.UpdateTaskStatus(ctx, "task-status", task.StatusInProgress, &started, nil); err != nil {
		t.Fatalf("failed to update to in_progress: %v", err)
	}

	finished := started.Add(40 * time.Minute)
	if err := store.UpdateTaskStatus(ctx, "task-status", task.StatusCompleted, nil, &finished); err != nil {
		t.Fatalf("failed to update to completed: %v", err)
	}

	got, err := store.GetTask(ctx, "task-status")
	if err != nil {
		t.Fatalf("failed to get task: %v", err)
	}
	if got.Status != task.StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.ActualStart == nil || !got.ActualStart.Equal(started) {
		t.Errorf("actual start = %v, want %v (kept across updates)", got.ActualStart, started)
	}
	if got.ActualEnd == nil || !got.ActualEnd.Equal(finished) {
		t.Errorf("actual end = %v, want %v", got.ActualEnd, finished)
	}
}

func TestUpdateTaskStatusNotFound(t *testing.T) {
	store := testStore(t)

	err := store.UpdateTaskStatus(context.Background(), "nonexistent", task.StatusCompleted, nil, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListTasksFilterAndOrder(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	base := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"c", "a", "b"} {
		tk := newTask(id)
		tk.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if id == "a" {
			tk.Status = task.StatusCompleted
		}
		saveTask(t, store, tk)
	}
	if err := store.SetDependencies(ctx, "b", []string{"c", "a"}); err != nil {
		t.Fatalf("failed to set dependencies: %v", err)
	}

	all, err := store.ListTasks(ctx)
	if err != nil {
		t.Fatalf("failed to list tasks: %v", err)
	}
	if len(all) != 3 || all[0].ID != "c" || all[1].ID != "a" || all[2].ID != "b" {
		t.Fatalf("order = %v, want creation order c, a, b", ids(all))
	}
	if deps := all[2].Dependencies; len(deps) != 2 || deps[0] != "c" || deps[1] != "a" {
		t.Errorf("b dependencies = %v, want [c a]", deps)
	}
	if all[0].Dependencies == nil {
		t.Error("dependencies should be an empty slice, not nil")
	}

	open, err := store.ListTasks(ctx, task.StatusPending, task.StatusInProgress)
	if err != nil {
		t.Fatalf("failed to list open tasks: %v", err)
	}
	if len(open) != 2 {
		t.Errorf("open tasks = %v, want c and b", ids(open))
	}
}

func TestSetDependenciesNotFound(t *testing.T) {
	store := testStore(t)

	err := store.SetDependencies(context.Background(), "missing", nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteTaskCascadesDependencies(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	saveTask(t, store, newTask("a"))
	saveTask(t, store, newTask("b", "a"))

	if err := store.DeleteTask(ctx, "a"); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}

	b, err := store.GetTask(ctx, "b")
	if err != nil {
		t.Fatalf("failed to get b: %v", err)
	}
	if len(b.Dependencies) != 0 {
		t.Errorf("b dependencies = %v, want none after delete", b.Dependencies)
	}

	if err := store.DeleteTask(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestSaveAndClearSchedules(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	a, b, c := newTask("a"), newTask("b"), newTask("c")
	for _, tk := range []*task.Task{a, b, c} {
		saveTask(t, store, tk)
	}

	a.SetSchedule(time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC))
	b.SetSchedule(time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC))
	if err := store.SaveSchedules(ctx, []*task.Task{a, b}); err != nil {
		t.Fatalf("failed to save schedules: %v", err)
	}

	got, _ := store.GetTask(ctx, "b")
	if got.ScheduledEnd == nil || !got.ScheduledEnd.Equal(*b.ScheduledEnd) {
		t.Errorf("b scheduled end = %v, want %v", got.ScheduledEnd, b.ScheduledEnd)
	}

	cleared, err := store.ClearSchedules(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("failed to clear schedules: %v", err)
	}
	if cleared != 2 {
		t.Errorf("cleared = %d, want 2 (c had no schedule)", cleared)
	}

	got, _ = store.GetTask(ctx, "a")
	if got.IsScheduled() {
		t.Error("a still scheduled after clear")
	}

	ghost := newTask("ghost")
	ghost.SetSchedule(time.Now())
	if err := store.SaveSchedules(ctx, []*task.Task{ghost}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown task, got %v", err)
	}
}

func TestRunsAndRepairs(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	start := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	for i, policy := range []string{"fcfs", "sjf"} {
		run := &ScheduleRun{
			Date:        "2026-10-19",
			Policy:      policy,
			WindowStart: start,
			WindowEnd:   start.Add(8 * time.Hour),
			Scheduled:   3 + i,
			Unscheduled: 1,
			CreatedAt:   start.Add(time.Duration(i) * time.Minute),
		}
		if err := store.RecordRun(ctx, run); err != nil {
			t.Fatalf("failed to record run: %v", err)
		}
		if run.ID == "" {
			t.Error("run ID not assigned")
		}
	}

	runs, err := store.ListRuns(ctx, 1)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Policy != "sjf" || runs[0].Scheduled != 4 {
		t.Errorf("latest run = %+v, want sjf with 4 scheduled", runs)
	}
	if !runs[0].WindowEnd.Equal(start.Add(8 * time.Hour)) {
		t.Errorf("window end = %v", runs[0].WindowEnd)
	}

	repair := Repair{TaskID: "A", RemovedDep: "B", Cycle: []string{"A", "B", "C", "A"}}
	if err := store.RecordRepair(ctx, repair); err != nil {
		t.Fatalf("failed to record repair: %v", err)
	}
	repairs, err := store.ListRepairs(ctx)
	if err != nil {
		t.Fatalf("failed to list repairs: %v", err)
	}
	if len(repairs) != 1 || repairs[0].RemovedDep != "B" || len(repairs[0].Cycle) != 4 {
		t.Errorf("repairs = %+v", repairs)
	}
}

func TestFileStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "planner.db")

	store, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	saveTask(t, store, newTask("kept"))
	store.Close()

	reopened, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer reopened.Close()

	if _, err := reopened.GetTask(ctx, "kept"); err != nil {
		t.Errorf("task lost after reopen: %v", err)
	}
}

func TestMemoryStoresIsolated(t *testing.T) {
	a := testStore(t)
	b := testStore(t)

	saveTask(t, a, newTask("only-in-a"))

	if _, err := b.GetTask(context.Background(), "only-in-a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("memory stores share data: %v", err)
	}
}

func ids(tasks []*task.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, tk := range tasks {
		out = append(out, tk.ID)
	}
	return out
}
