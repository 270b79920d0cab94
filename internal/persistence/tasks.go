package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/planner/internal/task"
)

const taskColumns = `id, name, description, duration, priority, deadline, status, created_at, updated_at,
	scheduled_start, scheduled_end, actual_start, actual_end`

// SaveTask saves or updates a task and its dependencies.
// Uses ON CONFLICT to make saves idempotent. Every dependency must already exist.
func (s *SQLiteStore) SaveTask(ctx context.Context, t *task.Task) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	status := t.Status
	if status == "" {
		status = task.StatusPending
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			duration = excluded.duration,
			priority = excluded.priority,
			deadline = excluded.deadline,
			status = excluded.status,
			updated_at = excluded.updated_at,
			scheduled_start = excluded.scheduled_start,
			scheduled_end = excluded.scheduled_end,
			actual_start = excluded.actual_start,
			actual_end = excluded.actual_end
	`, t.ID, t.Name, t.Description, t.Duration, t.Priority, formatTime(t.Deadline), string(status),
		formatTime(&createdAt), formatTime(&now),
		formatTime(t.ScheduledStart), formatTime(t.ScheduledEnd), formatTime(t.ActualStart), formatTime(t.ActualEnd))
	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}

	if err := replaceDependencies(ctx, tx, t.ID, t.Dependencies); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	t.CreatedAt = createdAt
	t.UpdatedAt = now
	t.Status = status
	return nil
}

// SetDependencies replaces a task's dependency list, keeping declaration order.
func (s *SQLiteStore) SetDependencies(ctx context.Context, taskID string, deps []string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE tasks SET updated_at = ? WHERE id = ?`, formatTime(ptr(time.Now())), taskID)
	if err != nil {
		return fmt.Errorf("failed to touch task: %w", err)
	}
	if err := requireRow(res, taskID); err != nil {
		return err
	}

	if err := replaceDependencies(ctx, tx, taskID, deps); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func replaceDependencies(ctx context.Context, tx *sql.Tx, taskID string, deps []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_dependencies WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("failed to delete old dependencies: %w", err)
	}

	for pos, depID := range task.UniqueDependencies(deps) {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, depID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("dependency task %s: %w", depID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check dependency existence: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO task_dependencies (task_id, depends_on_id, position)
			VALUES (?, ?, ?)
		`, taskID, depID, pos)
		if err != nil {
			return fmt.Errorf("failed to insert dependency %s -> %s: %w", taskID, depID, err)
		}
	}
	return nil
}

// GetTask retrieves a task by ID, including its dependencies.
func (s *SQLiteStore) GetTask(ctx context.Context, taskID string) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}

	deps, err := s.loadDependencies(ctx, taskID)
	if err != nil {
		return nil, err
	}
	t.Dependencies = deps[taskID]
	if t.Dependencies == nil {
		t.Dependencies = []string{}
	}
	return t, nil
}

// ListTasks returns tasks ordered by creation time, optionally restricted to
// the given statuses.
func (s *SQLiteStore) ListTasks(ctx context.Context, statuses ...task.Status) ([]*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	// Release the only connection before the dependency query.
	rows.Close()

	deps, err := s.loadDependencies(ctx, "")
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		t.Dependencies = deps[t.ID]
		if t.Dependencies == nil {
			t.Dependencies = []string{}
		}
	}

	return tasks, nil
}

// loadDependencies returns dependency lists in declaration order, for one
// task or, with an empty id, for every task.
func (s *SQLiteStore) loadDependencies(ctx context.Context, taskID string) (map[string][]string, error) {
	query := `SELECT task_id, depends_on_id FROM task_dependencies`
	var args []any
	if taskID != "" {
		query += ` WHERE task_id = ?`
		args = append(args, taskID)
	}
	query += ` ORDER BY task_id, position`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query dependencies: %w", err)
	}
	defer rows.Close()

	deps := make(map[string][]string)
	for rows.Next() {
		var id, depID string
		if err := rows.Scan(&id, &depID); err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		deps[id] = append(deps[id], depID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dependencies: %w", err)
	}
	return deps, nil
}

// UpdateTaskStatus sets the status and, when non-nil, the actual start/end times.
func (s *SQLiteStore) UpdateTaskStatus(ctx context.Context, taskID string, status task.Status, actualStart, actualEnd *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?,
			actual_start = COALESCE(?, actual_start),
			actual_end = COALESCE(?, actual_end),
			updated_at = ?
		WHERE id = ?
	`, string(status), formatTime(actualStart), formatTime(actualEnd), formatTime(ptr(time.Now())), taskID)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	return requireRow(res, taskID)
}

// DeleteTask removes a task. Dependency rows on either side cascade.
func (s *SQLiteStore) DeleteTask(ctx context.Context, taskID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return requireRow(res, taskID)
}

// SaveSchedules writes the scheduled start/end of every task in one transaction.
func (s *SQLiteStore) SaveSchedules(ctx context.Context, tasks []*task.Task) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(ptr(time.Now()))
	for _, t := range tasks {
		res, err := tx.ExecContext(ctx, `
			UPDATE tasks SET scheduled_start = ?, scheduled_end = ?, updated_at = ? WHERE id = ?
		`, formatTime(t.ScheduledStart), formatTime(t.ScheduledEnd), now, t.ID)
		if err != nil {
			return fmt.Errorf("failed to save schedule for %s: %w", t.ID, err)
		}
		if err := requireRow(res, t.ID); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ClearSchedules removes the scheduled fields of the given tasks and returns
// how many rows changed.
func (s *SQLiteStore) ClearSchedules(ctx context.Context, taskIDs []string) (int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(ptr(time.Now()))
	cleared := 0
	for _, id := range taskIDs {
		res, err := tx.ExecContext(ctx, `
			UPDATE tasks SET scheduled_start = NULL, scheduled_end = NULL, updated_at = ?
			WHERE id = ? AND scheduled_start IS NOT NULL
		`, now, id)
		if err != nil {
			return 0, fmt.Errorf("failed to clear schedule for %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected: %w", err)
		}
		cleared += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return cleared, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*task.Task, error) {
	t := &task.Task{}
	var status, createdAt, updatedAt string
	var deadline, schedStart, schedEnd, actStart, actEnd sql.NullString

	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Duration, &t.Priority, &deadline, &status,
		&createdAt, &updatedAt, &schedStart, &schedEnd, &actStart, &actEnd)
	if err != nil {
		return nil, err
	}
	t.Status = task.Status(status)

	for _, f := range []struct {
		src sql.NullString
		dst **time.Time
	}{
		{deadline, &t.Deadline},
		{schedStart, &t.ScheduledStart},
		{schedEnd, &t.ScheduledEnd},
		{actStart, &t.ActualStart},
		{actEnd, &t.ActualEnd},
	} {
		v, err := parseTime(f.src)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}

	for _, f := range []struct {
		src string
		dst *time.Time
	}{
		{createdAt, &t.CreatedAt},
		{updatedAt, &t.UpdatedAt},
	} {
		v, err := parseTime(sql.NullString{String: f.src, Valid: true})
		if err != nil {
			return nil, err
		}
		if v != nil {
			*f.dst = *v
		}
	}

	return t, nil
}

func requireRow(res sql.Result, taskID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	return nil
}

func ptr[T any](v T) *T { return &v }
