package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecordRun stores a schedule generation. ID and CreatedAt are filled in when empty.
func (s *SQLiteStore) RecordRun(ctx context.Context, run *ScheduleRun) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedule_runs (id, date, policy, window_start, window_end, scheduled, unscheduled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Date, run.Policy, formatTime(&run.WindowStart), formatTime(&run.WindowEnd),
		run.Scheduled, run.Unscheduled, formatTime(&run.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to record schedule run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first. A limit <= 0 returns all.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]ScheduleRun, error) {
	query := `
		SELECT id, date, policy, window_start, window_end, scheduled, unscheduled, created_at
		FROM schedule_runs
		ORDER BY created_at DESC
	`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule runs: %w", err)
	}
	defer rows.Close()

	var runs []ScheduleRun
	for rows.Next() {
		var run ScheduleRun
		var start, end, created string
		if err := rows.Scan(&run.ID, &run.Date, &run.Policy, &start, &end, &run.Scheduled, &run.Unscheduled, &created); err != nil {
			return nil, fmt.Errorf("failed to scan schedule run: %w", err)
		}
		for _, f := range []struct {
			src string
			dst *time.Time
		}{
			{start, &run.WindowStart},
			{end, &run.WindowEnd},
			{created, &run.CreatedAt},
		} {
			v, err := parseTime(sql.NullString{String: f.src, Valid: true})
			if err != nil {
				return nil, err
			}
			if v != nil {
				*f.dst = *v
			}
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedule runs: %w", err)
	}
	return runs, nil
}

// RecordRepair stores a broken dependency edge for audit.
func (s *SQLiteStore) RecordRepair(ctx context.Context, r Repair) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cycle, err := json.Marshal(r.Cycle)
	if err != nil {
		return fmt.Errorf("failed to encode cycle: %w", err)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dependency_repairs (task_id, removed_dependency, cycle, created_at)
		VALUES (?, ?, ?, ?)
	`, r.TaskID, r.RemovedDep, string(cycle), formatTime(&r.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to record repair: %w", err)
	}
	return nil
}

// ListRepairs returns every recorded repair, oldest first.
func (s *SQLiteStore) ListRepairs(ctx context.Context) ([]Repair, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, removed_dependency, cycle, created_at
		FROM dependency_repairs
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query repairs: %w", err)
	}
	defer rows.Close()

	var repairs []Repair
	for rows.Next() {
		var r Repair
		var cycle, created string
		if err := rows.Scan(&r.TaskID, &r.RemovedDep, &cycle, &created); err != nil {
			return nil, fmt.Errorf("failed to scan repair: %w", err)
		}
		if err := json.Unmarshal([]byte(cycle), &r.Cycle); err != nil {
			return nil, fmt.Errorf("failed to decode cycle: %w", err)
		}
		if v, err := parseTime(sql.NullString{String: created, Valid: true}); err != nil {
			return nil, err
		} else if v != nil {
			r.CreatedAt = *v
		}
		repairs = append(repairs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating repairs: %w", err)
	}
	return repairs, nil
}
