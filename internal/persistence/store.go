package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aristath/planner/internal/task"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is wrapped by lookups and updates that match no row.
var ErrNotFound = errors.New("not found")

// ScheduleRun is one persisted schedule generation.
type ScheduleRun struct {
	ID          string
	Date        string // YYYY-MM-DD
	Policy      string
	WindowStart time.Time
	WindowEnd   time.Time
	Scheduled   int
	Unscheduled int
	CreatedAt   time.Time
}

// Repair records a dependency edge removed to break a cycle.
type Repair struct {
	TaskID     string
	RemovedDep string
	Cycle      []string
	CreatedAt  time.Time
}

// Store defines the persistence interface for tasks, schedule runs, and
// dependency repairs.
type Store interface {
	// Task operations
	SaveTask(ctx context.Context, t *task.Task) error
	GetTask(ctx context.Context, taskID string) (*task.Task, error)
	ListTasks(ctx context.Context, statuses ...task.Status) ([]*task.Task, error)
	UpdateTaskStatus(ctx context.Context, taskID string, status task.Status, actualStart, actualEnd *time.Time) error
	SetDependencies(ctx context.Context, taskID string, deps []string) error
	DeleteTask(ctx context.Context, taskID string) error

	// Schedule fields
	SaveSchedules(ctx context.Context, tasks []*task.Task) error
	ClearSchedules(ctx context.Context, taskIDs []string) (int, error)

	// Audit
	RecordRun(ctx context.Context, run *ScheduleRun) error
	ListRuns(ctx context.Context, limit int) ([]ScheduleRun, error)
	RecordRepair(ctx context.Context, r Repair) error
	ListRepairs(ctx context.Context) ([]Repair, error)

	// Lifecycle
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode, foreign keys, and busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	// modernc.org/sqlite ignores _foreign_keys in the DSN; the pragma is set in open.
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	return open(ctx, connStr)
}

// NewMemoryStore creates an in-memory SQLite store for testing.
// Every call gets its own shared-cache database so parallel tests stay isolated.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	connStr := fmt.Sprintf("file:planner-%s?mode=memory&cache=shared", uuid.NewString())
	return open(ctx, connStr)
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection keeps the pragma and the in-memory database alive for
	// the store's lifetime. Queries never nest.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// timeLayout is fixed-width so TEXT columns sort chronologically within one offset.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTime renders an optional time for a TEXT column.
func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(timeLayout)
}

// parseTime reads an optional TEXT column written by formatTime.
func parseTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse time %q: %w", v.String, err)
	}
	return &t, nil
}
