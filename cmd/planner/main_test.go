package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aristath/planner/internal/planner"
)

// execute runs one CLI invocation against dbPath and returns its stdout.
func execute(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	rootCmd, a := newRootCmd()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--db", dbPath, "--log-level", "error"}, args...))

	err := rootCmd.Execute()
	if cerr := a.close(); cerr != nil {
		t.Fatalf("close: %v", cerr)
	}
	return out.String(), err
}

func mustExecute(t *testing.T, dbPath string, args ...string) string {
	t.Helper()
	out, err := execute(t, dbPath, args...)
	if err != nil {
		t.Fatalf("planner %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func newDB(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	return filepath.Join(dir, "planner.db")
}

func TestTaskLifecycle(t *testing.T) {
	db := newDB(t)

	out := mustExecute(t, db, "task", "add", "--id", "design", "--name", "Design", "--duration", "60")
	if !strings.Contains(out, "Created task: design") {
		t.Fatalf("add output = %q", out)
	}
	mustExecute(t, db, "task", "add", "--id", "build", "--name", "Build", "--duration", "30", "--dep", "design")

	out = mustExecute(t, db, "task", "list")
	for _, want := range []string{"design", "build", "Design", "pending"} {
		if !strings.Contains(out, want) {
			t.Errorf("list output missing %q:\n%s", want, out)
		}
	}

	out = mustExecute(t, db, "task", "show", "build")
	if !strings.Contains(out, "design (waiting)") {
		t.Errorf("show output = %q, want waiting dependency", out)
	}

	if _, err := execute(t, db, "task", "status", "build", "in_progress"); !errors.Is(err, planner.ErrDependenciesPending) {
		t.Fatalf("status err = %v, want ErrDependenciesPending", err)
	}

	mustExecute(t, db, "task", "status", "design", "completed")
	out = mustExecute(t, db, "task", "show", "build")
	if !strings.Contains(out, "design (completed)") {
		t.Errorf("show output = %q, want completed dependency", out)
	}

	out = mustExecute(t, db, "task", "update", "build", "--priority", "5", "--name", "Build it")
	if !strings.Contains(out, "Updated task: build") {
		t.Errorf("update output = %q", out)
	}
	out = mustExecute(t, db, "task", "list", "--status", "pending")
	if !strings.Contains(out, "Build it") || strings.Contains(out, "Design") {
		t.Errorf("filtered list = %q", out)
	}

	mustExecute(t, db, "task", "delete", "build")
	if _, err := execute(t, db, "task", "show", "build"); !errors.Is(err, planner.ErrTaskNotFound) {
		t.Fatalf("show deleted err = %v, want ErrTaskNotFound", err)
	}
}

func TestTaskAddRejectsUnknownDependency(t *testing.T) {
	db := newDB(t)

	_, err := execute(t, db, "task", "add", "--name", "Orphan", "--duration", "10", "--dep", "ghost")
	if !errors.Is(err, planner.ErrUnknownDependency) {
		t.Fatalf("err = %v, want ErrUnknownDependency", err)
	}
}

func TestScheduleGenerateAndShow(t *testing.T) {
	db := newDB(t)

	mustExecute(t, db, "task", "add", "--id", "a", "--name", "Alpha", "--duration", "60")
	mustExecute(t, db, "task", "add", "--id", "b", "--name", "Beta", "--duration", "30", "--dep", "a")

	out := mustExecute(t, db, "schedule", "generate",
		"--date", "2026-10-19", "--start", "09:00", "--end", "17:00", "--policy", "fcfs")
	for _, want := range []string{"Schedule for 2026-10-19 (fcfs, 09:00-17:00)", "Alpha", "Beta", "10:00"} {
		if !strings.Contains(out, want) {
			t.Errorf("generate output missing %q:\n%s", want, out)
		}
	}

	out = mustExecute(t, db, "schedule", "show", "--date", "2026-10-19")
	alpha := strings.Index(out, "Alpha")
	beta := strings.Index(out, "Beta")
	if alpha < 0 || beta < 0 || alpha > beta {
		t.Errorf("show output should list Alpha before Beta:\n%s", out)
	}

	out = mustExecute(t, db, "schedule", "runs")
	if !strings.Contains(out, "2026-10-19") || !strings.Contains(out, "fcfs") {
		t.Errorf("runs output = %q", out)
	}

	out = mustExecute(t, db, "schedule", "reset", "--date", "2026-10-19")
	if !strings.Contains(out, "Cleared 2 scheduled tasks") {
		t.Errorf("reset output = %q", out)
	}
	out = mustExecute(t, db, "schedule", "show", "--date", "2026-10-19")
	if !strings.Contains(out, "Nothing scheduled on 2026-10-19") {
		t.Errorf("show after reset = %q", out)
	}
}

func TestScheduleCompareListsEveryPolicy(t *testing.T) {
	db := newDB(t)

	mustExecute(t, db, "task", "add", "--id", "a", "--name", "Alpha", "--duration", "45")
	out := mustExecute(t, db, "schedule", "compare", "--date", "2026-10-19", "--start", "09:00", "--end", "12:00")
	for _, policy := range []string{"round_robin", "fcfs", "sjf", "ljf", "priority"} {
		if !strings.Contains(out, policy) {
			t.Errorf("compare output missing %s:\n%s", policy, out)
		}
	}
}

func TestScheduleGenerateRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want error
	}{
		{"bad date", []string{"--date", "19/10/2026"}, planner.ErrInvalidDate},
		{"inverted window", []string{"--date", "2026-10-19", "--start", "17:00", "--end", "09:00"}, planner.ErrInvalidWindow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newDB(t)
			_, err := execute(t, db, append([]string{"schedule", "generate"}, tt.args...)...)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestUnknownProfileFailsBeforeOpening(t *testing.T) {
	db := newDB(t)

	_, err := execute(t, db, "--profile", "nope", "task", "list")
	if !errors.Is(err, planner.ErrUnknownProfile) {
		t.Fatalf("err = %v, want ErrUnknownProfile", err)
	}
}

func TestDepsCommands(t *testing.T) {
	db := newDB(t)

	mustExecute(t, db, "task", "add", "--id", "a", "--name", "Alpha", "--duration", "10")
	mustExecute(t, db, "task", "add", "--id", "b", "--name", "Beta", "--duration", "10", "--dep", "a")
	mustExecute(t, db, "task", "add", "--id", "c", "--name", "Gamma", "--duration", "10", "--dep", "b")

	out := mustExecute(t, db, "deps", "order")
	if got := strings.Fields(out); strings.Join(got, " ") != "a b c" {
		t.Errorf("order = %v, want [a b c]", got)
	}

	out = mustExecute(t, db, "deps", "status", "c")
	if !strings.Contains(out, "b\twaiting") {
		t.Errorf("status output = %q", out)
	}

	out = mustExecute(t, db, "deps", "summary")
	for _, want := range []string{"Tasks:     3", "Waiting:   2", "Deadlocks: 0", "c <- b"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}

	if out := mustExecute(t, db, "deps", "deadlocks"); !strings.Contains(out, "No deadlocks") {
		t.Errorf("deadlocks output = %q", out)
	}
	if out := mustExecute(t, db, "deps", "resolve"); !strings.Contains(out, "No deadlocks") {
		t.Errorf("resolve output = %q", out)
	}
	if out := mustExecute(t, db, "deps", "repairs"); !strings.Contains(out, "No repairs recorded") {
		t.Errorf("repairs output = %q", out)
	}
}

func TestTaskImport(t *testing.T) {
	db := newDB(t)
	path := filepath.Join(t.TempDir(), "tasks.hcl")
	writeFile(t, path, `
task "deploy" {
  name       = "Deploy ${var.env}"
  duration   = 15
  depends_on = ["build"]
}

task "build" {
  name     = "Build"
  duration = "1h"
}
`)

	out := mustExecute(t, db, "task", "import", path, "--var", "env=prod")
	if !strings.Contains(out, "Imported 2 tasks") {
		t.Fatalf("import output = %q", out)
	}

	out = mustExecute(t, db, "task", "show", "deploy")
	if !strings.Contains(out, "Deploy prod") || !strings.Contains(out, "build (waiting)") {
		t.Errorf("show output = %q", out)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
