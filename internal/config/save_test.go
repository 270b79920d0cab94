package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveCreatesParentDir(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "deep", "config.json")

	if err := Save(DefaultConfig(), path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Config file was not created: %v", err)
	}

	var loaded PlannerConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("Config file contains invalid JSON: %v", err)
	}
	if loaded.Scheduling.DayStart != "09:00" {
		t.Errorf("day_start = %q, want 09:00", loaded.Scheduling.DayStart)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")

	fit := true
	cfg := DefaultConfig()
	cfg.Scheduling.Policy = "ljf"
	cfg.Scheduling.DayStart = "07:30"
	cfg.Scheduling.FitWindow = &fit
	cfg.Profiles["night"] = ProfileConfig{Policy: "fcfs", DayStart: "20:00", DayEnd: "23:00"}
	cfg.Storage.Path = filepath.Join(tmpDir, "tasks.db")
	cfg.Tracing = TracingConfig{Exporter: "otlp", Endpoint: "localhost:4317", Insecure: true}

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Scheduling.Policy != "ljf" || loaded.Scheduling.DayStart != "07:30" {
		t.Errorf("scheduling mismatch: %+v", loaded.Scheduling)
	}
	if !loaded.Scheduling.FitsWindow() {
		t.Error("fit_window lost in round trip")
	}
	if loaded.Profiles["night"].DayEnd != "23:00" {
		t.Errorf("night profile mismatch: %+v", loaded.Profiles["night"])
	}
	if loaded.Storage.Path != cfg.Storage.Path {
		t.Errorf("storage path = %q, want %q", loaded.Storage.Path, cfg.Storage.Path)
	}
	if loaded.Tracing.Endpoint != "localhost:4317" || !loaded.Tracing.Insecure {
		t.Errorf("tracing mismatch: %+v", loaded.Tracing)
	}
}

func TestSaveOverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := DefaultConfig()
	cfg.Scheduling.Policy = "fcfs"
	if err := Save(cfg, path); err != nil {
		t.Fatalf("First save failed: %v", err)
	}

	cfg.Scheduling.Policy = "priority"
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	loaded, err := Load("", path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Scheduling.Policy != "priority" {
		t.Errorf("Expected 'priority', got '%s'", loaded.Scheduling.Policy)
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := DefaultConfig()
	cfg.Scheduling.DayEnd = "late"
	if err := Save(cfg, path); err == nil {
		t.Fatal("expected error saving invalid clock")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("invalid config should not be written")
	}
}
