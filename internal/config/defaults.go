package config

import (
	"os"
	"path/filepath"
)

// DefaultConfig returns the built-in configuration: an 09:00-17:00 round-robin
// day, a database under ~/.planner, text logging at info, and tracing off.
func DefaultConfig() *PlannerConfig {
	return &PlannerConfig{
		Scheduling: SchedulingConfig{
			Policy:       "round_robin",
			DayStart:     "09:00",
			DayEnd:       "17:00",
			ProbeMinutes: 15,
		},
		Profiles: map[string]ProfileConfig{
			"workday": {
				Policy:   "round_robin",
				DayStart: "09:00",
				DayEnd:   "17:00",
			},
			"morning": {
				Policy:   "priority",
				DayStart: "08:00",
				DayEnd:   "12:00",
			},
			"quick-wins": {
				Policy: "sjf",
			},
		},
		Storage: StorageConfig{
			Path: defaultDBPath(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			Exporter: "none",
		},
	}
}

func defaultDBPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".planner", "planner.db")
	}
	return filepath.Join(homeDir, ".planner", "planner.db")
}
