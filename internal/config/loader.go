package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrInvalidClock is returned for day_start/day_end values that are not HH:MM.
var ErrInvalidClock = errors.New("invalid clock time")

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*PlannerConfig, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.planner/config.json
// Project: .planner/config.json (relative to cwd)
func LoadDefault() (*PlannerConfig, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	return Load(GlobalPath(homeDir), ProjectPath())
}

// GlobalPath is the per-user config file under homeDir.
func GlobalPath(homeDir string) string {
	return filepath.Join(homeDir, ".planner", "config.json")
}

// ProjectPath is the config file relative to the working directory.
func ProjectPath() string {
	return filepath.Join(".planner", "config.json")
}

// Validate checks the clock fields of the defaults and every profile.
func (c *PlannerConfig) Validate() error {
	if _, err := ParseClock(c.Scheduling.DayStart); err != nil {
		return fmt.Errorf("scheduling.day_start: %w", err)
	}
	if _, err := ParseClock(c.Scheduling.DayEnd); err != nil {
		return fmt.Errorf("scheduling.day_end: %w", err)
	}
	for name, p := range c.Profiles {
		for field, v := range map[string]string{"day_start": p.DayStart, "day_end": p.DayEnd} {
			if v == "" {
				continue
			}
			if _, err := ParseClock(v); err != nil {
				return fmt.Errorf("profiles.%s.%s: %w", name, field, err)
			}
		}
	}
	return nil
}

// ParseClock parses an HH:MM time of day into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w %q: want HH:MM", ErrInvalidClock, s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// mergeConfigFile reads a JSON config file and merges it into the base config.
// Missing files are silently skipped. Malformed JSON returns an error.
func mergeConfigFile(base *PlannerConfig, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded PlannerConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	mergeScheduling(&base.Scheduling, loaded.Scheduling)

	if base.Profiles == nil {
		base.Profiles = make(map[string]ProfileConfig)
	}
	for name, profile := range loaded.Profiles {
		base.Profiles[name] = profile
	}

	setIfNonEmpty(&base.Storage.Path, loaded.Storage.Path)
	setIfNonEmpty(&base.Logging.Level, loaded.Logging.Level)
	setIfNonEmpty(&base.Logging.Format, loaded.Logging.Format)
	setIfNonEmpty(&base.Tracing.Exporter, loaded.Tracing.Exporter)
	setIfNonEmpty(&base.Tracing.Endpoint, loaded.Tracing.Endpoint)
	if loaded.Tracing.Insecure {
		base.Tracing.Insecure = true
	}

	return nil
}

func mergeScheduling(base *SchedulingConfig, loaded SchedulingConfig) {
	setIfNonEmpty(&base.Policy, loaded.Policy)
	setIfNonEmpty(&base.DayStart, loaded.DayStart)
	setIfNonEmpty(&base.DayEnd, loaded.DayEnd)
	if loaded.ProbeMinutes > 0 {
		base.ProbeMinutes = loaded.ProbeMinutes
	}
	if loaded.FitWindow != nil {
		v := *loaded.FitWindow
		base.FitWindow = &v
	}
}

func setIfNonEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
