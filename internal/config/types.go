package config

// SchedulingConfig holds the defaults for schedule generation.
type SchedulingConfig struct {
	Policy       string `json:"policy"`                 // round_robin, fcfs, sjf, ljf, priority
	DayStart     string `json:"day_start"`              // HH:MM
	DayEnd       string `json:"day_end"`                // HH:MM
	ProbeMinutes int    `json:"probe_minutes,omitempty"` // Cursor step when nothing is schedulable
	FitWindow    *bool  `json:"fit_window,omitempty"`    // Require slots to end inside the window
}

// ProfileConfig is a named window/policy combination selectable with --profile.
type ProfileConfig struct {
	Policy   string `json:"policy,omitempty"`
	DayStart string `json:"day_start,omitempty"`
	DayEnd   string `json:"day_end,omitempty"`
}

// StorageConfig locates the task database.
type StorageConfig struct {
	Path string `json:"path"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text, json
}

// TracingConfig selects an OpenTelemetry exporter.
type TracingConfig struct {
	Exporter string `json:"exporter"`           // none, stdout, otlp, otlphttp
	Endpoint string `json:"endpoint,omitempty"` // Collector address for otlp exporters
	Insecure bool   `json:"insecure,omitempty"`
}

// PlannerConfig is the top-level configuration.
type PlannerConfig struct {
	Scheduling SchedulingConfig         `json:"scheduling"`
	Profiles   map[string]ProfileConfig `json:"profiles"`
	Storage    StorageConfig            `json:"storage"`
	Logging    LoggingConfig            `json:"logging"`
	Tracing    TracingConfig            `json:"tracing"`
}

// FitsWindow reports whether fit_window is enabled.
func (c SchedulingConfig) FitsWindow() bool {
	return c.FitWindow != nil && *c.FitWindow
}

// Profile resolves a named profile over the scheduling defaults. Fields the
// profile leaves empty keep the default. The boolean is false for unknown names.
func (c *PlannerConfig) Profile(name string) (SchedulingConfig, bool) {
	sc := c.Scheduling
	p, ok := c.Profiles[name]
	if !ok {
		return sc, false
	}
	if p.Policy != "" {
		sc.Policy = p.Policy
	}
	if p.DayStart != "" {
		sc.DayStart = p.DayStart
	}
	if p.DayEnd != "" {
		sc.DayEnd = p.DayEnd
	}
	return sc, true
}
