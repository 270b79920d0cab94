// Package manifest reads task batches from HCL files.
//
// A manifest holds one task block per task; the block label is the task id:
//
//	task "write-report" {
//	  name       = "Write report"
//	  duration   = "1h30m"
//	  priority   = 4
//	  deadline   = "${var.date}T17:00:00Z"
//	  depends_on = ["collect-data"]
//	}
//
// duration is either a whole number of minutes or a Go duration string.
// Values passed as Vars are available to expressions as var.<name>.
package manifest

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/aristath/planner/internal/task"
)

// DefaultPriority is used when a task block omits priority.
const DefaultPriority = 3

// deadlineLayouts are tried in order after RFC 3339.
var deadlineLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Options controls evaluation of a manifest.
type Options struct {
	Vars map[string]string
	// Location applies to deadlines without an offset. Defaults to time.Local.
	Location *time.Location
}

type hclFile struct {
	Tasks []*hclTask `hcl:"task,block"`
}

type hclTask struct {
	ID          string   `hcl:"id,label"`
	Name        string   `hcl:"name"`
	Description *string  `hcl:"description,optional"`
	Duration    string   `hcl:"duration"`
	Priority    *int     `hcl:"priority,optional"`
	Deadline    *string  `hcl:"deadline,optional"`
	DependsOn   []string `hcl:"depends_on,optional"`
}

// Load reads and parses the manifest at path.
func Load(path string, opts Options) ([]*task.Task, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(src, path, opts)
}

// Parse decodes manifest source. filename is used in diagnostics only.
func Parse(src []byte, filename string, opts Options) ([]*task.Task, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse manifest %s: %s", filename, diags.Error())
	}

	var decoded hclFile
	diags = gohcl.DecodeBody(file.Body, evalContext(opts.Vars), &decoded)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode manifest %s: %s", filename, diags.Error())
	}

	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	seen := make(map[string]bool, len(decoded.Tasks))
	tasks := make([]*task.Task, 0, len(decoded.Tasks))
	for _, b := range decoded.Tasks {
		if seen[b.ID] {
			return nil, fmt.Errorf("%s: task %q declared twice", filename, b.ID)
		}
		seen[b.ID] = true

		t, err := b.toTask(loc)
		if err != nil {
			return nil, fmt.Errorf("%s: task %q: %w", filename, b.ID, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func evalContext(vars map[string]string) *hcl.EvalContext {
	obj := cty.EmptyObjectVal
	if len(vars) > 0 {
		vals := make(map[string]cty.Value, len(vars))
		for k, v := range vars {
			vals[k] = cty.StringVal(v)
		}
		obj = cty.ObjectVal(vals)
	}
	return &hcl.EvalContext{Variables: map[string]cty.Value{"var": obj}}
}

func (b *hclTask) toTask(loc *time.Location) (*task.Task, error) {
	minutes, err := parseMinutes(b.Duration)
	if err != nil {
		return nil, err
	}

	t := &task.Task{
		ID:           b.ID,
		Name:         strings.TrimSpace(b.Name),
		Duration:     minutes,
		Priority:     DefaultPriority,
		Dependencies: task.UniqueDependencies(b.DependsOn),
		Status:       task.StatusPending,
	}
	if b.Description != nil {
		t.Description = *b.Description
	}
	if b.Priority != nil {
		t.Priority = *b.Priority
	}
	if b.Deadline != nil {
		d, err := ParseDeadline(*b.Deadline, loc)
		if err != nil {
			return nil, err
		}
		t.Deadline = &d
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func parseMinutes(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if d%time.Minute != 0 {
		return 0, fmt.Errorf("duration %q is not a whole number of minutes", s)
	}
	return int(d / time.Minute), nil
}

// ParseDeadline accepts RFC 3339, or a local date with optional HH:MM in loc. A
// bare date means 23:59 on that day.
func ParseDeadline(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range deadlineLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			if layout == "2006-01-02" {
				t = t.AddDate(0, 0, 1).Add(-time.Minute)
			}
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid deadline %q", s)
}
