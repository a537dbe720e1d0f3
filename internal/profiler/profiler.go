// Package profiler obtains measured WCETs from an external profiler binary
// and applies them to a task file before analysis.
package profiler

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/joshharrison/schedcheck/internal/taskfile"
)

// Measurer reports the worst-case execution time observed for a task over a
// measurement window, in the task file's time unit.
type Measurer interface {
	Measure(ctx context.Context, task string, window time.Duration) (int64, error)
}

// Client wraps a profiler CLI that understands
// `measure --task NAME --window W --json` and prints {"wcet": N, ...}.
type Client struct {
	Bin    string // profiler binary
	Target string // --target flag value (optional)
}

// NewClient creates a Client for the given binary and target.
func NewClient(bin, target string) *Client {
	return &Client{Bin: bin, Target: target}
}

func (c *Client) baseArgs() []string {
	if c.Target != "" {
		return []string{"--target", c.Target}
	}
	return nil
}

func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	all := append(c.baseArgs(), args...)
	cmd := exec.CommandContext(ctx, c.Bin, all...)
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("%s %s: %w\n%s", c.Bin, strings.Join(args, " "), err, string(ee.Stderr))
		}
		return nil, fmt.Errorf("%s %s: %w", c.Bin, strings.Join(args, " "), err)
	}
	return out, nil
}

// Measure runs the profiler for one task.
func (c *Client) Measure(ctx context.Context, task string, window time.Duration) (int64, error) {
	out, err := c.run(ctx, "measure", "--task", task, "--window", window.String(), "--json")
	if err != nil {
		return 0, err
	}
	return parseMeasurement(out)
}

func parseMeasurement(out []byte) (int64, error) {
	if !gjson.ValidBytes(out) {
		return 0, fmt.Errorf("parse profiler output: invalid JSON")
	}
	v := gjson.GetBytes(out, "wcet")
	if !v.Exists() {
		return 0, fmt.Errorf("parse profiler output: missing wcet")
	}
	if v.Type != gjson.Number || v.Num != float64(v.Int()) {
		return 0, fmt.Errorf("parse profiler output: wcet must be an integer, got %s", v.Raw)
	}
	if v.Int() <= 0 {
		return 0, fmt.Errorf("parse profiler output: wcet must be positive, got %d", v.Int())
	}
	return v.Int(), nil
}

// Change records a WCET replaced by a measurement.
type Change struct {
	Task     string
	Declared int64
	Measured int64
}

// Exceeded reports whether the measurement is larger than the declared WCET.
func (c Change) Exceeded() bool { return c.Measured > c.Declared }

// Apply replaces every task's WCET in doc with the value m measures. Tasks
// are measured one at a time so measurements do not disturb each other.
func Apply(ctx context.Context, doc *taskfile.Document, m Measurer, window time.Duration) ([]Change, error) {
	changes := make([]Change, 0, len(doc.Tasks))
	for i := range doc.Tasks {
		t := &doc.Tasks[i]
		wcet, err := m.Measure(ctx, t.Name, window)
		if err != nil {
			return nil, fmt.Errorf("measure task %s: %w", t.Name, err)
		}
		changes = append(changes, Change{Task: t.Name, Declared: t.WCET, Measured: wcet})
		t.WCET = wcet
	}
	return changes, nil
}
