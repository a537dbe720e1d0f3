package report

import (
	"fmt"
	"time"

	"github.com/joshharrison/schedcheck/internal/analysis"
)

// Discipline is the scheduling policy a task set is analysed under.
type Discipline string

const (
	RateMonotonic Discipline = "rm"
	EDF           Discipline = "edf"
)

// ParseDiscipline accepts "rm", "rate-monotonic", "fp", "fixed-priority" and "edf".
func ParseDiscipline(s string) (Discipline, error) {
	switch s {
	case "rm", "rate-monotonic", "fp", "fixed-priority":
		return RateMonotonic, nil
	case "edf":
		return EDF, nil
	}
	return "", fmt.Errorf("unknown discipline %q (want rm or edf)", s)
}

// Method names the test that produced the final verdict.
type Method string

const (
	MethodUtilization Method = "utilization" // U > 1, or EDF U <= 1
	MethodLiuLayland  Method = "liu-layland"
	MethodRTA         Method = "response-time"
	MethodDensity     Method = "density"
)

// Options configures report generation.
type Options struct {
	Discipline       Discipline
	AllowConstrained bool // EDF: accept D != T with the sufficient-only test
	ForceRTA         bool // RM: run RTA even when the bound already decides
	MaxIterations    int
}

// Report is the outcome of one analysis run.
type Report struct {
	ID           string           `json:"id"`
	TaskSet      string           `json:"task_set"`
	Unit         string           `json:"unit"`
	Discipline   Discipline       `json:"discipline"`
	CreatedAt    time.Time        `json:"created_at"`
	TaskCount    int              `json:"task_count"`
	Utilization  float64          `json:"utilization"`
	Bound        float64          `json:"bound"`
	BoundVerdict analysis.Verdict `json:"bound_verdict"`
	Method       Method           `json:"method"`
	Exact        bool             `json:"exact"`
	Verdict      analysis.Verdict `json:"verdict"`
	Tasks        []TaskResult     `json:"tasks"`
	Notes        []string         `json:"notes,omitempty"`
}

// TaskResult is the per-task part of a Report, in priority order.
type TaskResult struct {
	Name         string  `json:"name"`
	Priority     int     `json:"priority"`
	Period       int64   `json:"period"`
	WCET         int64   `json:"wcet"`
	Deadline     int64   `json:"deadline"`
	Blocking     int64   `json:"blocking,omitempty"`
	Utilization  float64 `json:"utilization"`
	ResponseTime *int64  `json:"response_time,omitempty"` // set only when RTA ran
	Slack        *int64  `json:"slack,omitempty"`
	Iterations   int     `json:"iterations,omitempty"`
	Schedulable  bool    `json:"schedulable"`
}

// Schedulable reports whether the final verdict is Schedulable.
func (r *Report) Schedulable() bool {
	return r.Verdict == analysis.Schedulable
}

// Failed returns the tasks that did not pass.
func (r *Report) Failed() []TaskResult {
	var out []TaskResult
	for _, t := range r.Tasks {
		if !t.Schedulable {
			out = append(out, t)
		}
	}
	return out
}
