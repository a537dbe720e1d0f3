// Package report runs the schedulability tests appropriate to a discipline
// and merges their results into a single Report.
package report

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joshharrison/schedcheck/internal/analysis"
	"github.com/joshharrison/schedcheck/internal/rta"
	"github.com/joshharrison/schedcheck/internal/taskset"
)

// Generate analyses ts under opts.Discipline. The returned report's verdict
// is always Schedulable or NotSchedulable; a failing task set is not an
// error.
func Generate(ts *taskset.TaskSet, opts Options) (*Report, error) {
	if opts.Discipline == "" {
		opts.Discipline = RateMonotonic
	}

	r := &Report{
		ID:         uuid.New().String(),
		TaskSet:    ts.Name(),
		Unit:       ts.Unit(),
		Discipline: opts.Discipline,
		CreatedAt:  time.Now().UTC(),
		TaskCount:  ts.Len(),
	}
	for _, t := range ts.Tasks() {
		r.Tasks = append(r.Tasks, TaskResult{
			Name:        t.Name,
			Priority:    t.Priority,
			Period:      t.Period,
			WCET:        t.WCET,
			Deadline:    t.Deadline,
			Blocking:    t.Blocking,
			Utilization: t.Utilization(),
		})
	}

	var err error
	switch opts.Discipline {
	case RateMonotonic:
		err = generateFixedPriority(r, ts, opts)
	case EDF:
		err = generateEDF(r, ts, opts)
	default:
		err = fmt.Errorf("unknown discipline %q", opts.Discipline)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func generateFixedPriority(r *Report, ts *taskset.TaskSet, opts Options) error {
	b := analysis.EvaluateBound(ts)
	r.Utilization = b.Utilization
	r.Bound = b.Bound
	r.BoundVerdict = b.Verdict

	if b.Verdict == analysis.NotSchedulable {
		r.Method = MethodUtilization
		r.Exact = true
		r.Verdict = analysis.NotSchedulable
		r.Notes = append(r.Notes, fmt.Sprintf("utilization %.4f exceeds 1; no single-processor scheduler can meet all deadlines", b.Utilization))
		return nil
	}

	if b.Verdict == analysis.Schedulable && !opts.ForceRTA {
		reason := boundInapplicable(ts)
		if reason == "" {
			r.Method = MethodLiuLayland
			r.Exact = true
			r.Verdict = analysis.Schedulable
			for i := range r.Tasks {
				r.Tasks[i].Schedulable = true
			}
			return nil
		}
		r.Notes = append(r.Notes, "Liu-Layland bound not applicable: "+reason)
	}

	res, err := rta.Analyze(ts, rta.Config{MaxIterations: opts.MaxIterations})
	if err != nil {
		return fmt.Errorf("response-time analysis: %w", err)
	}
	mergeRTA(r, res)
	r.Method = MethodRTA
	r.Exact = true
	if res.Schedulable {
		r.Verdict = analysis.Schedulable
	} else {
		r.Verdict = analysis.NotSchedulable
	}
	return nil
}

// boundInapplicable explains why the Liu–Layland result cannot be trusted
// for ts, or returns "" when it can.
func boundInapplicable(ts *taskset.TaskSet) string {
	switch {
	case !ts.IsRateMonotonic():
		return "priorities are not rate-monotonic"
	case !ts.ImplicitDeadlines():
		return "some deadlines differ from periods"
	case ts.HasBlocking():
		return "blocking terms present"
	}
	return ""
}

func mergeRTA(r *Report, res *rta.Result) {
	for i, tr := range res.Tasks {
		rt, slack := tr.ResponseTime, tr.Slack
		r.Tasks[i].ResponseTime = &rt
		r.Tasks[i].Slack = &slack
		r.Tasks[i].Iterations = tr.Iterations
		r.Tasks[i].Schedulable = tr.Schedulable
		if tr.Jobs > 1 {
			r.Notes = append(r.Notes, fmt.Sprintf("%s: busy period spans %d jobs", tr.Task, tr.Jobs))
		}
	}
}

func generateEDF(r *Report, ts *taskset.TaskSet, opts Options) error {
	res, err := analysis.CheckEDF(ts, analysis.EDFOptions{AllowConstrained: opts.AllowConstrained})
	if err != nil {
		return err
	}

	r.Utilization = res.Utilization
	r.Bound = 1.0
	r.BoundVerdict = res.Verdict
	r.Verdict = res.Verdict
	r.Exact = res.Exact
	r.Method = MethodUtilization
	if !res.Implicit && !res.Exact {
		r.Method = MethodDensity
		r.Notes = append(r.Notes, fmt.Sprintf("constrained deadlines: density %.4f checked against 1 (sufficient test only)", res.Density))
		if res.Verdict == analysis.NotSchedulable {
			r.Notes = append(r.Notes, "inconclusive: the density test failed but the task set may still be schedulable under EDF")
		}
	}
	for i := range r.Tasks {
		r.Tasks[i].Schedulable = res.Verdict == analysis.Schedulable
	}
	return nil
}
