package analysis

import (
	"errors"
	"fmt"

	"github.com/joshharrison/schedcheck/internal/taskset"
)

// ErrUnsupportedDeadlineModel is returned when EDF analysis is requested for
// a task set with D != T without acknowledging the sufficient-only fallback.
var ErrUnsupportedDeadlineModel = errors.New("unsupported deadline model")

// EDFOptions configures CheckEDF.
type EDFOptions struct {
	// AllowConstrained accepts tasks with D != T and applies the density
	// test, which is sufficient but not exact when some D < T.
	AllowConstrained bool
}

// EDFResult is the outcome of the EDF feasibility check.
type EDFResult struct {
	Utilization float64 `json:"utilization"`
	Density     float64 `json:"density"`
	Implicit    bool    `json:"implicit_deadlines"`
	Exact       bool    `json:"exact"`
	Verdict     Verdict `json:"verdict"`
}

// CheckEDF applies the EDF utilization test. With implicit deadlines U <= 1
// is necessary and sufficient.
func CheckEDF(ts *taskset.TaskSet, opts EDFOptions) (EDFResult, error) {
	u := UtilizationRat(ts)
	r := EDFResult{
		Density:  Density(ts),
		Implicit: ts.ImplicitDeadlines(),
	}
	r.Utilization, _ = u.Float64()

	if r.Implicit {
		r.Exact = true
		r.Verdict = verdictFor(atMostOne(u))
		return r, nil
	}

	if !opts.AllowConstrained {
		for i := 0; i < ts.Len(); i++ {
			t := ts.Task(i)
			if t.Deadline != t.Period {
				return EDFResult{}, &taskset.TaskError{
					Task:   t.Name,
					Reason: fmt.Sprintf("deadline %d differs from period %d; the utilization test is only sufficient here", t.Deadline, t.Period),
					Err:    ErrUnsupportedDeadlineModel,
				}
			}
		}
	}

	// Demand above capacity cannot be met by any scheduler.
	if !atMostOne(u) {
		r.Exact = true
		r.Verdict = NotSchedulable
		return r, nil
	}

	// With every D >= T the utilization test stays exact.
	r.Exact = !constrained(ts)
	if r.Exact {
		r.Verdict = Schedulable
		return r, nil
	}
	r.Verdict = verdictFor(atMostOne(densityRat(ts)))
	return r, nil
}

func constrained(ts *taskset.TaskSet) bool {
	for i := 0; i < ts.Len(); i++ {
		if t := ts.Task(i); t.Deadline < t.Period {
			return true
		}
	}
	return false
}

func verdictFor(ok bool) Verdict {
	if ok {
		return Schedulable
	}
	return NotSchedulable
}
