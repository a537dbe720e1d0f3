package analysis

import (
	"math"
	"math/big"

	"github.com/joshharrison/schedcheck/internal/taskset"
)

// boundMargin is subtracted from the floating-point bound for n >= 2 so that
// rounding in math.Pow can only reject a set, never accept one.
const boundMargin = 1e-12

// BoundResult is the outcome of the Liu–Layland test.
type BoundResult struct {
	N           int     `json:"n"`
	Utilization float64 `json:"utilization"`
	Bound       float64 `json:"bound"`
	Verdict     Verdict `json:"verdict"`
}

// LiuLaylandBound returns n(2^(1/n) - 1), the sufficient utilization bound
// for n tasks under rate-monotonic priorities. It returns 0 for n < 1.
func LiuLaylandBound(n int) float64 {
	if n < 1 {
		return 0
	}
	fn := float64(n)
	return fn * (math.Pow(2, 1/fn) - 1)
}

// EvaluateBound compares the utilization of ts against the Liu–Layland bound.
//
//	U <= bound      -> Schedulable
//	bound < U <= 1  -> Indeterminate
//	U > 1           -> NotSchedulable
func EvaluateBound(ts *taskset.TaskSet) BoundResult {
	u := UtilizationRat(ts)
	b := LiuLaylandBound(ts.Len())

	r := BoundResult{N: ts.Len(), Bound: b}
	r.Utilization, _ = u.Float64()
	switch {
	case u.Cmp(boundRat(ts.Len())) <= 0:
		r.Verdict = Schedulable
	case atMostOne(u):
		r.Verdict = Indeterminate
	default:
		r.Verdict = NotSchedulable
	}
	return r
}

// boundRat is a lower approximation of the bound for n tasks. For n = 1 the
// bound is exactly 1.
func boundRat(n int) *big.Rat {
	if n <= 1 {
		return new(big.Rat).SetInt64(int64(n))
	}
	return new(big.Rat).SetFloat64(LiuLaylandBound(n) - boundMargin)
}
