package analysis

import (
	"math/big"

	"github.com/joshharrison/schedcheck/internal/taskset"
)

var ratOne = big.NewRat(1, 1)

// Utilization returns U = Σ C_i/T_i.
func Utilization(ts *taskset.TaskSet) float64 {
	f, _ := UtilizationRat(ts).Float64()
	return f
}

// UtilizationRat returns U as an exact fraction. Verdicts compare this value,
// never the rounded float.
func UtilizationRat(ts *taskset.TaskSet) *big.Rat {
	u := new(big.Rat)
	for i := 0; i < ts.Len(); i++ {
		t := ts.Task(i)
		u.Add(u, new(big.Rat).SetFrac64(t.WCET, t.Period))
	}
	return u
}

// Density returns Σ C_i/min(D_i, T_i).
func Density(ts *taskset.TaskSet) float64 {
	f, _ := densityRat(ts).Float64()
	return f
}

func densityRat(ts *taskset.TaskSet) *big.Rat {
	d := new(big.Rat)
	for i := 0; i < ts.Len(); i++ {
		t := ts.Task(i)
		window := t.Period
		if t.Deadline < window {
			window = t.Deadline
		}
		d.Add(d, new(big.Rat).SetFrac64(t.WCET, window))
	}
	return d
}

// atMostOne reports whether x <= 1 exactly.
func atMostOne(x *big.Rat) bool {
	return x.Cmp(ratOne) <= 0
}
