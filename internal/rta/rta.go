// Package rta implements exact response-time analysis for preemptive
// fixed-priority scheduling on one processor.
package rta

import (
	"errors"
	"fmt"
	"math"

	"github.com/joshharrison/schedcheck/internal/taskset"
)

// ErrNoConvergence is returned when the iteration cap is reached before the
// response time reaches a fixed point or passes the deadline.
var ErrNoConvergence = errors.New("response time did not converge")

// Analyze computes the worst-case response time of every task, from the
// highest priority down. The set is schedulable iff every task is.
func Analyze(ts *taskset.TaskSet, cfg Config) (*Result, error) {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}

	result := &Result{
		Tasks:       make([]TaskResponse, 0, ts.Len()),
		Schedulable: true,
	}
	for i := 0; i < ts.Len(); i++ {
		resp, err := ResponseTime(ts.Task(i), ts.HigherPriority(i), cfg.MaxIterations)
		if err != nil {
			return nil, err
		}
		if !resp.Schedulable {
			result.Schedulable = false
		}
		result.Tasks = append(result.Tasks, resp)
	}
	return result, nil
}

// ResponseTime solves
//
//	R(0)   = C
//	R(k+1) = C + B + Σ_{j in hp} ceil(R(k)/T_j)·C_j
//
// for the smallest fixed point, stopping early once an iterate exceeds the
// deadline. When the first job's response exceeds the period (only possible
// with D > T) the later jobs of the level-i busy period are examined too and
// the largest response wins. Arithmetic saturates at math.MaxInt64, and a
// saturated iterate counts as a deadline miss.
func ResponseTime(task taskset.Task, hp []taskset.Task, maxIter int) (TaskResponse, error) {
	resp := TaskResponse{
		Task:     task.Name,
		Priority: task.Priority,
		Deadline: task.Deadline,
	}
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	budget := maxIter

	var worst int64
	for q := int64(0); ; q++ {
		demand := addSat(mulSat(q+1, task.WCET), task.Blocking)
		released := mulSat(q, task.Period)

		w := mulSat(q+1, task.WCET)
		for {
			if budget <= 0 {
				return resp, fmt.Errorf("task %s: %w after %d iterations", task.Name, ErrNoConvergence, maxIter)
			}
			budget--
			resp.Iterations++

			next := addSat(demand, interference(w, hp))
			if next == math.MaxInt64 || next-released > task.Deadline {
				resp.Jobs = int(q + 1)
				resp.ResponseTime = next - released
				resp.Slack = task.Deadline - resp.ResponseTime
				return resp, nil
			}
			if next == w {
				break
			}
			w = next
		}

		if r := w - released; r > worst {
			worst = r
		}
		resp.Jobs = int(q + 1)

		// The busy period closes before the next release.
		if w <= addSat(released, task.Period) {
			break
		}
	}

	resp.ResponseTime = worst
	resp.Slack = task.Deadline - worst
	resp.Schedulable = true
	return resp, nil
}

// interference returns the preemption demand of hp within a window of length w.
func interference(w int64, hp []taskset.Task) int64 {
	var sum int64
	for _, j := range hp {
		sum = addSat(sum, mulSat(ceilDiv(w, j.Period), j.WCET))
	}
	return sum
}

// ceilDiv returns ceil(a/b) for a >= 0, b > 0.
func ceilDiv(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	return (a-1)/b + 1
}

// addSat and mulSat operate on non-negative values and clamp to MaxInt64.
func addSat(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

func mulSat(a, b int64) int64 {
	if a != 0 && b > math.MaxInt64/a {
		return math.MaxInt64
	}
	return a * b
}
