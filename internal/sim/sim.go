// Package sim runs a discrete-event simulation of a periodic task set on one
// preemptive processor, to cross-check the analytical tests.
package sim

import (
	"errors"
	"fmt"

	"github.com/joshharrison/schedcheck/internal/taskset"
)

// DefaultMaxHorizon bounds the hyperperiod a simulation accepts.
const DefaultMaxHorizon = 10_000_000

// ErrHorizonTooLarge is returned when the hyperperiod exceeds Options.MaxHorizon.
var ErrHorizonTooLarge = errors.New("hyperperiod too large to simulate")

// Policy selects how the ready job to run is chosen.
type Policy string

const (
	EDF           Policy = "edf"
	FixedPriority Policy = "fp"
)

// ParsePolicy accepts "edf", "fp" and "rm".
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "edf":
		return EDF, nil
	case "fp", "rm":
		return FixedPriority, nil
	}
	return "", fmt.Errorf("unknown simulation policy %q (want edf or fp)", s)
}

// Options configures Run.
type Options struct {
	Policy     Policy
	MaxHorizon int64 // 0 means DefaultMaxHorizon
}

// Miss records one job that completed after, or had not completed by, its
// absolute deadline. Finished is -1 for a job still pending at the end.
type Miss struct {
	Task     string `json:"task"`
	Release  int64  `json:"release"`
	Deadline int64  `json:"deadline"`
	Finished int64  `json:"finished"`
}

// TaskStats summarises the simulated jobs of one task.
type TaskStats struct {
	Task          string `json:"task"`
	Jobs          int    `json:"jobs"`
	Completed     int    `json:"completed"`
	WorstResponse int64  `json:"worst_response"`
	Misses        int    `json:"misses"`
}

// Trace is the outcome of a simulation.
type Trace struct {
	Policy      Policy      `json:"policy"`
	Hyperperiod int64       `json:"hyperperiod"`
	End         int64       `json:"end"`
	Busy        int64       `json:"busy"`
	Preemptions int         `json:"preemptions"`
	Tasks       []TaskStats `json:"tasks"` // priority order
	Misses      []Miss      `json:"misses"`
}

// Schedulable reports whether no job missed its deadline.
func (tr *Trace) Schedulable() bool { return len(tr.Misses) == 0 }

type job struct {
	task      int
	release   int64
	deadline  int64 // absolute
	remaining int64
}

// Run simulates synchronous periodic releases over one hyperperiod H and
// keeps running until H + max(D) so the last jobs can finish. Blocking
// terms are not simulated.
func Run(ts *taskset.TaskSet, opts Options) (*Trace, error) {
	if opts.Policy == "" {
		opts.Policy = EDF
	}
	if opts.Policy != EDF && opts.Policy != FixedPriority {
		return nil, fmt.Errorf("unknown simulation policy %q", opts.Policy)
	}
	if opts.MaxHorizon <= 0 {
		opts.MaxHorizon = DefaultMaxHorizon
	}

	h, ok := ts.Hyperperiod()
	if !ok || h > opts.MaxHorizon {
		return nil, fmt.Errorf("%w: limit %d", ErrHorizonTooLarge, opts.MaxHorizon)
	}

	tasks := ts.Tasks()
	trace := &Trace{
		Policy:      opts.Policy,
		Hyperperiod: h,
		End:         h + ts.MaxDeadline(),
		Tasks:       make([]TaskStats, len(tasks)),
	}
	for i, t := range tasks {
		trace.Tasks[i].Task = t.Name
	}

	nextRelease := make([]int64, len(tasks))
	var ready []*job
	var last *job

	t := int64(0)
	for t < trace.End {
		for i, task := range tasks {
			for nextRelease[i] <= t && nextRelease[i] < h {
				ready = append(ready, &job{
					task:      i,
					release:   nextRelease[i],
					deadline:  nextRelease[i] + task.Deadline,
					remaining: task.WCET,
				})
				trace.Tasks[i].Jobs++
				nextRelease[i] += task.Period
			}
		}

		upcoming := trace.End
		for i := range tasks {
			if nextRelease[i] < h && nextRelease[i] < upcoming {
				upcoming = nextRelease[i]
			}
		}

		if len(ready) == 0 {
			if upcoming >= trace.End {
				break
			}
			t = upcoming
			last = nil
			continue
		}

		idx := pick(ready, tasks, opts.Policy)
		j := ready[idx]
		if last != nil && last != j && last.remaining > 0 {
			trace.Preemptions++
		}
		last = j

		until := t + j.remaining
		if upcoming < until {
			until = upcoming
		}
		j.remaining -= until - t
		trace.Busy += until - t
		t = until

		if j.remaining == 0 {
			st := &trace.Tasks[j.task]
			st.Completed++
			if resp := t - j.release; resp > st.WorstResponse {
				st.WorstResponse = resp
			}
			if t > j.deadline {
				trace.recordMiss(tasks, j, t)
			}
			ready = append(ready[:idx], ready[idx+1:]...)
		}
	}

	for _, j := range ready {
		trace.recordMiss(tasks, j, -1)
	}
	return trace, nil
}

func (tr *Trace) recordMiss(tasks []taskset.Task, j *job, finished int64) {
	tr.Tasks[j.task].Misses++
	tr.Misses = append(tr.Misses, Miss{
		Task:     tasks[j.task].Name,
		Release:  j.release,
		Deadline: j.deadline,
		Finished: finished,
	})
}

// pick returns the index of the ready job to run: earliest absolute deadline
// under EDF, highest priority under fixed priority. Ties go to the higher
// priority task, then to the earlier release.
func pick(ready []*job, tasks []taskset.Task, policy Policy) int {
	best := 0
	for i := 1; i < len(ready); i++ {
		if before(ready[i], ready[best], tasks, policy) {
			best = i
		}
	}
	return best
}

func before(a, b *job, tasks []taskset.Task, policy Policy) bool {
	if policy == EDF && a.deadline != b.deadline {
		return a.deadline < b.deadline
	}
	if pa, pb := tasks[a.task].Priority, tasks[b.task].Priority; pa != pb {
		return pa < pb
	}
	return a.release < b.release
}
