package taskset

import (
	"fmt"
	"math"
	"sort"
)

// NewTask builds a validated task without a blocking term.
func NewTask(name string, period, wcet, deadline int64, priority int) (Task, error) {
	t := Task{
		Name:     name,
		Period:   period,
		WCET:     wcet,
		Deadline: deadline,
		Priority: priority,
	}
	if err := t.Validate(); err != nil {
		return Task{}, err
	}
	return t, nil
}

// Validate checks the per-task invariants: positive period, WCET and
// deadline, WCET <= deadline and a non-negative blocking term.
func (t Task) Validate() error {
	switch {
	case t.Name == "":
		return invalid("", "name is empty")
	case t.Period <= 0:
		return invalid(t.Name, "period must be positive, got %d", t.Period)
	case t.WCET <= 0:
		return invalid(t.Name, "wcet must be positive, got %d", t.WCET)
	case t.Deadline <= 0:
		return invalid(t.Name, "deadline must be positive, got %d", t.Deadline)
	case t.WCET > t.Deadline:
		return invalid(t.Name, "wcet %d exceeds deadline %d", t.WCET, t.Deadline)
	case t.Blocking < 0:
		return invalid(t.Name, "blocking must not be negative, got %d", t.Blocking)
	}
	return nil
}

// Utilization returns C/T for the task.
func (t Task) Utilization() float64 {
	return float64(t.WCET) / float64(t.Period)
}

// New validates tasks and returns them as a TaskSet ordered by priority.
// The input slice is not retained.
func New(name, unit string, tasks []Task) (*TaskSet, error) {
	if len(tasks) == 0 {
		return nil, &TaskError{Reason: "no tasks given", Err: ErrEmptyTaskSet}
	}

	names := make(map[string]bool, len(tasks))
	prios := make(map[int]string, len(tasks))
	for _, t := range tasks {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if names[t.Name] {
			return nil, &TaskError{Task: t.Name, Reason: "name used more than once", Err: ErrDuplicateName}
		}
		names[t.Name] = true
		if other, ok := prios[t.Priority]; ok {
			return nil, &TaskError{
				Task:   t.Name,
				Reason: fmt.Sprintf("priority %d already used by %q", t.Priority, other),
				Err:    ErrDuplicatePriority,
			}
		}
		prios[t.Priority] = t.Name
	}

	sorted := make([]Task, len(tasks))
	copy(sorted, tasks)
	sort.Slice(sorted, func(a, b int) bool {
		return sorted[a].Priority < sorted[b].Priority
	})

	return &TaskSet{name: name, unit: unit, tasks: sorted}, nil
}

// Name returns the task-set name.
func (ts *TaskSet) Name() string { return ts.name }

// Unit returns the time unit all durations are expressed in.
func (ts *TaskSet) Unit() string { return ts.unit }

// Len returns the number of tasks.
func (ts *TaskSet) Len() int { return len(ts.tasks) }

// Task returns the task at priority rank i.
func (ts *TaskSet) Task(i int) Task { return ts.tasks[i] }

// Tasks returns a copy of the tasks in priority order.
func (ts *TaskSet) Tasks() []Task {
	out := make([]Task, len(ts.tasks))
	copy(out, ts.tasks)
	return out
}

// HigherPriority returns the tasks with strictly higher priority than rank i.
// The returned slice must not be modified.
func (ts *TaskSet) HigherPriority(i int) []Task {
	return ts.tasks[:i:i]
}

// ImplicitDeadlines reports whether every task has D == T.
func (ts *TaskSet) ImplicitDeadlines() bool {
	for _, t := range ts.tasks {
		if t.Deadline != t.Period {
			return false
		}
	}
	return true
}

// IsRateMonotonic reports whether priority order is ascending by period.
func (ts *TaskSet) IsRateMonotonic() bool {
	for i := 1; i < len(ts.tasks); i++ {
		if ts.tasks[i].Period < ts.tasks[i-1].Period {
			return false
		}
	}
	return true
}

// HasBlocking reports whether any task carries a blocking term.
func (ts *TaskSet) HasBlocking() bool {
	for _, t := range ts.tasks {
		if t.Blocking > 0 {
			return true
		}
	}
	return false
}

// Hyperperiod returns the least common multiple of all periods. ok is false
// when the value does not fit in an int64.
func (ts *TaskSet) Hyperperiod() (h int64, ok bool) {
	h = 1
	for _, t := range ts.tasks {
		g := gcd(h, t.Period)
		step := t.Period / g
		if h > math.MaxInt64/step {
			return 0, false
		}
		h *= step
	}
	return h, true
}

// MaxDeadline returns the largest relative deadline in the set.
func (ts *TaskSet) MaxDeadline() int64 {
	var m int64
	for _, t := range ts.tasks {
		if t.Deadline > m {
			m = t.Deadline
		}
	}
	return m
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
