package taskset

import (
	"fmt"
	"sort"

	"github.com/joshharrison/schedcheck/internal/taskfile"
)

// ParsePolicy accepts the long policy names and the short forms "rm" and "dm".
func ParsePolicy(s string) (PriorityPolicy, error) {
	switch s {
	case "", string(PolicyAuto):
		return PolicyAuto, nil
	case string(PolicyExplicit):
		return PolicyExplicit, nil
	case "rm", string(PolicyRateMonotonic):
		return PolicyRateMonotonic, nil
	case "dm", string(PolicyDeadlineMonotonic):
		return PolicyDeadlineMonotonic, nil
	}
	return "", fmt.Errorf("unknown priority policy %q (want auto, explicit, rm or dm)", s)
}

// BuildFromRaw constructs a TaskSet from a parsed task file. Missing deadlines
// default to the period; priorities come from the given policy.
func BuildFromRaw(doc *taskfile.Document, policy PriorityPolicy) (*TaskSet, error) {
	tasks := make([]Task, len(doc.Tasks))
	given := 0
	for i, rt := range doc.Tasks {
		deadline := rt.Period
		if rt.Deadline != nil {
			deadline = *rt.Deadline
		}
		tasks[i] = Task{
			Name:     rt.Name,
			Period:   rt.Period,
			WCET:     rt.WCET,
			Deadline: deadline,
			Blocking: rt.Blocking,
		}
		if rt.Priority != nil {
			tasks[i].Priority = *rt.Priority
			given++
		}
	}

	if policy == PolicyAuto {
		switch given {
		case len(tasks):
			policy = PolicyExplicit
		case 0:
			policy = PolicyRateMonotonic
		default:
			return nil, &TaskError{
				Reason: fmt.Sprintf("%d of %d tasks have a priority; give all or none", given, len(tasks)),
				Err:    ErrInvalidTask,
			}
		}
	}

	switch policy {
	case PolicyExplicit:
		for i, rt := range doc.Tasks {
			if rt.Priority == nil {
				return nil, invalid(tasks[i].Name, "priority missing")
			}
		}
	case PolicyRateMonotonic:
		assignPriorities(tasks, func(t Task) int64 { return t.Period })
	case PolicyDeadlineMonotonic:
		assignPriorities(tasks, func(t Task) int64 { return t.Deadline })
	default:
		return nil, fmt.Errorf("unknown priority policy %q", policy)
	}

	return New(doc.Name, doc.Unit, tasks)
}

// assignPriorities ranks tasks by ascending key, breaking ties by name for
// determinism.
func assignPriorities(tasks []Task, key func(Task) int64) {
	order := make([]int, len(tasks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ta, tb := tasks[order[a]], tasks[order[b]]
		if ka, kb := key(ta), key(tb); ka != kb {
			return ka < kb
		}
		return ta.Name < tb.Name
	})
	for rank, idx := range order {
		tasks[idx].Priority = rank
	}
}
