package taskset

// Task is one periodic, preemptible unit of work. All durations are integer
// ticks in the unit of the owning TaskSet.
type Task struct {
	Name     string `json:"name"`
	Period   int64  `json:"period"`
	WCET     int64  `json:"wcet"`
	Deadline int64  `json:"deadline"`
	Priority int    `json:"priority"` // smaller value = higher priority
	Blocking int64  `json:"blocking,omitempty"`
}

// TaskSet is a validated, immutable collection of tasks ordered by priority
// (index 0 is the highest priority).
type TaskSet struct {
	name  string
	unit  string
	tasks []Task
}

// PriorityPolicy decides how priorities are obtained when building from raw
// task records.
type PriorityPolicy string

const (
	// PolicyAuto uses explicit priorities when every task has one and
	// rate-monotonic assignment when none has.
	PolicyAuto              PriorityPolicy = "auto"
	PolicyExplicit          PriorityPolicy = "explicit"
	PolicyRateMonotonic     PriorityPolicy = "rate-monotonic"
	PolicyDeadlineMonotonic PriorityPolicy = "deadline-monotonic"
)
