package rta

// DefaultMaxIterations caps the fixed-point iterations spent on one task.
const DefaultMaxIterations = 1 << 20

// Config holds solver configuration.
type Config struct {
	MaxIterations int // per task; 0 means DefaultMaxIterations
}

// TaskResponse holds the response-time analysis of a single task.
type TaskResponse struct {
	Task         string `json:"task"`
	Priority     int    `json:"priority"`
	ResponseTime int64  `json:"response_time"` // first iterate past the deadline when not schedulable
	Deadline     int64  `json:"deadline"`
	Slack        int64  `json:"slack"` // deadline - response time; negative on a miss
	Iterations   int    `json:"iterations"`
	Jobs         int    `json:"jobs"` // jobs examined in the level-i busy period
	Schedulable  bool   `json:"schedulable"`
}

// Result holds the complete response-time analysis of a task set, in
// priority order.
type Result struct {
	Tasks       []TaskResponse `json:"tasks"`
	Schedulable bool           `json:"schedulable"`
}
