package taskset

import (
	"errors"
	"fmt"
)

// Sentinel errors for task and task-set construction.
var (
	ErrInvalidTask       = errors.New("invalid task")
	ErrDuplicatePriority = errors.New("duplicate priority")
	ErrDuplicateName     = errors.New("duplicate task name")
	ErrEmptyTaskSet      = errors.New("empty task set")
)

// TaskError identifies the task that failed validation.
type TaskError struct {
	Task   string
	Reason string
	Err    error
}

func (e *TaskError) Error() string {
	if e.Task == "" {
		return fmt.Sprintf("%v: %s", e.Err, e.Reason)
	}
	return fmt.Sprintf("task %q: %v: %s", e.Task, e.Err, e.Reason)
}

func (e *TaskError) Unwrap() error { return e.Err }

func invalid(task, format string, args ...interface{}) *TaskError {
	return &TaskError{Task: task, Reason: fmt.Sprintf(format, args...), Err: ErrInvalidTask}
}
