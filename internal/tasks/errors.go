package tasks

import (
	"errors"
	"fmt"
)

// ErrUnknownTask is returned by the runner for names it does not know.
var ErrUnknownTask = errors.New("unknown task")

// TaskError reports a run in which every attempted unit failed.
type TaskError struct {
	Task   string
	Failed int
	Last   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s: all %d units failed, last error: %v", e.Task, e.Failed, e.Last)
}

func (e *TaskError) Unwrap() error {
	return e.Last
}
