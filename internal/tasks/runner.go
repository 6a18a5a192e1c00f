package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Result statuses.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// TaskResult is the outcome of one task within a run.
type TaskResult struct {
	Task       string `json:"task"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// RunReport describes one runner invocation.
type RunReport struct {
	RunID     string       `json:"run_id"`
	StartedAt time.Time    `json:"started_at"`
	Results   []TaskResult `json:"results"`
}

// OK reports whether no task failed.
func (r *RunReport) OK() bool {
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			return false
		}
	}
	return true
}

// Runner runs registered tasks by name. A task never runs twice concurrently;
// a second request while it runs is reported as skipped.
type Runner struct {
	tasks   map[string]Task
	order   []string
	running map[string]*sync.Mutex
	log     zerolog.Logger
}

// NewRunner registers tasks in the order a full run executes them.
func NewRunner(log zerolog.Logger, tasks ...Task) *Runner {
	r := &Runner{
		tasks:   make(map[string]Task, len(tasks)),
		running: make(map[string]*sync.Mutex, len(tasks)),
		log:     log.With().Str("component", "task_runner").Logger(),
	}
	for _, t := range tasks {
		if _, dup := r.tasks[t.Name()]; dup {
			continue
		}
		r.tasks[t.Name()] = t
		r.running[t.Name()] = &sync.Mutex{}
		r.order = append(r.order, t.Name())
	}
	return r
}

// Tasks lists the registered task names in run order.
func (r *Runner) Tasks() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Run runs the named task, or every task in order when name is empty.
// A full run continues past failing tasks. The returned error is
// ErrUnknownTask for unregistered names and otherwise the failure of a
// single-task run.
func (r *Runner) Run(ctx context.Context, name string) (*RunReport, error) {
	names := r.order
	if name != "" {
		if _, ok := r.tasks[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
		}
		names = []string{name}
	}

	report := &RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Results:   make([]TaskResult, 0, len(names)),
	}
	log := r.log.With().Str("run_id", report.RunID).Logger()
	log.Info().Strs("tasks", names).Msg("Task run started")

	var lastErr error
	for _, n := range names {
		res, err := r.runOne(ctx, log, n)
		report.Results = append(report.Results, res)
		if err != nil {
			lastErr = err
		}
	}

	log.Info().Bool("ok", report.OK()).Msg("Task run finished")
	if name != "" {
		return report, lastErr
	}
	return report, nil
}

func (r *Runner) runOne(ctx context.Context, log zerolog.Logger, name string) (TaskResult, error) {
	res := TaskResult{Task: name}

	lock := r.running[name]
	if !lock.TryLock() {
		res.Status = StatusSkipped
		res.Error = "already running"
		log.Warn().Str("task", name).Msg("Task already running, skipped")
		return res, nil
	}
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		res.Status = StatusSkipped
		res.Error = err.Error()
		return res, err
	}

	start := time.Now()
	err := r.tasks[name].Run(ctx)
	res.DurationMs = time.Since(start).Milliseconds()

	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		var taskErr *TaskError
		if errors.As(err, &taskErr) {
			log.Error().Err(taskErr.Last).Str("task", name).Int("failed_units", taskErr.Failed).Msg("Task failed")
		} else {
			log.Error().Err(err).Str("task", name).Msg("Task failed")
		}
		return res, err
	}

	res.Status = StatusOK
	log.Info().Str("task", name).Int64("duration_ms", res.DurationMs).Msg("Task completed")
	return res, nil
}

// Job adapts one runner task to a cron job with a per-run timeout.
type Job struct {
	runner  *Runner
	task    string
	timeout time.Duration
}

// NewJob returns a Job running task (empty for all tasks) through runner.
func NewJob(runner *Runner, task string, timeout time.Duration) *Job {
	return &Job{runner: runner, task: task, timeout: timeout}
}

// Name returns the job name.
func (j *Job) Name() string {
	if j.task == "" {
		return "all-tasks"
	}
	return j.task
}

// Run executes the task.
func (j *Job) Run() error {
	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	report, err := j.runner.Run(ctx, j.task)
	if err != nil {
		return err
	}
	if !report.OK() {
		return fmt.Errorf("run %s had failing tasks", report.RunID)
	}
	return nil
}
