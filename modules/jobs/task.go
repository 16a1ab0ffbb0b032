package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/riverqueue/river"
	"github.com/robfig/cron/v3"
)

// Task handles jobs of one name with a typed payload.
type Task[P any] interface {
	Name() string
	Handle(ctx context.Context, payload P) error
}

type executor interface {
	execute(ctx context.Context, payload json.RawMessage) error
}

type taskExecutor[P any] struct {
	task Task[P]
}

func (e taskExecutor[P]) execute(ctx context.Context, raw json.RawMessage) error {
	var payload P
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return errors.Join(ErrInvalidPayload, err)
		}
	}
	return e.task.Handle(ctx, payload)
}

type funcExecutor func(ctx context.Context) error

func (f funcExecutor) execute(ctx context.Context, _ json.RawMessage) error { return f(ctx) }

// Registry holds the tasks workers can run. Modules add tasks to it during Init; it is
// sealed once the job client is built.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]executor
	sealed    bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]executor)}
}

// AddTask registers task under its name.
func AddTask[P any](r *Registry, task Task[P]) error {
	return r.add(task.Name(), taskExecutor[P]{task: task})
}

// AddFunc registers a task without a payload, typically run on a schedule.
func (r *Registry) AddFunc(name string, fn func(ctx context.Context) error) error {
	return r.add(name, funcExecutor(fn))
}

func (r *Registry) add(name string, e executor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("%w: %s", ErrRegistrySealed, name)
	}
	if _, exists := r.executors[name]; exists {
		return fmt.Errorf("%w: %s", ErrTaskAlreadyRegistered, name)
	}
	r.executors[name] = e
	return nil
}

func (r *Registry) get(name string) (executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[name]
	return e, ok
}

// Names returns the registered task names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.executors))
}

func (r *Registry) seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// taskArgs is the river payload for every task; the task name selects the executor.
type taskArgs struct {
	Task    string          `json:"task"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (taskArgs) Kind() string { return "apphost:task" }

// taskWorker dispatches river jobs to the registry.
type taskWorker struct {
	river.WorkerDefaults[taskArgs]
	registry *Registry
	logger   *slog.Logger
}

func (w *taskWorker) Work(ctx context.Context, job *river.Job[taskArgs]) error {
	e, ok := w.registry.get(job.Args.Task)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, job.Args.Task)
	}

	start := time.Now()
	if err := e.execute(ctx, job.Args.Payload); err != nil {
		w.logger.ErrorContext(ctx, "Task failed",
			"task", job.Args.Task, "jobID", job.ID, "attempt", job.Attempt, "error", err)
		return err
	}
	w.logger.DebugContext(ctx, "Task completed",
		"task", job.Args.Task, "jobID", job.ID, "duration", time.Since(start))
	return nil
}

type cronSchedule struct {
	schedule cron.Schedule
}

func (s cronSchedule) Next(current time.Time) time.Time { return s.schedule.Next(current) }

func parseSchedule(expr string) (river.PeriodicSchedule, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return cronSchedule{schedule: schedule}, nil
}
