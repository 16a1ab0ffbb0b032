package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/GoCodeAlone/apphost"
)

// Event types emitted to the application's observers.
const (
	EventTypeJobScheduled = "com.apphost.scheduler.job.scheduled"
	EventTypeJobCompleted = "com.apphost.scheduler.job.completed"
	EventTypeJobFailed    = "com.apphost.scheduler.job.failed"
	EventTypeJobCancelled = "com.apphost.scheduler.job.cancelled"
)

var ErrInvalidJob = errors.New("scheduler: invalid job")

// JobFunc is the work a job performs.
type JobFunc func(ctx context.Context) error

// JobStatus is the state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job is a one-off or recurring unit of work.
type Job struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Schedule string `json:"schedule,omitempty"`
	// RunAt is when a one-off job runs.
	RunAt     time.Time  `json:"runAt,omitzero"`
	JobFunc   JobFunc    `json:"-"`
	Status    JobStatus  `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	LastRun   *time.Time `json:"lastRun,omitempty"`
	NextRun   *time.Time `json:"nextRun,omitempty"`
}

// IsRecurring reports whether the job runs on a cron schedule.
func (j Job) IsRecurring() bool { return j.Schedule != "" }

// JobExecution records one run of a job.
type JobExecution struct {
	JobID     string    `json:"jobId"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Status    JobStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
}

// Scheduler is the service other modules use.
type Scheduler interface {
	// ScheduleAt runs fn once at t.
	ScheduleAt(name string, t time.Time, fn JobFunc) (string, error)

	// ScheduleRecurring runs fn on a five field cron expression or a descriptor such
	// as "@hourly".
	ScheduleRecurring(name, cronExpr string, fn JobFunc) (string, error)

	CancelJob(id string) error
	GetJob(id string) (Job, error)
	ListJobs() ([]Job, error)
	History(id string) ([]JobExecution, error)
}

// runner dispatches due jobs to a fixed pool of workers. It runs as a host background
// service.
type runner struct {
	store   JobStore
	options *Options
	logger  *slog.Logger
	now     func() time.Time
	parser  cron.Parser
	queue   chan Job

	mu     sync.RWMutex
	events apphost.Subject
}

func newRunner(store JobStore, o *Options, logger *slog.Logger) *runner {
	return &runner{
		store:   store,
		options: o,
		logger:  logger,
		now:     time.Now,
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		queue:   make(chan Job, o.QueueSize),
	}
}

func (r *runner) setEvents(events apphost.Subject) {
	r.mu.Lock()
	r.events = events
	r.mu.Unlock()
}

func (r *runner) ScheduleAt(name string, t time.Time, fn JobFunc) (string, error) {
	if t.IsZero() {
		return "", fmt.Errorf("%w: %s has no run time", ErrInvalidJob, name)
	}
	return r.add(Job{Name: name, RunAt: t, JobFunc: fn}, t)
}

func (r *runner) ScheduleRecurring(name, cronExpr string, fn JobFunc) (string, error) {
	schedule, err := r.parser.Parse(cronExpr)
	if err != nil {
		return "", fmt.Errorf("%w: cron expression %q: %w", ErrInvalidJob, cronExpr, err)
	}
	return r.add(Job{Name: name, Schedule: cronExpr, JobFunc: fn}, schedule.Next(r.now()))
}

func (r *runner) add(job Job, next time.Time) (string, error) {
	if job.JobFunc == nil {
		return "", fmt.Errorf("%w: %s has no function", ErrInvalidJob, job.Name)
	}
	now := r.now()
	job.ID = uuid.NewString()
	job.Status = JobStatusPending
	job.CreatedAt, job.UpdatedAt = now, now
	job.NextRun = &next
	if err := r.store.AddJob(job); err != nil {
		return "", err
	}
	r.emit(context.Background(), EventTypeJobScheduled, job, nil)
	return job.ID, nil
}

func (r *runner) CancelJob(id string) error {
	job, err := r.store.GetJob(id)
	if err != nil {
		return err
	}
	job.Status = JobStatusCancelled
	job.NextRun = nil
	job.UpdatedAt = r.now()
	if err := r.store.UpdateJob(job); err != nil {
		return err
	}
	r.emit(context.Background(), EventTypeJobCancelled, job, nil)
	return nil
}

func (r *runner) GetJob(id string) (Job, error) { return r.store.GetJob(id) }

func (r *runner) ListJobs() ([]Job, error) { return r.store.Jobs() }

func (r *runner) History(id string) ([]JobExecution, error) { return r.store.Executions(id) }

// Run dispatches due jobs every CheckInterval until ctx is cancelled, then waits for
// running jobs.
func (r *runner) Run(ctx context.Context) error {
	var workers sync.WaitGroup
	for range r.options.WorkerCount {
		workers.Go(func() {
			for job := range r.queue {
				r.execute(ctx, job)
			}
		})
	}

	ticker := time.NewTicker(r.options.CheckInterval)
	defer func() {
		ticker.Stop()
		close(r.queue)
		workers.Wait()
	}()

	r.logger.Info("Scheduler started", "workers", r.options.WorkerCount, "checkInterval", r.options.CheckInterval)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Scheduler stopping")
			return nil
		case <-ticker.C:
			r.dispatch(ctx)
		}
	}
}

func (r *runner) dispatch(ctx context.Context) {
	due, err := r.store.ClaimDueJobs(r.now())
	if err != nil {
		r.logger.Error("Failed to load due jobs", "error", err)
		return
	}
	for i, job := range due {
		select {
		case r.queue <- job:
		case <-ctx.Done():
			r.release(due[i:])
			return
		}
	}
	if r.options.Retention > 0 {
		if n := r.store.PruneExecutions(r.now().Add(-r.options.Retention)); n > 0 {
			r.logger.Debug("Pruned job executions", "count", n)
		}
	}
}

// release returns claimed jobs that were never started to pending.
func (r *runner) release(jobs []Job) {
	for _, job := range jobs {
		job.Status = JobStatusPending
		if err := r.store.UpdateJob(job); err != nil {
			r.logger.Warn("Failed to release job", "id", job.ID, "error", err)
		}
	}
}

func (r *runner) execute(ctx context.Context, job Job) {
	exec := JobExecution{JobID: job.ID, StartTime: r.now()}
	err := r.call(ctx, job)
	exec.EndTime = r.now()

	job.LastRun = &exec.StartTime
	job.UpdatedAt = exec.EndTime
	if err != nil {
		exec.Status, exec.Error = JobStatusFailed, err.Error()
		r.logger.Error("Job failed", "id", job.ID, "name", job.Name, "error", err)
	} else {
		exec.Status = JobStatusCompleted
		r.logger.Debug("Job completed", "id", job.ID, "name", job.Name, "duration", exec.EndTime.Sub(exec.StartTime))
	}
	if aerr := r.store.AddExecution(exec); aerr != nil {
		r.logger.Warn("Failed to record job execution", "id", job.ID, "error", aerr)
	}

	job.Status, job.NextRun = exec.Status, nil
	if job.IsRecurring() {
		if schedule, perr := r.parser.Parse(job.Schedule); perr == nil {
			next := schedule.Next(exec.EndTime)
			job.Status, job.NextRun = JobStatusPending, &next
		}
	}
	if current, gerr := r.store.GetJob(job.ID); gerr == nil && current.Status == JobStatusCancelled {
		job.Status, job.NextRun = JobStatusCancelled, nil
	}
	if uerr := r.store.UpdateJob(job); uerr != nil {
		r.logger.Warn("Failed to update job", "id", job.ID, "error", uerr)
	}

	if err != nil {
		r.emit(ctx, EventTypeJobFailed, job, err)
	} else {
		r.emit(ctx, EventTypeJobCompleted, job, nil)
	}
}

// call runs the job function, turning a panic into an error.
func (r *runner) call(ctx context.Context, job Job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("scheduler: job %s panicked: %v", job.Name, p)
		}
	}()
	return job.JobFunc(ctx)
}

func (r *runner) emit(ctx context.Context, eventType string, job Job, jobErr error) {
	r.mu.RLock()
	events := r.events
	r.mu.RUnlock()
	if events == nil {
		return
	}
	data := map[string]any{"jobId": job.ID, "name": job.Name, "status": string(job.Status)}
	if jobErr != nil {
		data["error"] = jobErr.Error()
	}
	event := apphost.NewCloudEvent(eventType, "apphost.scheduler", data, nil)
	if err := events.NotifyObservers(ctx, event); err != nil {
		r.logger.Debug("Failed to notify observers", "event", eventType, "error", err)
	}
}
