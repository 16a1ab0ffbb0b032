package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
)

// Enqueuer adds jobs for registered tasks.
type Enqueuer interface {
	Enqueue(ctx context.Context, task string, payload any, opts ...EnqueueOption) error

	// EnqueueTx inserts the job in tx; workers see it once tx commits.
	EnqueueTx(ctx context.Context, tx pgx.Tx, task string, payload any, opts ...EnqueueOption) error
}

type enqueueConfig struct {
	queue       string
	scheduledAt time.Time
	maxAttempts int
	priority    int
	uniqueFor   time.Duration
	tags        []string
}

// EnqueueOption adjusts a single enqueue call.
type EnqueueOption func(*enqueueConfig)

// InQueue sends the job to a named queue instead of the default one.
func InQueue(name string) EnqueueOption {
	return func(c *enqueueConfig) { c.queue = name }
}

// ScheduledAt delays the job until t.
func ScheduledAt(t time.Time) EnqueueOption {
	return func(c *enqueueConfig) { c.scheduledAt = t }
}

// ScheduledIn delays the job by d.
func ScheduledIn(d time.Duration) EnqueueOption {
	return func(c *enqueueConfig) { c.scheduledAt = time.Now().Add(d) }
}

// MaxAttempts caps retries.
func MaxAttempts(n int) EnqueueOption {
	return func(c *enqueueConfig) { c.maxAttempts = n }
}

// Priority orders jobs within a queue; 1 runs first, 4 last.
func Priority(p int) EnqueueOption {
	return func(c *enqueueConfig) { c.priority = p }
}

// UniqueFor skips the insert when an identical job was enqueued within d.
func UniqueFor(d time.Duration) EnqueueOption {
	return func(c *enqueueConfig) { c.uniqueFor = d }
}

// Tags labels the job.
func Tags(tags ...string) EnqueueOption {
	return func(c *enqueueConfig) { c.tags = append(c.tags, tags...) }
}

func buildArgs(task string, payload any, opts ...EnqueueOption) (taskArgs, *river.InsertOpts, error) {
	args := taskArgs{Task: task}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return args, nil, fmt.Errorf("jobs: encode payload for %s: %w", task, err)
		}
		args.Payload = raw
	}

	var cfg enqueueConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	insert := &river.InsertOpts{
		Queue:       cfg.queue,
		ScheduledAt: cfg.scheduledAt,
		MaxAttempts: cfg.maxAttempts,
		Priority:    cfg.priority,
		Tags:        cfg.tags,
	}
	if cfg.uniqueFor > 0 {
		insert.UniqueOpts = river.UniqueOpts{ByArgs: true, ByPeriod: cfg.uniqueFor}
	}
	return args, insert, nil
}

// enqueuer checks task names against the registry before inserting.
type enqueuer struct {
	client   *river.Client[pgx.Tx]
	registry *Registry
}

func (e *enqueuer) Enqueue(ctx context.Context, task string, payload any, opts ...EnqueueOption) error {
	args, insert, err := e.prepare(task, payload, opts)
	if err != nil {
		return err
	}
	if _, err := e.client.Insert(ctx, args, insert); err != nil {
		return fmt.Errorf("jobs: enqueue %s: %w", task, err)
	}
	return nil
}

func (e *enqueuer) EnqueueTx(ctx context.Context, tx pgx.Tx, task string, payload any, opts ...EnqueueOption) error {
	args, insert, err := e.prepare(task, payload, opts)
	if err != nil {
		return err
	}
	if _, err := e.client.InsertTx(ctx, tx, args, insert); err != nil {
		return fmt.Errorf("jobs: enqueue %s: %w", task, err)
	}
	return nil
}

func (e *enqueuer) prepare(task string, payload any, opts []EnqueueOption) (taskArgs, *river.InsertOpts, error) {
	if _, ok := e.registry.get(task); !ok {
		return taskArgs{}, nil, fmt.Errorf("%w: %s", ErrUnknownTask, task)
	}
	return buildArgs(task, payload, opts...)
}
