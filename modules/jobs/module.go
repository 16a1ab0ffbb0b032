// Package jobs runs background tasks on river, a Postgres backed job queue.
//
// Modules add tasks to the Registry service during Init and enqueue work through the
// Enqueuer service. Workers start with the application and drain on shutdown.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/GoCodeAlone/apphost"
	"github.com/GoCodeAlone/apphost/health"
	"github.com/GoCodeAlone/apphost/modules/postgres"
)

// ConfigKey is the configuration section bound onto Options.
const ConfigKey = "Jobs"

var (
	ErrUnknownTask           = errors.New("jobs: unknown task")
	ErrTaskAlreadyRegistered = errors.New("jobs: task already registered")
	ErrRegistrySealed        = errors.New("jobs: tasks cannot be added after the client is built")
	ErrInvalidPayload        = errors.New("jobs: invalid payload")
	ErrNotInitialized        = errors.New("jobs: client is not initialized")
	ErrHealthcheckFailed     = errors.New("jobs: healthcheck failed")
)

// Module is the jobs module.
type Module struct {
	mu       sync.Mutex
	options  *Options
	registry *Registry
	checks   *health.Aggregator
	db       postgres.Database
	client   *river.Client[pgx.Tx]
	started  bool
}

// New creates the jobs module.
func New() *Module {
	return &Module{registry: NewRegistry()}
}

// OptionKeys implements apphost.Module.
func (m *Module) OptionKeys() []string { return []string{ConfigKey} }

// RequiredModules implements apphost.RequiredModulesProvider.
func (m *Module) RequiredModules(*apphost.ApplicationContext, *Options) []reflect.Type {
	return []reflect.Type{apphost.TypeOf[postgres.DatabaseProvider]()}
}

// ConfigureServices registers the Registry and Enqueuer services.
func (m *Module) ConfigureServices(_ *apphost.ApplicationContext, services *apphost.Container, options *Options) error {
	checks, err := health.FromServices(services)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.options, m.checks = options, checks
	m.mu.Unlock()

	if err := apphost.Register(services, m.registry); err != nil {
		return err
	}
	return apphost.RegisterFactory(services, apphost.ServiceScopeSingleton, func(apphost.Resolver) (Enqueuer, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.client == nil {
			return nil, ErrNotInitialized
		}
		return &enqueuer{client: m.client, registry: m.registry}, nil
	})
}

// Init resolves the database. The client is built once every module has added its
// tasks, in OnAfterRun.
func (m *Module) Init(_ context.Context, _ *apphost.ApplicationContext, services apphost.Resolver) error {
	db, err := apphost.Resolve[postgres.Database](services)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.db = db
	m.mu.Unlock()
	return m.checks.RegisterCheck(health.Named("jobs", m.healthcheck))
}

// OnAfterRun seals the registry and builds the river client.
func (m *Module) OnAfterRun(_ context.Context, app *apphost.ApplicationContext, _ apphost.Resolver) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.registry.seal()
	client, err := buildClient(m.db, m.registry, m.options, apphost.ModuleLogger(app, m))
	if err != nil {
		return false, err
	}
	m.client = client
	return true, nil
}

// ApplicationStarted starts the workers. Without tasks the client stays insert only.
func (m *Module) ApplicationStarted(ctx context.Context, app *apphost.ApplicationContext, _ apphost.Resolver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	logger := apphost.ModuleLogger(app, m)

	if len(m.registry.Names()) == 0 {
		logger.Warn("No tasks registered; job workers not started")
		return nil
	}
	if err := m.client.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("jobs: start client: %w", err)
	}
	m.started = true
	logger.Info("Job workers started", "tasks", m.registry.Names(), "maxWorkers", m.options.MaxWorkers)
	return nil
}

// ApplicationStopping waits for running jobs to finish.
func (m *Module) ApplicationStopping(ctx context.Context, app *apphost.ApplicationContext, _ apphost.Resolver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, m.options.StopTimeout)
	defer cancel()
	m.started = false
	if err := m.client.Stop(ctx); err != nil {
		return fmt.Errorf("jobs: stop client: %w", err)
	}
	apphost.ModuleLogger(app, m).Info("Job workers stopped")
	return nil
}

func (m *Module) healthcheck(ctx context.Context) error {
	m.mu.Lock()
	db := m.db
	m.mu.Unlock()
	if db == nil {
		return errors.Join(ErrHealthcheckFailed, ErrNotInitialized)
	}
	if err := db.Ping(ctx); err != nil {
		return errors.Join(ErrHealthcheckFailed, err)
	}
	return nil
}

// buildClient configures queues, the dispatching worker and periodic jobs.
func buildClient(db postgres.Database, registry *Registry, o *Options, logger *slog.Logger) (*river.Client[pgx.Tx], error) {
	queues := map[string]river.QueueConfig{river.QueueDefault: {MaxWorkers: o.MaxWorkers}}
	for name, workers := range o.Queues {
		queues[name] = river.QueueConfig{MaxWorkers: workers}
	}

	var periodic []*river.PeriodicJob
	for name, expr := range o.Schedules {
		if _, ok := registry.get(name); !ok {
			logger.Warn("Schedule names an unregistered task", "task", name)
			continue
		}
		schedule, err := parseSchedule(expr)
		if err != nil {
			return nil, err
		}
		periodic = append(periodic, river.NewPeriodicJob(schedule, func() (river.JobArgs, *river.InsertOpts) {
			return taskArgs{Task: name}, nil
		}, &river.PeriodicJobOpts{}))
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &taskWorker{registry: registry, logger: logger})

	client, err := river.NewClient(riverpgxv5.New(db.Pool()), &river.Config{
		Queues:       queues,
		Workers:      workers,
		PeriodicJobs: periodic,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("jobs: create client: %w", err)
	}
	return client, nil
}
