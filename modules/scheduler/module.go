// Package scheduler runs one-off and cron jobs inside the application host.
//
// Jobs are kept in a JobStore and dispatched by a background service to a fixed pool
// of workers. Every scheduled, completed, failed and cancelled job is published to the
// application's observers as a CloudEvent.
package scheduler

import (
	"context"
	"sync"

	"github.com/GoCodeAlone/apphost"
)

// ConfigKey is the configuration section bound onto Options.
const ConfigKey = "Scheduler"

const serviceName = "scheduler"

// Module is the scheduler module.
type Module struct {
	mu     sync.RWMutex
	store  JobStore
	runner *runner
}

// Option customizes the module.
type Option func(*Module)

// WithStore replaces the in-memory job store.
func WithStore(store JobStore) Option {
	return func(m *Module) { m.store = store }
}

// New creates the scheduler module.
func New(opts ...Option) *Module {
	m := &Module{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OptionKeys implements apphost.Module.
func (m *Module) OptionKeys() []string { return []string{ConfigKey} }

// ConfigureHostBuilder adds the dispatcher as a background service.
func (m *Module) ConfigureHostBuilder(app *apphost.ApplicationContext, host *apphost.HostBuilder, options *Options) error {
	store := m.store
	if store == nil {
		store = NewMemoryStore()
	}
	r := newRunner(store, options, apphost.ModuleLogger(app, m))

	m.mu.Lock()
	m.runner = r
	m.mu.Unlock()
	return host.AddBackgroundService(serviceName, r)
}

// ConfigureServices registers the Scheduler service.
func (m *Module) ConfigureServices(_ *apphost.ApplicationContext, services *apphost.Container, _ *Options) error {
	m.mu.RLock()
	r := m.runner
	m.mu.RUnlock()

	events, err := apphost.Resolve[apphost.Subject](services)
	if err != nil {
		return err
	}
	r.setEvents(events)
	return apphost.Register[Scheduler](services, r)
}

// Init logs the dispatcher settings.
func (m *Module) Init(_ context.Context, app *apphost.ApplicationContext, _ apphost.Resolver) error {
	m.mu.RLock()
	o := m.runner.options
	m.mu.RUnlock()
	apphost.ModuleLogger(app, m).Info("Scheduler ready",
		"workers", o.WorkerCount, "queueSize", o.QueueSize, "retention", o.Retention)
	return nil
}
