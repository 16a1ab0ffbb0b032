// Package postgres provides a pgx connection pool with optional goose migrations.
//
// Other modules depend on it by requiring DatabaseProvider and resolving Database from
// the services once their own Init runs:
//
//	func (m *Module) RequiredModules(*apphost.ApplicationContext, *Options) []reflect.Type {
//	    return []reflect.Type{apphost.TypeOf[postgres.DatabaseProvider]()}
//	}
package postgres

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GoCodeAlone/apphost"
	"github.com/GoCodeAlone/apphost/health"
)

// ConfigKey is the configuration section bound onto Options.
const ConfigKey = "Postgres"

var (
	ErrFailedToParseConfig = errors.New("postgres: failed to parse database configuration")
	ErrFailedToConnect     = errors.New("postgres: failed to open database connection")
	ErrNotInitialized      = errors.New("postgres: database is not initialized")
	ErrHealthcheckFailed   = errors.New("postgres: healthcheck failed")
)

// Database is the service other modules use.
type Database interface {
	Pool() *pgxpool.Pool
	Ping(ctx context.Context) error
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// DatabaseProvider is implemented by modules that provide a Database. Requiring it
// instead of *Module lets an alternative provider satisfy the dependency.
type DatabaseProvider interface {
	apphost.Module
	Database() Database
}

// Option customizes the module.
type Option func(*Module)

// WithMigrations sets the filesystem migrations are read from. Without it
// Options.MigrationsDir is read from disk.
func WithMigrations(fsys fs.FS) Option {
	return func(m *Module) { m.migrations = fsys }
}

// Module is the Postgres module.
type Module struct {
	mu         sync.RWMutex
	options    *Options
	db         *database
	checks     *health.Aggregator
	migrations fs.FS
}

// New creates the Postgres module.
func New(opts ...Option) *Module {
	m := &Module{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OptionKeys implements apphost.Module.
func (m *Module) OptionKeys() []string { return []string{ConfigKey} }

// Database returns the opened database, or nil before Init.
func (m *Module) Database() Database {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.db == nil {
		return nil
	}
	return m.db
}

// ConfigureServices registers Database as a lazily resolved singleton.
func (m *Module) ConfigureServices(_ *apphost.ApplicationContext, services *apphost.Container, options *Options) error {
	checks, err := health.FromServices(services)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.options, m.checks = options, checks
	m.mu.Unlock()

	return apphost.RegisterFactory(services, apphost.ServiceScopeSingleton, func(apphost.Resolver) (Database, error) {
		db := m.Database()
		if db == nil {
			return nil, ErrNotInitialized
		}
		return db, nil
	})
}

// CheckConfiguration parses the connection string without connecting.
func (m *Module) CheckConfiguration(context.Context, *apphost.ApplicationContext, apphost.Resolver) error {
	if _, err := pgxpool.ParseConfig(m.options.DSN()); err != nil {
		return errors.Join(ErrFailedToParseConfig, err)
	}
	return nil
}

// Init connects, applies migrations when enabled and registers the health check.
func (m *Module) Init(ctx context.Context, app *apphost.ApplicationContext, _ apphost.Resolver) error {
	logger := apphost.ModuleLogger(app, m)
	o := m.options

	pool, err := connect(ctx, o)
	if err != nil {
		return err
	}
	db := &database{pool: pool}

	if o.AutoApplyMigrations {
		migrations := m.migrations
		if migrations == nil {
			migrations = os.DirFS(o.MigrationsDir)
		}
		if err := migrate(ctx, pool, migrations, o.MigrationsTable, logger); err != nil {
			pool.Close()
			return err
		}
	}

	if err := m.checks.RegisterCheck(health.Named("postgres", db.healthcheck)); err != nil {
		pool.Close()
		return err
	}

	m.mu.Lock()
	m.db = db
	m.mu.Unlock()

	cfg := pool.Config().ConnConfig
	logger.Info("Connected to Postgres", "host", cfg.Host, "database", cfg.Database, "maxConns", o.MaxConns)
	return nil
}

// ApplicationStopped closes the pool.
func (m *Module) ApplicationStopped(_ context.Context, app *apphost.ApplicationContext, _ apphost.Resolver) error {
	m.mu.Lock()
	db := m.db
	m.db = nil
	m.mu.Unlock()
	if db == nil {
		return nil
	}
	_ = m.checks.UnregisterCheck("postgres")
	db.pool.Close()
	apphost.ModuleLogger(app, m).Info("Postgres pool closed")
	return nil
}

func connect(ctx context.Context, o *Options) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(o.DSN())
	if err != nil {
		return nil, errors.Join(ErrFailedToParseConfig, err)
	}
	cfg.MaxConns = o.MaxConns
	cfg.MinConns = o.MinConns
	cfg.MaxConnIdleTime = o.MaxConnIdleTime
	cfg.MaxConnLifetime = o.MaxConnLifetime
	cfg.HealthCheckPeriod = o.HealthCheckPeriod

	var lastErr error
	attempts := max(o.RetryAttempts, 1)
	for i := range attempts {
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrFailedToConnect, ctx.Err())
		case <-time.After(time.Duration(i+1) * o.RetryInterval):
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrFailedToConnect, attempts, lastErr)
}

type database struct {
	pool *pgxpool.Pool
}

func (d *database) Pool() *pgxpool.Pool { return d.pool }

func (d *database) Ping(ctx context.Context) error { return d.pool.Ping(ctx) }

// WithTx runs fn in a transaction, rolling back when fn fails or panics.
func (d *database) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (d *database) healthcheck(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return errors.Join(ErrHealthcheckFailed, err)
	}
	return nil
}
