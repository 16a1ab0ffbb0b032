// Package cache provides a key/value cache backed by process memory or Redis.
//
// The engine is picked by Options.Engine. Both register the Cache service; the redis
// engine also registers its redis.UniversalClient for modules that need the raw client.
package cache

import (
	"context"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/GoCodeAlone/apphost"
	"github.com/GoCodeAlone/apphost/health"
)

// ConfigKey is the configuration section bound onto Options.
const ConfigKey = "Cache"

const cleanupService = "cache-cleanup"

// Module is the cache module.
type Module struct {
	mu      sync.RWMutex
	options *Options
	memory  *memoryCache
	redis   *redisCache
	checks  *health.Aggregator
}

// New creates the cache module.
func New() *Module {
	return &Module{}
}

// OptionKeys implements apphost.Module.
func (m *Module) OptionKeys() []string { return []string{ConfigKey} }

func usesRedis(o *Options) bool { return strings.EqualFold(o.Engine, EngineRedis) }

// ConfigureHostBuilder adds the expiry sweeper for the memory engine.
func (m *Module) ConfigureHostBuilder(_ *apphost.ApplicationContext, host *apphost.HostBuilder, options *Options) error {
	if usesRedis(options) {
		return nil
	}
	interval := options.CleanupInterval
	return host.AddBackgroundService(cleanupService, apphost.BackgroundServiceFunc(func(ctx context.Context) error {
		m.mu.RLock()
		memory := m.memory
		m.mu.RUnlock()
		if memory == nil {
			<-ctx.Done()
			return ctx.Err()
		}
		return memory.runCleanup(ctx, interval)
	}))
}

// ConfigureServices registers the Cache service.
func (m *Module) ConfigureServices(_ *apphost.ApplicationContext, services *apphost.Container, options *Options) error {
	m.mu.Lock()
	m.options = options
	if !usesRedis(options) {
		m.memory = newMemoryCache(options)
	}
	m.mu.Unlock()

	if usesRedis(options) {
		checks, err := health.FromServices(services)
		if err != nil {
			return err
		}
		m.checks = checks
		if err := apphost.RegisterBorrowed(services, func(apphost.Resolver) (redis.UniversalClient, error) {
			m.mu.RLock()
			defer m.mu.RUnlock()
			if m.redis == nil {
				return nil, ErrNotInitialized
			}
			return m.redis.client, nil
		}); err != nil {
			return err
		}
	}

	return apphost.RegisterFactory(services, apphost.ServiceScopeSingleton, func(apphost.Resolver) (Cache, error) {
		return m.Cache()
	})
}

// Cache returns the active engine.
func (m *Module) Cache() (Cache, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch {
	case m.redis != nil:
		return m.redis, nil
	case m.memory != nil:
		return m.memory, nil
	default:
		return nil, ErrNotInitialized
	}
}

// Init connects the redis engine.
func (m *Module) Init(ctx context.Context, app *apphost.ApplicationContext, _ apphost.Resolver) error {
	o := m.options
	logger := apphost.ModuleLogger(app, m)
	if !usesRedis(o) {
		logger.Info("Using in-memory cache", "maxItems", o.MaxItems, "defaultTTL", o.DefaultTTL)
		return nil
	}

	client, err := openRedis(ctx, o.Redis)
	if err != nil {
		return err
	}
	rc := &redisCache{client: client, prefix: o.KeyPrefix, defaultTTL: o.DefaultTTL}
	if err := m.checks.RegisterCheck(health.Named("redis", rc.healthcheck)); err != nil {
		_ = client.Close()
		return err
	}

	m.mu.Lock()
	m.redis = rc
	m.mu.Unlock()
	logger.Info("Connected to Redis", "prefix", o.KeyPrefix)
	return nil
}

// ApplicationStopped closes the redis client.
func (m *Module) ApplicationStopped(context.Context, *apphost.ApplicationContext, apphost.Resolver) error {
	m.mu.Lock()
	rc := m.redis
	m.redis = nil
	m.mu.Unlock()
	if rc == nil {
		return nil
	}
	_ = m.checks.UnregisterCheck("redis")
	return rc.client.Close()
}
