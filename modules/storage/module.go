// Package storage exposes an S3 compatible bucket as the Bucket service.
package storage

import (
	"context"
	"sync"

	"github.com/GoCodeAlone/apphost"
	"github.com/GoCodeAlone/apphost/health"
)

// ConfigKey is the configuration section bound onto Options.
const ConfigKey = "Storage"

// Module is the storage module.
type Module struct {
	mu     sync.RWMutex
	bucket *s3Bucket
	checks *health.Aggregator
}

// New creates the storage module.
func New() *Module {
	return &Module{}
}

// OptionKeys implements apphost.Module.
func (m *Module) OptionKeys() []string { return []string{ConfigKey} }

// ConfigureServices builds the client and registers Bucket. The client does not dial
// until first use.
func (m *Module) ConfigureServices(_ *apphost.ApplicationContext, services *apphost.Container, options *Options) error {
	checks, err := health.FromServices(services)
	if err != nil {
		return err
	}
	bucket := newBucket(options)
	m.mu.Lock()
	m.bucket, m.checks = bucket, checks
	m.mu.Unlock()
	return apphost.Register[Bucket](services, bucket)
}

// Init optionally verifies the bucket and registers its health check.
func (m *Module) Init(ctx context.Context, app *apphost.ApplicationContext, _ apphost.Resolver) error {
	m.mu.RLock()
	bucket := m.bucket
	m.mu.RUnlock()

	if bucket.options.VerifyBucket {
		if err := bucket.healthcheck(ctx); err != nil {
			return err
		}
	}
	apphost.ModuleLogger(app, m).Info("Object storage ready",
		"bucket", bucket.options.Bucket, "region", bucket.options.Region, "endpoint", bucket.options.Endpoint)
	return m.checks.RegisterCheck(health.Named("storage", bucket.healthcheck))
}
