// Package grpcserver hosts a gRPC server with the standard health service.
//
// The server is registered as a grpc.ServiceRegistrar during ConfigureServices; other
// modules register their services from Init. Calls are traced through otelgrpc, and
// the application's health checks are mirrored into grpc.health.v1.Health.
package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/GoCodeAlone/apphost"
	"github.com/GoCodeAlone/apphost/health"
)

// ConfigKey is the configuration section bound onto Options.
const ConfigKey = "GrpcServer"

const healthService = "grpc-health"

var (
	ErrNotConfigured = errors.New("grpcserver: services were not configured")
	ErrNotListening  = errors.New("grpcserver: server is not listening")
)

// Module is the gRPC server module.
type Module struct {
	mu       sync.Mutex
	options  *Options
	server   *grpc.Server
	health   *grpchealth.Server
	checks   *health.Aggregator
	listener net.Listener
	done     chan struct{}
}

// New creates the gRPC server module.
func New() *Module {
	return &Module{}
}

// OptionKeys implements apphost.Module.
func (m *Module) OptionKeys() []string { return []string{ConfigKey} }

// ConfigureHostBuilder adds the health mirroring service.
func (m *Module) ConfigureHostBuilder(_ *apphost.ApplicationContext, host *apphost.HostBuilder, options *Options) error {
	interval := options.HealthInterval
	return host.AddBackgroundService(healthService, apphost.BackgroundServiceFunc(func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			m.syncHealth(ctx)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}))
}

// ConfigureServices creates the server and registers it as grpc.ServiceRegistrar.
func (m *Module) ConfigureServices(_ *apphost.ApplicationContext, services *apphost.Container, options *Options) error {
	checks, err := health.FromServices(services)
	if err != nil {
		return err
	}

	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.MaxRecvMsgSize(options.MaxRecvMsgSize),
	)
	m.mu.Lock()
	m.options, m.server, m.checks = options, server, checks
	m.health = grpchealth.NewServer()
	m.mu.Unlock()

	if err := apphost.Register[grpc.ServiceRegistrar](services, server); err != nil {
		return err
	}
	return apphost.Register(services, server)
}

// Init registers the health and reflection services and binds the listener.
func (m *Module) Init(ctx context.Context, app *apphost.ApplicationContext, _ apphost.Resolver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.server == nil {
		return ErrNotConfigured
	}

	o := m.options
	healthpb.RegisterHealthServer(m.server, m.health)
	if o.Reflection {
		reflection.Register(m.server)
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", o.Addr())
	if err != nil {
		return fmt.Errorf("grpcserver: listen on %s: %w", o.Addr(), err)
	}
	m.listener = listener
	apphost.ModuleLogger(app, m).Debug("gRPC listener bound", "address", listener.Addr().String())
	return nil
}

// ApplicationStarted starts serving calls.
func (m *Module) ApplicationStarted(ctx context.Context, app *apphost.ApplicationContext, _ apphost.Resolver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return ErrNotListening
	}

	logger := apphost.ModuleLogger(app, m)
	server, listener := m.server, m.listener
	m.done = make(chan struct{})
	done := m.done
	go func() {
		defer close(done)
		if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("gRPC server failed", "error", err)
		}
	}()
	m.setStatus(m.checks.IsReady(ctx))
	logger.Info("gRPC server listening", "address", listener.Addr().String(), "services", len(server.GetServiceInfo()))
	return nil
}

// ApplicationStopping drains in-flight calls within ShutdownTimeout, then stops hard.
func (m *Module) ApplicationStopping(ctx context.Context, app *apphost.ApplicationContext, _ apphost.Resolver) error {
	m.mu.Lock()
	server, done, timeout := m.server, m.done, m.options.ShutdownTimeout
	listening := m.listener != nil
	m.listener = nil
	m.mu.Unlock()
	if !listening {
		return nil
	}

	m.health.Shutdown()
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	select {
	case <-stopped:
	case <-ctx.Done():
		server.Stop()
		<-stopped
		apphost.ModuleLogger(app, m).Warn("gRPC graceful stop timed out", "timeout", timeout)
	}
	if done != nil {
		<-done
	}
	apphost.ModuleLogger(app, m).Info("gRPC server stopped")
	return nil
}

// Addr returns the bound listen address, or "" before Init.
func (m *Module) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

func (m *Module) syncHealth(ctx context.Context) {
	m.mu.Lock()
	checks, listening := m.checks, m.listener != nil
	m.mu.Unlock()
	if checks == nil || !listening {
		return
	}
	ready := checks.IsReady(ctx)
	m.mu.Lock()
	m.setStatus(ready)
	m.mu.Unlock()
}

// setStatus updates the overall and per-service status. Callers hold m.mu.
func (m *Module) setStatus(ready bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ready {
		status = healthpb.HealthCheckResponse_SERVING
	}
	m.health.SetServingStatus("", status)
	for name := range m.server.GetServiceInfo() {
		m.health.SetServingStatus(name, status)
	}
}
