package apphost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultShutdownTimeout = 30 * time.Second

// BackgroundService runs for the lifetime of the application. Run must return when ctx
// is cancelled; returning context.Canceled at that point is not a failure.
type BackgroundService interface {
	Run(ctx context.Context) error
}

// BackgroundServiceFunc adapts a function to BackgroundService.
type BackgroundServiceFunc func(ctx context.Context) error

// Run implements BackgroundService.
func (f BackgroundServiceFunc) Run(ctx context.Context) error { return f(ctx) }

type namedService struct {
	name    string
	service BackgroundService
}

// HostBuilder collects what modules contribute to the process host.
type HostBuilder struct {
	mu       sync.Mutex
	services []namedService

	// ShutdownTimeout bounds draining of background services after cancellation.
	ShutdownTimeout time.Duration

	// Properties lets modules share values while the host is being configured.
	Properties map[string]any
}

// NewHostBuilder creates a host builder with the default shutdown timeout.
func NewHostBuilder() *HostBuilder {
	return &HostBuilder{
		ShutdownTimeout: defaultShutdownTimeout,
		Properties:      make(map[string]any),
	}
}

// AddBackgroundService registers service under name.
func (h *HostBuilder) AddBackgroundService(name string, service BackgroundService) error {
	if service == nil {
		return fmt.Errorf("%w: background service %q", ErrServiceNil, name)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.services {
		if s.name == name {
			return fmt.Errorf("%w: background service %q", ErrServiceAlreadyRegistered, name)
		}
	}
	h.services = append(h.services, namedService{name: name, service: service})
	return nil
}

// BackgroundServices returns the names of the registered background services in order.
func (h *HostBuilder) BackgroundServices() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, len(h.services))
	for i, s := range h.services {
		names[i] = s.name
	}
	return names
}

// runningHost is the started set of background services.
type runningHost struct {
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
	timeout time.Duration

	failed     chan struct{}
	failedOnce sync.Once
}

// start launches every background service under ctx.
func (h *HostBuilder) start(ctx context.Context, logger *slog.Logger) *runningHost {
	h.mu.Lock()
	services := append([]namedService(nil), h.services...)
	h.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	rh := &runningHost{cancel: cancel, done: make(chan struct{}), failed: make(chan struct{}), timeout: h.ShutdownTimeout}
	if rh.timeout <= 0 {
		rh.timeout = defaultShutdownTimeout
	}

	for _, s := range services {
		group.Go(func() error {
			logger.Debug("Background service starting", "service", s.name)
			err := s.service.Run(groupCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Background service failed", "service", s.name, "error", err)
				rh.failedOnce.Do(func() { close(rh.failed) })
				return fmt.Errorf("%w: %s: %w", ErrBackgroundService, s.name, err)
			}
			logger.Debug("Background service stopped", "service", s.name)
			return nil
		})
	}

	go func() {
		rh.err = group.Wait()
		close(rh.done)
	}()
	return rh
}

// Failed is closed when a background service fails. Services that return nil, and a
// host without services, leave it open.
func (rh *runningHost) Failed() <-chan struct{} { return rh.failed }

// stop cancels the services and waits for them up to the shutdown timeout.
func (rh *runningHost) stop() error {
	rh.cancel()
	timer := time.NewTimer(rh.timeout)
	defer timer.Stop()
	select {
	case <-rh.done:
		return rh.err
	case <-timer.C:
		return fmt.Errorf("%w: not stopped within %s", ErrBackgroundService, rh.timeout)
	}
}
