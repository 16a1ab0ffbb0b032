// Package httpserver hosts an HTTP server on a chi router.
//
// The router is registered as a chi.Router service during ConfigureServices so other
// modules can mount their handlers from their own Init. The listener is bound in Init,
// so a port conflict aborts startup, and requests are served once the application has
// started.
//
//	_ = apphost.AddModule[httpserver.Options](app, httpserver.New())
package httpserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/GoCodeAlone/apphost"
	"github.com/GoCodeAlone/apphost/health"
)

// ConfigKey is the configuration section bound onto Options.
const ConfigKey = "HttpServer"

var (
	ErrNotConfigured = errors.New("httpserver: services were not configured")
	ErrNotListening  = errors.New("httpserver: server is not listening")
)

// Module is the HTTP server module.
type Module struct {
	mu       sync.Mutex
	options  *Options
	router   chi.Router
	health   *health.Aggregator
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

// New creates the HTTP server module.
func New() *Module {
	return &Module{}
}

// OptionKeys implements apphost.Module.
func (m *Module) OptionKeys() []string { return []string{ConfigKey} }

// ConfigureServices registers the router and the shared health aggregator.
func (m *Module) ConfigureServices(_ *apphost.ApplicationContext, services *apphost.Container, options *Options) error {
	aggregator, err := health.FromServices(services)
	if err != nil {
		return err
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	m.mu.Lock()
	m.options, m.router, m.health = options, router, aggregator
	m.mu.Unlock()

	return apphost.Register[chi.Router](services, router)
}

// Init mounts the health endpoints and binds the listener.
func (m *Module) Init(ctx context.Context, app *apphost.ApplicationContext, _ apphost.Resolver) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.router == nil {
		return ErrNotConfigured
	}
	o := m.options
	if o.HealthPath != "" {
		m.router.Get(o.HealthPath, health.ReadinessHandler(m.health))
	}
	if o.LivenessPath != "" {
		m.router.Get(o.LivenessPath, health.LivenessHandler())
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", o.Addr())
	if err != nil {
		return fmt.Errorf("httpserver: listen on %s: %w", o.Addr(), err)
	}
	if o.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(o.TLS.CertFile, o.TLS.KeyFile)
		if err != nil {
			_ = listener.Close()
			return fmt.Errorf("httpserver: load certificate: %w", err)
		}
		listener = tls.NewListener(listener, &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		})
	}

	logger := apphost.ModuleLogger(app, m)
	m.listener = listener
	m.server = &http.Server{
		Handler:      m.router,
		ReadTimeout:  o.ReadTimeout,
		WriteTimeout: o.WriteTimeout,
		IdleTimeout:  o.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
	return nil
}

// ApplicationStarted starts serving requests.
func (m *Module) ApplicationStarted(_ context.Context, app *apphost.ApplicationContext, _ apphost.Resolver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.server == nil {
		return ErrNotListening
	}

	logger := apphost.ModuleLogger(app, m)
	server, listener := m.server, m.listener
	m.done = make(chan struct{})
	done := m.done
	go func() {
		defer close(done)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
		}
	}()
	logger.Info("HTTP server listening", "address", listener.Addr().String(), "tls", m.options.TLS.Enabled)
	return nil
}

// ApplicationStopping shuts the server down gracefully within ShutdownTimeout.
func (m *Module) ApplicationStopping(ctx context.Context, app *apphost.ApplicationContext, _ apphost.Resolver) error {
	m.mu.Lock()
	server, done, timeout := m.server, m.done, m.options.ShutdownTimeout
	m.server, m.listener = nil, nil
	m.mu.Unlock()
	if server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("httpserver: shutdown: %w", err)
	}
	if done != nil {
		<-done
	}
	apphost.ModuleLogger(app, m).Info("HTTP server stopped")
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
