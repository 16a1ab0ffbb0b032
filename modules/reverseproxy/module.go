// Package reverseproxy forwards routes of the HTTP server to backend services.
//
// Routes are mounted on the chi.Router registered by the httpserver module, which is
// therefore required. When the httpclient module is enabled its transport is used, so
// proxied calls are traced and logged like any other outgoing request.
package reverseproxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gobwas/glob"

	"github.com/GoCodeAlone/apphost"
	"github.com/GoCodeAlone/apphost/modules/httpserver"
)

// ConfigKey is the configuration section bound onto Options.
const ConfigKey = "ReverseProxy"

// Module is the reverse proxy module.
type Module struct {
	options *Options
}

// New creates the reverse proxy module.
func New() *Module {
	return &Module{}
}

// OptionKeys implements apphost.Module.
func (m *Module) OptionKeys() []string { return []string{ConfigKey} }

// RequiredModules implements apphost.RequiredModulesProvider.
func (m *Module) RequiredModules(*apphost.ApplicationContext, *Options) []reflect.Type {
	return []reflect.Type{reflect.TypeFor[*httpserver.Module]()}
}

// ConfigureServices keeps the options for Init.
func (m *Module) ConfigureServices(_ *apphost.ApplicationContext, _ *apphost.Container, options *Options) error {
	m.options = options
	return nil
}

type hostRoute struct {
	hosts []glob.Glob
	proxy http.Handler
}

func (r hostRoute) matches(host string) bool {
	if len(r.hosts) == 0 {
		return true
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	for _, g := range r.hosts {
		if g.Match(strings.ToLower(host)) {
			return true
		}
	}
	return false
}

// Init builds a proxy per backend and mounts the routes.
func (m *Module) Init(_ context.Context, app *apphost.ApplicationContext, services apphost.Resolver) error {
	router, err := apphost.Resolve[chi.Router](services)
	if err != nil {
		return err
	}
	logger := apphost.ModuleLogger(app, m)

	base := http.DefaultTransport
	if client, err := apphost.Resolve[*http.Client](services); err == nil && client.Transport != nil {
		base = client.Transport
	}

	o := m.options
	proxies := make(map[string]http.Handler, len(o.Backends))
	for id, raw := range o.Backends {
		target, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("reverseproxy: backend %s: %w", id, err)
		}
		transport := base
		if o.CircuitBreaker.Enabled {
			transport = &breakerTransport{next: base, breaker: &breaker{
				backend:      id,
				threshold:    o.CircuitBreaker.FailureThreshold,
				resetTimeout: o.CircuitBreaker.ResetTimeout,
				logger:       logger,
				now:          time.Now,
			}}
		}
		proxies[id] = &httputil.ReverseProxy{
			Rewrite: func(pr *httputil.ProxyRequest) {
				pr.SetURL(target)
				pr.SetXForwarded()
			},
			Transport: transport,
			ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
				status := http.StatusBadGateway
				if errors.Is(err, ErrCircuitOpen) {
					status = http.StatusServiceUnavailable
				}
				logger.Warn("Proxy request failed", "backend", id, "path", r.URL.Path, "error", err)
				w.WriteHeader(status)
			},
		}
	}

	byPattern := make(map[string][]hostRoute)
	var patterns []string
	for _, r := range o.Routes {
		route := hostRoute{proxy: proxies[r.Backend]}
		if r.StripPrefix != "" {
			route.proxy = http.StripPrefix(r.StripPrefix, route.proxy)
		}
		for _, h := range r.Hosts {
			g, err := glob.Compile(strings.ToLower(h), '.')
			if err != nil {
				return fmt.Errorf("reverseproxy: host pattern %q: %w", h, err)
			}
			route.hosts = append(route.hosts, g)
		}
		if _, ok := byPattern[r.Pattern]; !ok {
			patterns = append(patterns, r.Pattern)
		}
		byPattern[r.Pattern] = append(byPattern[r.Pattern], route)
	}

	for _, pattern := range patterns {
		routes := byPattern[pattern]
		router.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, route := range routes {
				if route.matches(r.Host) {
					route.proxy.ServeHTTP(w, r)
					return
				}
			}
			http.NotFound(w, r)
		}))
		logger.Debug("Proxy route mounted", "pattern", pattern, "routes", len(routes))
	}
	return nil
}
