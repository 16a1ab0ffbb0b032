// Package httpclient provides the application's shared *http.Client.
//
// Requests made through the client carry the W3C trace context of the caller, get a
// client span, and are logged with credentials redacted. Other modules resolve the
// client from the container during Init.
package httpclient

import (
	"context"
	"net"
	"net/http"

	"github.com/GoCodeAlone/apphost"
)

// ConfigKey is the configuration section bound onto Options.
const ConfigKey = "HttpClient"

// Module is the HTTP client module.
type Module struct {
	modifiers []RequestModifier
	base      *http.Transport
}

// Option customizes the module.
type Option func(*Module)

// WithRequestModifier adds a modifier applied to every request, in order.
func WithRequestModifier(fn RequestModifier) Option {
	return func(m *Module) { m.modifiers = append(m.modifiers, fn) }
}

// New creates the HTTP client module.
func New(opts ...Option) *Module {
	m := &Module{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OptionKeys implements apphost.Module.
func (m *Module) OptionKeys() []string { return []string{ConfigKey} }

// ConfigureServices builds the client and registers it.
func (m *Module) ConfigureServices(app *apphost.ApplicationContext, services *apphost.Container, o *Options) error {
	dialer := &net.Dialer{Timeout: o.DialTimeout}
	m.base = &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		MaxIdleConns:        o.MaxIdleConns,
		MaxIdleConnsPerHost: o.MaxIdleConnsPerHost,
		IdleConnTimeout:     o.IdleConnTimeout,
		TLSHandshakeTimeout: o.TLSHandshakeTimeout,
		DisableCompression:  o.DisableCompression,
		DisableKeepAlives:   o.DisableKeepAlives,
		ForceAttemptHTTP2:   true,
	}
	client := &http.Client{
		Timeout: o.RequestTimeout,
		Transport: &transport{
			next:      m.base,
			userAgent: o.UserAgent,
			modifiers: m.modifiers,
			logger:    apphost.ModuleLogger(app, m),
			verbose:   o.Verbose,
		},
	}
	return apphost.Register(services, client)
}

// ApplicationStopped closes idle connections.
func (m *Module) ApplicationStopped(context.Context, *apphost.ApplicationContext, apphost.Resolver) error {
	if m.base != nil {
		m.base.CloseIdleConnections()
	}
	return nil
}
