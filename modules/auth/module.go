// Package auth authenticates HTTP requests with JWT bearer tokens or API keys.
//
// The module registers a *Service that issues HS256 access and refresh tokens, hashes
// passwords with bcrypt, and provides chi-compatible middleware. API keys listed in the
// configuration are loaded into the key store during Init.
package auth

import (
	"context"
	"maps"
	"slices"

	"github.com/GoCodeAlone/apphost"
)

// ConfigKey is the configuration section bound onto Options.
const ConfigKey = "Auth"

// Module is the authentication module.
type Module struct {
	keys    APIKeyStore
	options *Options
}

// Option customizes the module.
type Option func(*Module)

// WithAPIKeyStore replaces the in-memory key store. Configured keys are only loaded
// into a *MemoryAPIKeyStore.
func WithAPIKeyStore(store APIKeyStore) Option {
	return func(m *Module) { m.keys = store }
}

// New creates the authentication module.
func New(opts ...Option) *Module {
	m := &Module{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OptionKeys implements apphost.Module.
func (m *Module) OptionKeys() []string { return []string{ConfigKey} }

// ConfigureServices registers the Service and the key store.
func (m *Module) ConfigureServices(app *apphost.ApplicationContext, services *apphost.Container, options *Options) error {
	events, err := apphost.Resolve[apphost.Subject](services)
	if err != nil {
		return err
	}
	if m.keys == nil {
		m.keys = NewMemoryAPIKeyStore()
	}
	m.options = options

	if err := apphost.Register(services, m.keys); err != nil {
		return err
	}
	return apphost.Register(services, NewService(options, m.keys, events, apphost.ModuleLogger(app, m)))
}

// Init loads the configured API keys.
func (m *Module) Init(_ context.Context, app *apphost.ApplicationContext, _ apphost.Resolver) error {
	store, ok := m.keys.(*MemoryAPIKeyStore)
	if !ok {
		return nil
	}
	for _, id := range slices.Sorted(maps.Keys(m.options.APIKeys)) {
		k := m.options.APIKeys[id]
		info := APIKey{ID: id, Subject: k.Subject, Roles: k.Roles, ExpiresAt: k.ExpiresAt}
		if info.Subject == "" {
			info.Subject = id
		}
		if err := store.Add(k.Key, info); err != nil {
			return err
		}
	}
	apphost.ModuleLogger(app, m).Debug("API keys loaded", "count", len(m.options.APIKeys))
	return nil
}
