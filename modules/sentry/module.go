// Package sentry reports error logs to Sentry.
//
// The module adds a Sentry sink to the application logger: records at EventLevel and
// above become issues, records at LogLevel and above are stored as logs. Without a DSN
// the module does nothing.
package sentry

import (
	"cmp"
	"context"
	"fmt"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"

	"github.com/GoCodeAlone/apphost"
)

// ConfigKey is the configuration section bound onto Options.
const ConfigKey = "Sentry"

// Module is the sentry module.
type Module struct {
	configure func(*sentry.ClientOptions)
	options   *Options
	enabled   bool
}

// Option customizes the module.
type Option func(*Module)

// WithClientOptions adjusts the client options before the SDK is initialized.
func WithClientOptions(fn func(*sentry.ClientOptions)) Option {
	return func(m *Module) { m.configure = fn }
}

// New creates the sentry module.
func New(opts ...Option) *Module {
	m := &Module{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OptionKeys implements apphost.Module.
func (m *Module) OptionKeys() []string { return []string{ConfigKey} }

// ConfigureLogging initializes the SDK and adds the Sentry sink.
func (m *Module) ConfigureLogging(app *apphost.ApplicationContext, options *Options, logging *apphost.LoggerConfiguration) error {
	m.options = options
	m.enabled = false
	if options.DSN == "" {
		return nil
	}

	client := sentry.ClientOptions{
		Dsn:         options.DSN,
		Environment: cmp.Or(options.Environment, app.Environment()),
		Release:     cmp.Or(options.Release, app.Name()+"@"+app.Version()),
		SampleRate:  options.SampleRate,
		Debug:       options.Debug,
		EnableLogs:  true,
	}
	if m.configure != nil {
		m.configure(&client)
	}
	if err := sentry.Init(client); err != nil {
		return fmt.Errorf("sentry: init: %w", err)
	}

	logging.AddHandler(sentryslog.Option{
		EventLevel: levelsFrom(options.EventLevel),
		LogLevel:   levelsFrom(options.LogLevel),
	}.NewSentryHandler(context.Background()))
	m.enabled = true
	return nil
}

// Init logs whether reporting is active.
func (m *Module) Init(_ context.Context, app *apphost.ApplicationContext, _ apphost.Resolver) error {
	logger := apphost.ModuleLogger(app, m)
	if !m.enabled {
		logger.Info("Sentry disabled; no DSN configured")
		return nil
	}
	logger.Info("Sentry enabled", "eventLevel", m.options.EventLevel, "logLevel", m.options.LogLevel)
	return nil
}

// ApplicationStopped flushes buffered events.
func (m *Module) ApplicationStopped(_ context.Context, app *apphost.ApplicationContext, _ apphost.Resolver) error {
	if !m.enabled {
		return nil
	}
	if !sentry.Flush(m.options.FlushTimeout) {
		apphost.ModuleLogger(app, m).Warn("Sentry flush timed out", "timeout", m.options.FlushTimeout)
	}
	return nil
}
