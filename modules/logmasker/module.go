// Package logmasker redacts sensitive attributes from every log record.
//
// The module wraps the application's log handler from ConfigureLogging, so records from
// the host and from every module pass through the same rules before reaching any sink.
// Attributes are matched by key (FieldRules) or, for strings, by value (PatternRules).
// Values implementing Maskable decide for themselves.
package logmasker

import (
	"context"
	"log/slog"

	"github.com/GoCodeAlone/apphost"
)

// ConfigKey is the configuration section bound onto Options.
const ConfigKey = "LogMasker"

// Module is the log masker module.
type Module struct {
	masker *Masker
}

// New creates the log masker module.
func New() *Module {
	return &Module{}
}

// OptionKeys implements apphost.Module.
func (m *Module) OptionKeys() []string { return []string{ConfigKey} }

// ConfigureLogging installs the masking handler.
func (m *Module) ConfigureLogging(_ *apphost.ApplicationContext, options *Options, logging *apphost.LoggerConfiguration) error {
	masker, err := NewMasker(options)
	if err != nil {
		return err
	}
	m.masker = masker
	logging.Wrap(func(next slog.Handler) slog.Handler { return NewHandler(next, masker) })
	return nil
}

// ConfigureServices registers the Masker for code that masks values outside of logging.
func (m *Module) ConfigureServices(_ *apphost.ApplicationContext, services *apphost.Container, _ *Options) error {
	return apphost.Register(services, m.masker)
}

// Init logs the active rules.
func (m *Module) Init(_ context.Context, app *apphost.ApplicationContext, _ apphost.Resolver) error {
	apphost.ModuleLogger(app, m).Debug("Log masking enabled",
		"fieldRules", len(m.masker.fields), "patternRules", len(m.masker.patterns))
	return nil
}
