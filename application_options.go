package apphost

import (
	"io"
	"os"
	"slices"
	"syscall"

	"go.opentelemetry.io/otel/trace"

	"github.com/GoCodeAlone/apphost/config"
)

// Option represents a configuration option for the application.
type Option func(*Application)

type observerSubscription struct {
	observer   Observer
	eventTypes []string
}

type applicationSettings struct {
	args           []string
	providers      []config.Provider
	logOutput      io.Writer
	observers      []observerSubscription
	tracerProvider trace.TracerProvider
	lenient        bool
	signals        []os.Signal
	base           ApplicationOptions
}

func defaultSettings() applicationSettings {
	return applicationSettings{
		args:      slices.Clone(os.Args[1:]),
		logOutput: os.Stderr,
		signals:   []os.Signal{os.Interrupt, syscall.SIGTERM},
		base:      DefaultApplicationOptions(),
	}
}

// WithArgs replaces the process arguments. They are also the last, highest priority
// configuration source.
func WithArgs(args ...string) Option {
	return func(a *Application) { a.settings.args = slices.Clone(args) }
}

// WithConfigProviders adds configuration providers in priority order, lowest first.
func WithConfigProviders(providers ...config.Provider) Option {
	return func(a *Application) { a.settings.providers = append(a.settings.providers, providers...) }
}

// WithLogOutput sets where console logs are written. Nil disables console output.
func WithLogOutput(w io.Writer) Option {
	return func(a *Application) { a.settings.logOutput = w }
}

// WithObserver subscribes observer to lifecycle events of the given types, or to all
// events when none are given.
func WithObserver(observer Observer, eventTypes ...string) Option {
	return func(a *Application) {
		a.settings.observers = append(a.settings.observers, observerSubscription{observer: observer, eventTypes: eventTypes})
	}
}

// WithTracerProvider traces lifecycle phases with tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(a *Application) { a.settings.tracerProvider = tp }
}

// WithLenientValidators skips validation of options whose validator cannot be
// constructed instead of failing the run.
func WithLenientValidators() Option {
	return func(a *Application) { a.settings.lenient = true }
}

// WithSignals sets the signals that stop a running application. With no signals only
// context cancellation or a failing background service stops it.
func WithSignals(signals ...os.Signal) Option {
	return func(a *Application) { a.settings.signals = slices.Clone(signals) }
}

// WithName sets the default application name.
func WithName(name string) Option {
	return func(a *Application) { a.settings.base.Name = name }
}

// WithVersion sets the default application version.
func WithVersion(version string) Option {
	return func(a *Application) { a.settings.base.Version = version }
}

// WithEnvironment sets the default environment name.
func WithEnvironment(environment string) Option {
	return func(a *Application) { a.settings.base.Environment = environment }
}
