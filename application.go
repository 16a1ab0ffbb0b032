package apphost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"sync/atomic"

	"github.com/GoCodeAlone/apphost/config"
)

// Application hosts a set of modules for one process.
//
//	app := apphost.New(apphost.WithConfigProviders(config.File("appsettings.yaml", true)))
//	_ = apphost.AddModule[postgres.Options](app, postgres.New())
//	code, err := app.Run(ctx)
type Application struct {
	settings applicationSettings
	registry *ModuleRegistry
	events   *EventBus
	running  atomic.Bool
	// setupErr holds option errors reported by Run.
	setupErr error
}

// New creates an application with opts applied over the defaults.
func New(opts ...Option) *Application {
	a := &Application{
		settings: defaultSettings(),
		registry: NewModuleRegistry(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.events = NewEventBus(nil)
	for _, s := range a.settings.observers {
		if err := a.events.RegisterObserver(s.observer, s.eventTypes...); err != nil {
			a.setupErr = errors.Join(a.setupErr, fmt.Errorf("WithObserver: %w", err))
		}
	}
	return a
}

// Modules returns the module registry.
func (a *Application) Modules() *ModuleRegistry { return a.registry }

// Events returns the subject lifecycle events are published on.
func (a *Application) Events() Subject { return a.events }

// AddModule registers module with options type O. Optional configure callbacks run after
// the options' own Configure step, in order.
func AddModule[O any, PO optionsPointer[O]](a *Application, module Module, configure ...func(*ApplicationContext, PO)) error {
	return addModule[O, PO](a, module, "", configure)
}

// AddModuleWithKey is AddModule with an extra configuration key bound after the
// module's own keys.
func AddModuleWithKey[O any, PO optionsPointer[O]](a *Application, module Module, key string, configure ...func(*ApplicationContext, PO)) error {
	return addModule[O, PO](a, module, key, configure)
}

func addModule[O any, PO optionsPointer[O]](a *Application, module Module, key string, configure []func(*ApplicationContext, PO)) error {
	if a.running.Load() {
		return ErrApplicationRunning
	}
	settings := RegistrationSettings[PO]{OptionsKey: key, LenientValidators: a.settings.lenient}
	if len(configure) > 0 {
		settings.Configure = func(app *ApplicationContext, options PO) {
			for _, fn := range configure {
				if fn != nil {
					fn(app, options)
				}
			}
		}
	}
	reg, err := NewModuleRegistration[O, PO](module, settings)
	if err != nil {
		return err
	}
	if err := a.registry.Add(reg); err != nil {
		return err
	}
	a.events.emit(context.Background(), EventTypeModuleRegistered, map[string]any{
		"module":  reg.ModuleType().String(),
		"options": reg.OptionsType().String(),
	})
	return nil
}

// Run builds configuration, configures and starts every enabled module, then blocks
// until ctx is cancelled, a stop signal arrives or a background service fails. It
// returns the process exit code: 0 after a clean stop or a veto, 1 with the error when
// startup failed.
func (a *Application) Run(ctx context.Context) (int, error) {
	if !a.running.CompareAndSwap(false, true) {
		return 1, ErrApplicationRunning
	}
	defer a.running.Store(false)

	code, err := a.run(ctx)
	if err != nil {
		a.events.emit(ctx, EventTypeApplicationFailed, map[string]any{"error": err.Error()})
	}
	return code, err
}

func (a *Application) run(ctx context.Context) (int, error) {
	s := a.settings
	slot := newHandlerSlot(NewLoggerConfiguration(s.base.LogLevel, s.base.LogFormat, true).Handler(s.logOutput))
	logger := slog.New(&swapHandler{slot: slot})
	a.events.logger = logger.With(slog.String(SourceKey, "apphost.events"))
	if a.setupErr != nil {
		return a.fail(logger, a.setupErr)
	}

	// Bootstrap context: host sources only, used to let modules add their own.
	builder := config.NewBuilder(s.providers...)
	bootCfg, err := builder.Clone().AddArgs(s.args).Build()
	if err != nil {
		return a.fail(logger, err)
	}
	bootApp, err := NewApplicationContext(bootCfg, logger, s.args, s.base)
	if err != nil {
		return a.fail(logger, err)
	}
	defer a.registry.Release(bootApp)

	if err := a.each(bootApp, "ConfigureAppConfiguration", func(reg ModuleRegistration) error {
		return reg.ConfigureAppConfiguration(bootApp, builder)
	}); err != nil {
		return a.fail(logger, err)
	}

	cfg, err := builder.AddArgs(s.args).Build()
	if err != nil {
		return a.fail(logger, err)
	}
	app, err := NewApplicationContext(cfg, logger, s.args, s.base)
	if err != nil {
		return a.fail(logger, err)
	}
	defer a.registry.Release(app)

	opts := app.Options()
	logging := NewLoggerConfiguration(opts.LogLevel, opts.LogFormat, opts.ConsoleLoggingEnabled())
	logging.With(slog.String("app", app.Name()))
	if err := a.each(app, "ConfigureLogging", func(reg ModuleRegistration) error {
		return reg.ConfigureLogging(app, logging)
	}); err != nil {
		return a.fail(logger, err)
	}
	slot.store(logging.Handler(s.logOutput))

	logger.Info("Starting application",
		"name", app.Name(), "version", app.Version(), "environment", app.Environment(), "runID", app.RunID().String())

	services := NewContainer()
	defer func() {
		if err := services.Close(); err != nil {
			logger.Warn("Failed to close services", "error", err)
		}
	}()
	if err := registerCoreServices(services, app, a.events); err != nil {
		return a.fail(logger, err)
	}

	host := NewHostBuilder()
	steps := []struct {
		name string
		fn   func(ModuleRegistration) error
	}{
		{"ConfigureHostBuilder", func(reg ModuleRegistration) error { return reg.ConfigureHostBuilder(app, host) }},
		{"ConfigureOptions", func(reg ModuleRegistration) error { return reg.ConfigureOptions(app, services) }},
		{"ConfigureServices", func(reg ModuleRegistration) error { return reg.ConfigureServices(app, services) }},
		{"PostConfigureServices", func(reg ModuleRegistration) error { return reg.PostConfigureServices(app, services) }},
		{"PostConfigureHostBuilder", func(reg ModuleRegistration) error { return reg.PostConfigureHostBuilder(app, host) }},
	}
	for _, step := range steps {
		if err := a.each(app, step.name, step.fn); err != nil {
			return a.fail(logger, err)
		}
	}

	lifecycle := NewApplicationLifecycle(app, a.registry, services,
		WithLifecycleEvents(a.events),
		WithLifecycleTracerProvider(s.tracerProvider))

	outcome, err := lifecycle.Starting(ctx)
	if err != nil {
		return a.fail(logger, err)
	}
	if outcome.ExitRequested {
		logger.Info("Application exit requested", "module", typeName(outcome.RequestedBy), "code", outcome.Code)
		return outcome.Code, nil
	}

	var (
		runCtx context.Context
		stop   context.CancelFunc
	)
	if len(s.signals) > 0 {
		runCtx, stop = signal.NotifyContext(ctx, s.signals...)
	} else {
		runCtx, stop = context.WithCancel(ctx)
	}
	defer stop()

	running := host.start(runCtx, logger)
	lifecycle.Started(ctx)
	logger.Info("Application started", "backgroundServices", host.BackgroundServices())

	select {
	case <-runCtx.Done():
	case <-running.Failed():
	}
	logger.Info("Application stopping")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), running.timeout)
	defer cancel()
	lifecycle.Stopping(shutdownCtx)
	bgErr := running.stop()
	lifecycle.Stopped(shutdownCtx)

	if bgErr != nil {
		return a.fail(logger, bgErr)
	}
	logger.Info("Application stopped")
	return 0, nil
}

// each calls fn for every module enabled at the time of the call.
func (a *Application) each(app *ApplicationContext, step string, fn func(ModuleRegistration) error) error {
	modules, err := a.registry.Enabled(app)
	if err != nil {
		return err
	}
	for _, reg := range modules {
		if err := fn(reg); err != nil {
			return fmt.Errorf("%s: module %s: %w", step, reg.ModuleType(), err)
		}
	}
	return nil
}

func (a *Application) fail(logger *slog.Logger, err error) (int, error) {
	logger.Error("Application failed", "error", err)
	return 1, err
}

func registerCoreServices(services *Container, app *ApplicationContext, events *EventBus) error {
	if err := Register(services, app); err != nil {
		return err
	}
	if err := Register(services, app.Logger()); err != nil {
		return err
	}
	if err := Register(services, app.Configuration()); err != nil {
		return err
	}
	return Register[Subject](services, events)
}
