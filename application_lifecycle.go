package apphost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/GoCodeAlone/apphost"

// LifecycleState is the position of an ApplicationLifecycle in its state machine.
type LifecycleState int

const (
	StateNotStarted LifecycleState = iota
	StateConfiguring
	StateCheckingDependencies
	StateInitializing
	StateRunning
	StateStopping
	StateStopped
)

func (s LifecycleState) String() string {
	switch s {
	case StateNotStarted:
		return "NotStarted"
	case StateConfiguring:
		return "Configuring"
	case StateCheckingDependencies:
		return "CheckingDependencies"
	case StateInitializing:
		return "Initializing"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	default:
		return fmt.Sprintf("LifecycleState(%d)", int(s))
	}
}

// Outcome is the result of Starting. When ExitRequested is set the caller should end
// the process with Code without running any further phase.
type Outcome struct {
	ExitRequested bool
	Code          int
	// RequestedBy is the type of the module that vetoed startup.
	RequestedBy reflect.Type
}

// LifecycleOption configures an ApplicationLifecycle.
type LifecycleOption func(*ApplicationLifecycle)

// WithLifecycleEvents delivers lifecycle events to bus.
func WithLifecycleEvents(bus *EventBus) LifecycleOption {
	return func(l *ApplicationLifecycle) { l.events = bus }
}

// WithLifecycleTracerProvider traces phases with tp instead of the global provider.
func WithLifecycleTracerProvider(tp trace.TracerProvider) LifecycleOption {
	return func(l *ApplicationLifecycle) {
		if tp != nil {
			l.tracer = tp.Tracer(tracerName)
		}
	}
}

// ApplicationLifecycle drives the enabled modules of a registry through the startup and
// shutdown phases, one module at a time, in registration order.
type ApplicationLifecycle struct {
	app      *ApplicationContext
	registry *ModuleRegistry
	services *Container
	events   *EventBus
	tracer   trace.Tracer
	logger   *slog.Logger

	mu      sync.Mutex
	state   LifecycleState
	modules []ModuleRegistration
}

// NewApplicationLifecycle creates a lifecycle for the modules of registry in app.
func NewApplicationLifecycle(app *ApplicationContext, registry *ModuleRegistry, services *Container, opts ...LifecycleOption) *ApplicationLifecycle {
	l := &ApplicationLifecycle{
		app:      app,
		registry: registry,
		services: services,
		tracer:   otel.GetTracerProvider().Tracer(tracerName),
		logger:   app.Logger().With(slog.String(SourceKey, "apphost.lifecycle")),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// State returns the current state.
func (l *ApplicationLifecycle) State() LifecycleState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *ApplicationLifecycle) setState(s LifecycleState) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
	l.logger.Debug("Lifecycle state changed", "state", s.String())
}

func (l *ApplicationLifecycle) transition(from, to LifecycleState) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != from {
		return fmt.Errorf("%w: %s, want %s", ErrLifecycleState, l.state, from)
	}
	l.state = to
	return nil
}

// Starting runs the before-run hooks, the dependency check, configuration validation,
// Init and the after-run hooks over the enabled modules. Any error is fatal; a veto is
// reported through the Outcome. Init runs inside a service scope that is closed before
// Starting returns.
func (l *ApplicationLifecycle) Starting(ctx context.Context) (outcome Outcome, err error) {
	if err := l.transition(StateNotStarted, StateConfiguring); err != nil {
		return Outcome{}, err
	}

	ctx, span := l.tracer.Start(ctx, "apphost.Starting",
		trace.WithAttributes(attribute.String("apphost.run_id", l.app.RunID().String())))
	defer func() {
		if err != nil {
			l.setState(StateStopped)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			l.events.emit(ctx, EventTypeApplicationFailed, map[string]any{"error": err.Error()})
		}
		span.End()
	}()

	modules, err := l.registry.Enabled(l.app)
	if err != nil {
		return Outcome{}, err
	}
	l.mu.Lock()
	l.modules = modules
	l.mu.Unlock()

	scope := l.services.CreateScope()
	defer func() {
		if cerr := scope.Close(); cerr != nil {
			l.logger.Warn("Failed to close startup scope", "error", cerr)
		}
	}()

	if outcome, err := l.veto(ctx, "OnBeforeRun", modules, scope, ModuleRegistration.OnBeforeRun); err != nil || outcome.ExitRequested {
		return outcome, err
	}

	l.setState(StateCheckingDependencies)
	if err := l.checkDependencies(ctx, modules); err != nil {
		return Outcome{}, err
	}
	if err := l.checkConfiguration(ctx, modules, scope); err != nil {
		return Outcome{}, err
	}

	l.setState(StateInitializing)
	if err := l.initialize(ctx, modules, scope); err != nil {
		return Outcome{}, err
	}

	if outcome, err := l.veto(ctx, "OnAfterRun", modules, scope, ModuleRegistration.OnAfterRun); err != nil || outcome.ExitRequested {
		return outcome, err
	}

	l.setState(StateRunning)
	return Outcome{}, nil
}

type vetoFunc func(ModuleRegistration, context.Context, *ApplicationContext, Resolver) (bool, error)

// veto stops at the first module returning false and reports an exit with code 0.
func (l *ApplicationLifecycle) veto(ctx context.Context, phase string, modules []ModuleRegistration, services Resolver, hook vetoFunc) (Outcome, error) {
	ctx, span := l.phase(ctx, phase)
	defer span.End()

	for _, reg := range modules {
		var proceed bool
		err := l.call(ctx, phase, reg, func(ctx context.Context) error {
			var err error
			proceed, err = hook(reg, ctx, l.app, services)
			return err
		})
		if err != nil {
			l.phaseFailed(ctx, span, phase, reg, err)
			return Outcome{}, fmt.Errorf("%s: module %s: %w", phase, reg.ModuleType(), err)
		}
		if !proceed {
			l.logger.Info("Module requested exit", "phase", phase, "module", reg.ModuleType().String())
			l.setState(StateStopped)
			l.events.emit(ctx, EventTypeExitRequested, map[string]any{
				"phase":  phase,
				"module": reg.ModuleType().String(),
				"code":   0,
			})
			span.SetAttributes(attribute.String("apphost.exit_requested_by", reg.ModuleType().String()))
			return Outcome{ExitRequested: true, Code: 0, RequestedBy: reg.ModuleType()}, nil
		}
	}
	l.phaseCompleted(ctx, phase)
	return Outcome{}, nil
}

// checkDependencies checks every module before deciding, so all missing requirements
// are reported together.
func (l *ApplicationLifecycle) checkDependencies(ctx context.Context, modules []ModuleRegistration) error {
	const phase = "CheckRequiredModules"
	ctx, span := l.phase(ctx, phase)
	defer span.End()

	present := Types(modules)
	var missing []MissingDependency
	for _, reg := range modules {
		result, err := reg.CheckRequiredModules(l.app, present)
		if err != nil {
			l.phaseFailed(ctx, span, phase, reg, err)
			return err
		}
		for _, req := range result.Missing {
			l.logger.Error("Required module is not registered",
				"module", reg.ModuleType().String(), "required", req.String())
			missing = append(missing, MissingDependency{Module: reg.ModuleType(), Required: req})
		}
	}
	if len(missing) > 0 {
		err := &MissingDependencyError{Missing: missing}
		l.phaseFailed(ctx, span, phase, nil, err)
		return err
	}
	l.phaseCompleted(ctx, phase)
	return nil
}

// checkConfiguration validates options and runs CheckConfiguration; the first failure
// aborts.
func (l *ApplicationLifecycle) checkConfiguration(ctx context.Context, modules []ModuleRegistration, services Resolver) error {
	const phase = "CheckConfiguration"
	ctx, span := l.phase(ctx, phase)
	defer span.End()

	for _, reg := range modules {
		if err := reg.Validate(l.app); err != nil {
			l.phaseFailed(ctx, span, phase, reg, err)
			return err
		}
		if !reg.Capabilities().Has(CapConfigurationCheck) {
			continue
		}
		err := l.call(ctx, phase, reg, func(ctx context.Context) error {
			return reg.CheckConfiguration(ctx, l.app, services)
		})
		if err != nil {
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				err = &ConfigurationError{Module: reg.ModuleType(), Err: err}
			}
			l.phaseFailed(ctx, span, phase, reg, err)
			return err
		}
	}
	l.phaseCompleted(ctx, phase)
	return nil
}

// initialize runs Init sequentially; a module starts only after the previous one
// returned.
func (l *ApplicationLifecycle) initialize(ctx context.Context, modules []ModuleRegistration, services Resolver) error {
	const phase = "Init"
	ctx, span := l.phase(ctx, phase)
	defer span.End()

	for _, reg := range modules {
		if reg.Capabilities().Has(CapInit) {
			l.logger.Debug("Initializing module", "module", reg.ModuleType().String())
			err := l.call(ctx, phase, reg, func(ctx context.Context) error {
				return reg.Init(ctx, l.app, services)
			})
			if err != nil {
				err = &InitError{Module: reg.ModuleType(), Err: err}
				l.phaseFailed(ctx, span, phase, reg, err)
				return err
			}
		}
		l.events.emit(ctx, EventTypeModuleInitialized, map[string]any{"module": reg.ModuleType().String()})
	}
	l.phaseCompleted(ctx, phase)
	return nil
}

// Started notifies every module that the application is running. Failures are logged
// and do not stop the remaining modules.
func (l *ApplicationLifecycle) Started(ctx context.Context) {
	if l.State() != StateRunning {
		l.logger.Warn("ApplicationStarted skipped", "state", l.State().String())
		return
	}
	l.notify(ctx, "ApplicationStarted", CapStarted, l.services, ModuleRegistration.ApplicationStarted)
	l.events.emit(ctx, EventTypeApplicationStarted, map[string]any{"name": l.app.Name()})
}

// Stopping notifies every module that shutdown has begun. Failures are isolated.
func (l *ApplicationLifecycle) Stopping(ctx context.Context) {
	if err := l.transition(StateRunning, StateStopping); err != nil {
		l.logger.Warn("ApplicationStopping skipped", "error", err)
		return
	}
	l.notify(ctx, "ApplicationStopping", CapStopping, l.services, ModuleRegistration.ApplicationStopping)
}

// Stopped notifies every module that the application has stopped. Failures are
// isolated.
func (l *ApplicationLifecycle) Stopped(ctx context.Context) {
	if err := l.transition(StateStopping, StateStopped); err != nil {
		l.logger.Warn("ApplicationStopped skipped", "error", err)
		return
	}
	l.notify(ctx, "ApplicationStopped", CapStopped, l.services, ModuleRegistration.ApplicationStopped)
	l.events.emit(ctx, EventTypeApplicationStopped, map[string]any{"name": l.app.Name()})
}

type notifyFunc func(ModuleRegistration, context.Context, *ApplicationContext, Resolver) error

func (l *ApplicationLifecycle) notify(ctx context.Context, phase string, capability Capabilities, services Resolver, hook notifyFunc) {
	ctx, span := l.phase(ctx, phase)
	defer span.End()

	l.mu.Lock()
	modules := l.modules
	l.mu.Unlock()

	failures := 0
	for _, reg := range modules {
		if !reg.Capabilities().Has(capability) {
			continue
		}
		err := l.call(ctx, phase, reg, func(ctx context.Context) error {
			return hook(reg, ctx, l.app, services)
		})
		if err == nil {
			continue
		}
		failures++
		hookErr := &HookError{Hook: phase, Module: reg.ModuleType(), Err: err}
		l.logger.Error("Module hook failed",
			"hook", phase, "module", reg.ModuleType().String(), "error", hookErr.Err)
		span.RecordError(hookErr)
		l.events.emit(ctx, EventTypeModuleHookFailed, map[string]any{
			"phase":  phase,
			"module": reg.ModuleType().String(),
			"error":  err.Error(),
		})
	}
	span.SetAttributes(attribute.Int("apphost.hook_failures", failures))
	l.phaseCompleted(ctx, phase)
}

// call runs one module hook in its own span and turns a panic into ErrHookPanicked.
func (l *ApplicationLifecycle) call(ctx context.Context, phase string, reg ModuleRegistration, fn func(context.Context) error) (err error) {
	ctx, span := l.tracer.Start(ctx, "apphost.module."+phase,
		trace.WithAttributes(attribute.String("apphost.module", reg.ModuleType().String())))
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %s of %s: %v", ErrHookPanicked, phase, reg.ModuleType(), p)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	return fn(ctx)
}

func (l *ApplicationLifecycle) phase(ctx context.Context, phase string) (context.Context, trace.Span) {
	l.events.emit(ctx, EventTypePhaseStarted, map[string]any{"phase": phase})
	return l.tracer.Start(ctx, "apphost.phase."+phase)
}

func (l *ApplicationLifecycle) phaseCompleted(ctx context.Context, phase string) {
	l.events.emit(ctx, EventTypePhaseCompleted, map[string]any{"phase": phase})
}

func (l *ApplicationLifecycle) phaseFailed(ctx context.Context, span trace.Span, phase string, reg ModuleRegistration, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	data := map[string]any{"phase": phase, "error": err.Error()}
	if reg != nil {
		data["module"] = reg.ModuleType().String()
	}
	l.events.emit(ctx, EventTypePhaseFailed, data)
}
