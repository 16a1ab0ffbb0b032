package apphost

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type lifecycleFixture struct {
	app       *ApplicationContext
	registry  *ModuleRegistry
	lifecycle *ApplicationLifecycle
	rec       *recorder
	logs      *syncBuffer
	alpha     *hookModule[alpha]
	beta      *hookModule[beta]
	gamma     *hookModule[gamma]
}

func newLifecycleFixture(t *testing.T, values map[string]string, opts ...LifecycleOption) *lifecycleFixture {
	t.Helper()
	f := &lifecycleFixture{rec: &recorder{}, logs: &syncBuffer{}, registry: NewModuleRegistry()}
	f.app = newTestContext(t, values, f.logs)
	f.alpha = newHookModule[alpha]("Alpha", f.rec)
	f.beta = newHookModule[beta]("Beta", f.rec)
	f.gamma = newHookModule[gamma]("Gamma", f.rec)
	register[recordingOptions](t, f.registry, f.alpha)
	register[recordingOptions](t, f.registry, f.beta)
	register[recordingOptions](t, f.registry, f.gamma)
	f.lifecycle = NewApplicationLifecycle(f.app, f.registry, NewContainer(), opts...)
	return f
}

func (f *lifecycleFixture) calls(hook string) []string {
	var out []string
	for _, c := range f.rec.Calls() {
		if strings.HasSuffix(c, "."+hook) {
			out = append(out, c)
		}
	}
	return out
}

func TestLifecycle_FullRunInRegistrationOrder(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	ctx := context.Background()

	outcome, err := f.lifecycle.Starting(ctx)
	require.NoError(t, err)
	assert.False(t, outcome.ExitRequested)
	assert.Equal(t, StateRunning, f.lifecycle.State())

	f.lifecycle.Started(ctx)
	f.lifecycle.Stopping(ctx)
	f.lifecycle.Stopped(ctx)
	assert.Equal(t, StateStopped, f.lifecycle.State())

	for _, hook := range []string{"OnBeforeRun", "CheckConfiguration", "Init", "OnAfterRun", "ApplicationStarted", "ApplicationStopping", "ApplicationStopped"} {
		assert.Equal(t, []string{"Alpha." + hook, "Beta." + hook, "Gamma." + hook}, f.calls(hook), hook)
	}
}

func TestLifecycle_InitIsSequential(t *testing.T) {
	f := newLifecycleFixture(t, nil)

	_, err := f.lifecycle.Starting(context.Background())
	require.NoError(t, err)

	var inits []string
	for _, c := range f.rec.Calls() {
		if strings.Contains(c, ".Init:") {
			inits = append(inits, c)
		}
	}
	assert.Equal(t, []string{
		"Alpha.Init:start", "Alpha.Init:end",
		"Beta.Init:start", "Beta.Init:end",
		"Gamma.Init:start", "Gamma.Init:end",
	}, inits)
}

func TestLifecycle_BeforeRunVeto(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	f.alpha.vetoBefore = true

	outcome, err := f.lifecycle.Starting(context.Background())
	require.NoError(t, err)
	assert.True(t, outcome.ExitRequested)
	assert.Equal(t, 0, outcome.Code)
	assert.Equal(t, reflect.TypeOf(f.alpha), outcome.RequestedBy)
	assert.Equal(t, StateStopped, f.lifecycle.State())

	assert.Equal(t, []string{"Alpha.OnBeforeRun"}, f.rec.Calls(), "nothing runs after the veto")

	f.lifecycle.Stopping(context.Background())
	f.lifecycle.Stopped(context.Background())
	assert.Empty(t, f.calls("ApplicationStopping"))
	assert.Empty(t, f.calls("ApplicationStopped"))
}

func TestLifecycle_AfterRunVeto(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	f.beta.vetoAfter = true

	outcome, err := f.lifecycle.Starting(context.Background())
	require.NoError(t, err)
	assert.True(t, outcome.ExitRequested)
	assert.Equal(t, reflect.TypeOf(f.beta), outcome.RequestedBy)
	assert.Len(t, f.calls("Init"), 3)
	assert.Equal(t, []string{"Alpha.OnAfterRun", "Beta.OnAfterRun"}, f.calls("OnAfterRun"))
}

func TestLifecycle_MissingDependenciesAreAggregated(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	f.alpha.requires = []reflect.Type{TypeOf[marker]()}
	f.gamma.requires = []reflect.Type{TypeOf[*plainModule](), TypeOf[*hookModule[beta]]()}

	_, err := f.lifecycle.Starting(context.Background())

	var missing *MissingDependencyError
	require.ErrorAs(t, err, &missing)
	assert.ErrorIs(t, err, ErrMissingDependency)
	assert.Equal(t, []MissingDependency{
		{Module: reflect.TypeOf(f.alpha), Required: TypeOf[marker]()},
		{Module: reflect.TypeOf(f.gamma), Required: TypeOf[*plainModule]()},
	}, missing.Missing)

	assert.Len(t, f.calls("RequiredModules"), 3, "every module is checked before failing")
	assert.Empty(t, f.calls("Init"))
	assert.Empty(t, f.calls("CheckConfiguration"))
	assert.Equal(t, 2, strings.Count(f.logs.String(), "Required module is not registered"))
	assert.Equal(t, StateStopped, f.lifecycle.State())
}

func TestLifecycle_DisabledRequirementIsMissing(t *testing.T) {
	f := newLifecycleFixture(t, map[string]string{"Beta:Enabled": "false"})
	f.alpha.requires = []reflect.Type{TypeOf[*hookModule[beta]]()}

	_, err := f.lifecycle.Starting(context.Background())
	assert.ErrorIs(t, err, ErrMissingDependency)
}

func TestLifecycle_ConfigurationCheckFailureIsFatal(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	f.beta.checkErr = errTestCheck

	_, err := f.lifecycle.Starting(context.Background())

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, errTestCheck)
	assert.Equal(t, reflect.TypeOf(f.beta), cfgErr.Module)
	assert.Equal(t, []string{"Alpha.CheckConfiguration", "Beta.CheckConfiguration"}, f.calls("CheckConfiguration"))
	assert.Empty(t, f.calls("Init"))
}

func TestLifecycle_InvalidOptionsAreFatal(t *testing.T) {
	logs := &syncBuffer{}
	app := newTestContext(t, nil, logs)
	registry := NewModuleRegistry()
	rec := &recorder{}
	register[recordingOptions](t, registry, newHookModule[alpha]("Alpha", rec))
	register[validatedOptions](t, registry, &validatedModule{})
	l := NewApplicationLifecycle(app, registry, NewContainer())

	_, err := l.Starting(context.Background())
	assert.ErrorIs(t, err, ErrConfigurationInvalid)
	assert.False(t, rec.Has("Alpha.Init"))
}

func TestLifecycle_InitFailureStopsRemainingInit(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	f.beta.initErr = errTestInit

	_, err := f.lifecycle.Starting(context.Background())

	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	assert.ErrorIs(t, err, ErrInitFailed)
	assert.ErrorIs(t, err, errTestInit)
	assert.Equal(t, reflect.TypeOf(f.beta), initErr.Module)
	assert.Equal(t, []string{"Alpha.Init", "Beta.Init"}, f.calls("Init"))
	assert.Empty(t, f.calls("OnAfterRun"))
}

func TestLifecycle_InitPanicIsFatal(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	f.alpha.panicOn = "Init"

	_, err := f.lifecycle.Starting(context.Background())
	assert.ErrorIs(t, err, ErrInitFailed)
	assert.ErrorIs(t, err, ErrHookPanicked)
	assert.Equal(t, []string{"Alpha.Init"}, f.calls("Init"))
}

func TestLifecycle_StoppingFailureIsIsolated(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	f.beta.stoppingErr = errTestStopping
	ctx := context.Background()

	_, err := f.lifecycle.Starting(ctx)
	require.NoError(t, err)
	f.lifecycle.Started(ctx)
	f.lifecycle.Stopping(ctx)
	f.lifecycle.Stopped(ctx)

	assert.Equal(t, []string{"Alpha.ApplicationStopping", "Beta.ApplicationStopping", "Gamma.ApplicationStopping"}, f.calls("ApplicationStopping"))
	assert.Len(t, f.calls("ApplicationStopped"), 3)
	logs := f.logs.String()
	assert.Contains(t, logs, "Module hook failed")
	assert.Contains(t, logs, errTestStopping.Error())
	assert.Contains(t, logs, "hookModule[")
}

func TestLifecycle_StartedPanicIsIsolated(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	f.alpha.panicOn = "ApplicationStarted"
	ctx := context.Background()

	_, err := f.lifecycle.Starting(ctx)
	require.NoError(t, err)
	assert.NotPanics(t, func() { f.lifecycle.Started(ctx) })

	assert.Len(t, f.calls("ApplicationStarted"), 3)
	assert.Contains(t, f.logs.String(), "Alpha panicked in ApplicationStarted")
}

func TestLifecycle_DisabledModuleGetsNoCalls(t *testing.T) {
	f := newLifecycleFixture(t, map[string]string{"Beta:Enabled": "false"})
	ctx := context.Background()

	_, err := f.lifecycle.Starting(ctx)
	require.NoError(t, err)
	f.lifecycle.Started(ctx)
	f.lifecycle.Stopping(ctx)
	f.lifecycle.Stopped(ctx)

	for _, c := range f.rec.Calls() {
		assert.False(t, strings.HasPrefix(c, "Beta."), "unexpected call %s", c)
	}
	assert.Equal(t, []string{"Alpha.Init", "Gamma.Init"}, f.calls("Init"))
}

func TestLifecycle_StartingTwiceFails(t *testing.T) {
	f := newLifecycleFixture(t, nil)

	_, err := f.lifecycle.Starting(context.Background())
	require.NoError(t, err)
	_, err = f.lifecycle.Starting(context.Background())
	assert.ErrorIs(t, err, ErrLifecycleState)
}

func TestLifecycle_EmitsEventsAndSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	bus := NewEventBus(nil)
	var events []cloudevents.Event
	require.NoError(t, bus.RegisterObserver(NewFunctionalObserver("test", func(_ context.Context, e cloudevents.Event) error {
		events = append(events, e)
		return nil
	}), EventTypeModuleInitialized, EventTypeModuleHookFailed))

	f := newLifecycleFixture(t, nil, WithLifecycleEvents(bus), WithLifecycleTracerProvider(tp))
	f.gamma.stoppingErr = errors.New("gamma failed")
	ctx := context.Background()

	_, err := f.lifecycle.Starting(ctx)
	require.NoError(t, err)
	f.lifecycle.Started(ctx)
	f.lifecycle.Stopping(ctx)
	f.lifecycle.Stopped(ctx)

	var types []string
	for _, e := range events {
		types = append(types, e.Type())
	}
	assert.Equal(t, []string{
		EventTypeModuleInitialized, EventTypeModuleInitialized, EventTypeModuleInitialized,
		EventTypeModuleHookFailed,
	}, types)

	data, err := EventData(events[3])
	require.NoError(t, err)
	assert.Equal(t, "ApplicationStopping", data["phase"])
	assert.Equal(t, "gamma failed", data["error"])

	names := map[string]bool{}
	for _, s := range exporter.GetSpans() {
		names[s.Name] = true
	}
	assert.True(t, names["apphost.Starting"])
	assert.True(t, names["apphost.phase.Init"])
	assert.True(t, names["apphost.module.Init"])
	assert.True(t, names["apphost.phase.ApplicationStopping"])
}

func TestLifecycle_ModuleWithoutInitIsAnnounced(t *testing.T) {
	bus := NewEventBus(nil)
	var modules []string
	require.NoError(t, bus.RegisterObserver(NewFunctionalObserver("test", func(_ context.Context, e cloudevents.Event) error {
		data, err := EventData(e)
		if err != nil {
			return err
		}
		modules = append(modules, data["module"].(string))
		return nil
	}), EventTypeModuleInitialized))

	f := newLifecycleFixture(t, nil, WithLifecycleEvents(bus))
	register[recordingOptions](t, f.registry, &plainModule{})
	_, err := f.lifecycle.Starting(context.Background())
	require.NoError(t, err)

	assert.Len(t, modules, 4)
	assert.Equal(t, reflect.TypeOf(&plainModule{}).String(), modules[3])
}
