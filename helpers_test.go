package apphost

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"reflect"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/apphost/config"
)

var (
	errTestInit     = errors.New("init exploded")
	errTestStopping = errors.New("stopping exploded")
	errTestCheck    = errors.New("configuration check failed")
)

// recorder collects hook invocations in call order.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

func (r *recorder) Has(call string) bool {
	return slices.Contains(r.Calls(), call)
}

// Count returns how many recorded calls equal call.
func (r *recorder) Count(call string) int {
	n := 0
	for _, c := range r.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

// syncBuffer is a goroutine safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type recordingOptions struct {
	BaseModuleOptions
	Name     string `default:"recording"`
	Port     int
	Required string

	configureCalls int
}

func (o *recordingOptions) Configure(app *ApplicationContext) {
	o.configureCalls++
	if o.Name == "recording" {
		o.Name = app.Name()
	}
}

// Marker types give each hookModule instantiation its own module type.
type (
	alpha struct{}
	beta  struct{}
	gamma struct{}
)

type marker interface {
	isMarker()
}

// hookModule implements every capability and records each call.
type hookModule[T any] struct {
	name string
	rec  *recorder

	requires    []reflect.Type
	vetoBefore  bool
	vetoAfter   bool
	initErr     error
	checkErr    error
	stoppingErr error
	panicOn     string
}

func newHookModule[T any](name string, rec *recorder) *hookModule[T] {
	return &hookModule[T]{name: name, rec: rec}
}

func (m *hookModule[T]) OptionKeys() []string { return []string{m.name} }

func (m *hookModule[T]) hook(name string) {
	m.rec.record(m.name + "." + name)
	if m.panicOn == name {
		panic(m.name + " panicked in " + name)
	}
}

func (m *hookModule[T]) RequiredModules(*ApplicationContext, *recordingOptions) []reflect.Type {
	m.hook("RequiredModules")
	return m.requires
}

func (m *hookModule[T]) ConfigureServices(*ApplicationContext, *Container, *recordingOptions) error {
	m.hook("ConfigureServices")
	return nil
}

func (m *hookModule[T]) OnBeforeRun(context.Context, *ApplicationContext, Resolver) (bool, error) {
	m.hook("OnBeforeRun")
	return !m.vetoBefore, nil
}

func (m *hookModule[T]) OnAfterRun(context.Context, *ApplicationContext, Resolver) (bool, error) {
	m.hook("OnAfterRun")
	return !m.vetoAfter, nil
}

func (m *hookModule[T]) CheckConfiguration(context.Context, *ApplicationContext, Resolver) error {
	m.hook("CheckConfiguration")
	return m.checkErr
}

func (m *hookModule[T]) Init(context.Context, *ApplicationContext, Resolver) error {
	m.rec.record(m.name + ".Init:start")
	m.hook("Init")
	m.rec.record(m.name + ".Init:end")
	return m.initErr
}

func (m *hookModule[T]) ApplicationStarted(context.Context, *ApplicationContext, Resolver) error {
	m.hook("ApplicationStarted")
	return nil
}

func (m *hookModule[T]) ApplicationStopping(context.Context, *ApplicationContext, Resolver) error {
	m.hook("ApplicationStopping")
	return m.stoppingErr
}

func (m *hookModule[T]) ApplicationStopped(context.Context, *ApplicationContext, Resolver) error {
	m.hook("ApplicationStopped")
	return nil
}

// markerModule satisfies requirements on the marker interface.
type markerModule struct{}

func (*markerModule) OptionKeys() []string { return []string{"Marker"} }
func (*markerModule) isMarker()            {}

// plainModule has no capabilities at all.
type plainModule struct{}

func (*plainModule) OptionKeys() []string { return []string{"Plain"} }

func newTestContext(t *testing.T, values map[string]string, logs *syncBuffer) *ApplicationContext {
	t.Helper()
	cfg, err := config.NewBuilder(config.Map(values)).Build()
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)
	if logs != nil {
		logger = slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	app, err := NewApplicationContext(cfg, logger, nil, ApplicationOptions{Name: "test-app", Environment: "Testing"})
	require.NoError(t, err)
	return app
}

func register[O any, PO optionsPointer[O]](t *testing.T, registry *ModuleRegistry, module Module) ModuleRegistration {
	t.Helper()
	reg, err := NewModuleRegistration[O, PO](module, RegistrationSettings[PO]{})
	require.NoError(t, err)
	require.NoError(t, registry.Add(reg))
	return reg
}
