// Package tracing exports OpenTelemetry traces over OTLP/HTTP.
//
// Init installs the tracer provider globally, so lifecycle phase spans and any
// instrumented module are exported. Tracing stays off while Endpoint is empty.
package tracing

import (
	"cmp"
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/GoCodeAlone/apphost"
)

// ConfigKey is the configuration section bound onto Options.
const ConfigKey = "Tracing"

// Options configures the exporter. Bound from the "Tracing" section.
type Options struct {
	apphost.BaseModuleOptions

	// Endpoint is the full traces URL, e.g. http://localhost:4318/v1/traces.
	Endpoint string

	// ServiceName defaults to the application name.
	ServiceName string

	// SampleRatio is the share of new traces recorded.
	SampleRatio float64 `default:"1"`

	Headers       map[string]string
	BatchTimeout  time.Duration `default:"5s"`
	ExportTimeout time.Duration `default:"10s"`
}

// Validator implements apphost.ValidatableOptions.
func (o *Options) Validator() (apphost.Validator[*Options], error) {
	return apphost.NewRuleValidator[*Options]().
		Rule("SampleRatio", func(o *Options) bool { return o.SampleRatio >= 0 && o.SampleRatio <= 1 }, "must be between 0 and 1").
		Rule("BatchTimeout", func(o *Options) bool { return o.BatchTimeout > 0 }, "must be positive").
		Rule("ExportTimeout", func(o *Options) bool { return o.ExportTimeout > 0 }, "must be positive"), nil
}

// Module is the tracing module.
type Module struct {
	mu       sync.RWMutex
	options  *Options
	provider *sdktrace.TracerProvider
}

// New creates the tracing module.
func New() *Module {
	return &Module{}
}

// OptionKeys implements apphost.Module.
func (m *Module) OptionKeys() []string { return []string{ConfigKey} }

// ConfigureServices registers trace.TracerProvider. While no exporter runs it resolves
// to the global provider.
func (m *Module) ConfigureServices(_ *apphost.ApplicationContext, services *apphost.Container, options *Options) error {
	m.mu.Lock()
	m.options = options
	m.mu.Unlock()
	return apphost.RegisterFactory(services, apphost.ServiceScopeTransient, func(apphost.Resolver) (trace.TracerProvider, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		if m.provider == nil {
			return otel.GetTracerProvider(), nil
		}
		return m.provider, nil
	})
}

// Init creates the exporter and installs the provider globally.
func (m *Module) Init(ctx context.Context, app *apphost.ApplicationContext, _ apphost.Resolver) error {
	o := m.options
	logger := apphost.ModuleLogger(app, m)
	if o.Endpoint == "" {
		logger.Info("Tracing disabled; no endpoint configured")
		return nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(o.Endpoint),
		otlptracehttp.WithHeaders(o.Headers),
		otlptracehttp.WithTimeout(o.ExportTimeout),
	)
	if err != nil {
		return fmt.Errorf("tracing: create exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cmp.Or(o.ServiceName, app.Name())),
		semconv.ServiceVersion(app.Version()),
		semconv.DeploymentEnvironment(app.Environment()),
	))
	if err != nil {
		return fmt.Errorf("tracing: create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(o.BatchTimeout)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(o.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	m.mu.Lock()
	m.provider = tp
	m.mu.Unlock()
	logger.Info("Tracing enabled", "endpoint", o.Endpoint, "sampleRatio", o.SampleRatio)
	return nil
}

// ApplicationStopped flushes and shuts the provider down.
func (m *Module) ApplicationStopped(ctx context.Context, _ *apphost.ApplicationContext, _ apphost.Resolver) error {
	m.mu.Lock()
	tp := m.provider
	m.provider = nil
	m.mu.Unlock()
	if tp == nil {
		return nil
	}
	if otel.GetTracerProvider() == trace.TracerProvider(tp) {
		otel.SetTracerProvider(noop.NewTracerProvider())
	}
	if err := tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("tracing: shutdown: %w", err)
	}
	return nil
}
