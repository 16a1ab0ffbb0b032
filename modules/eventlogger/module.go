// Package eventlogger writes the application's CloudEvents to the console or files.
//
// The module observes the application's event bus from ConfigureServices on, so the
// startup phases are logged too. Until the application is running, and again after it
// stopped, events are written as they arrive; while it runs they are buffered and written
// by a background service.
package eventlogger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/GoCodeAlone/apphost"
)

// ConfigKey is the configuration section bound onto Options.
const ConfigKey = "EventLogger"

const (
	observerID  = "apphost.eventlogger"
	serviceName = "event-logger"
)

// Module is the event logger module.
type Module struct {
	console io.Writer

	mu      sync.RWMutex
	options *Options
	logger  *slog.Logger
	events  apphost.Subject
	queue   chan cloudevents.Event
	running bool

	// writeMu guards outputs and serializes writes.
	writeMu sync.Mutex
	outputs []OutputTarget
	dropped atomic.Int64
}

// Option customizes the module.
type Option func(*Module)

// WithConsole redirects console targets, which write to stdout by default.
func WithConsole(w io.Writer) Option {
	return func(m *Module) { m.console = w }
}

// New creates the event logger module.
func New(opts ...Option) *Module {
	m := &Module{console: os.Stdout}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OptionKeys implements apphost.Module.
func (m *Module) OptionKeys() []string { return []string{ConfigKey} }

// ConfigureHostBuilder adds the buffered writer.
func (m *Module) ConfigureHostBuilder(_ *apphost.ApplicationContext, host *apphost.HostBuilder, _ *Options) error {
	return host.AddBackgroundService(serviceName, apphost.BackgroundServiceFunc(m.process))
}

// ConfigureServices opens the outputs and subscribes to the event bus.
func (m *Module) ConfigureServices(app *apphost.ApplicationContext, services *apphost.Container, options *Options) error {
	events, err := apphost.Resolve[apphost.Subject](services)
	if err != nil {
		return err
	}

	outputs := make([]OutputTarget, 0, len(options.Outputs))
	for _, cfg := range options.Outputs {
		out, err := NewOutputTarget(cfg, m.console)
		if err != nil {
			_ = closeOutputs(outputs)
			return err
		}
		outputs = append(outputs, out)
	}

	m.mu.Lock()
	m.options, m.events = options, events
	m.logger = apphost.ModuleLogger(app, m)
	m.mu.Unlock()
	m.writeMu.Lock()
	m.outputs = outputs
	m.writeMu.Unlock()
	m.dropped.Store(0)

	if err := events.RegisterObserver(m, options.EventTypeFilters...); err != nil {
		_ = closeOutputs(outputs)
		return err
	}
	return nil
}

// ApplicationStopped unsubscribes and closes the outputs.
func (m *Module) ApplicationStopped(_ context.Context, app *apphost.ApplicationContext, _ apphost.Resolver) error {
	m.mu.Lock()
	events := m.events
	m.events = nil
	m.mu.Unlock()
	if events != nil {
		_ = events.UnregisterObserver(m)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	outputs := m.outputs
	m.outputs = nil
	if n := m.dropped.Load(); n > 0 {
		apphost.ModuleLogger(app, m).Warn("Events dropped; buffer was full", "count", n)
	}
	return closeOutputs(outputs)
}

// ObserverID implements apphost.Observer.
func (m *Module) ObserverID() string { return observerID }

// OnEvent implements apphost.Observer. When the buffer is full the oldest event is
// dropped.
func (m *Module) OnEvent(_ context.Context, event cloudevents.Event) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.options == nil || !shouldLogLevel(levelFor(event), m.options.LogLevel) {
		return nil
	}
	if !m.running {
		m.write(event)
		return nil
	}

	select {
	case m.queue <- event:
		return nil
	default:
	}
	select {
	case <-m.queue:
		m.dropped.Add(1)
	default:
	}
	select {
	case m.queue <- event:
		return nil
	default:
		m.dropped.Add(1)
		return ErrEventBufferFull
	}
}

// process writes buffered events until ctx is cancelled, then drains the buffer.
func (m *Module) process(ctx context.Context) error {
	m.mu.Lock()
	queue := make(chan cloudevents.Event, m.options.BufferSize)
	m.queue, m.running = queue, true
	m.mu.Unlock()

	for {
		select {
		case event := <-queue:
			m.write(event)
		case <-ctx.Done():
			m.mu.Lock()
			m.running = false
			m.mu.Unlock()
			for {
				select {
				case event := <-queue:
					m.write(event)
				default:
					m.flush()
					return ctx.Err()
				}
			}
		}
	}
}

func (m *Module) write(event cloudevents.Event) {
	entry := &LogEntry{
		Timestamp: event.Time(),
		Level:     levelFor(event),
		Type:      event.Type(),
		Source:    event.Source(),
	}
	if len(event.Data()) > 0 {
		var data any
		if err := event.DataAs(&data); err != nil {
			data = string(event.Data())
		}
		entry.Data = data
	}
	if m.options.IncludeMetadata {
		entry.Metadata = map[string]any{"id": event.ID(), "specversion": event.SpecVersion()}
		if event.Subject() != "" {
			entry.Metadata["subject"] = event.Subject()
		}
		for k, v := range event.Extensions() {
			entry.Metadata[k] = v
		}
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	for _, out := range m.outputs {
		if err := out.WriteEvent(entry); err != nil {
			m.logger.Error("Failed to write event", "eventType", event.Type(), "error", err)
		}
	}
}

func (m *Module) flush() {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	for _, out := range m.outputs {
		if err := out.Flush(); err != nil {
			m.logger.Error("Failed to flush output", "error", err)
		}
	}
}

// levelFor maps an event type to the level it is logged at.
func levelFor(event cloudevents.Event) string {
	t := event.Type()
	switch {
	case strings.HasSuffix(t, "failed"):
		return LevelError
	case strings.Contains(t, ".phase."):
		return LevelDebug
	default:
		return LevelInfo
	}
}

func closeOutputs(outputs []OutputTarget) error {
	var errs []error
	for _, out := range outputs {
		errs = append(errs, out.Close())
	}
	return errors.Join(errs...)
}
