package apphost

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer is notified of lifecycle events. Events use the CloudEvents specification.
type Observer interface {
	// OnEvent is called for every event the observer subscribed to. Observers are called
	// synchronously, one after another, and should return quickly.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for this observer.
	ObserverID() string
}

// Subject is implemented by emitters observers can register with.
type Subject interface {
	// RegisterObserver adds an observer. With no eventTypes it receives all events.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver removes an observer. Unknown observers are ignored.
	UnregisterObserver(observer Observer) error

	// NotifyObservers delivers event to every interested observer.
	NotifyObservers(ctx context.Context, event cloudevents.Event) error

	// GetObservers describes the registered observers.
	GetObservers() []ObserverInfo
}

// ObserverInfo provides information about a registered observer.
type ObserverInfo struct {
	ID           string    `json:"id"`
	EventTypes   []string  `json:"eventTypes"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Lifecycle event types, in reverse domain notation.
const (
	EventTypeModuleRegistered   = "com.apphost.module.registered"
	EventTypeModuleInitialized  = "com.apphost.module.initialized"
	EventTypeModuleHookFailed   = "com.apphost.module.hook_failed"
	EventTypePhaseStarted       = "com.apphost.phase.started"
	EventTypePhaseCompleted     = "com.apphost.phase.completed"
	EventTypePhaseFailed        = "com.apphost.phase.failed"
	EventTypeExitRequested      = "com.apphost.application.exit_requested"
	EventTypeApplicationStarted = "com.apphost.application.started"
	EventTypeApplicationStopped = "com.apphost.application.stopped"
	EventTypeApplicationFailed  = "com.apphost.application.failed"
)

// FunctionalObserver provides a simple way to create observers using functions.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an observer calling handler for each event.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{id: id, handler: handler}
}

// OnEvent implements Observer.
func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

// ObserverID implements Observer.
func (f *FunctionalObserver) ObserverID() string { return f.id }

type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
}

// EventBus is the Subject used by the application and its lifecycle.
type EventBus struct {
	mu        sync.RWMutex
	observers []*observerRegistration
	logger    Logger
}

// NewEventBus creates a bus logging observer failures to logger; nil discards them.
func NewEventBus(logger Logger) *EventBus {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &EventBus{logger: logger}
}

// RegisterObserver implements Subject. Registering the same ID again replaces the
// earlier registration.
func (b *EventBus) RegisterObserver(observer Observer, eventTypes ...string) error {
	if observer == nil {
		return fmt.Errorf("%w: observer", ErrServiceNil)
	}
	types := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = true
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = slices.DeleteFunc(b.observers, func(r *observerRegistration) bool {
		return r.observer.ObserverID() == observer.ObserverID()
	})
	b.observers = append(b.observers, &observerRegistration{
		observer:     observer,
		eventTypes:   types,
		registeredAt: time.Now(),
	})
	b.logger.Debug("Observer registered", "observerID", observer.ObserverID(), "eventTypes", eventTypes)
	return nil
}

// UnregisterObserver implements Subject.
func (b *EventBus) UnregisterObserver(observer Observer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = slices.DeleteFunc(b.observers, func(r *observerRegistration) bool {
		return r.observer.ObserverID() == observer.ObserverID()
	})
	return nil
}

// NotifyObservers implements Subject. Observer errors and panics are logged, never
// returned; only an invalid event is an error.
func (b *EventBus) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	if event.Time().IsZero() {
		event.SetTime(time.Now())
	}
	if err := ValidateCloudEvent(event); err != nil {
		b.logger.Error("Invalid CloudEvent", "eventType", event.Type(), "error", err)
		return err
	}

	b.mu.RLock()
	observers := slices.Clone(b.observers)
	b.mu.RUnlock()

	for _, r := range observers {
		if len(r.eventTypes) > 0 && !r.eventTypes[event.Type()] {
			continue
		}
		b.deliver(ctx, r.observer, event)
	}
	return nil
}

func (b *EventBus) deliver(ctx context.Context, observer Observer, event cloudevents.Event) {
	defer func() {
		if p := recover(); p != nil {
			b.logger.Error("Observer panicked", "observerID", observer.ObserverID(), "event", event.Type(), "panic", p)
		}
	}()
	if err := observer.OnEvent(ctx, event); err != nil {
		b.logger.Error("Observer error", "observerID", observer.ObserverID(), "event", event.Type(), "error", err)
	}
}

// GetObservers implements Subject.
func (b *EventBus) GetObservers() []ObserverInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()

	info := make([]ObserverInfo, 0, len(b.observers))
	for _, r := range b.observers {
		types := make([]string, 0, len(r.eventTypes))
		for t := range r.eventTypes {
			types = append(types, t)
		}
		slices.Sort(types)
		info = append(info, ObserverInfo{ID: r.observer.ObserverID(), EventTypes: types, RegisteredAt: r.registeredAt})
	}
	return info
}

// emit builds and delivers an event; delivery problems are only logged.
func (b *EventBus) emit(ctx context.Context, eventType string, data map[string]any) {
	if b == nil {
		return
	}
	if err := b.NotifyObservers(ctx, NewCloudEvent(eventType, eventSource, data, nil)); err != nil {
		b.logger.Debug("Failed to emit event", "eventType", eventType, "error", err)
	}
}
