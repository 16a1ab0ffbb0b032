// Package configwatcher reports changes to configuration files while the application
// runs.
//
// Configuration is bound once per run, so a changed file does not alter running
// modules. The watcher publishes an EventTypeFileChanged CloudEvent for each change and,
// with StopOnChange, stops the application so a supervisor can start it again with the
// new settings.
package configwatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/GoCodeAlone/apphost"
)

// ConfigKey is the configuration section bound onto Options.
const ConfigKey = "ConfigWatcher"

// EventTypeFileChanged is emitted once per changed file after the debounce interval.
const EventTypeFileChanged = "com.apphost.config.file.changed"

const (
	serviceName = "config-watcher"
	eventSource = "apphost.configwatcher"
)

// ErrConfigurationChanged stops the application when StopOnChange is set.
var ErrConfigurationChanged = errors.New("configwatcher: configuration file changed")

// Options configures the watcher. Bound from the "ConfigWatcher" section.
type Options struct {
	apphost.BaseModuleOptions

	// Paths are the files to watch. Their directories are watched, so files replaced
	// by rename are still tracked.
	Paths []string

	// Debounce collapses bursts of writes into one event per file.
	Debounce time.Duration `default:"250ms"`

	StopOnChange bool
}

// Validator implements apphost.ValidatableOptions.
func (o *Options) Validator() (apphost.Validator[*Options], error) {
	return apphost.NewRuleValidator[*Options]().
		Rule("Paths", func(o *Options) bool { return len(o.Paths) > 0 }, "at least one file is required").
		Rule("Debounce", func(o *Options) bool { return o.Debounce > 0 }, "must be positive"), nil
}

// Module is the configuration watcher module.
type Module struct {
	mu      sync.RWMutex
	options *Options
	events  apphost.Subject
	logger  *slog.Logger
}

// New creates the configuration watcher module.
func New() *Module {
	return &Module{}
}

// OptionKeys implements apphost.Module.
func (m *Module) OptionKeys() []string { return []string{ConfigKey} }

// ConfigureHostBuilder adds the watcher as a background service.
func (m *Module) ConfigureHostBuilder(_ *apphost.ApplicationContext, host *apphost.HostBuilder, _ *Options) error {
	return host.AddBackgroundService(serviceName, apphost.BackgroundServiceFunc(m.watch))
}

// ConfigureServices captures the event bus.
func (m *Module) ConfigureServices(app *apphost.ApplicationContext, services *apphost.Container, options *Options) error {
	events, err := apphost.Resolve[apphost.Subject](services)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.options, m.events = options, events
	m.logger = apphost.ModuleLogger(app, m)
	m.mu.Unlock()
	return nil
}

func (m *Module) watch(ctx context.Context) error {
	m.mu.RLock()
	o, logger := m.options, m.logger
	m.mu.RUnlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("configwatcher: %w", err)
	}
	defer watcher.Close()

	files := make(map[string]bool, len(o.Paths))
	dirs := make(map[string]bool)
	for _, p := range o.Paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("configwatcher: %s: %w", p, err)
		}
		files[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("configwatcher: watch %s: %w", dir, err)
		}
		dirs[dir] = true
	}
	logger.Debug("Watching configuration files", "files", len(files))

	pending := make(map[string]fsnotify.Op)
	timer := time.NewTimer(o.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name := filepath.Clean(ev.Name)
			if !files[name] || ev.Op == fsnotify.Chmod {
				continue
			}
			pending[name] |= ev.Op
			timer.Reset(o.Debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Configuration watcher error", "error", err)

		case <-timer.C:
			for name, op := range pending {
				logger.Info("Configuration file changed", "path", name, "operation", op.String())
				m.emit(ctx, name, op)
			}
			clear(pending)
			if o.StopOnChange {
				return ErrConfigurationChanged
			}
		}
	}
}

func (m *Module) emit(ctx context.Context, path string, op fsnotify.Op) {
	m.mu.RLock()
	events := m.events
	m.mu.RUnlock()
	event := apphost.NewCloudEvent(EventTypeFileChanged, eventSource, map[string]any{"path": path, "operation": op.String()}, nil)
	if err := events.NotifyObservers(ctx, event); err != nil {
		m.logger.Debug("Failed to notify observers", "event", EventTypeFileChanged, "error", err)
	}
}
