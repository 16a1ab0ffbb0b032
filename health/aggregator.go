package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GoCodeAlone/apphost"
)

const defaultTimeout = 5 * time.Second

var (
	ErrCheckAlreadyRegistered = errors.New("health: check already registered")
	ErrCheckNotFound          = errors.New("health: check not found")
)

// Aggregator runs registered checks concurrently under a shared timeout.
type Aggregator struct {
	mu      sync.RWMutex
	checks  map[string]Checker
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithTimeout bounds a full CheckAll run.
func WithTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithLogger sets the logger failed checks are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAggregator creates an empty aggregator.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		checks:  make(map[string]Checker),
		timeout: defaultTimeout,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FromServices returns the aggregator registered in services, registering a new one on
// first use so that any module may contribute checks regardless of order.
func FromServices(services *apphost.Container) (*Aggregator, error) {
	if apphost.Has[*Aggregator](services) {
		return apphost.Resolve[*Aggregator](services)
	}
	a := NewAggregator()
	if err := apphost.Register(services, a); err != nil {
		return nil, err
	}
	return a, nil
}

// RegisterCheck adds checker. Names are unique.
func (a *Aggregator) RegisterCheck(checker Checker) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.checks[checker.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrCheckAlreadyRegistered, checker.Name())
	}
	a.checks[checker.Name()] = checker
	return nil
}

// UnregisterCheck removes the check called name.
func (a *Aggregator) UnregisterCheck(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.checks[name]; !ok {
		return fmt.Errorf("%w: %s", ErrCheckNotFound, name)
	}
	delete(a.checks, name)
	return nil
}

// Names returns the registered check names, sorted.
func (a *Aggregator) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.checks))
	for name := range a.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckAll runs every check in parallel. A failing check never cancels the others.
func (a *Aggregator) CheckAll(ctx context.Context) *AggregatedStatus {
	a.mu.RLock()
	checks := make([]Checker, 0, len(a.checks))
	for _, c := range a.checks {
		checks = append(checks, c)
	}
	a.mu.RUnlock()

	status := &AggregatedStatus{Status: StatusHealthy, Timestamp: time.Now()}
	if len(checks) == 0 {
		return status
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	results := make([]CheckResult, len(checks))
	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			start := time.Now()
			result := CheckResult{Name: c.Name(), Status: StatusHealthy}
			if err := c.Check(ctx); err != nil {
				result.Status = StatusUnhealthy
				result.Error = err.Error()
				a.logger.WarnContext(ctx, "Health check failed", "check", c.Name(), "error", err)
			}
			result.Duration = time.Since(start)
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()

	status.Checks = make(map[string]CheckResult, len(results))
	for _, r := range results {
		status.Checks[r.Name] = r
		if r.Status != StatusHealthy {
			status.Status = StatusUnhealthy
		}
	}
	return status
}

// IsReady reports whether every check passes.
func (a *Aggregator) IsReady(ctx context.Context) bool {
	return a.CheckAll(ctx).Healthy()
}
