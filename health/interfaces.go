// Package health aggregates readiness checks contributed by modules and serves them
// over HTTP.
package health

import (
	"context"
	"time"
)

// Status is the outcome of a check.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Checker is a single named health check.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to a Checker through Named.
type CheckFunc func(ctx context.Context) error

type namedCheck struct {
	name string
	fn   CheckFunc
}

func (c namedCheck) Name() string                    { return c.name }
func (c namedCheck) Check(ctx context.Context) error { return c.fn(ctx) }

// Named returns a Checker running fn under name.
func Named(name string, fn CheckFunc) Checker {
	return namedCheck{name: name, fn: fn}
}

// CheckResult is the result of one check.
type CheckResult struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// AggregatedStatus is the result of running every registered check.
type AggregatedStatus struct {
	Status    Status                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Healthy reports whether every check passed.
func (s *AggregatedStatus) Healthy() bool { return s.Status == StatusHealthy }
