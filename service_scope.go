package apphost

import (
	"fmt"
	"strings"
)

// ServiceScope defines the lifetime of instances produced by a container factory.
type ServiceScope string

const (
	// ServiceScopeSingleton creates one instance for the container's lifetime, on first
	// resolution.
	ServiceScopeSingleton ServiceScope = "singleton"

	// ServiceScopeScoped creates one instance per Scope. Scoped services cannot be
	// resolved from the root container.
	ServiceScopeScoped ServiceScope = "scoped"

	// ServiceScopeTransient creates a new instance on every resolution.
	ServiceScopeTransient ServiceScope = "transient"
)

// String returns the string representation of the service scope.
func (s ServiceScope) String() string {
	return string(s)
}

// IsValid returns true if the service scope is one of the defined constants.
func (s ServiceScope) IsValid() bool {
	switch s {
	case ServiceScopeSingleton, ServiceScopeScoped, ServiceScopeTransient:
		return true
	default:
		return false
	}
}

// ParseServiceScope parses a string into a ServiceScope, ignoring case.
func ParseServiceScope(s string) (ServiceScope, error) {
	scope := ServiceScope(strings.ToLower(strings.TrimSpace(s)))
	if !scope.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidServiceScope, s)
	}
	return scope, nil
}
