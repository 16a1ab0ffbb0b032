package apphost

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Application errors
var (
	// Registration errors
	ErrModuleNil               = errors.New("module is nil")
	ErrModuleAlreadyRegistered = errors.New("module already registered")
	ErrApplicationRunning      = errors.New("application is already running")

	// Startup errors
	ErrMissingDependency    = errors.New("check required modules failed")
	ErrConfigurationInvalid = errors.New("configuration is invalid")
	ErrInitFailed           = errors.New("module init failed")
	ErrValidatorUnavailable = errors.New("options validator unavailable")
	ErrHookPanicked         = errors.New("module hook panicked")
	ErrLifecycleState       = errors.New("lifecycle is not in the expected state")
	ErrBackgroundService    = errors.New("background service failed")

	// Options errors
	ErrOptionsNotPointer         = errors.New("options must be a non-nil pointer to a struct")
	ErrUnsupportedTypeForDefault = errors.New("unsupported type for default value")
	ErrDefaultValueOverflows     = errors.New("default value overflows field type")
	ErrRequiredFieldMissing      = errors.New("required field is missing")

	// Service container errors
	ErrServiceAlreadyRegistered = errors.New("service already registered")
	ErrServiceNotFound          = errors.New("service not found")
	ErrServiceNil               = errors.New("service is nil")
	ErrScopedServiceFromRoot    = errors.New("scoped service cannot be resolved from the root container")
	ErrScopeClosed              = errors.New("service scope is closed")
	ErrInvalidServiceScope      = errors.New("invalid service scope")
)

// MissingDependency is one unmet requirement: Module requires a module assignable to
// Required, and none is enabled.
type MissingDependency struct {
	Module   reflect.Type
	Required reflect.Type
}

// MissingDependencyError aggregates every unmet requirement found while checking all
// enabled modules.
type MissingDependencyError struct {
	Missing []MissingDependency
}

func (e *MissingDependencyError) Error() string {
	parts := make([]string, 0, len(e.Missing))
	for _, m := range e.Missing {
		parts = append(parts, fmt.Sprintf("required module %s for module %s is not registered", m.Required, m.Module))
	}
	return fmt.Sprintf("%s: %s", ErrMissingDependency, strings.Join(parts, "; "))
}

func (e *MissingDependencyError) Unwrap() error { return ErrMissingDependency }

// ConfigurationError reports options that failed binding, validation or a module's own
// configuration check.
type ConfigurationError struct {
	Module reflect.Type
	Errors ValidationErrors
	Err    error
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString(ErrConfigurationInvalid.Error())
	b.WriteString(": module ")
	b.WriteString(typeName(e.Module))
	if len(e.Errors) > 0 {
		b.WriteString(": ")
		b.WriteString(e.Errors.Error())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConfigurationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrConfigurationInvalid, e.Err}
	}
	return []error{ErrConfigurationInvalid}
}

// InitError wraps a failure returned by a module's Init hook.
type InitError struct {
	Module reflect.Type
	Err    error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("%s: module %s: %v", ErrInitFailed, typeName(e.Module), e.Err)
}

func (e *InitError) Unwrap() []error { return []error{ErrInitFailed, e.Err} }

// HookError describes an isolated failure in a started, stopping or stopped hook. It is
// only logged and delivered to observers, never returned from the lifecycle.
type HookError struct {
	Hook   string
	Module reflect.Type
	Err    error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s hook of module %s failed: %v", e.Hook, typeName(e.Module), e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
