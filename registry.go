package apphost

import (
	"fmt"
	"reflect"
	"slices"
	"sync"
)

// ModuleRegistry is the ordered list of registrations of an application. Registration
// order is also the order of option binding and of every lifecycle phase.
type ModuleRegistry struct {
	mu            sync.RWMutex
	registrations []ModuleRegistration
}

// NewModuleRegistry creates an empty registry.
func NewModuleRegistry() *ModuleRegistry {
	return &ModuleRegistry{}
}

// Add appends registration. A second registration of the same module type is rejected.
func (r *ModuleRegistry) Add(registration ModuleRegistration) error {
	if registration == nil {
		return ErrModuleNil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.registrations {
		if existing.ModuleType() == registration.ModuleType() {
			return fmt.Errorf("%w: %s", ErrModuleAlreadyRegistered, registration.ModuleType())
		}
	}
	r.registrations = append(r.registrations, registration)
	return nil
}

// All returns every registration in registration order.
func (r *ModuleRegistry) All() []ModuleRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.registrations)
}

// Len returns the number of registrations.
func (r *ModuleRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.registrations)
}

// Enabled returns the registrations whose options are enabled for app, in registration
// order. The list is computed on every call; only the options themselves are cached.
func (r *ModuleRegistry) Enabled(app *ApplicationContext) ([]ModuleRegistration, error) {
	all := r.All()
	enabled := make([]ModuleRegistration, 0, len(all))
	for _, reg := range all {
		ok, err := reg.IsEnabled(app)
		if err != nil {
			return nil, err
		}
		if ok {
			enabled = append(enabled, reg)
		}
	}
	return enabled, nil
}

// Types returns the module types of registrations, in order.
func Types(registrations []ModuleRegistration) []reflect.Type {
	types := make([]reflect.Type, len(registrations))
	for i, reg := range registrations {
		types[i] = reg.ModuleType()
	}
	return types
}

// Release drops the options every registration cached for app.
func (r *ModuleRegistry) Release(app *ApplicationContext) {
	for _, reg := range r.All() {
		reg.Release(app)
	}
}
