// Package jsonschema validates JSON documents, and configuration sections, against JSON
// schemas.
//
// The module registers a Service for other modules. Sections listed in Options.Sections
// are checked against their schema during CheckConfiguration, so a run with invalid
// settings stops before any module is initialized.
package jsonschema

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/GoCodeAlone/apphost"
)

// ConfigKey is the configuration section bound onto Options.
const ConfigKey = "JsonSchema"

// Options configures the module. Bound from the "JsonSchema" section.
type Options struct {
	apphost.BaseModuleOptions

	// Sections maps a configuration section to the schema it must satisfy, given as a
	// file path or URL.
	Sections map[string]string
}

// Validator implements apphost.ValidatableOptions.
func (o *Options) Validator() (apphost.Validator[*Options], error) {
	return apphost.ValidatorFunc[*Options](func(o *Options) apphost.ValidationErrors {
		var errs apphost.ValidationErrors
		for _, section := range slices.Sorted(maps.Keys(o.Sections)) {
			if o.Sections[section] == "" {
				errs = append(errs, apphost.ValidationError{Field: "Sections:" + section, Message: "schema location is required"})
			}
		}
		return errs
	}), nil
}

// Module is the JSON schema module.
type Module struct {
	service Service
	options *Options
}

// New creates the JSON schema module.
func New() *Module {
	return &Module{service: NewService()}
}

// OptionKeys implements apphost.Module.
func (m *Module) OptionKeys() []string { return []string{ConfigKey} }

// ConfigureServices registers the Service.
func (m *Module) ConfigureServices(_ *apphost.ApplicationContext, services *apphost.Container, options *Options) error {
	m.options = options
	return apphost.Register(services, m.service)
}

// CheckConfiguration validates every listed section against its schema.
func (m *Module) CheckConfiguration(_ context.Context, app *apphost.ApplicationContext, _ apphost.Resolver) error {
	var errs []error
	for _, section := range slices.Sorted(maps.Keys(m.options.Sections)) {
		schema, err := m.service.CompileSchema(m.options.Sections[section])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := m.service.ValidateValue(schema, Document(app.Configuration().Section(section))); err != nil {
			errs = append(errs, fmt.Errorf("section %s: %w", section, err))
		}
	}
	return errors.Join(errs...)
}
