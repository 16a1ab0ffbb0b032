// Package apphost composes an application out of independently authored modules.
//
// Each module declares a typed options struct bound from configuration, may require
// other modules, and opts into lifecycle hooks by implementing the capability interfaces
// below. The host drives every enabled module through the same ordered phases:
//
//	ConfigureAppConfiguration → ConfigureLogging → ConfigureHostBuilder →
//	ConfigureOptions → ConfigureServices → PostConfigureServices → PostConfigureHostBuilder →
//	OnBeforeRun → dependency check → CheckConfiguration → Init → OnAfterRun →
//	ApplicationStarted → (run) → ApplicationStopping → ApplicationStopped
//
// Failures up to and including Init abort the run; failures in the started, stopping and
// stopped hooks are logged and isolated to the module that raised them.
package apphost

import (
	"context"
	"reflect"

	"github.com/GoCodeAlone/apphost/config"
)

// Module is the minimal contract of a module. Everything else is optional and
// discovered once, when the module is registered.
type Module interface {
	// OptionKeys lists the configuration paths bound onto the module's options, in
	// order. A later key overrides fields set by an earlier one.
	OptionKeys() []string
}

// ServicesConfigurer registers the module's services with validated options.
type ServicesConfigurer[PO any] interface {
	ConfigureServices(app *ApplicationContext, services *Container, options PO) error
}

// ServicesPostConfigurer runs after every module's ConfigureServices.
type ServicesPostConfigurer[PO any] interface {
	PostConfigureServices(app *ApplicationContext, services *Container, options PO) error
}

// RequiredModulesProvider declares the module types that must be enabled alongside this
// module. A requirement may be an interface type; any enabled module assignable to it
// satisfies the requirement.
type RequiredModulesProvider[PO any] interface {
	RequiredModules(app *ApplicationContext, options PO) []reflect.Type
}

// HostBuilderConfigurer adjusts the host, e.g. to add background services.
type HostBuilderConfigurer[PO any] interface {
	ConfigureHostBuilder(app *ApplicationContext, host *HostBuilder, options PO) error
}

// HostBuilderPostConfigurer runs after services have been configured.
type HostBuilderPostConfigurer[PO any] interface {
	PostConfigureHostBuilder(app *ApplicationContext, host *HostBuilder, options PO) error
}

// AppConfigurationConfigurer adds configuration providers before the run configuration
// is built. It receives a bootstrap context built from the host's own providers.
type AppConfigurationConfigurer[PO any] interface {
	ConfigureAppConfiguration(app *ApplicationContext, builder *config.Builder, options PO) error
}

// LoggingConfigurer adjusts the run logger, e.g. to add a sink or change levels.
type LoggingConfigurer[PO any] interface {
	ConfigureLogging(app *ApplicationContext, options PO, logging *LoggerConfiguration) error
}

// BeforeRunHook may veto startup before dependencies are checked. Returning false ends
// the run with exit code 0.
type BeforeRunHook interface {
	OnBeforeRun(ctx context.Context, app *ApplicationContext, services Resolver) (bool, error)
}

// AfterRunHook may veto startup after every module has been initialized.
type AfterRunHook interface {
	OnAfterRun(ctx context.Context, app *ApplicationContext, services Resolver) (bool, error)
}

// ConfigurationChecker verifies configuration that options validation cannot, e.g.
// that a provider actually loaded values.
type ConfigurationChecker interface {
	CheckConfiguration(ctx context.Context, app *ApplicationContext, services Resolver) error
}

// Initializer prepares the module's resources. Modules are initialized one at a time in
// registration order.
type Initializer interface {
	Init(ctx context.Context, app *ApplicationContext, services Resolver) error
}

// StartedHook is notified once the application is running.
type StartedHook interface {
	ApplicationStarted(ctx context.Context, app *ApplicationContext, services Resolver) error
}

// StoppingHook is notified when shutdown begins.
type StoppingHook interface {
	ApplicationStopping(ctx context.Context, app *ApplicationContext, services Resolver) error
}

// StoppedHook is notified after background services have stopped.
type StoppedHook interface {
	ApplicationStopped(ctx context.Context, app *ApplicationContext, services Resolver) error
}

// TypeOf returns the reflect.Type of T. It is the usual way to declare a requirement:
//
//	func (m *Module) RequiredModules(*apphost.ApplicationContext, *Options) []reflect.Type {
//	    return []reflect.Type{apphost.TypeOf[postgres.Database]()}
//	}
func TypeOf[T any]() reflect.Type {
	return reflect.TypeFor[T]()
}
