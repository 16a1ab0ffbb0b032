package apphost

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/GoCodeAlone/apphost/config"
)

// ModuleRegistration binds one module instance to its options type. The lifecycle only
// sees this interface; the options type stays behind the generic implementation created
// by NewModuleRegistration.
type ModuleRegistration interface {
	// Module returns the registered module instance.
	Module() Module

	// ModuleType is the dynamic type of the module, used for requirement checks.
	ModuleType() reflect.Type

	// OptionsType is the pointer type of the module's options.
	OptionsType() reflect.Type

	// OptionKeys lists the configuration paths bound onto the options, in order.
	OptionKeys() []string

	// Capabilities lists the hooks the module implements.
	Capabilities() Capabilities

	// Options returns the options for app, creating them on first use.
	Options(app *ApplicationContext) (ModuleOptions, error)

	// Validate checks the options for app. It returns a *ConfigurationError on failure.
	Validate(app *ApplicationContext) error

	// IsEnabled reports whether the module takes part in the run of app.
	IsEnabled(app *ApplicationContext) (bool, error)

	// CheckRequiredModules reports the requirements no type in present satisfies.
	CheckRequiredModules(app *ApplicationContext, present []reflect.Type) (RequiredModulesResult, error)

	// ConfigureOptions registers the options type as a lazily validated singleton.
	ConfigureOptions(app *ApplicationContext, services *Container) error

	ConfigureServices(app *ApplicationContext, services *Container) error
	PostConfigureServices(app *ApplicationContext, services *Container) error
	ConfigureHostBuilder(app *ApplicationContext, host *HostBuilder) error
	PostConfigureHostBuilder(app *ApplicationContext, host *HostBuilder) error
	ConfigureAppConfiguration(app *ApplicationContext, builder *config.Builder) error
	ConfigureLogging(app *ApplicationContext, logging *LoggerConfiguration) error

	OnBeforeRun(ctx context.Context, app *ApplicationContext, services Resolver) (bool, error)
	OnAfterRun(ctx context.Context, app *ApplicationContext, services Resolver) (bool, error)
	CheckConfiguration(ctx context.Context, app *ApplicationContext, services Resolver) error
	Init(ctx context.Context, app *ApplicationContext, services Resolver) error
	ApplicationStarted(ctx context.Context, app *ApplicationContext, services Resolver) error
	ApplicationStopping(ctx context.Context, app *ApplicationContext, services Resolver) error
	ApplicationStopped(ctx context.Context, app *ApplicationContext, services Resolver) error

	// Release drops the cached options of app.
	Release(app *ApplicationContext)
}

// RequiredModulesResult lists the required module types that were not present.
type RequiredModulesResult struct {
	Missing []reflect.Type
}

// IsSuccess reports whether every requirement was met.
func (r RequiredModulesResult) IsSuccess() bool { return len(r.Missing) == 0 }

// RegistrationSettings customizes a registration.
type RegistrationSettings[PO any] struct {
	// OptionsKey is bound after the module's own option keys, so its values win.
	OptionsKey string

	// Configure runs after the options' own Configure step. It may read app but must
	// only modify options.
	Configure func(app *ApplicationContext, options PO)

	// LenientValidators skips validation, logging at debug level, when the options'
	// validator cannot be constructed. By default that is a configuration error.
	LenientValidators bool
}

type optionsEntry[PO any] struct {
	create  sync.Once
	options PO
	err     error

	validate    sync.Once
	validateErr error
}

type moduleRegistration[O any, PO optionsPointer[O]] struct {
	module     Module
	moduleType reflect.Type
	keys       []string
	settings   RegistrationSettings[PO]
	caps       Capabilities

	services         ServicesConfigurer[PO]
	postServices     ServicesPostConfigurer[PO]
	required         RequiredModulesProvider[PO]
	hostBuilder      HostBuilderConfigurer[PO]
	postHostBuilder  HostBuilderPostConfigurer[PO]
	appConfiguration AppConfigurationConfigurer[PO]
	logging          LoggingConfigurer[PO]
	beforeRun        BeforeRunHook
	afterRun         AfterRunHook
	configCheck      ConfigurationChecker
	initializer      Initializer
	started          StartedHook
	stopping         StoppingHook
	stopped          StoppedHook

	mu    sync.Mutex
	cache map[uuid.UUID]*optionsEntry[PO]
}

// NewModuleRegistration creates the registration of module with options type O. The
// module's capabilities are detected here, once.
//
//	reg, err := apphost.NewModuleRegistration[postgres.Options](postgres.New(), apphost.RegistrationSettings[*postgres.Options]{})
func NewModuleRegistration[O any, PO optionsPointer[O]](module Module, settings RegistrationSettings[PO]) (ModuleRegistration, error) {
	if isNilValue(module) {
		return nil, ErrModuleNil
	}
	if _, err := structValue(PO(new(O))); err != nil {
		return nil, fmt.Errorf("%w: %s", err, reflect.TypeFor[PO]())
	}

	r := &moduleRegistration[O, PO]{
		module:     module,
		moduleType: reflect.TypeOf(module),
		keys:       slices.Clone(module.OptionKeys()),
		settings:   settings,
		cache:      make(map[uuid.UUID]*optionsEntry[PO]),
	}
	if settings.OptionsKey != "" {
		r.keys = append(r.keys, settings.OptionsKey)
	}

	if m, ok := module.(ServicesConfigurer[PO]); ok {
		r.services, r.caps = m, r.caps|CapServices
	}
	if m, ok := module.(ServicesPostConfigurer[PO]); ok {
		r.postServices, r.caps = m, r.caps|CapPostServices
	}
	if m, ok := module.(RequiredModulesProvider[PO]); ok {
		r.required, r.caps = m, r.caps|CapRequiredModules
	}
	if m, ok := module.(HostBuilderConfigurer[PO]); ok {
		r.hostBuilder, r.caps = m, r.caps|CapHostBuilder
	}
	if m, ok := module.(HostBuilderPostConfigurer[PO]); ok {
		r.postHostBuilder, r.caps = m, r.caps|CapPostHostBuilder
	}
	if m, ok := module.(AppConfigurationConfigurer[PO]); ok {
		r.appConfiguration, r.caps = m, r.caps|CapAppConfiguration
	}
	if m, ok := module.(LoggingConfigurer[PO]); ok {
		r.logging, r.caps = m, r.caps|CapLogging
	}
	if m, ok := module.(BeforeRunHook); ok {
		r.beforeRun, r.caps = m, r.caps|CapBeforeRun
	}
	if m, ok := module.(AfterRunHook); ok {
		r.afterRun, r.caps = m, r.caps|CapAfterRun
	}
	if m, ok := module.(ConfigurationChecker); ok {
		r.configCheck, r.caps = m, r.caps|CapConfigurationCheck
	}
	if m, ok := module.(Initializer); ok {
		r.initializer, r.caps = m, r.caps|CapInit
	}
	if m, ok := module.(StartedHook); ok {
		r.started, r.caps = m, r.caps|CapStarted
	}
	if m, ok := module.(StoppingHook); ok {
		r.stopping, r.caps = m, r.caps|CapStopping
	}
	if m, ok := module.(StoppedHook); ok {
		r.stopped, r.caps = m, r.caps|CapStopped
	}
	return r, nil
}

func (r *moduleRegistration[O, PO]) Module() Module             { return r.module }
func (r *moduleRegistration[O, PO]) ModuleType() reflect.Type   { return r.moduleType }
func (r *moduleRegistration[O, PO]) OptionsType() reflect.Type  { return reflect.TypeFor[PO]() }
func (r *moduleRegistration[O, PO]) OptionKeys() []string       { return slices.Clone(r.keys) }
func (r *moduleRegistration[O, PO]) Capabilities() Capabilities { return r.caps }

func (r *moduleRegistration[O, PO]) entry(app *ApplicationContext) *optionsEntry[PO] {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.cache[app.RunID()]
	if !ok {
		e = &optionsEntry[PO]{}
		r.cache[app.RunID()] = e
	}
	return e
}

// GetOrCreateOptions returns the options of app. The first call for a RunID builds them;
// every later call, concurrent or not, returns the same pointer.
func (r *moduleRegistration[O, PO]) GetOrCreateOptions(app *ApplicationContext) (PO, error) {
	e := r.entry(app)
	e.create.Do(func() {
		e.options, e.err = r.createOptions(app)
	})
	return e.options, e.err
}

func (r *moduleRegistration[O, PO]) createOptions(app *ApplicationContext) (PO, error) {
	options := PO(new(O))
	if err := ProcessOptionsDefaults(options); err != nil {
		return nil, &ConfigurationError{Module: r.moduleType, Err: err}
	}
	if d, ok := any(options).(Defaulter); ok {
		d.SetDefaults()
	}
	cfg := app.Configuration()
	for _, key := range r.keys {
		if err := config.Bind(cfg, key, options); err != nil {
			return nil, &ConfigurationError{Module: r.moduleType, Err: fmt.Errorf("bind %q: %w", key, err)}
		}
	}
	options.Configure(app)
	if r.settings.Configure != nil {
		r.settings.Configure(app, options)
	}
	app.Logger().Debug("Module options created",
		"module", r.moduleType.String(), "keys", r.keys, "runID", app.RunID().String())
	return options, nil
}

func (r *moduleRegistration[O, PO]) Options(app *ApplicationContext) (ModuleOptions, error) {
	options, err := r.GetOrCreateOptions(app)
	if err != nil {
		return nil, err
	}
	return options, nil
}

// Validate runs the required-field check and the options' declared validator. The
// result is memoized with the options.
func (r *moduleRegistration[O, PO]) Validate(app *ApplicationContext) error {
	options, err := r.GetOrCreateOptions(app)
	if err != nil {
		return err
	}
	e := r.entry(app)
	e.validate.Do(func() {
		e.validateErr = r.validate(app, options)
	})
	return e.validateErr
}

func (r *moduleRegistration[O, PO]) validate(app *ApplicationContext, options PO) error {
	errs := requiredFieldErrors(options)

	if v, ok := any(options).(ValidatableOptions[PO]); ok {
		validator, err := v.Validator()
		if err == nil && validator == nil {
			err = errors.New("validator is nil")
		}
		switch {
		case err != nil && r.settings.LenientValidators:
			app.Logger().Debug("Options validator unavailable, skipping validation",
				"module", r.moduleType.String(), "error", err)
		case err != nil:
			return &ConfigurationError{Module: r.moduleType, Errors: errs, Err: fmt.Errorf("%w: %w", ErrValidatorUnavailable, err)}
		default:
			errs = append(errs, validator.Validate(options)...)
		}
	}

	if len(errs) > 0 {
		return &ConfigurationError{Module: r.moduleType, Errors: errs}
	}
	return nil
}

func (r *moduleRegistration[O, PO]) validatedOptions(app *ApplicationContext) (PO, error) {
	if err := r.Validate(app); err != nil {
		return nil, err
	}
	return r.GetOrCreateOptions(app)
}

func (r *moduleRegistration[O, PO]) IsEnabled(app *ApplicationContext) (bool, error) {
	options, err := r.GetOrCreateOptions(app)
	if err != nil {
		return false, err
	}
	return options.IsEnabled(), nil
}

func (r *moduleRegistration[O, PO]) CheckRequiredModules(app *ApplicationContext, present []reflect.Type) (RequiredModulesResult, error) {
	if r.required == nil {
		return RequiredModulesResult{}, nil
	}
	options, err := r.GetOrCreateOptions(app)
	if err != nil {
		return RequiredModulesResult{}, err
	}

	var result RequiredModulesResult
	for _, req := range r.required.RequiredModules(app, options) {
		if req == nil {
			continue
		}
		if !slices.ContainsFunc(present, func(t reflect.Type) bool { return t.AssignableTo(req) }) {
			result.Missing = append(result.Missing, req)
		}
	}
	return result, nil
}

// ConfigureOptions makes the options resolvable by module type through ModuleOptionsOf.
// The first enabled module using an options type also owns PO in the container.
func (r *moduleRegistration[O, PO]) ConfigureOptions(app *ApplicationContext, services *Container) error {
	index, err := optionsIndexOf(services)
	if err != nil {
		return err
	}
	if err := index.add(r.moduleType, func() (ModuleOptions, error) { return r.validatedOptions(app) }); err != nil {
		return err
	}
	if services.Contains(reflect.TypeFor[PO]()) {
		app.Logger().Debug("Options type already registered, resolve by module type",
			"module", r.moduleType.String(), "options", reflect.TypeFor[PO]().String())
		return nil
	}
	return RegisterFactory(services, ServiceScopeSingleton, func(Resolver) (PO, error) {
		return r.validatedOptions(app)
	})
}

func (r *moduleRegistration[O, PO]) ConfigureServices(app *ApplicationContext, services *Container) error {
	if r.services == nil {
		return nil
	}
	options, err := r.validatedOptions(app)
	if err != nil {
		return err
	}
	return r.services.ConfigureServices(app, services, options)
}

func (r *moduleRegistration[O, PO]) PostConfigureServices(app *ApplicationContext, services *Container) error {
	if r.postServices == nil {
		return nil
	}
	options, err := r.validatedOptions(app)
	if err != nil {
		return err
	}
	return r.postServices.PostConfigureServices(app, services, options)
}

func (r *moduleRegistration[O, PO]) ConfigureHostBuilder(app *ApplicationContext, host *HostBuilder) error {
	if r.hostBuilder == nil {
		return nil
	}
	options, err := r.GetOrCreateOptions(app)
	if err != nil {
		return err
	}
	return r.hostBuilder.ConfigureHostBuilder(app, host, options)
}

func (r *moduleRegistration[O, PO]) PostConfigureHostBuilder(app *ApplicationContext, host *HostBuilder) error {
	if r.postHostBuilder == nil {
		return nil
	}
	options, err := r.GetOrCreateOptions(app)
	if err != nil {
		return err
	}
	return r.postHostBuilder.PostConfigureHostBuilder(app, host, options)
}

func (r *moduleRegistration[O, PO]) ConfigureAppConfiguration(app *ApplicationContext, builder *config.Builder) error {
	if r.appConfiguration == nil {
		return nil
	}
	options, err := r.GetOrCreateOptions(app)
	if err != nil {
		return err
	}
	return r.appConfiguration.ConfigureAppConfiguration(app, builder, options)
}

func (r *moduleRegistration[O, PO]) ConfigureLogging(app *ApplicationContext, logging *LoggerConfiguration) error {
	if r.logging == nil {
		return nil
	}
	options, err := r.validatedOptions(app)
	if err != nil {
		return err
	}
	return r.logging.ConfigureLogging(app, options, logging)
}

func (r *moduleRegistration[O, PO]) OnBeforeRun(ctx context.Context, app *ApplicationContext, services Resolver) (bool, error) {
	if r.beforeRun == nil {
		return true, nil
	}
	return r.beforeRun.OnBeforeRun(ctx, app, services)
}

func (r *moduleRegistration[O, PO]) OnAfterRun(ctx context.Context, app *ApplicationContext, services Resolver) (bool, error) {
	if r.afterRun == nil {
		return true, nil
	}
	return r.afterRun.OnAfterRun(ctx, app, services)
}

func (r *moduleRegistration[O, PO]) CheckConfiguration(ctx context.Context, app *ApplicationContext, services Resolver) error {
	if r.configCheck == nil {
		return nil
	}
	return r.configCheck.CheckConfiguration(ctx, app, services)
}

func (r *moduleRegistration[O, PO]) Init(ctx context.Context, app *ApplicationContext, services Resolver) error {
	if r.initializer == nil {
		return nil
	}
	return r.initializer.Init(ctx, app, services)
}

func (r *moduleRegistration[O, PO]) ApplicationStarted(ctx context.Context, app *ApplicationContext, services Resolver) error {
	if r.started == nil {
		return nil
	}
	return r.started.ApplicationStarted(ctx, app, services)
}

func (r *moduleRegistration[O, PO]) ApplicationStopping(ctx context.Context, app *ApplicationContext, services Resolver) error {
	if r.stopping == nil {
		return nil
	}
	return r.stopping.ApplicationStopping(ctx, app, services)
}

func (r *moduleRegistration[O, PO]) ApplicationStopped(ctx context.Context, app *ApplicationContext, services Resolver) error {
	if r.stopped == nil {
		return nil
	}
	return r.stopped.ApplicationStopped(ctx, app, services)
}

func (r *moduleRegistration[O, PO]) Release(app *ApplicationContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, app.RunID())
}

// OptionsOf returns the options registration holds for app, typed. It fails when PO is
// not the registration's options type.
func OptionsOf[PO ModuleOptions](registration ModuleRegistration, app *ApplicationContext) (PO, error) {
	var zero PO
	options, err := registration.Options(app)
	if err != nil {
		return zero, err
	}
	typed, ok := options.(PO)
	if !ok {
		return zero, fmt.Errorf("options of %s are %T, not %s",
			registration.ModuleType(), options, reflect.TypeFor[PO]())
	}
	return typed, nil
}

// moduleOptionsIndex holds the options factory of every configured module, keyed by
// module type.
type moduleOptionsIndex struct {
	mu       sync.RWMutex
	byModule map[reflect.Type]func() (ModuleOptions, error)
}

func optionsIndexOf(services *Container) (*moduleOptionsIndex, error) {
	if !Has[*moduleOptionsIndex](services) {
		index := &moduleOptionsIndex{byModule: make(map[reflect.Type]func() (ModuleOptions, error))}
		if err := Register(services, index); err != nil {
			return nil, err
		}
	}
	return Resolve[*moduleOptionsIndex](services)
}

func (x *moduleOptionsIndex) add(module reflect.Type, options func() (ModuleOptions, error)) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.byModule[module]; ok {
		return fmt.Errorf("%w: options of %s", ErrServiceAlreadyRegistered, module)
	}
	x.byModule[module] = options
	return nil
}

// ModuleOptionsOf returns the validated options of the module of type M. Unlike
// Resolve[PO], it works when several modules share an options type.
func ModuleOptionsOf[M Module, PO ModuleOptions](r Resolver) (PO, error) {
	var zero PO
	index, err := Resolve[*moduleOptionsIndex](r)
	if err != nil {
		return zero, err
	}
	module := reflect.TypeFor[M]()
	index.mu.RLock()
	get, ok := index.byModule[module]
	index.mu.RUnlock()
	if !ok {
		return zero, fmt.Errorf("%w: options of %s", ErrServiceNotFound, module)
	}
	options, err := get()
	if err != nil {
		return zero, err
	}
	typed, ok := options.(PO)
	if !ok {
		return zero, fmt.Errorf("options of %s are %T, not %s", module, options, reflect.TypeFor[PO]())
	}
	return typed, nil
}
