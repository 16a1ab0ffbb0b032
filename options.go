package apphost

// ModuleOptions is the contract every module options type satisfies, normally through a
// pointer to a struct embedding BaseModuleOptions.
type ModuleOptions interface {
	// IsEnabled reports whether the owning module takes part in this run.
	IsEnabled() bool

	// Configure derives values from the application context after configuration
	// binding, e.g. defaulting a name to the application name. It runs once per run and
	// must only touch the options value itself.
	Configure(app *ApplicationContext)
}

// BaseModuleOptions carries the Enabled flag shared by all module options.
//
//	type Options struct {
//	    apphost.BaseModuleOptions
//	    Host string `default:"localhost"`
//	}
type BaseModuleOptions struct {
	Enabled bool `config:"Enabled" default:"true"`
}

// IsEnabled implements ModuleOptions.
func (o *BaseModuleOptions) IsEnabled() bool { return o.Enabled }

// Configure implements ModuleOptions; it does nothing.
func (o *BaseModuleOptions) Configure(*ApplicationContext) {}

// Defaulter is implemented by options that need defaults a `default` tag cannot express.
// SetDefaults runs after tag defaults and before configuration binding.
type Defaulter interface {
	SetDefaults()
}

// optionsPointer constrains PO to a pointer to O that implements ModuleOptions, so a
// registration can allocate fresh options with new(O).
type optionsPointer[O any] interface {
	*O
	ModuleOptions
}
