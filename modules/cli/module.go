// Package cli answers --help and --version before the application starts.
//
// When one of the flags is present the module vetoes the run from OnBeforeRun, so the
// process exits 0 without checking dependencies or initializing any module.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/GoCodeAlone/apphost"
)

// ConfigKey is the configuration section bound onto Options.
const ConfigKey = "Cli"

// Options configures the flags. Bound from the "Cli" section.
type Options struct {
	apphost.BaseModuleOptions

	// Usage is printed under the application name by --help.
	Usage string

	HelpFlags    []string `default:"[\"--help\",\"-h\"]"`
	VersionFlags []string `default:"[\"--version\"]"`
}

// Validator implements apphost.ValidatableOptions.
func (o *Options) Validator() (apphost.Validator[*Options], error) {
	return apphost.ValidatorFunc[*Options](func(o *Options) apphost.ValidationErrors {
		var errs apphost.ValidationErrors
		for _, flag := range slices.Concat(o.HelpFlags, o.VersionFlags) {
			if !strings.HasPrefix(flag, "-") {
				errs = append(errs, apphost.ValidationError{Field: "Flags", Message: fmt.Sprintf("%q must start with a dash", flag)})
			}
		}
		return errs
	}), nil
}

// Module is the cli module.
type Module struct {
	out     io.Writer
	options *Options
}

// Option customizes the module.
type Option func(*Module)

// WithOutput redirects help and version output, which defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(m *Module) { m.out = w }
}

// New creates the cli module.
func New(opts ...Option) *Module {
	m := &Module{out: os.Stdout}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OptionKeys implements apphost.Module.
func (m *Module) OptionKeys() []string { return []string{ConfigKey} }

// ConfigureServices keeps the options for OnBeforeRun.
func (m *Module) ConfigureServices(_ *apphost.ApplicationContext, _ *apphost.Container, options *Options) error {
	m.options = options
	return nil
}

// OnBeforeRun prints help or version and vetoes the run when asked to.
func (m *Module) OnBeforeRun(_ context.Context, app *apphost.ApplicationContext, _ apphost.Resolver) (bool, error) {
	o := m.options
	switch {
	case slices.ContainsFunc(o.VersionFlags, app.HasArg):
		_, err := fmt.Fprintf(m.out, "%s %s\n", app.Name(), app.Version())
		return false, err
	case slices.ContainsFunc(o.HelpFlags, app.HasArg):
		return false, m.printHelp(app)
	default:
		return true, nil
	}
}

func (m *Module) printHelp(app *apphost.ApplicationContext) error {
	o := m.options
	w := tabwriter.NewWriter(m.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "%s %s\n", app.Name(), app.Version())
	if o.Usage != "" {
		fmt.Fprintf(w, "\n%s\n", o.Usage)
	}
	fmt.Fprintf(w, "\nSettings are read from configuration files, the environment and arguments:\n")
	fmt.Fprintf(w, "  --Section:Key=value\tset a configuration value\n")
	fmt.Fprintf(w, "  %s\tshow this help\n", strings.Join(o.HelpFlags, ", "))
	fmt.Fprintf(w, "  %s\tprint the version\n", strings.Join(o.VersionFlags, ", "))
	fmt.Fprintf(w, "\nEnvironment: %s\n", app.Environment())
	return w.Flush()
}
