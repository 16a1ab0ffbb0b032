package cmd

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/apphost"
	"github.com/GoCodeAlone/apphost/config"
	"github.com/GoCodeAlone/apphost/modules/auth"
	"github.com/GoCodeAlone/apphost/modules/cache"
	"github.com/GoCodeAlone/apphost/modules/cli"
	"github.com/GoCodeAlone/apphost/modules/configwatcher"
	"github.com/GoCodeAlone/apphost/modules/email"
	"github.com/GoCodeAlone/apphost/modules/eventlogger"
	"github.com/GoCodeAlone/apphost/modules/grpcserver"
	"github.com/GoCodeAlone/apphost/modules/httpclient"
	"github.com/GoCodeAlone/apphost/modules/httpserver"
	"github.com/GoCodeAlone/apphost/modules/jobs"
	"github.com/GoCodeAlone/apphost/modules/jsonschema"
	"github.com/GoCodeAlone/apphost/modules/logmasker"
	"github.com/GoCodeAlone/apphost/modules/postgres"
	"github.com/GoCodeAlone/apphost/modules/reverseproxy"
	"github.com/GoCodeAlone/apphost/modules/scheduler"
	"github.com/GoCodeAlone/apphost/modules/sentry"
	"github.com/GoCodeAlone/apphost/modules/storage"
	"github.com/GoCodeAlone/apphost/modules/tracing"
)

// hostEnv is read from the process environment before any configuration is loaded.
type hostEnv struct {
	ConfigDir   string `env:"APPHOST_CONFIG_DIR" envDefault:"."`
	EnvPrefix   string `env:"APPHOST_ENV_PREFIX" envDefault:"APPHOST_"`
	Environment string `env:"APP_ENVIRONMENT" envDefault:"Production"`
}

// NewRunCommand runs the application until it is interrupted. Arguments after "run" are
// passed to the application as configuration.
func NewRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:                "run [--Section:Key=value ...]",
		Short:              "Run the application",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var he hostEnv
			if err := env.Parse(&he); err != nil {
				return fmt.Errorf("parse environment: %w", err)
			}
			app, err := NewApplication(he, args, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			code, err := app.Run(cmd.Context())
			if code != 0 {
				return &exitError{code: code, err: err}
			}
			return nil
		},
	}
}

// NewApplication builds the application with every bundled module. Configuration is
// layered: appsettings.yaml, appsettings.{Environment}.yaml, environment variables with
// he.EnvPrefix, then args.
func NewApplication(he hostEnv, args []string, stdout, stderr io.Writer) (*apphost.Application, error) {
	settings := []string{
		filepath.Join(he.ConfigDir, "appsettings.yaml"),
		filepath.Join(he.ConfigDir, "appsettings."+he.Environment+".yaml"),
	}
	app := apphost.New(
		apphost.WithName("apphost"),
		apphost.WithVersion(Version),
		apphost.WithEnvironment(he.Environment),
		apphost.WithArgs(args...),
		apphost.WithLogOutput(stderr),
		apphost.WithConfigProviders(
			config.File(settings[0], true),
			config.File(settings[1], true),
			config.Env(he.EnvPrefix),
		),
	)

	// Postgres is registered before jobs and httpserver before reverseproxy: modules are
	// initialized in registration order.
	adds := []func() error{
		func() error { return apphost.AddModule[cli.Options](app, cli.New(cli.WithOutput(stdout))) },
		func() error { return apphost.AddModule[sentry.Options](app, sentry.New()) },
		func() error { return apphost.AddModule[logmasker.Options](app, logmasker.New()) },
		func() error { return apphost.AddModule[tracing.Options](app, tracing.New()) },
		func() error {
			return apphost.AddModule[configwatcher.Options](app, configwatcher.New(), func(_ *apphost.ApplicationContext, o *configwatcher.Options) {
				if len(o.Paths) == 0 {
					o.Paths = settings
				}
			})
		},
		func() error { return apphost.AddModule[jsonschema.Options](app, jsonschema.New()) },
		func() error { return apphost.AddModule[eventlogger.Options](app, eventlogger.New(eventlogger.WithConsole(stdout))) },
		func() error { return apphost.AddModule[postgres.Options](app, postgres.New()) },
		func() error { return apphost.AddModule[jobs.Options](app, jobs.New()) },
		func() error { return apphost.AddModule[cache.Options](app, cache.New()) },
		func() error { return apphost.AddModule[storage.Options](app, storage.New()) },
		func() error { return apphost.AddModule[email.Options](app, email.New()) },
		func() error { return apphost.AddModule[scheduler.Options](app, scheduler.New()) },
		func() error { return apphost.AddModule[httpclient.Options](app, httpclient.New()) },
		func() error { return apphost.AddModule[httpserver.Options](app, httpserver.New()) },
		func() error { return apphost.AddModule[auth.Options](app, auth.New()) },
		func() error { return apphost.AddModule[reverseproxy.Options](app, reverseproxy.New()) },
		func() error { return apphost.AddModule[grpcserver.Options](app, grpcserver.New()) },
	}
	for _, add := range adds {
		if err := add(); err != nil {
			return nil, err
		}
	}
	return app, nil
}
