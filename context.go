package apphost

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"

	"github.com/GoCodeAlone/apphost/config"
)

// ApplicationSection is the configuration key ApplicationOptions are bound from.
const ApplicationSection = "Application"

// Well-known environment names.
const (
	EnvironmentDevelopment = "Development"
	EnvironmentStaging     = "Staging"
	EnvironmentProduction  = "Production"
)

// ApplicationOptions describes the application itself. Values come from the
// "Application" configuration section on top of the host's defaults.
type ApplicationOptions struct {
	Name                 string
	Version              string
	Environment          string
	EnableConsoleLogging *bool
	LogLevel             slog.Level
	LogFormat            string
}

// ConsoleLoggingEnabled reports whether console output is on. It defaults to on in
// development.
func (o ApplicationOptions) ConsoleLoggingEnabled() bool {
	if o.EnableConsoleLogging != nil {
		return *o.EnableConsoleLogging
	}
	return strings.EqualFold(o.Environment, EnvironmentDevelopment)
}

type processEnv struct {
	Environment string `env:"APP_ENVIRONMENT" envDefault:"Production"`
}

// DefaultApplicationOptions returns the options used when nothing is configured: the
// executable name, the main module version and the APP_ENVIRONMENT variable.
func DefaultApplicationOptions() ApplicationOptions {
	opts := ApplicationOptions{
		Name:      "App",
		Version:   "dev",
		LogLevel:  slog.LevelInfo,
		LogFormat: LogFormatText,
	}
	if exe, err := os.Executable(); err == nil {
		opts.Name = strings.TrimSuffix(filepath.Base(exe), filepath.Ext(exe))
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		opts.Version = info.Main.Version
	}
	var pe processEnv
	if err := env.Parse(&pe); err == nil {
		opts.Environment = pe.Environment
	}
	if opts.Environment == "" {
		opts.Environment = EnvironmentProduction
	}
	return opts
}

// ApplicationContext is the identity of one run and the shared services every module
// sees. It never changes after construction and is passed by pointer.
type ApplicationContext struct {
	runID   uuid.UUID
	options ApplicationOptions
	cfg     config.Configuration
	logger  *slog.Logger
	args    []string
}

// NewApplicationContext creates a context with a fresh RunID. ApplicationOptions are
// bound from the "Application" section of cfg over base.
func NewApplicationContext(cfg config.Configuration, logger *slog.Logger, args []string, base ApplicationOptions) (*ApplicationContext, error) {
	if cfg == nil {
		cfg = config.Empty()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	opts := base
	if err := config.Bind(cfg, ApplicationSection, &opts); err != nil {
		return nil, fmt.Errorf("bind %s options: %w", ApplicationSection, err)
	}
	if opts.Name == "" {
		opts.Name = "App"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Environment == "" {
		opts.Environment = EnvironmentProduction
	}

	return &ApplicationContext{
		runID:   newRunID(),
		options: opts,
		cfg:     cfg,
		logger:  logger,
		args:    slices.Clone(args),
	}, nil
}

func newRunID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id
}

// RunID identifies this run. Option caches are keyed by it.
func (c *ApplicationContext) RunID() uuid.UUID { return c.runID }

// Name returns the application name.
func (c *ApplicationContext) Name() string { return c.options.Name }

// Version returns the application version.
func (c *ApplicationContext) Version() string { return c.options.Version }

// Environment returns the environment name, e.g. "Production".
func (c *ApplicationContext) Environment() string { return c.options.Environment }

// Options returns a copy of the bound application options.
func (c *ApplicationContext) Options() ApplicationOptions { return c.options }

// Configuration returns the configuration of the run.
func (c *ApplicationContext) Configuration() config.Configuration { return c.cfg }

// Logger returns the application logger.
func (c *ApplicationContext) Logger() *slog.Logger { return c.logger }

// Args returns a copy of the process arguments.
func (c *ApplicationContext) Args() []string { return slices.Clone(c.args) }

// IsDevelopment reports whether the environment is "Development", ignoring case.
func (c *ApplicationContext) IsDevelopment() bool {
	return strings.EqualFold(c.options.Environment, EnvironmentDevelopment)
}

// IsProduction reports whether the environment is "Production", ignoring case.
func (c *ApplicationContext) IsProduction() bool {
	return strings.EqualFold(c.options.Environment, EnvironmentProduction)
}

// HasArg reports whether arg was passed on the command line.
func (c *ApplicationContext) HasArg(arg string) bool {
	return slices.Contains(c.args, arg)
}
