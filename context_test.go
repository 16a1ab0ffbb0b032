package apphost

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/apphost/config"
)

func TestNewApplicationContext_BindsApplicationSection(t *testing.T) {
	cfg, err := config.NewBuilder(config.Map(map[string]string{
		"Application:Name":                 "orders",
		"Application:Environment":          "development",
		"Application:LogLevel":             "DEBUG",
		"Application:EnableConsoleLogging": "false",
	})).Build()
	require.NoError(t, err)

	args := []string{"--verbose"}
	app, err := NewApplicationContext(cfg, nil, args, ApplicationOptions{Name: "default", Version: "1.2.3"})
	require.NoError(t, err)
	args[0] = "mutated"

	assert.Equal(t, "orders", app.Name())
	assert.Equal(t, "1.2.3", app.Version())
	assert.True(t, app.IsDevelopment())
	assert.False(t, app.IsProduction())
	assert.Equal(t, slog.LevelDebug, app.Options().LogLevel)
	assert.False(t, app.Options().ConsoleLoggingEnabled())
	assert.Equal(t, []string{"--verbose"}, app.Args())
	assert.True(t, app.HasArg("--verbose"))
	assert.NotNil(t, app.Logger())
	assert.Same(t, cfg, app.Configuration())
}

func TestNewApplicationContext_Defaults(t *testing.T) {
	app, err := NewApplicationContext(nil, nil, nil, ApplicationOptions{})
	require.NoError(t, err)

	assert.Equal(t, "App", app.Name())
	assert.Equal(t, "dev", app.Version())
	assert.True(t, app.IsProduction())
	assert.False(t, app.Options().ConsoleLoggingEnabled())
	assert.False(t, app.Configuration().Exists())
}

func TestNewApplicationContext_UniqueRunIDs(t *testing.T) {
	a, err := NewApplicationContext(nil, nil, nil, ApplicationOptions{})
	require.NoError(t, err)
	b, err := NewApplicationContext(nil, nil, nil, ApplicationOptions{})
	require.NoError(t, err)

	assert.NotEqual(t, a.RunID(), b.RunID())
	assert.Equal(t, 7, int(a.RunID().Version()))
}

func TestDefaultApplicationOptions_Environment(t *testing.T) {
	t.Setenv("APP_ENVIRONMENT", "Staging")
	opts := DefaultApplicationOptions()
	assert.Equal(t, EnvironmentStaging, opts.Environment)
	assert.NotEmpty(t, opts.Name)
	assert.Equal(t, slog.LevelInfo, opts.LogLevel)
}

func TestConsoleLoggingEnabled(t *testing.T) {
	on := true
	assert.True(t, ApplicationOptions{Environment: "Development"}.ConsoleLoggingEnabled())
	assert.False(t, ApplicationOptions{Environment: "Production"}.ConsoleLoggingEnabled())
	assert.True(t, ApplicationOptions{Environment: "Production", EnableConsoleLogging: &on}.ConsoleLoggingEnabled())
}
