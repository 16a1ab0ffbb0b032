package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, PrintVersion()+"\n", out.String())
}

func TestNewApplication_VersionFlagVetoes(t *testing.T) {
	dir := t.TempDir()
	settings := []byte("Postgres:\n  Enabled: false\nJobs:\n  Enabled: false\nStorage:\n  Enabled: false\nEmail:\n  Enabled: false\nAuth:\n  Enabled: false\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "appsettings.yaml"), settings, 0o600))

	var out bytes.Buffer
	app, err := NewApplication(hostEnv{ConfigDir: dir, EnvPrefix: "APPHOST_TEST_", Environment: "Production"},
		[]string{"--version", "--EventLogger:Enabled=false", "--HttpServer:Port=0", "--GrpcServer:Port=0"}, &out, io.Discard)
	require.NoError(t, err)

	code, err := app.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "apphost "+Version+"\n", out.String())
}

func TestNewApplication_MissingConfigurationFails(t *testing.T) {
	app, err := NewApplication(hostEnv{ConfigDir: t.TempDir(), EnvPrefix: "APPHOST_TEST_", Environment: "Production"},
		[]string{"--version"}, io.Discard, io.Discard)
	require.NoError(t, err)

	code, err := app.Run(context.Background())
	require.Error(t, err, "unconfigured modules fail validation before the version flag is seen")
	assert.Equal(t, 1, code)
}

func TestExitCode(t *testing.T) {
	code, ok := ExitCode(&exitError{code: 3, err: assert.AnError})
	assert.True(t, ok)
	assert.Equal(t, 3, code)

	_, ok = ExitCode(assert.AnError)
	assert.False(t, ok)
}
