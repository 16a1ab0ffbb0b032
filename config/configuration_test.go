package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_LaterProvidersOverride(t *testing.T) {
	cfg, err := NewBuilder().
		AddMap(map[string]string{"Postgres:Host": "first", "Postgres:Port": "5432"}).
		AddMap(map[string]string{"postgres:host": "second"}).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "second", cfg.Get("Postgres:Host"))
	assert.Equal(t, "5432", cfg.Get("POSTGRES:PORT"))

	source, ok := cfg.Source("postgres:host")
	require.True(t, ok)
	assert.Equal(t, "memory", source)
}

func TestConfiguration_Sections(t *testing.T) {
	cfg, err := NewBuilder().AddMap(map[string]string{
		"App:Servers:0:Name":  "a",
		"App:Servers:1:Name":  "b",
		"App:Servers:10:Name": "k",
		"App:Name":            "demo",
	}).Build()
	require.NoError(t, err)

	t.Run("should_walk_nested_sections", func(t *testing.T) {
		app := cfg.Section("app")
		assert.True(t, app.Exists())
		assert.Equal(t, "app", app.Path())
		assert.Equal(t, "demo", app.Get("Name"))
		assert.Equal(t, "Servers", app.Section("Servers").Key())
	})

	t.Run("should_sort_numeric_children_numerically", func(t *testing.T) {
		children := cfg.Section("App:Servers").Children()
		require.Len(t, children, 3)
		assert.Equal(t, "0", children[0].Key())
		assert.Equal(t, "1", children[1].Key())
		assert.Equal(t, "10", children[2].Key())
	})

	t.Run("should_report_missing_sections", func(t *testing.T) {
		assert.False(t, cfg.Section("Missing").Exists())
		_, ok := cfg.Lookup("App:Missing")
		assert.False(t, ok)
	})
}

func TestEnvProvider(t *testing.T) {
	p := &envProvider{prefix: "APPHOST_", environ: func() []string {
		return []string{
			"APPHOST_POSTGRES__HOST=db.internal",
			"apphost_Application__Name=lower",
			"OTHER_VALUE=ignored",
			"APPHOST_=empty",
		}
	}}

	values, err := p.Load()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"POSTGRES:HOST":    "db.internal",
		"Application:Name": "lower",
	}, values)
}

func TestArgsProvider(t *testing.T) {
	values, err := Args([]string{
		"--Application:Name=demo",
		"--Postgres:Port", "6432",
		"Redis:Enabled=false",
		"--verbose",
		"-Level", "debug",
		"positional",
	}).Load()
	require.NoError(t, err)

	assert.Equal(t, "demo", values["Application:Name"])
	assert.Equal(t, "6432", values["Postgres:Port"])
	assert.Equal(t, "false", values["Redis:Enabled"])
	assert.Equal(t, "true", values["verbose"])
	assert.Equal(t, "debug", values["Level"])
	assert.NotContains(t, values, "positional")
}

func TestFileProvider_Formats(t *testing.T) {
	dir := t.TempDir()

	files := map[string]string{
		"settings.yaml": "postgres:\n  host: yaml-host\n  port: 5433\n  tags: [a, b]\n",
		"settings.json": `{"postgres": {"host": "json-host", "port": 5434, "ratio": 0.25}}`,
		"settings.toml": "[postgres]\nhost = \"toml-host\"\nport = 5435\n",
		"settings.hcl":  "postgres \"primary\" {\n  host = \"hcl-host\"\n  port = 5436\n  tags = [\"x\", \"y\"]\n}\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}

	tests := []struct {
		file string
		want map[string]string
	}{
		{"settings.yaml", map[string]string{"postgres:host": "yaml-host", "postgres:port": "5433", "postgres:tags:1": "b"}},
		{"settings.json", map[string]string{"postgres:host": "json-host", "postgres:port": "5434", "postgres:ratio": "0.25"}},
		{"settings.toml", map[string]string{"postgres:host": "toml-host", "postgres:port": "5435"}},
		{"settings.hcl", map[string]string{"postgres:primary:host": "hcl-host", "postgres:primary:port": "5436", "postgres:primary:tags:0": "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			values, err := File(filepath.Join(dir, tt.file), false).Load()
			require.NoError(t, err)
			for k, v := range tt.want {
				assert.Equal(t, v, values[k], k)
			}
		})
	}
}

func TestFileProvider_Missing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")

	values, err := File(missing, true).Load()
	require.NoError(t, err)
	assert.Empty(t, values)

	_, err = File(missing, false).Load()
	require.ErrorIs(t, err, ErrFileNotFound)

	_, err = NewBuilder().AddFile(missing, false).Build()
	require.ErrorIs(t, err, ErrProviderFailed)
}

func TestFileProvider_UnsupportedExtension(t *testing.T) {
	_, err := File("settings.ini", true).Load()
	require.ErrorIs(t, err, ErrUnsupportedFileFormat)
}

func TestParse_InvalidDocument(t *testing.T) {
	_, err := Parse(FormatYAML, "broken.yaml", []byte("a: [unterminated"))
	require.ErrorIs(t, err, ErrParseFile)

	_, err = Parse(FormatHCL, "broken.hcl", []byte("block {"))
	require.ErrorIs(t, err, ErrParseFile)
}
