package jsonschema

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/apphost"
	"github.com/GoCodeAlone/apphost/config"
)

const serverSchema = `{
	"type": "object",
	"properties": {
		"Host": {"type": "string"},
		"Port": {"type": "integer", "minimum": 1, "maximum": 65535},
		"Tags": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["Host", "Port"]
}`

func writeSchema(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.json")
	require.NoError(t, os.WriteFile(path, []byte(serverSchema), 0o600))
	return path
}

func TestService_Validate(t *testing.T) {
	s := NewService()
	schema, err := s.CompileSchema(writeSchema(t))
	require.NoError(t, err)

	assert.NoError(t, s.ValidateBytes(schema, []byte(`{"Host": "localhost", "Port": 80}`)))
	assert.Error(t, s.ValidateBytes(schema, []byte(`{"Host": "localhost"}`)))
	assert.Error(t, s.ValidateBytes(schema, []byte(`not json`)))
	assert.NoError(t, s.ValidateReader(schema, strings.NewReader(`{"Host": "h", "Port": 1}`)))
	assert.NoError(t, s.ValidateValue(schema, map[string]any{"Host": "h", "Port": 30}))

	_, err = s.CompileSchema(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestDocument(t *testing.T) {
	cfg, err := config.NewBuilder(config.Map(map[string]string{
		"Server:Host":   "localhost",
		"Server:Port":   "8080",
		"Server:Debug":  "true",
		"Server:Ratio":  "-0.5",
		"Server:Tags:0": "a",
		"Server:Tags:1": "b",
		"Server:Code":   "0x10",
	})).Build()
	require.NoError(t, err)

	got := Document(cfg.Section("Server"))
	assert.Equal(t, map[string]any{
		"Host":  "localhost",
		"Port":  json.Number("8080"),
		"Debug": true,
		"Ratio": json.Number("-0.5"),
		"Tags":  []any{"a", "b"},
		"Code":  "0x10",
	}, got)
	assert.Nil(t, Document(cfg.Section("Missing")))
}

type stopOptions struct {
	apphost.BaseModuleOptions
}

// stopModule vetoes the run once every module is initialized.
type stopModule struct{}

func (*stopModule) OptionKeys() []string { return []string{"Stop"} }

func (*stopModule) OnAfterRun(context.Context, *apphost.ApplicationContext, apphost.Resolver) (bool, error) {
	return false, nil
}

func runWithSettings(t *testing.T, values map[string]string) (int, error) {
	t.Helper()
	app := apphost.New(
		apphost.WithArgs(),
		apphost.WithSignals(),
		apphost.WithLogOutput(io.Discard),
		apphost.WithConfigProviders(config.Map(values)),
	)
	require.NoError(t, apphost.AddModule[Options](app, New()))
	require.NoError(t, apphost.AddModule[stopOptions](app, &stopModule{}))
	return app.Run(t.Context())
}

func TestModule_CheckConfiguration(t *testing.T) {
	schema := writeSchema(t)

	code, err := runWithSettings(t, map[string]string{
		"JsonSchema:Sections:Server": schema,
		"Server:Host":                "localhost",
		"Server:Port":                "8080",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	code, err = runWithSettings(t, map[string]string{
		"JsonSchema:Sections:Server": schema,
		"Server:Host":                "localhost",
		"Server:Port":                "70000",
	})
	require.Error(t, err)
	assert.Equal(t, 1, code)
	assert.Contains(t, err.Error(), "section Server")
}

func TestOptions_Validator(t *testing.T) {
	o := &Options{Sections: map[string]string{"Server": "", "Db": "db.json"}}
	v, err := o.Validator()
	require.NoError(t, err)

	errs := v.Validate(o)
	require.Len(t, errs, 1)
	assert.Equal(t, "Sections:Server", errs[0].Field)
}
