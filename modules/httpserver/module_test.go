package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/apphost"
	"github.com/GoCodeAlone/apphost/config"
	"github.com/GoCodeAlone/apphost/health"
)

type probeOptions struct {
	apphost.BaseModuleOptions
}

// probeModule mounts a route, contributes a failing check and calls the server once
// the application has started.
type probeModule struct {
	server  *Module
	cancel  context.CancelFunc
	checks  *health.Aggregator
	results map[string]string
	codes   map[string]int
	err     error
}

func (*probeModule) OptionKeys() []string { return []string{"Probe"} }

func (p *probeModule) ConfigureServices(_ *apphost.ApplicationContext, services *apphost.Container, _ *probeOptions) error {
	checks, err := health.FromServices(services)
	p.checks = checks
	return err
}

func (p *probeModule) Init(_ context.Context, _ *apphost.ApplicationContext, services apphost.Resolver) error {
	router, err := apphost.Resolve[chi.Router](services)
	if err != nil {
		return err
	}
	router.Get("/hello", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("hello"))
	})
	return p.checks.RegisterCheck(health.Named("probe", func(context.Context) error { return errors.New("not ready") }))
}

func (p *probeModule) ApplicationStarted(ctx context.Context, _ *apphost.ApplicationContext, _ apphost.Resolver) error {
	defer p.cancel()
	p.results, p.codes = map[string]string{}, map[string]int{}
	for _, path := range []string{"/hello", "/live", "/health"} {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+p.server.Addr()+path, nil)
		if err != nil {
			p.err = err
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			p.err = err
			return err
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		p.results[path] = string(body)
		p.codes[path] = resp.StatusCode
	}
	return nil
}

func TestModule_ServesRoutesAndHealth(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	server := New()
	probe := &probeModule{server: server, cancel: cancel}
	app := apphost.New(
		apphost.WithArgs(),
		apphost.WithSignals(),
		apphost.WithLogOutput(io.Discard),
		apphost.WithConfigProviders(config.Map(map[string]string{
			"HttpServer:Host": "127.0.0.1",
			"HttpServer:Port": "0",
		})),
	)
	require.NoError(t, apphost.AddModule[Options](app, server))
	require.NoError(t, apphost.AddModule[probeOptions](app, probe))

	code, err := app.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	require.NoError(t, probe.err)

	assert.Equal(t, "hello", probe.results["/hello"])
	assert.Equal(t, http.StatusOK, probe.codes["/live"])
	assert.Equal(t, http.StatusServiceUnavailable, probe.codes["/health"])
	assert.Empty(t, server.Addr(), "listener is released on stop")
}

func TestOptions_Validator(t *testing.T) {
	tests := []struct {
		name    string
		options Options
		fields  []string
	}{
		{
			name:    "valid",
			options: Options{Port: 8080, ShutdownTimeout: 1},
		},
		{
			name:    "port out of range",
			options: Options{Port: 70000, ShutdownTimeout: 1},
			fields:  []string{"Port"},
		},
		{
			name:    "tls without files",
			options: Options{Port: 443, ShutdownTimeout: 1, TLS: TLSOptions{Enabled: true}},
			fields:  []string{"TLS:CertFile", "TLS:KeyFile"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := tt.options.Validator()
			require.NoError(t, err)
			var fields []string
			for _, e := range v.Validate(&tt.options) {
				fields = append(fields, e.Field)
			}
			assert.Equal(t, tt.fields, fields)
		})
	}
}

func TestOptions_Addr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:9000", (&Options{Host: "127.0.0.1", Port: 9000}).Addr())
	assert.Equal(t, "[::1]:80", (&Options{Host: "::1", Port: 80}).Addr())
}
