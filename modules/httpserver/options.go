package httpserver

import (
	"net"
	"strconv"
	"time"

	"github.com/GoCodeAlone/apphost"
)

// Options configures the HTTP server. Bound from the "HttpServer" section.
type Options struct {
	apphost.BaseModuleOptions

	// Host is the address to bind to.
	Host string `default:"0.0.0.0"`

	// Port is the port to listen on; 0 picks a free port.
	Port int `default:"8080"`

	ReadTimeout     time.Duration `default:"15s"`
	WriteTimeout    time.Duration `default:"15s"`
	IdleTimeout     time.Duration `default:"60s"`
	ShutdownTimeout time.Duration `default:"30s"`

	// HealthPath serves the aggregated readiness checks; empty disables it.
	HealthPath string `default:"/health"`

	// LivenessPath always answers 200 while the server runs; empty disables it.
	LivenessPath string `default:"/live"`

	TLS TLSOptions
}

// TLSOptions enables HTTPS from certificate files.
type TLSOptions struct {
	Enabled  bool
	CertFile string
	KeyFile  string
}

// Addr returns the listen address.
func (o *Options) Addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// Validator implements apphost.ValidatableOptions.
func (o *Options) Validator() (apphost.Validator[*Options], error) {
	tlsEnabled := func(o *Options) bool { return o.TLS.Enabled }
	return apphost.NewRuleValidator[*Options]().
		Range("Port", func(o *Options) int { return o.Port }, 0, 65535).
		Rule("ShutdownTimeout", func(o *Options) bool { return o.ShutdownTimeout > 0 }, "must be positive").
		RuleWhen(tlsEnabled, "TLS:CertFile", func(o *Options) bool { return o.TLS.CertFile != "" }, "is required when TLS is enabled").
		RuleWhen(tlsEnabled, "TLS:KeyFile", func(o *Options) bool { return o.TLS.KeyFile != "" }, "is required when TLS is enabled"), nil
}
