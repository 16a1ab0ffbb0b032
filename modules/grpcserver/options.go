package grpcserver

import (
	"net"
	"strconv"
	"time"

	"github.com/GoCodeAlone/apphost"
)

// Options configures the gRPC server. Bound from the "GrpcServer" section.
type Options struct {
	apphost.BaseModuleOptions

	Host string `default:"0.0.0.0"`

	// Port is the port to listen on; 0 picks a free port.
	Port int `default:"9090"`

	// MaxRecvMsgSize bounds incoming messages, in bytes.
	MaxRecvMsgSize int `default:"4194304"`

	// Reflection exposes the server reflection service.
	Reflection bool

	// HealthInterval is how often the application's health checks are mirrored into the
	// gRPC health service.
	HealthInterval time.Duration `default:"10s"`

	ShutdownTimeout time.Duration `default:"30s"`
}

// Addr returns the listen address.
func (o *Options) Addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// Validator implements apphost.ValidatableOptions.
func (o *Options) Validator() (apphost.Validator[*Options], error) {
	return apphost.NewRuleValidator[*Options]().
		Range("Port", func(o *Options) int { return o.Port }, 0, 65535).
		Rule("MaxRecvMsgSize", func(o *Options) bool { return o.MaxRecvMsgSize > 0 }, "must be positive").
		Rule("HealthInterval", func(o *Options) bool { return o.HealthInterval > 0 }, "must be positive").
		Rule("ShutdownTimeout", func(o *Options) bool { return o.ShutdownTimeout > 0 }, "must be positive"), nil
}
