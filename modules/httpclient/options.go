package httpclient

import (
	"time"

	"github.com/GoCodeAlone/apphost"
)

// Options configures the shared client. Bound from the "HttpClient" section.
type Options struct {
	apphost.BaseModuleOptions

	DialTimeout         time.Duration `default:"30s"`
	MaxIdleConns        int           `default:"100"`
	MaxIdleConnsPerHost int           `default:"10"`
	IdleConnTimeout     time.Duration `default:"90s"`
	TLSHandshakeTimeout time.Duration `default:"10s"`

	// RequestTimeout bounds a whole request including the body; 0 disables it.
	RequestTimeout time.Duration `default:"30s"`

	DisableCompression bool
	DisableKeepAlives  bool

	// UserAgent defaults to "{application name}/{version}".
	UserAgent string

	// Verbose logs every exchange at Info instead of Debug, with headers.
	Verbose bool
}

// Configure implements apphost.ModuleOptions.
func (o *Options) Configure(app *apphost.ApplicationContext) {
	if o.UserAgent == "" {
		o.UserAgent = app.Name() + "/" + app.Version()
	}
}

// Validator implements apphost.ValidatableOptions.
func (o *Options) Validator() (apphost.Validator[*Options], error) {
	return apphost.NewRuleValidator[*Options]().
		Rule("MaxIdleConns", func(o *Options) bool { return o.MaxIdleConns >= 0 }, "must not be negative").
		Rule("MaxIdleConnsPerHost", func(o *Options) bool { return o.MaxIdleConnsPerHost >= 0 }, "must not be negative").
		Rule("RequestTimeout", func(o *Options) bool { return o.RequestTimeout >= 0 }, "must not be negative"), nil
}
