package reverseproxy

import (
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/GoCodeAlone/apphost"
)

// Options configures the proxy. Bound from the "ReverseProxy" section.
type Options struct {
	apphost.BaseModuleOptions

	// Backends maps a backend ID to its base URL.
	Backends map[string]string

	Routes         []RouteOptions
	CircuitBreaker CircuitBreakerOptions
}

// RouteOptions mounts a backend on the HTTP server's router.
type RouteOptions struct {
	// Pattern is a chi route pattern such as "/api/*".
	Pattern string
	Backend string

	// Hosts restricts the route to requests whose host matches one of these globs, for
	// example "*.example.com". Empty matches every host. Routes sharing a pattern are
	// tried in order.
	Hosts []string

	// StripPrefix is removed from the request path before proxying.
	StripPrefix string
}

// CircuitBreakerOptions stops calling a backend after consecutive failures.
type CircuitBreakerOptions struct {
	Enabled          bool          `default:"true"`
	FailureThreshold int           `default:"5"`
	ResetTimeout     time.Duration `default:"30s"`
}

// Validator implements apphost.ValidatableOptions.
func (o *Options) Validator() (apphost.Validator[*Options], error) {
	return apphost.ValidatorFunc[*Options](func(o *Options) apphost.ValidationErrors {
		var errs apphost.ValidationErrors
		add := func(field, format string, args ...any) {
			errs = append(errs, apphost.ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
		}

		for _, id := range slices.Sorted(maps.Keys(o.Backends)) {
			u, err := url.Parse(o.Backends[id])
			if err != nil || u.Scheme == "" || u.Host == "" {
				add("Backends:"+id, "must be an absolute URL")
			}
		}
		for i, r := range o.Routes {
			field := fmt.Sprintf("Routes:%d", i)
			if !strings.HasPrefix(r.Pattern, "/") {
				add(field+":Pattern", "must start with /")
			}
			if _, ok := o.Backends[r.Backend]; !ok {
				add(field+":Backend", "unknown backend %q", r.Backend)
			}
			for _, h := range r.Hosts {
				if _, err := glob.Compile(h, '.'); err != nil {
					add(field+":Hosts", "invalid pattern %q", h)
				}
			}
		}
		if o.CircuitBreaker.Enabled {
			if o.CircuitBreaker.FailureThreshold < 1 {
				add("CircuitBreaker:FailureThreshold", "must be at least 1")
			}
			if o.CircuitBreaker.ResetTimeout <= 0 {
				add("CircuitBreaker:ResetTimeout", "must be positive")
			}
		}
		return errs
	}), nil
}
