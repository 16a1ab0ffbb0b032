package auth

import (
	"time"

	"github.com/GoCodeAlone/apphost"
)

// Options configures authentication. Bound from the "Auth" section.
type Options struct {
	apphost.BaseModuleOptions

	JWT      JWTOptions
	Password PasswordOptions

	// APIKeyHeader carries API keys. Keys listed in APIKeys are loaded at startup.
	APIKeyHeader string `default:"X-Api-Key"`
	APIKeys      map[string]APIKeyOptions
}

// JWTOptions configures HS256 access and refresh tokens.
type JWTOptions struct {
	// Secret signs tokens and must be at least 32 bytes.
	Secret string

	// Issuer defaults to the application name.
	Issuer            string
	Expiration        time.Duration `default:"15m"`
	RefreshExpiration time.Duration `default:"168h"`
}

// PasswordOptions configures hashing and the strength policy.
type PasswordOptions struct {
	MinLength      int  `default:"8"`
	RequireUpper   bool `default:"true"`
	RequireLower   bool `default:"true"`
	RequireDigit   bool `default:"true"`
	RequireSpecial bool
	BcryptCost     int `default:"12"`
}

// APIKeyOptions describes a key loaded from configuration, keyed by its ID.
type APIKeyOptions struct {
	Key       string
	Subject   string
	Roles     []string
	ExpiresAt time.Time
}

// Configure implements apphost.ModuleOptions.
func (o *Options) Configure(app *apphost.ApplicationContext) {
	if o.JWT.Issuer == "" {
		o.JWT.Issuer = app.Name()
	}
}

// Validator implements apphost.ValidatableOptions.
func (o *Options) Validator() (apphost.Validator[*Options], error) {
	return apphost.NewRuleValidator[*Options]().
		Rule("JWT:Secret", func(o *Options) bool { return len(o.JWT.Secret) >= 32 }, "must be at least 32 bytes").
		Rule("JWT:Expiration", func(o *Options) bool { return o.JWT.Expiration > 0 }, "must be positive").
		Rule("JWT:RefreshExpiration", func(o *Options) bool { return o.JWT.RefreshExpiration > o.JWT.Expiration }, "must be longer than Expiration").
		Range("Password:MinLength", func(o *Options) int { return o.Password.MinLength }, 1, 128).
		Range("Password:BcryptCost", func(o *Options) int { return o.Password.BcryptCost }, 4, 31).
		NotEmpty("APIKeyHeader", func(o *Options) string { return o.APIKeyHeader }, "is required").
		Rule("APIKeys", func(o *Options) bool {
			for _, k := range o.APIKeys {
				if k.Key == "" {
					return false
				}
			}
			return true
		}, "every key needs a Key value"), nil
}
