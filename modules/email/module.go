// Package email sends transactional email through Resend, or to the log in development.
package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/GoCodeAlone/apphost"
)

// ConfigKey is the configuration section bound onto Options.
const ConfigKey = "Email"

// Providers.
const (
	ProviderResend = "resend"
	ProviderLog    = "log"
)

// Options configures the sender. Bound from the "Email" section.
type Options struct {
	apphost.BaseModuleOptions

	Provider  string `default:"resend"`
	APIKey    string
	FromEmail string
	FromName  string

	// BaseURL overrides the Resend API endpoint.
	BaseURL string
}

// Configure switches to the log provider in development when no API key is set.
func (o *Options) Configure(app *apphost.ApplicationContext) {
	if o.APIKey == "" && app.IsDevelopment() {
		o.Provider = ProviderLog
	}
}

// Validator implements apphost.ValidatableOptions.
func (o *Options) Validator() (apphost.Validator[*Options], error) {
	return apphost.NewRuleValidator[*Options]().
		OneOf("Provider", func(o *Options) string { return o.Provider }, ProviderResend, ProviderLog).
		RuleWhen(func(o *Options) bool { return o.Provider == ProviderResend }, "APIKey",
			func(o *Options) bool { return o.APIKey != "" }, "is required").
		Rule("FromEmail", func(o *Options) bool { return strings.Contains(o.FromEmail, "@") }, "must be an email address"), nil
}

// Module is the email module.
type Module struct {
	options *Options
}

// New creates the email module.
func New() *Module {
	return &Module{}
}

// OptionKeys implements apphost.Module.
func (m *Module) OptionKeys() []string { return []string{ConfigKey} }

// ConfigureServices registers the Sender service.
func (m *Module) ConfigureServices(app *apphost.ApplicationContext, services *apphost.Container, options *Options) error {
	m.options = options
	switch options.Provider {
	case ProviderLog:
		return apphost.Register[Sender](services, &logSender{
			logger: apphost.ModuleLogger(app, m),
			from:   Address(options.FromName, options.FromEmail),
		})
	case ProviderResend:
		sender, err := newResendSender(options)
		if err != nil {
			return err
		}
		return apphost.Register[Sender](services, sender)
	default:
		return fmt.Errorf("email: unknown provider %q", options.Provider)
	}
}

// Init logs the active provider.
func (m *Module) Init(_ context.Context, app *apphost.ApplicationContext, _ apphost.Resolver) error {
	apphost.ModuleLogger(app, m).Info("Email sender ready", "provider", m.options.Provider, "from", m.options.FromEmail)
	return nil
}
