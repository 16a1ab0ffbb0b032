package postgres

import (
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/GoCodeAlone/apphost"
)

// Options configures the connection pool. Bound from the "Postgres" section.
type Options struct {
	apphost.BaseModuleOptions

	// ConnectionString, when set, is used as is and the discrete fields below are
	// ignored.
	ConnectionString string

	Host     string `default:"localhost"`
	Port     int    `default:"5432"`
	Database string
	Username string
	Password string
	SSLMode  string `default:"disable"`

	MaxConns          int32         `default:"10"`
	MinConns          int32         `default:"1"`
	MaxConnIdleTime   time.Duration `default:"10m"`
	MaxConnLifetime   time.Duration `default:"30m"`
	HealthCheckPeriod time.Duration `default:"1m"`

	RetryAttempts int           `default:"3"`
	RetryInterval time.Duration `default:"2s"`

	AutoApplyMigrations bool
	MigrationsDir       string `default:"migrations"`
	MigrationsTable     string `default:"schema_migrations"`
}

// DSN returns the connection string the pool is opened with.
func (o *Options) DSN() string {
	if o.ConnectionString != "" {
		return o.ConnectionString
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(o.Username, o.Password),
		Host:     net.JoinHostPort(o.Host, strconv.Itoa(o.Port)),
		Path:     "/" + o.Database,
		RawQuery: url.Values{"sslmode": {o.SSLMode}}.Encode(),
	}
	return u.String()
}

// Validator implements apphost.ValidatableOptions.
func (o *Options) Validator() (apphost.Validator[*Options], error) {
	discrete := func(o *Options) bool { return o.ConnectionString == "" }
	return apphost.NewRuleValidator[*Options]().
		RuleWhen(discrete, "Host", func(o *Options) bool { return o.Host != "" }, "Postgres host can't be empty").
		RuleWhen(discrete, "Username", func(o *Options) bool { return o.Username != "" }, "Postgres username can't be empty").
		RuleWhen(discrete, "Database", func(o *Options) bool { return o.Database != "" }, "Postgres database can't be empty").
		RuleWhen(discrete, "Port", func(o *Options) bool { return o.Port > 0 && o.Port <= 65535 }, "Postgres port must be between 1 and 65535").
		Rule("MaxConns", func(o *Options) bool { return o.MaxConns > 0 }, "must be positive").
		Rule("MinConns", func(o *Options) bool { return o.MinConns >= 0 && o.MinConns <= o.MaxConns }, "must be between 0 and MaxConns").
		RuleWhen(func(o *Options) bool { return o.AutoApplyMigrations }, "MigrationsDir",
			func(o *Options) bool { return o.MigrationsDir != "" }, "is required when AutoApplyMigrations is set"), nil
}
