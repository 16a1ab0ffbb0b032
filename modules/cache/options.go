package cache

import (
	"strings"
	"time"

	"github.com/GoCodeAlone/apphost"
)

// Engine names.
const (
	EngineMemory = "memory"
	EngineRedis  = "redis"
)

// Options configures the cache. Bound from the "Cache" section.
type Options struct {
	apphost.BaseModuleOptions

	// Engine selects the backend: "memory" or "redis".
	Engine string `default:"memory"`

	// DefaultTTL applies when Set is called with a zero TTL. Zero keeps entries forever.
	DefaultTTL time.Duration `default:"5m"`

	// KeyPrefix is prepended to every key.
	KeyPrefix string

	// CleanupInterval is how often the memory engine evicts expired entries.
	CleanupInterval time.Duration `default:"1m"`

	// MaxItems caps the memory engine; Set fails with ErrCacheFull beyond it.
	MaxItems int `default:"10000"`

	Redis RedisOptions
}

// RedisOptions configures the redis engine.
type RedisOptions struct {
	// URL has the form redis://[user:password@]host:port[/db].
	URL string

	PoolSize      int           `default:"10"`
	MinIdleConns  int           `default:"2"`
	DialTimeout   time.Duration `default:"5s"`
	ReadTimeout   time.Duration `default:"3s"`
	WriteTimeout  time.Duration `default:"3s"`
	RetryAttempts int           `default:"3"`
	RetryInterval time.Duration `default:"2s"`
}

// Validator implements apphost.ValidatableOptions.
func (o *Options) Validator() (apphost.Validator[*Options], error) {
	usesRedis := func(o *Options) bool { return strings.EqualFold(o.Engine, EngineRedis) }
	return apphost.NewRuleValidator[*Options]().
		OneOf("Engine", func(o *Options) string { return o.Engine }, EngineMemory, EngineRedis).
		Rule("DefaultTTL", func(o *Options) bool { return o.DefaultTTL >= 0 }, "must not be negative").
		RuleWhen(func(o *Options) bool { return !usesRedis(o) }, "CleanupInterval",
			func(o *Options) bool { return o.CleanupInterval > 0 }, "must be positive").
		RuleWhen(func(o *Options) bool { return !usesRedis(o) }, "MaxItems",
			func(o *Options) bool { return o.MaxItems > 0 }, "must be positive").
		RuleWhen(usesRedis, "Redis:URL", func(o *Options) bool {
			return strings.HasPrefix(o.Redis.URL, "redis://") || strings.HasPrefix(o.Redis.URL, "rediss://")
		}, "must be a redis:// or rediss:// URL"), nil
}
