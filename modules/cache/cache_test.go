package cache

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/apphost"
	"github.com/GoCodeAlone/apphost/config"
	"github.com/GoCodeAlone/apphost/health"
)

type profile struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

func TestMemoryCache_SetGetDelete(t *testing.T) {
	ctx := t.Context()
	c := newMemoryCache(&Options{MaxItems: 10, KeyPrefix: "app:"})

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	v[0] = 'x'
	v, _, _ = c.Get(ctx, "k")
	assert.Equal(t, []byte("v"), v, "callers get a copy")

	require.NoError(t, c.Delete(ctx, "k"))
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := t.Context()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newMemoryCache(&Options{MaxItems: 10, DefaultTTL: time.Minute})
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "default", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "short", []byte("2"), time.Second))
	require.NoError(t, c.Set(ctx, "forever", []byte("3"), -1))

	now = now.Add(2 * time.Second)
	_, ok, _ := c.Get(ctx, "short")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "default")
	assert.True(t, ok)

	now = now.Add(time.Hour)
	assert.Equal(t, 2, c.cleanup())
	_, ok, _ = c.Get(ctx, "forever")
	assert.True(t, ok)
}

func TestMemoryCache_Full(t *testing.T) {
	ctx := t.Context()
	c := newMemoryCache(&Options{MaxItems: 1})

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "a", []byte("2"), 0), "overwriting does not count")
	assert.ErrorIs(t, c.Set(ctx, "b", []byte("3"), 0), ErrCacheFull)
}

func TestMemoryCache_FlushKeepsOtherPrefixes(t *testing.T) {
	ctx := t.Context()
	c := newMemoryCache(&Options{MaxItems: 10, KeyPrefix: "a:"})
	other := &memoryCache{items: c.items, prefix: "b:", maxItems: 10, now: time.Now}

	require.NoError(t, c.Set(ctx, "k", []byte("1"), 0))
	require.NoError(t, other.Set(ctx, "k", []byte("2"), 0))
	require.NoError(t, c.Flush(ctx))

	_, ok, _ := c.Get(ctx, "k")
	assert.False(t, ok)
	_, ok, _ = other.Get(ctx, "k")
	assert.True(t, ok)
}

func TestJSONHelpers(t *testing.T) {
	ctx := t.Context()
	c := newMemoryCache(&Options{MaxItems: 10})

	require.NoError(t, SetJSON(ctx, c, "p", profile{Name: "ada", Score: 3}, 0))
	p, ok, err := GetJSON[profile](ctx, c, "p")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, profile{Name: "ada", Score: 3}, p)

	require.NoError(t, c.Set(ctx, "bad", []byte("{"), 0))
	_, _, err = GetJSON[profile](ctx, c, "bad")
	assert.Error(t, err)
}

func TestRedisCache(t *testing.T) {
	ctx := t.Context()
	srv := miniredis.RunT(t)

	client, err := openRedis(ctx, RedisOptions{URL: "redis://" + srv.Addr(), RetryAttempts: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	c := &redisCache{client: client, prefix: "app:", defaultTTL: time.Minute}

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	assert.True(t, srv.Exists("app:k"))
	assert.Equal(t, time.Minute, srv.TTL("app:k"))

	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	require.NoError(t, srv.Set("other", "x"))
	require.NoError(t, c.Flush(ctx))
	assert.False(t, srv.Exists("app:k"))
	assert.True(t, srv.Exists("other"))

	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.healthcheck(ctx))
	srv.Close()
	assert.ErrorIs(t, c.healthcheck(ctx), ErrHealthcheckFailed)
}

func TestOpenRedis_Failures(t *testing.T) {
	_, err := openRedis(t.Context(), RedisOptions{URL: "not-a-url"})
	assert.ErrorIs(t, err, ErrConnectionFailed)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = openRedis(ctx, RedisOptions{URL: "redis://127.0.0.1:1", RetryAttempts: 2, RetryInterval: time.Hour})
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

func TestOptions_Validator(t *testing.T) {
	tests := []struct {
		name    string
		options Options
		fields  []string
	}{
		{name: "memory", options: Options{Engine: EngineMemory, CleanupInterval: time.Minute, MaxItems: 1}},
		{name: "memory limits", options: Options{Engine: EngineMemory}, fields: []string{"CleanupInterval", "MaxItems"}},
		{name: "unknown engine", options: Options{Engine: "memcached", CleanupInterval: time.Minute, MaxItems: 1}, fields: []string{"Engine"}},
		{name: "redis without url", options: Options{Engine: EngineRedis}, fields: []string{"Redis:URL"}},
		{name: "redis", options: Options{Engine: EngineRedis, Redis: RedisOptions{URL: "rediss://cache:6380/1"}}},
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

type consumerOptions struct {
	apphost.BaseModuleOptions
}

// consumerModule uses the cache services once the application has started.
type consumerModule struct {
	cancel context.CancelFunc
	value  []byte
	client bool
	checks []string
	err    error
}

func (*consumerModule) OptionKeys() []string { return []string{"Consumer"} }

func (c *consumerModule) ApplicationStarted(ctx context.Context, _ *apphost.ApplicationContext, services apphost.Resolver) error {
	defer c.cancel()
	cache, err := apphost.Resolve[Cache](services)
	if err != nil {
		c.err = err
		return err
	}
	if err := cache.Set(ctx, "greeting", []byte("hello"), 0); err != nil {
		c.err = err
		return err
	}
	c.value, _, c.err = cache.Get(ctx, "greeting")
	c.client = apphost.Has[redis.UniversalClient](services)
	if checks, err := apphost.Resolve[*health.Aggregator](services); err == nil {
		c.checks = checks.Names()
	}
	return nil
}

func runWithCache(t *testing.T, values map[string]string) *consumerModule {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	consumer := &consumerModule{cancel: cancel}
	app := apphost.New(
		apphost.WithArgs(),
		apphost.WithSignals(),
		apphost.WithLogOutput(io.Discard),
		apphost.WithConfigProviders(config.Map(values)),
	)
	require.NoError(t, apphost.AddModule[Options](app, New()))
	require.NoError(t, apphost.AddModule[consumerOptions](app, consumer))

	code, err := app.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, code)
	require.NoError(t, consumer.err)
	return consumer
}

func TestModule_MemoryEngine(t *testing.T) {
	consumer := runWithCache(t, map[string]string{"Cache:KeyPrefix": "app:"})

	assert.Equal(t, []byte("hello"), consumer.value)
	assert.False(t, consumer.client)
}

func TestModule_RedisEngine(t *testing.T) {
	srv := miniredis.RunT(t)
	consumer := runWithCache(t, map[string]string{
		"Cache:Engine":    "redis",
		"Cache:KeyPrefix": "app:",
		"Cache:Redis:URL": "redis://" + srv.Addr(),
	})

	assert.Equal(t, []byte("hello"), consumer.value)
	assert.True(t, consumer.client)
	assert.Equal(t, []string{"redis"}, consumer.checks)
	assert.True(t, srv.Exists("app:greeting"))
}

func TestModule_ServiceBeforeInit(t *testing.T) {
	services := apphost.NewContainer()
	m := New()
	require.NoError(t, m.ConfigureServices(nil, services, &Options{Engine: EngineRedis}))

	_, err := apphost.Resolve[Cache](services)
	assert.ErrorIs(t, err, ErrNotInitialized)
}
