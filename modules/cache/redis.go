package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCache stores entries in Redis.
type redisCache struct {
	client     redis.UniversalClient
	prefix     string
	defaultTTL time.Duration
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (c *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	return c.client.Set(ctx, c.prefix+key, value, ttl).Err()
}

func (c *redisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefix+key).Err()
}

// Flush deletes the keys under the prefix, or the whole database when there is none.
func (c *redisCache) Flush(ctx context.Context) error {
	if c.prefix == "" {
		return c.client.FlushDB(ctx).Err()
	}
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *redisCache) healthcheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return errors.Join(ErrHealthcheckFailed, err)
	}
	return nil
}

// openRedis parses o.URL and pings with linear backoff until the server answers.
func openRedis(ctx context.Context, o RedisOptions) (redis.UniversalClient, error) {
	opts, err := redis.ParseURL(o.URL)
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	opts.PoolSize = o.PoolSize
	opts.MinIdleConns = o.MinIdleConns
	opts.DialTimeout = o.DialTimeout
	opts.ReadTimeout = o.ReadTimeout
	opts.WriteTimeout = o.WriteTimeout

	attempts := max(o.RetryAttempts, 1)
	var lastErr error
	for i := range attempts {
		client := redis.NewClient(opts)
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return client, nil
		}
		_ = client.Close()
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrConnectionFailed, ctx.Err())
		case <-time.After(time.Duration(i+1) * o.RetryInterval):
		}
	}
	return nil, errors.Join(ErrConnectionFailed, lastErr)
}
