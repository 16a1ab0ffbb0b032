package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrCacheFull         = errors.New("cache: cache is full")
	ErrNotInitialized    = errors.New("cache: cache is not initialized")
	ErrConnectionFailed  = errors.New("cache: failed to establish redis connection")
	ErrHealthcheckFailed = errors.New("cache: healthcheck failed")
)

// Cache is the service other modules use.
type Cache interface {
	// Get returns the value stored for key and whether it was found.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value for ttl; a zero ttl uses the configured default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	// Flush removes every entry under the configured prefix.
	Flush(ctx context.Context) error
}

// GetJSON decodes the JSON value stored for key into a T.
func GetJSON[T any](ctx context.Context, c Cache, key string) (T, bool, error) {
	var v T
	data, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return v, ok, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, false, fmt.Errorf("cache: decode %q: %w", key, err)
	}
	return v, true, nil
}

// SetJSON stores v encoded as JSON.
func SetJSON[T any](ctx context.Context, c Cache, key string, v T, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %q: %w", key, err)
	}
	return c.Set(ctx, key, data, ttl)
}
