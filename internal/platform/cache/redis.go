package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const keyPrefix = "careslot"

// Redis is a Store backed by go-redis. Each scope has a counter at
// careslot:ver:<scope>; entries live at careslot:slots:<scope>:v<n>:<key>.
// A Set under a version that has since been bumped lands on a key no Get
// will read again.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedis parses a redis:// URL, pings the server and returns a Store.
func NewRedis(ctx context.Context, rawURL string, ttl time.Duration, logger zerolog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{client: client, ttl: ttl, logger: logger}, nil
}

func versionKey(scope string) string { return keyPrefix + ":ver:" + scope }

func entryKey(scope, version, key string) string {
	return keyPrefix + ":slots:" + scope + ":v" + version + ":" + key
}

func (r *Redis) version(ctx context.Context, scope string) (string, error) {
	v, err := r.client.Get(ctx, versionKey(scope)).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return v, err
}

func (r *Redis) Get(ctx context.Context, scope, key string) ([]byte, string, bool) {
	v, err := r.version(ctx, scope)
	if err != nil {
		r.logger.Warn().Err(err).Str("scope", scope).Msg("slot cache version read failed")
		return nil, "", false
	}
	data, err := r.client.Get(ctx, entryKey(scope, v, key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn().Err(err).Str("scope", scope).Str("key", key).Msg("slot cache read failed")
		}
		return nil, v, false
	}
	return data, v, true
}

func (r *Redis) Set(ctx context.Context, scope, key, version string, value []byte) {
	if version == "" {
		return
	}
	if err := r.client.Set(ctx, entryKey(scope, version, key), value, r.ttl).Err(); err != nil {
		r.logger.Warn().Err(err).Str("scope", scope).Str("key", key).Msg("slot cache write failed")
	}
}

func (r *Redis) Invalidate(ctx context.Context, scope string) {
	if err := r.client.Incr(ctx, versionKey(scope)).Err(); err != nil {
		r.logger.Error().Err(err).Str("scope", scope).Msg("slot cache invalidation failed")
	}
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error { return r.client.Close() }
