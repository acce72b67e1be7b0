package prefs

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisHashPrefix = "prefs:"

// Redis implements Preferences with one hash per namespace.
type Redis struct {
	client *redis.Client
	hash   string
}

// OpenRedis connects to addr and verifies the server is reachable.
func OpenRedis(ctx context.Context, addr, namespace string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}

	return NewRedis(client, namespace), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, namespace string) *Redis {
	return &Redis{
		client: client,
		hash:   redisHashPrefix + namespace,
	}
}

// GetString returns the value stored under key.
func (r *Redis) GetString(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}

	value, err := r.client.HGet(ctx, r.hash, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get preference %s: %w", key, err)
	}

	return value, true, nil
}

// PutString stores value under key.
func (r *Redis) PutString(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}

	if err := r.client.HSet(ctx, r.hash, key, value).Err(); err != nil {
		return fmt.Errorf("put preference %s: %w", key, err)
	}

	return nil
}

// Remove deletes key.
func (r *Redis) Remove(ctx context.Context, key string) error {
	if err := r.client.HDel(ctx, r.hash, key).Err(); err != nil {
		return fmt.Errorf("remove preference %s: %w", key, err)
	}

	return nil
}

// Close closes the redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}
