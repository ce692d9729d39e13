package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const suppressionPrefix = "svfemon:suppress:"

// RedisSuppressor keeps one key per alert condition for the length of the
// suppression window.
type RedisSuppressor struct {
	client *redis.Client
	window time.Duration
}

// NewRedisSuppressor wraps an existing client.
func NewRedisSuppressor(client *redis.Client, window time.Duration) *RedisSuppressor {
	return &RedisSuppressor{client: client, window: window}
}

// DialRedisSuppressor connects to the Redis URL and verifies it answers.
func DialRedisSuppressor(ctx context.Context, url string, window time.Duration) (*RedisSuppressor, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisSuppressor(client, window), nil
}

// Allow reports whether key is outside its window and, if so, opens a new one.
func (s *RedisSuppressor) Allow(ctx context.Context, key string) (bool, error) {
	if s == nil || s.client == nil || s.window <= 0 {
		return true, nil
	}
	set, err := s.client.SetNX(ctx, suppressionPrefix+key, time.Now().Unix(), s.window).Result()
	if err != nil {
		return true, fmt.Errorf("record suppression: %w", err)
	}
	return set, nil
}

// Close releases the Redis connection.
func (s *RedisSuppressor) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

var _ Suppressor = (*RedisSuppressor)(nil)
