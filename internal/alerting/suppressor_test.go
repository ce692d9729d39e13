package alerting

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisSuppressorWindow(t *testing.T) {
	mr, client := setupTestRedis(t)
	s := NewRedisSuppressor(client, 15*time.Minute)
	ctx := context.Background()

	allowed, err := s.Allow(ctx, "issuer_refusal_spike:103")
	require.NoError(t, err)
	assert.True(t, allowed, "first occurrence must pass")

	allowed, err = s.Allow(ctx, "issuer_refusal_spike:103")
	require.NoError(t, err)
	assert.False(t, allowed, "repeat inside the window must be suppressed")

	allowed, err = s.Allow(ctx, "issuer_refusal_spike:104")
	require.NoError(t, err)
	assert.True(t, allowed, "other subjects are independent")

	mr.FastForward(16 * time.Minute)

	allowed, err = s.Allow(ctx, "issuer_refusal_spike:103")
	require.NoError(t, err)
	assert.True(t, allowed, "window expiry must re-arm the alert")
}

func TestRedisSuppressorFailsOpen(t *testing.T) {
	mr, client := setupTestRedis(t)
	s := NewRedisSuppressor(client, time.Minute)
	mr.Close()

	allowed, err := s.Allow(context.Background(), "stale_data")
	assert.Error(t, err)
	assert.True(t, allowed)
}

func TestNilSuppressorAllows(t *testing.T) {
	var s *RedisSuppressor
	allowed, err := s.Allow(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, allowed)
}
