//go:build integration

package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/domain"
)

func newRedisQuota(t *testing.T, requests int, now func() time.Time) *RedisQuota {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR_TEST")
	if addr == "" {
		t.Skip("REDIS_ADDR_TEST not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	q, err := NewRedisQuota(client, domain.QuotaPolicy{Requests: requests, Window: time.Minute}, now)
	require.NoError(t, err)
	return q
}

func TestRedisQuota_SlidingWindow(t *testing.T) {
	ctx := context.Background()
	start := time.Now()
	now := start
	q := newRedisQuota(t, 2, func() time.Time { return now })
	client := uuid.NewString()

	first, err := q.Admit(ctx, client)
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	assert.Equal(t, 1, first.Remaining)

	now = start.Add(30 * time.Second)
	second, err := q.Admit(ctx, client)
	require.NoError(t, err)
	assert.True(t, second.Allowed)
	assert.Equal(t, 0, second.Remaining)

	denied, err := q.Admit(ctx, client)
	require.NoError(t, err)
	assert.False(t, denied.Allowed)
	assert.InDelta(t, (30 * time.Second).Seconds(), denied.RetryAfter.Seconds(), 1)

	// the first request has left the window, the second has not
	now = start.Add(61 * time.Second)
	again, err := q.Admit(ctx, client)
	require.NoError(t, err)
	assert.True(t, again.Allowed)
	assert.Equal(t, 0, again.Remaining)
}

func TestRedisQuota_RejectsDisabledPolicy(t *testing.T) {
	_, err := NewRedisQuota(redis.NewClient(&redis.Options{}), domain.QuotaPolicy{}, nil)
	assert.Error(t, err)
}
