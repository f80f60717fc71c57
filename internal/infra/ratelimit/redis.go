package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/domain"
)

const quotaKeyPrefix = "signet:quota:"

// slidingWindow keeps one sorted-set member per admitted request, scored by its time in
// milliseconds. Denied requests are not recorded.
var slidingWindow = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
local count = redis.call("ZCARD", KEYS[1])
local admitted = 0
if count < limit then
  redis.call("ZADD", KEYS[1], now, ARGV[4])
  count = count + 1
  admitted = 1
end
redis.call("PEXPIRE", KEYS[1], window)
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
local first = now
if oldest[2] then
  first = tonumber(oldest[2])
end
return {admitted, count, first}
`)

// RedisQuota shares a sliding-window log across every process using the same Redis.
type RedisQuota struct {
	client redis.UniversalClient
	policy domain.QuotaPolicy
	now    func() time.Time
}

func NewRedisQuota(client redis.UniversalClient, policy domain.QuotaPolicy, now func() time.Time) (*RedisQuota, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if !policy.Enabled() {
		return nil, errors.New("quota policy needs positive requests and window")
	}
	if now == nil {
		now = time.Now
	}
	return &RedisQuota{client: client, policy: policy, now: now}, nil
}

func (q *RedisQuota) Admit(ctx context.Context, key string) (domain.Admission, error) {
	now := q.now()
	nowMillis := now.UnixMilli()
	windowMillis := q.policy.Window.Milliseconds()

	vals, err := slidingWindow.Run(ctx, q.client,
		[]string{quotaKeyPrefix + key},
		nowMillis, windowMillis, q.policy.Requests, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return domain.Admission{}, fmt.Errorf("redis quota: %w", err)
	}
	if len(vals) != 3 {
		return domain.Admission{}, fmt.Errorf("redis quota: unexpected reply of %d values", len(vals))
	}
	admitted, count, first := vals[0] == 1, int(vals[1]), vals[2]

	// the oldest admitted request leaves the window at first+window
	freeAt := time.UnixMilli(first + windowMillis)
	out := domain.Admission{
		Allowed:   admitted,
		Limit:     q.policy.Requests,
		Remaining: max(q.policy.Requests-count, 0),
		ResetAt:   freeAt,
	}
	if !admitted {
		out.RetryAfter = max(freeAt.Sub(now), 0)
	}
	return out, nil
}

var _ domain.ClientQuota = (*RedisQuota)(nil)
