// Package ratelimit meters exchange submissions per client.
package ratelimit

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/domain"
)

var ErrCapacity = errors.New("rate limiter capacity exceeded")

type MemoryOptions struct {
	Now     func() time.Time
	MaxKeys int
}

// MemoryQuota gives every client a token bucket holding policy.Requests tokens that
// refills over policy.Window. Idle clients are evicted once their bucket is full again.
type MemoryQuota struct {
	policy  domain.QuotaPolicy
	every   rate.Limit
	now     func() time.Time
	maxKeys int

	mu      sync.Mutex
	clients map[string]*client
}

type client struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

func NewMemoryQuota(policy domain.QuotaPolicy, opts MemoryOptions) (*MemoryQuota, error) {
	if !policy.Enabled() {
		return nil, errors.New("quota policy needs positive requests and window")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxKeys <= 0 {
		opts.MaxKeys = 10000
	}
	return &MemoryQuota{
		policy:  policy,
		every:   rate.Every(policy.Window / time.Duration(policy.Requests)),
		now:     opts.Now,
		maxKeys: opts.MaxKeys,
		clients: make(map[string]*client),
	}, nil
}

func (q *MemoryQuota) Admit(_ context.Context, key string) (domain.Admission, error) {
	now := q.now()

	q.mu.Lock()
	defer q.mu.Unlock()

	c, ok := q.clients[key]
	if !ok {
		if len(q.clients) >= q.maxKeys {
			q.evictIdle(now)
		}
		if len(q.clients) >= q.maxKeys {
			return domain.Admission{}, ErrCapacity
		}
		c = &client{bucket: rate.NewLimiter(q.every, q.policy.Requests)}
		q.clients[key] = c
	}
	c.lastSeen = now

	allowed := c.bucket.AllowN(now, 1)
	tokens := c.bucket.TokensAt(now)

	out := domain.Admission{
		Allowed:   allowed,
		Limit:     q.policy.Requests,
		Remaining: int(math.Max(0, math.Floor(tokens))),
		ResetAt:   now.Add(q.refill(float64(q.policy.Requests) - tokens)),
	}
	if !allowed {
		out.RetryAfter = q.refill(1 - tokens)
	}
	return out, nil
}

// refill is the time the bucket needs to regain n tokens.
func (q *MemoryQuota) refill(n float64) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n * float64(q.policy.Window) / float64(q.policy.Requests))
}

func (q *MemoryQuota) evictIdle(now time.Time) {
	for key, c := range q.clients {
		if now.Sub(c.lastSeen) > q.policy.Window {
			delete(q.clients, key)
		}
	}
}

var _ domain.ClientQuota = (*MemoryQuota)(nil)
