package usecase

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/domain"
)

type IdempotentResult struct {
	Response json.RawMessage
	Replayed bool
	// Mismatch is set on a replay whose request differs from the one that was stored.
	Mismatch bool
}

// IdempotencyCache runs compute at most once per key. The first stored response wins and
// compute errors are never stored.
type IdempotencyCache struct {
	Store  domain.IdempotencyStore
	Locks  KeyLocker
	Logger *slog.Logger
}

func (c *IdempotencyCache) Do(ctx context.Context, key, requestCID string, compute func(ctx context.Context) (json.RawMessage, error)) (IdempotentResult, error) {
	if key == "" || c == nil || c.Store == nil {
		resp, err := compute(ctx)
		if err != nil {
			return IdempotentResult{}, err
		}
		return IdempotentResult{Response: resp}, nil
	}

	if c.Locks != nil {
		unlock := c.Locks.Lock(key)
		defer unlock()
	}

	existing, err := c.Store.Get(ctx, key)
	if err != nil {
		return IdempotentResult{}, err
	}
	if existing != nil {
		return c.replay(key, requestCID, existing), nil
	}

	resp, err := compute(ctx)
	if err != nil {
		return IdempotentResult{}, err
	}
	existing, stored, err := c.Store.PutIfAbsent(ctx, domain.IdempotencyRecord{
		Key:        key,
		RequestCID: requestCID,
		Response:   resp,
	})
	if err != nil {
		return IdempotentResult{}, err
	}
	if !stored && existing != nil {
		// another process stored first
		return c.replay(key, requestCID, existing), nil
	}
	return IdempotentResult{Response: resp}, nil
}

func (c *IdempotencyCache) replay(key, requestCID string, rec *domain.IdempotencyRecord) IdempotentResult {
	mismatch := rec.RequestCID != "" && requestCID != "" && rec.RequestCID != requestCID
	if mismatch {
		c.logger().Warn("idempotency key reused with a different request",
			"idempotency_key", key,
			"stored_request_cid", rec.RequestCID,
			"request_cid", requestCID,
		)
	}
	return IdempotentResult{Response: rec.Response, Replayed: true, Mismatch: mismatch}
}

func (c *IdempotencyCache) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}
