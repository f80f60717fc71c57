package domain

import (
	"context"
	"encoding/json"
)

// IdempotencyRecord is the stored first response for a client supplied key.
type IdempotencyRecord struct {
	Key        string          `json:"key"`
	RequestCID string          `json:"request_cid,omitempty"`
	Response   json.RawMessage `json:"response"`
}

// IdempotencyStore persists key to response mappings. PutIfAbsent never overwrites:
// when the key already exists the stored record is returned with stored=false.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*IdempotencyRecord, error)
	PutIfAbsent(ctx context.Context, rec IdempotencyRecord) (existing *IdempotencyRecord, stored bool, err error)
}
