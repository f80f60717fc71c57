package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/domain"
)

const redisKeyPrefix = "signet:idempotency:"

// RedisStore relies on SETNX so concurrent writers across processes cannot overwrite
// the first record. A zero ttl keeps records until evicted by redis.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisStore(client redis.UniversalClient, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: redis get: %v", domain.ErrStorageRead, err)
	}
	var rec domain.IdempotencyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: decode idempotency record: %v", domain.ErrStorageRead, err)
	}
	return &rec, nil
}

func (s *RedisStore) PutIfAbsent(ctx context.Context, rec domain.IdempotencyRecord) (*domain.IdempotencyRecord, bool, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, false, fmt.Errorf("encode idempotency record: %w", err)
	}
	stored, err := s.client.SetNX(ctx, redisKeyPrefix+rec.Key, payload, s.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("%w: redis setnx: %v", domain.ErrStorageWrite, err)
	}
	if stored {
		return nil, true, nil
	}
	existing, err := s.Get(ctx, rec.Key)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		// expired between SETNX and GET
		return s.PutIfAbsent(ctx, rec)
	}
	return existing, false, nil
}

var _ domain.IdempotencyStore = (*RedisStore)(nil)
