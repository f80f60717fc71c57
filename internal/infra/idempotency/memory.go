// Package idempotency stores the first response produced for each idempotency key.
package idempotency

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/domain"
	"github.com/Maverick0351a/signet-protocol-core-console/internal/infra/jsonl"
)

// MemoryStore keeps records in memory and, when a log is attached, appends every new
// record to it. Oldest keys are evicted first once maxKeys is reached; maxKeys <= 0 means
// unbounded.
type MemoryStore struct {
	log     *jsonl.Log
	maxKeys int
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
}

func NewMemoryStore(maxKeys int) *MemoryStore {
	return &MemoryStore{
		maxKeys: maxKeys,
		logger:  slog.Default(),
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// OpenMemoryStore replays log into memory, first line per key winning, and keeps
// appending new records to it.
func OpenMemoryStore(log *jsonl.Log, maxKeys int, logger *slog.Logger) (*MemoryStore, error) {
	s := NewMemoryStore(maxKeys)
	if logger != nil {
		s.logger = logger
	}
	lineNo := 0
	err := log.Scan(func(line []byte) error {
		lineNo++
		var rec domain.IdempotencyRecord
		if err := json.Unmarshal(line, &rec); err != nil || rec.Key == "" || len(rec.Response) == 0 {
			s.logger.Warn("skipping malformed idempotency line", "path", log.Path(), "line", lineNo)
			return nil
		}
		if _, ok := s.entries[rec.Key]; ok {
			return nil
		}
		s.insert(rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replay idempotency log: %w", err)
	}
	s.log = log
	s.logger.Info("idempotency log replayed", "path", log.Path(), "keys", len(s.entries))
	return s, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (*domain.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	rec := el.Value.(domain.IdempotencyRecord)
	return &rec, nil
}

func (s *MemoryStore) PutIfAbsent(_ context.Context, rec domain.IdempotencyRecord) (*domain.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.entries[rec.Key]; ok {
		existing := el.Value.(domain.IdempotencyRecord)
		return &existing, false, nil
	}
	if s.log != nil {
		if err := s.log.Append(rec); err != nil {
			return nil, false, fmt.Errorf("%w: %v", domain.ErrStorageWrite, err)
		}
	}
	s.insert(rec)
	return nil, true, nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// insert requires s.mu or exclusive access.
func (s *MemoryStore) insert(rec domain.IdempotencyRecord) {
	s.entries[rec.Key] = s.order.PushBack(rec)
	for s.maxKeys > 0 && len(s.entries) > s.maxKeys {
		oldest := s.order.Front()
		s.order.Remove(oldest)
		delete(s.entries, oldest.Value.(domain.IdempotencyRecord).Key)
	}
}

var _ domain.IdempotencyStore = (*MemoryStore)(nil)
