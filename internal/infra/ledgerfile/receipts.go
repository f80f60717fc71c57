// Package ledgerfile stores receipt chains and audit entries in append-only JSONL files.
package ledgerfile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/domain"
	"github.com/Maverick0351a/signet-protocol-core-console/internal/infra/crypto"
	"github.com/Maverick0351a/signet-protocol-core-console/internal/infra/jsonl"
	"github.com/Maverick0351a/signet-protocol-core-console/internal/infra/keymutex"
)

type ReceiptStore struct {
	log    *jsonl.Log
	canon  crypto.Canonicalizer
	locks  *keymutex.Table
	logger *slog.Logger
	now    func() time.Time
}

func NewReceiptStore(log *jsonl.Log, canon crypto.Canonicalizer, logger *slog.Logger) *ReceiptStore {
	return NewReceiptStoreWithClock(log, canon, logger, nil)
}

func NewReceiptStoreWithClock(log *jsonl.Log, canon crypto.Canonicalizer, logger *slog.Logger, now func() time.Time) *ReceiptStore {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &ReceiptStore{
		log:    log,
		canon:  canon,
		locks:  keymutex.New(),
		logger: logger,
		now:    now,
	}
}

// Append extends the chain of traceID. Appends to the same trace are serialized so that
// no two receipts share a hop or a predecessor.
func (s *ReceiptStore) Append(ctx context.Context, traceID string, normalized json.RawMessage) (domain.Receipt, error) {
	unlock := s.locks.Lock(traceID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return domain.Receipt{}, err
	}
	chain, err := s.ReadChain(ctx, traceID)
	if err != nil {
		return domain.Receipt{}, err
	}
	var prev *domain.Receipt
	if len(chain) > 0 {
		prev = &chain[len(chain)-1]
	}
	rec, err := crypto.NextReceipt(s.canon, traceID, normalized, prev, s.now())
	if err != nil {
		return domain.Receipt{}, err
	}
	if err := s.log.Append(rec); err != nil {
		s.logger.Error("receipt append failed", "trace_id", traceID, "hop", rec.Hop, "error", err)
		return domain.Receipt{}, fmt.Errorf("%w: %v", domain.ErrStorageWrite, err)
	}
	return rec, nil
}

// ReadChain returns the receipts of traceID ordered by hop. Lines that cannot be decoded
// are logged and skipped. An unknown trace yields an empty slice.
func (s *ReceiptStore) ReadChain(_ context.Context, traceID string) ([]domain.Receipt, error) {
	needle := []byte(traceID)
	chain := []domain.Receipt{}
	lineNo := 0
	err := s.log.Scan(func(line []byte) error {
		lineNo++
		if !bytes.Contains(line, needle) {
			return nil
		}
		var rec domain.Receipt
		if err := json.Unmarshal(line, &rec); err != nil {
			s.logger.Warn("skipping malformed receipt line", "path", s.log.Path(), "line", lineNo, "error", err)
			return nil
		}
		if rec.TraceID != traceID {
			return nil
		}
		if rec.Hop < 1 || rec.ReceiptHash == "" || rec.CID == "" {
			s.logger.Warn("skipping incomplete receipt line", "path", s.log.Path(), "line", lineNo, "trace_id", traceID)
			return nil
		}
		chain = append(chain, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageRead, err)
	}
	sort.SliceStable(chain, func(i, j int) bool { return chain[i].Hop < chain[j].Hop })
	return chain, nil
}

var _ domain.ReceiptLedger = (*ReceiptStore)(nil)
