package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/domain"
	"github.com/Maverick0351a/signet-protocol-core-console/internal/infra/crypto"
)

type ReceiptRepository struct {
	db    *gorm.DB
	canon crypto.Canonicalizer
	now   func() time.Time
}

func NewReceiptRepository(db *gorm.DB, canon crypto.Canonicalizer, now func() time.Time) *ReceiptRepository {
	if now == nil {
		now = time.Now
	}
	return &ReceiptRepository{db: db, canon: canon, now: now}
}

// Append runs inside one transaction holding the trace_seq row lock, so concurrent appends
// to a trace from any number of processes are serialized.
func (r *ReceiptRepository) Append(ctx context.Context, traceID string, normalized json.RawMessage) (domain.Receipt, error) {
	if r.db == nil {
		return domain.Receipt{}, writeErr(errDBUnavailable)
	}
	var out domain.Receipt
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prev, err := lockTraceHead(ctx, tx, traceID)
		if err != nil {
			return err
		}
		rec, err := crypto.NextReceipt(r.canon, traceID, normalized, prev, r.now())
		if err != nil {
			return err
		}
		model := receiptModelFromDomain(rec)
		model.CreatedAt = r.now().UTC()
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		if err := tx.Exec("UPDATE trace_seq SET hop = ? WHERE trace_id = ?", rec.Hop, traceID).Error; err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrCanonicalize) {
			return domain.Receipt{}, err
		}
		return domain.Receipt{}, writeErr(err)
	}
	return out, nil
}

func (r *ReceiptRepository) ReadChain(ctx context.Context, traceID string) ([]domain.Receipt, error) {
	if r.db == nil {
		return nil, readErr(errDBUnavailable)
	}
	var models []ReceiptModel
	if err := r.db.WithContext(ctx).
		Where("trace_id = ?", traceID).
		Order("hop ASC").
		Find(&models).Error; err != nil {
		return nil, readErr(err)
	}
	out := make([]domain.Receipt, 0, len(models))
	for _, model := range models {
		out = append(out, receiptFromModel(model))
	}
	return out, nil
}

// lockTraceHead locks the sequence row of traceID and returns the last receipt, or nil for
// a new trace.
func lockTraceHead(ctx context.Context, tx *gorm.DB, traceID string) (*domain.Receipt, error) {
	if traceID == "" {
		return nil, errors.New("trace_id is required")
	}
	if err := tx.WithContext(ctx).Exec(
		"INSERT INTO trace_seq (trace_id, hop) VALUES (?, 0) ON CONFLICT (trace_id) DO NOTHING",
		traceID,
	).Error; err != nil {
		return nil, err
	}

	var current int64
	if err := tx.WithContext(ctx).Raw(
		"SELECT hop FROM trace_seq WHERE trace_id = ? FOR UPDATE",
		traceID,
	).Scan(&current).Error; err != nil {
		return nil, err
	}
	if current == 0 {
		return nil, nil
	}
	var prev ReceiptModel
	if err := tx.WithContext(ctx).
		Where("trace_id = ? AND hop = ?", traceID, current).
		Take(&prev).Error; err != nil {
		return nil, err
	}
	rec := receiptFromModel(prev)
	return &rec, nil
}

func receiptModelFromDomain(rec domain.Receipt) ReceiptModel {
	return ReceiptModel{
		TraceID:         rec.TraceID,
		Hop:             rec.Hop,
		TS:              rec.TS,
		CID:             rec.CID,
		ReceiptHash:     rec.ReceiptHash,
		PrevReceiptHash: copyString(rec.PrevReceiptHash),
		PrevCID:         copyString(rec.PrevCID),
		Normalized:      string(rec.Normalized),
	}
}

func receiptFromModel(model ReceiptModel) domain.Receipt {
	rec := domain.Receipt{
		TraceID:         model.TraceID,
		TS:              model.TS,
		CID:             model.CID,
		ReceiptHash:     model.ReceiptHash,
		PrevReceiptHash: copyString(model.PrevReceiptHash),
		PrevCID:         copyString(model.PrevCID),
		Hop:             model.Hop,
	}
	if model.Normalized != "" {
		rec.Normalized = json.RawMessage(model.Normalized)
	}
	return rec
}

var _ domain.ReceiptLedger = (*ReceiptRepository)(nil)
