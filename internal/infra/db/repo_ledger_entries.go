package db

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/domain"
)

type LedgerEntryRepository struct {
	db *gorm.DB
}

func NewLedgerEntryRepository(db *gorm.DB) *LedgerEntryRepository {
	return &LedgerEntryRepository{db: db}
}

func (r *LedgerEntryRepository) Record(ctx context.Context, entry domain.LedgerEntry) error {
	if r.db == nil {
		return writeErr(errDBUnavailable)
	}
	model := LedgerEntryModel{
		TraceID:     entry.TraceID,
		Hop:         entry.Hop,
		TS:          entry.TS,
		PayloadType: entry.PayloadType,
		TargetType:  copyString(entry.TargetType),
		CID:         entry.CID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return writeErr(err)
	}
	return nil
}

func (r *LedgerEntryRepository) ListByTrace(ctx context.Context, traceID string) ([]domain.LedgerEntry, error) {
	if r.db == nil {
		return nil, readErr(errDBUnavailable)
	}
	var models []LedgerEntryModel
	if err := r.db.WithContext(ctx).
		Where("trace_id = ?", traceID).
		Order("hop ASC, id ASC").
		Find(&models).Error; err != nil {
		return nil, readErr(err)
	}
	out := make([]domain.LedgerEntry, 0, len(models))
	for _, model := range models {
		out = append(out, domain.LedgerEntry{
			TraceID:     model.TraceID,
			Hop:         model.Hop,
			TS:          model.TS,
			PayloadType: model.PayloadType,
			TargetType:  copyString(model.TargetType),
			CID:         model.CID,
		})
	}
	return out, nil
}

var _ domain.AuditLedger = (*LedgerEntryRepository)(nil)
