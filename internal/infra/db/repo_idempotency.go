package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/domain"
)

type IdempotencyRepository struct {
	db *gorm.DB
}

func NewIdempotencyRepository(db *gorm.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	if r.db == nil {
		return nil, readErr(errDBUnavailable)
	}
	var model IdempotencyModel
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, readErr(err)
	}
	return &domain.IdempotencyRecord{
		Key:        model.Key,
		RequestCID: model.RequestCID,
		Response:   append([]byte(nil), model.Response...),
	}, nil
}

// PutIfAbsent inserts with ON CONFLICT DO NOTHING; a zero row count means another writer
// got there first and its record is returned.
func (r *IdempotencyRepository) PutIfAbsent(ctx context.Context, rec domain.IdempotencyRecord) (*domain.IdempotencyRecord, bool, error) {
	if r.db == nil {
		return nil, false, writeErr(errDBUnavailable)
	}
	model := IdempotencyModel{
		Key:        rec.Key,
		RequestCID: rec.RequestCID,
		Response:   append([]byte(nil), rec.Response...),
		CreatedAt:  time.Now().UTC(),
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model)
	if result.Error != nil {
		return nil, false, writeErr(result.Error)
	}
	if result.RowsAffected == 1 {
		return nil, true, nil
	}
	existing, err := r.Get(ctx, rec.Key)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

var _ domain.IdempotencyStore = (*IdempotencyRepository)(nil)
