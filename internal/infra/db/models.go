package db

import "time"

// ReceiptModel stores normalized as text so the bytes hashed at append time are the bytes
// returned later; jsonb would reorder keys and rewrite numbers.
type ReceiptModel struct {
	ID              int64     `gorm:"primaryKey;autoIncrement"`
	TraceID         string    `gorm:"type:text;not null;uniqueIndex:receipts_trace_hop"`
	Hop             int64     `gorm:"not null;uniqueIndex:receipts_trace_hop"`
	TS              string    `gorm:"column:ts;type:text;not null"`
	CID             string    `gorm:"column:cid;type:text;not null"`
	ReceiptHash     string    `gorm:"type:text;not null"`
	PrevReceiptHash *string   `gorm:"type:text"`
	PrevCID         *string   `gorm:"column:prev_cid;type:text"`
	Normalized      string    `gorm:"type:text;not null"`
	CreatedAt       time.Time `gorm:"not null"`
}

func (ReceiptModel) TableName() string {
	return "receipts"
}

type TraceSeqModel struct {
	TraceID string `gorm:"type:text;primaryKey"`
	Hop     int64  `gorm:"not null"`
}

func (TraceSeqModel) TableName() string {
	return "trace_seq"
}

type LedgerEntryModel struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	TraceID     string    `gorm:"type:text;not null;index"`
	Hop         int64     `gorm:"not null"`
	TS          string    `gorm:"column:ts;type:text;not null"`
	PayloadType string    `gorm:"type:text;not null"`
	TargetType  *string   `gorm:"type:text"`
	CID         string    `gorm:"column:cid;type:text;not null"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (LedgerEntryModel) TableName() string {
	return "ledger_entries"
}

type IdempotencyModel struct {
	Key        string    `gorm:"column:idempotency_key;type:text;primaryKey"`
	RequestCID string    `gorm:"column:request_cid;type:text"`
	Response   []byte    `gorm:"type:bytea;not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (IdempotencyModel) TableName() string {
	return "idempotency_records"
}
