package domain

import (
	"context"
	"encoding/json"
)

// ReceiptTimeFormat is the UTC, second precision layout used for receipt and export timestamps.
// It is part of the receipt_hash preimage and must not change.
const ReceiptTimeFormat = "2006-01-02T15:04:05Z"

// Receipt is one hop of a trace's hash chain.
type Receipt struct {
	TraceID         string          `json:"trace_id"`
	TS              string          `json:"ts"`
	CID             string          `json:"cid"`
	ReceiptHash     string          `json:"receipt_hash"`
	PrevReceiptHash *string         `json:"prev_receipt_hash"`
	PrevCID         *string         `json:"prev_cid"`
	Hop             int64           `json:"hop"`
	Normalized      json.RawMessage `json:"normalized,omitempty"`
}

// LedgerEntry is the operational audit record written once per submission hop.
// It is not chained and plays no part in verification.
type LedgerEntry struct {
	TraceID     string  `json:"trace_id"`
	Hop         int64   `json:"hop"`
	TS          string  `json:"ts"`
	PayloadType string  `json:"payload_type"`
	TargetType  *string `json:"target_type"`
	CID         string  `json:"cid"`
}

// ExportBundle is produced on demand and never persisted.
type ExportBundle struct {
	TraceID    string    `json:"trace_id"`
	Chain      []Receipt `json:"chain"`
	ExportedAt string    `json:"exported_at"`
}

// ReceiptLedger owns the chain state of every trace.
type ReceiptLedger interface {
	Append(ctx context.Context, traceID string, normalized json.RawMessage) (Receipt, error)
	ReadChain(ctx context.Context, traceID string) ([]Receipt, error)
}

type AuditLedger interface {
	Record(ctx context.Context, entry LedgerEntry) error
}
