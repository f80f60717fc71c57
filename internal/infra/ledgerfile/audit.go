package ledgerfile

import (
	"context"
	"fmt"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/domain"
	"github.com/Maverick0351a/signet-protocol-core-console/internal/infra/jsonl"
)

// AuditStore appends one operational entry per submission hop.
type AuditStore struct {
	log *jsonl.Log
}

func NewAuditStore(log *jsonl.Log) *AuditStore {
	return &AuditStore{log: log}
}

func (s *AuditStore) Record(_ context.Context, entry domain.LedgerEntry) error {
	if err := s.log.Append(entry); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageWrite, err)
	}
	return nil
}

var _ domain.AuditLedger = (*AuditStore)(nil)
