package crypto

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/domain"
)

// NextReceipt builds the receipt that extends a chain whose last element is prev.
// prev is nil for a new trace.
func NextReceipt(c Canonicalizer, traceID string, normalized json.RawMessage, prev *domain.Receipt, now time.Time) (domain.Receipt, error) {
	if traceID == "" {
		return domain.Receipt{}, errors.New("trace_id is required")
	}
	cid, err := CID(c, normalized)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("%w: %v", domain.ErrCanonicalize, err)
	}
	rec := domain.Receipt{
		TraceID:    traceID,
		TS:         now.UTC().Format(domain.ReceiptTimeFormat),
		CID:        cid,
		Hop:        1,
		Normalized: normalized,
	}
	if prev != nil {
		prevHash := prev.ReceiptHash
		prevCID := prev.CID
		rec.PrevReceiptHash = &prevHash
		rec.PrevCID = &prevCID
		rec.Hop = prev.Hop + 1
	}
	rec.ReceiptHash, err = ReceiptHash(c, rec.TS, rec.CID, rec.PrevReceiptHash, rec.Hop)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("%w: %v", domain.ErrCanonicalize, err)
	}
	return rec, nil
}
