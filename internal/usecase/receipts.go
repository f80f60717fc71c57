package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/domain"
)

type GetChain struct {
	Ledger domain.ReceiptLedger
}

// Execute returns ErrNotFound for an unknown or empty trace.
func (uc *GetChain) Execute(ctx context.Context, traceID string) ([]domain.Receipt, error) {
	if !ValidTraceID(traceID) {
		return nil, domain.ErrNotFound
	}
	chain, err := uc.Ledger.ReadChain(ctx, traceID)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, domain.ErrNotFound
	}
	return chain, nil
}

type ExportChainResponse struct {
	Bundle      domain.ExportBundle
	ResponseCID string
	Signature   string
	KID         string
}

type ExportChain struct {
	Ledger domain.ReceiptLedger
	Keys   domain.KeyManager
	Signer ExportSigner
	Now    func() time.Time
}

// ExportSigner produces the detached signature over an export.
type ExportSigner interface {
	SignExport(ctx context.Context, responseCID, traceID, exportedAt string) (string, error)
}

// Execute signs responseCID|traceID|exportedAt where responseCID is the receipt_hash of
// the last hop.
func (uc *ExportChain) Execute(ctx context.Context, traceID string) (*ExportChainResponse, error) {
	chain, err := (&GetChain{Ledger: uc.Ledger}).Execute(ctx, traceID)
	if err != nil {
		return nil, err
	}
	now := time.Now
	if uc.Now != nil {
		now = uc.Now
	}
	exportedAt := now().UTC().Format(domain.ReceiptTimeFormat)
	responseCID := chain[len(chain)-1].ReceiptHash

	signature, err := uc.Signer.SignExport(ctx, responseCID, traceID, exportedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSigningKey, err)
	}
	return &ExportChainResponse{
		Bundle: domain.ExportBundle{
			TraceID:    traceID,
			Chain:      chain,
			ExportedAt: exportedAt,
		},
		ResponseCID: responseCID,
		Signature:   signature,
		KID:         uc.Keys.KID(),
	}, nil
}

type GetJWKS struct {
	Keys JWKSProvider
}

func (uc *GetJWKS) Execute(_ context.Context) domain.JWKS {
	return uc.Keys.JWKS()
}
