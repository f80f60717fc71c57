package usecase

import (
	"context"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/domain"
)

// ContentHasher computes CIDs with the canonicalizer chosen at startup.
type ContentHasher interface {
	CID(raw []byte) (string, error)
}

type Forwarder interface {
	Forward(ctx context.Context, req domain.ForwardRequest) domain.Forwarded
}

// KeyLocker serializes work per key within the process.
type KeyLocker interface {
	Lock(key string) (unlock func())
}

type JWKSProvider interface {
	JWKS() domain.JWKS
}
