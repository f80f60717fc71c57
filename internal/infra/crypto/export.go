package crypto

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"strings"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/domain"
)

const exportDelimiter = "|"

// ExportMessage is the exact byte string signed for an exported chain.
// It is a plain concatenation, not canonical JSON.
func ExportMessage(responseCID, traceID, exportedAt string) []byte {
	return []byte(responseCID + exportDelimiter + traceID + exportDelimiter + exportedAt)
}

// EncodeSignature uses the URL-safe alphabet without padding.
func EncodeSignature(sig []byte) string {
	return base64.RawURLEncoding.EncodeToString(sig)
}

// DecodeBase64URL accepts URL-safe base64 with or without padding.
func DecodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

// VerifyEd25519 returns false for malformed keys or signatures instead of failing.
func VerifyEd25519(pubKey []byte, message []byte, sig []byte) bool {
	if len(pubKey) != ed25519.PublicKeySize {
		return false
	}
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pubKey), message, sig)
}

// ExportSigner signs export messages with the process key.
type ExportSigner struct {
	Keys domain.KeyManager
}

func (s ExportSigner) SignExport(ctx context.Context, responseCID, traceID, exportedAt string) (string, error) {
	sig, err := s.Keys.Sign(ctx, ExportMessage(responseCID, traceID, exportedAt))
	if err != nil {
		return "", err
	}
	return EncodeSignature(sig), nil
}
