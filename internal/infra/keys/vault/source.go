// Package vault loads the service signing key from Vault.
package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/domain"
)

type KeySource interface {
	SigningKey(ctx context.Context, env, kid string) (domain.StoredSigningKey, error)
}

// LoadPrivateKey returns the encoded private key stored for kid. The value is parsed by the
// soft key manager like SP_PRIVATE_KEY_B64.
func LoadPrivateKey(ctx context.Context, source KeySource, env, kid string) (string, error) {
	key, err := source.SigningKey(ctx, env, kid)
	if err != nil {
		return "", err
	}
	if key.Alg != "" && !strings.EqualFold(key.Alg, "ed25519") {
		return "", fmt.Errorf("unsupported key algorithm %q", key.Alg)
	}
	if key.KID != "" && key.KID != kid {
		return "", errors.New("kid mismatch")
	}
	if key.PrivateKeyBase64 == "" {
		return "", errors.New("private_key_base64 is required")
	}
	return key.PrivateKeyBase64, nil
}
