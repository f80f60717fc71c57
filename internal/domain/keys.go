package domain

import "context"

const (
	JWKKeyTypeOKP = "OKP"
	JWKCurve      = "Ed25519"
)

type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Kid string `json:"kid"`
}

type JWKS struct {
	Keys []JWK `json:"keys"`
}

// KeyManager holds the single signing key of the process.
type KeyManager interface {
	KID() string
	CurrentJWK() JWK
	Sign(ctx context.Context, message []byte) ([]byte, error)
}

// StoredSigningKey is a signing key held by an external secret store.
type StoredSigningKey struct {
	Alg              string `json:"alg"`
	KID              string `json:"kid"`
	PrivateKeyBase64 string `json:"private_key_base64"`
}
