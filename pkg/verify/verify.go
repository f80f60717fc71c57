// Package verify checks exported receipt chains offline. Every entry point returns false
// on malformed input instead of an error.
package verify

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/domain"
	"github.com/Maverick0351a/signet-protocol-core-console/internal/infra/crypto"
)

type (
	Receipt = domain.Receipt
	JWK     = domain.JWK
	JWKS    = domain.JWKS
)

// MessageFields are the three values joined into the signed export message.
type MessageFields struct {
	ResponseCID string
	TraceID     string
	ExportedAt  string
}

// Verifier recomputes CIDs with one canonicalization mode, which must match the server's
// SP_CANONICAL_MODE.
type Verifier struct {
	canon crypto.Canonicalizer
}

func New(mode string) (*Verifier, error) {
	canon, err := crypto.NewCanonicalizer(crypto.Mode(mode))
	if err != nil {
		return nil, err
	}
	return &Verifier{canon: canon}, nil
}

var defaultVerifier = &Verifier{canon: mustCanonicalizer(crypto.ModeJCS)}

func mustCanonicalizer(mode crypto.Mode) crypto.Canonicalizer {
	c, err := crypto.NewCanonicalizer(mode)
	if err != nil {
		panic(err)
	}
	return c
}

// Verify checks an Ed25519 signature over the export message.
func Verify(fields MessageFields, signature string, jwk JWK) bool {
	if jwk.Kty != domain.JWKKeyTypeOKP || jwk.Crv != domain.JWKCurve {
		return false
	}
	sig, err := crypto.DecodeBase64URL(signature)
	if err != nil {
		return false
	}
	pub, err := crypto.DecodeBase64URL(jwk.X)
	if err != nil {
		return false
	}
	return crypto.VerifyEd25519(pub, crypto.ExportMessage(fields.ResponseCID, fields.TraceID, fields.ExportedAt), sig)
}

// SelectJWK returns the key with kid. Without a kid it returns the first Ed25519 key, or
// the first key when none advertises the curve.
func SelectJWK(jwks JWKS, kid string) (JWK, bool) {
	if kid != "" {
		for _, key := range jwks.Keys {
			if key.Kid == kid {
				return key, true
			}
		}
		return JWK{}, false
	}
	for _, key := range jwks.Keys {
		if key.Crv == domain.JWKCurve {
			return key, true
		}
	}
	if len(jwks.Keys) > 0 {
		return jwks.Keys[0], true
	}
	return JWK{}, false
}

func VerifyExport(document []byte, jwks JWKS) bool {
	return defaultVerifier.VerifyExport(document, jwks)
}

func VerifyReceipt(receipt []byte) bool {
	return defaultVerifier.VerifyReceipt(receipt)
}

func VerifyChain(chain []Receipt) bool {
	return defaultVerifier.VerifyChain(chain)
}

// VerifyExport checks an export document: the bundle fields trace_id, chain and
// exported_at plus response_cid, signature and kid as returned in the export headers.
// response_cid defaults to the last receipt_hash and must equal it when present.
func (v *Verifier) VerifyExport(document []byte, jwks JWKS) bool {
	fields, ok := decodeObject(document)
	if !ok {
		return false
	}
	traceID, ok := requiredString(fields, "trace_id")
	if !ok {
		return false
	}
	exportedAt, ok := requiredString(fields, "exported_at")
	if !ok {
		return false
	}
	var chain []map[string]json.RawMessage
	if err := json.Unmarshal(fields["chain"], &chain); err != nil || len(chain) == 0 {
		return false
	}
	last, ok := requiredString(chain[len(chain)-1], "receipt_hash")
	if !ok {
		return false
	}
	responseCID := last
	if _, present := fields["response_cid"]; present {
		responseCID, ok = requiredString(fields, "response_cid")
		if !ok || responseCID != last {
			return false
		}
	}
	kid := ""
	if _, present := fields["kid"]; present {
		if kid, ok = requiredString(fields, "kid"); !ok {
			return false
		}
	}
	jwk, ok := SelectJWK(jwks, kid)
	if !ok {
		return false
	}
	signature, ok := requiredString(fields, "signature")
	if !ok {
		return false
	}
	return Verify(MessageFields{ResponseCID: responseCID, TraceID: traceID, ExportedAt: exportedAt}, signature, jwk)
}

// VerifyReceipt is a structural check of one receipt. When normalized is present its CID
// is recomputed.
func (v *Verifier) VerifyReceipt(receipt []byte) bool {
	fields, ok := decodeObject(receipt)
	if !ok {
		return false
	}
	cid, ok := requiredString(fields, "cid")
	if !ok || !crypto.ValidCID(cid) {
		return false
	}
	if _, ok := positiveInt(fields["hop"]); !ok {
		return false
	}
	if normalized, present := fields["normalized"]; present && !isNull(normalized) {
		recomputed, err := crypto.CID(v.canon, normalized)
		if err != nil || recomputed != cid {
			return false
		}
	}
	return true
}

// VerifyChain checks hop order, predecessor links and every receipt_hash of a chain.
func (v *Verifier) VerifyChain(chain []Receipt) bool {
	if len(chain) == 0 {
		return false
	}
	traceID := chain[0].TraceID
	for i, rec := range chain {
		if rec.TraceID != traceID || rec.Hop != int64(i+1) || !crypto.ValidCID(rec.CID) {
			return false
		}
		if len(rec.Normalized) > 0 && !isNull(rec.Normalized) {
			recomputed, err := crypto.CID(v.canon, rec.Normalized)
			if err != nil || recomputed != rec.CID {
				return false
			}
		}
		if i == 0 {
			if rec.PrevReceiptHash != nil || rec.PrevCID != nil {
				return false
			}
		} else {
			prev := chain[i-1]
			if rec.PrevReceiptHash == nil || *rec.PrevReceiptHash != prev.ReceiptHash {
				return false
			}
			if rec.PrevCID == nil || *rec.PrevCID != prev.CID {
				return false
			}
		}
		hash, err := crypto.ReceiptHash(v.canon, rec.TS, rec.CID, rec.PrevReceiptHash, rec.Hop)
		if err != nil || hash != rec.ReceiptHash {
			return false
		}
	}
	return true
}

func decodeObject(raw []byte) (map[string]json.RawMessage, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, false
	}
	return fields, true
}

func requiredString(fields map[string]json.RawMessage, name string) (string, bool) {
	raw, ok := fields[name]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return "", false
	}
	return s, true
}

func positiveInt(raw json.RawMessage) (int64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == '"' {
		return 0, false
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
