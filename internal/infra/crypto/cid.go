package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const CIDPrefix = "sha256:"

// CID returns "sha256:" + hex(sha256(canonical(raw))).
func CID(c Canonicalizer, raw []byte) (string, error) {
	canonical, err := c.Canonicalize(raw)
	if err != nil {
		return "", err
	}
	return CIDFromCanonical(canonical), nil
}

// CIDValue is CID over the JSON encoding of v.
func CIDValue(c Canonicalizer, v any) (string, error) {
	canonical, err := CanonicalizeValue(c, v)
	if err != nil {
		return "", err
	}
	return CIDFromCanonical(canonical), nil
}

func CIDFromCanonical(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return CIDPrefix + hex.EncodeToString(sum[:])
}

// ValidCID reports whether s has the expected prefix and a 32 byte hex digest.
func ValidCID(s string) bool {
	if !strings.HasPrefix(s, CIDPrefix) {
		return false
	}
	digest := strings.TrimPrefix(s, CIDPrefix)
	if len(digest) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(digest)
	return err == nil
}

// ReceiptHash binds a receipt to its timestamp, content and predecessor.
// prev is nil for the first hop of a trace.
func ReceiptHash(c Canonicalizer, ts, cid string, prev *string, hop int64) (string, error) {
	var prevValue any
	if prev != nil {
		prevValue = *prev
	}
	h, err := CIDValue(c, map[string]any{
		"ts":   ts,
		"cid":  cid,
		"prev": prevValue,
		"hop":  hop,
	})
	if err != nil {
		return "", fmt.Errorf("receipt hash: %w", err)
	}
	return h, nil
}

// Hasher binds CID to one canonicalizer.
type Hasher struct {
	canon Canonicalizer
}

func NewHasher(c Canonicalizer) Hasher {
	return Hasher{canon: c}
}

func (h Hasher) CID(raw []byte) (string, error) {
	return CID(h.canon, raw)
}
