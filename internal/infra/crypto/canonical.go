package crypto

import (
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

type Mode string

const (
	// ModeJCS is RFC 8785 canonical JSON.
	ModeJCS Mode = "jcs"
	// ModeSorted is sorted-key compact JSON with number literals kept as written.
	// It defines a different hash space than ModeJCS; a deployment picks one for the
	// lifetime of its data.
	ModeSorted Mode = "sorted"
)

// Canonicalizer turns JSON into its canonical byte form. One instance is chosen at
// startup and shared by every component that hashes.
type Canonicalizer interface {
	Mode() Mode
	Canonicalize(raw []byte) ([]byte, error)
}

func NewCanonicalizer(mode Mode) (Canonicalizer, error) {
	switch mode {
	case ModeJCS, "":
		return jcsCanonicalizer{}, nil
	case ModeSorted:
		return sortedCanonicalizer{}, nil
	default:
		return nil, fmt.Errorf("unknown canonical mode %q", mode)
	}
}

// CanonicalizeValue marshals v and canonicalizes the result.
func CanonicalizeValue(c Canonicalizer, v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return c.Canonicalize(raw)
}

type jcsCanonicalizer struct{}

func (jcsCanonicalizer) Mode() Mode { return ModeJCS }

func (jcsCanonicalizer) Canonicalize(raw []byte) ([]byte, error) {
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("jcs: %w", err)
	}
	return out, nil
}
