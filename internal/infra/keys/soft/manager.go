package soft

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/domain"
)

// Options configures a Manager. PrivateKey is the raw SP_PRIVATE_KEY_B64 value.
type Options struct {
	PrivateKey     string
	KID            string
	AllowEphemeral bool
	JWKSCacheTTL   time.Duration
	Logger         *slog.Logger
	Now            func() time.Time
}

// Manager holds one Ed25519 key for the process lifetime.
type Manager struct {
	kid       string
	key       ed25519.PrivateKey
	ephemeral bool
	ttl       time.Duration
	now       func() time.Time

	mu       sync.Mutex
	cached   *domain.JWK
	cachedAt time.Time
	computes int
}

func NewManager(opts Options) (*Manager, error) {
	if strings.TrimSpace(opts.KID) == "" {
		return nil, errors.New("kid is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	m := &Manager{kid: opts.KID, ttl: opts.JWKSCacheTTL, now: now}

	if strings.TrimSpace(opts.PrivateKey) != "" {
		key, err := ParsePrivateKey(opts.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrSigningKey, err)
		}
		m.key = key
		return m, nil
	}
	if !opts.AllowEphemeral {
		return nil, fmt.Errorf("%w: SP_PRIVATE_KEY_B64 is required in production (set SP_ALLOW_EPHEMERAL_KEY=true to override)", domain.ErrSigningKey)
	}
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: generate ephemeral key: %v", domain.ErrSigningKey, err)
	}
	m.key = key
	m.ephemeral = true
	logger.Warn("no signing key configured, using ephemeral key; exports will not verify after restart", "kid", m.kid)
	return m, nil
}

// ParsePrivateKey accepts URL-safe or standard base64 (padding optional) or hex, encoding
// either a 32 byte seed or a 64 byte private key.
func ParsePrivateKey(value string) (ed25519.PrivateKey, error) {
	value = strings.TrimSpace(value)
	for _, decode := range []func(string) ([]byte, error){
		func(s string) ([]byte, error) { return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "=")) },
		func(s string) ([]byte, error) { return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")) },
		hex.DecodeString,
	} {
		raw, err := decode(value)
		if err != nil {
			continue
		}
		if key, err := keyFromBytes(raw); err == nil {
			return key, nil
		}
	}
	return nil, errors.New("private key must be a base64 or hex encoded ed25519 seed or private key")
}

func keyFromBytes(raw []byte) (ed25519.PrivateKey, error) {
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		key := ed25519.PrivateKey(append([]byte(nil), raw...))
		// the trailing half must be the public key derived from the seed
		if !ed25519.NewKeyFromSeed(key.Seed()).Equal(key) {
			return nil, errors.New("private key does not match its public half")
		}
		return key, nil
	default:
		return nil, errors.New("invalid ed25519 private key length")
	}
}

func (m *Manager) KID() string {
	return m.kid
}

func (m *Manager) Ephemeral() bool {
	return m.ephemeral
}

func (m *Manager) PublicKey() ed25519.PublicKey {
	return m.key.Public().(ed25519.PublicKey)
}

// CurrentJWK returns the public key as a JWK. The value is cached for the configured TTL
// and rebuilt from the same key after it expires.
func (m *Manager) CurrentJWK() domain.JWK {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if m.cached != nil && (m.ttl <= 0 || now.Sub(m.cachedAt) < m.ttl) {
		return *m.cached
	}
	jwk := domain.JWK{
		Kty: domain.JWKKeyTypeOKP,
		Crv: domain.JWKCurve,
		X:   base64.RawURLEncoding.EncodeToString(m.PublicKey()),
		Kid: m.kid,
	}
	m.cached = &jwk
	m.cachedAt = now
	m.computes++
	return jwk
}

func (m *Manager) JWKS() domain.JWKS {
	return domain.JWKS{Keys: []domain.JWK{m.CurrentJWK()}}
}

func (m *Manager) Sign(_ context.Context, message []byte) ([]byte, error) {
	if m == nil || len(m.key) != ed25519.PrivateKeySize {
		return nil, domain.ErrSigningKey
	}
	return ed25519.Sign(m.key, message), nil
}

var _ domain.KeyManager = (*Manager)(nil)
