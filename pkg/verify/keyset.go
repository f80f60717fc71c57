package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/domain"
)

const (
	defaultKeySetTTL       = 5 * time.Minute
	defaultKeySetMaxStale  = 15 * time.Minute
	defaultKeySetTimeout   = 5 * time.Second
	defaultKeySetAttempts  = 3
	defaultKeySetRetryBase = 200 * time.Millisecond
	defaultKeySetRetryMax  = 2 * time.Second
	wellKnownJWKSPath      = "/.well-known/jwks.json"
)

type keySetState int

const (
	keySetMissing keySetState = iota
	keySetFresh
	keySetStale
)

// KeySet fetches and caches a published JWKS. Stale keys are served while a background
// refresh runs, until maxStale has passed.
type KeySet struct {
	url          string
	httpClient   *http.Client
	ttl          time.Duration
	maxStale     time.Duration
	fetchTimeout time.Duration
	retryBase    time.Duration
	retryMax     time.Duration
	now          func() time.Time

	mu         sync.RWMutex
	jwks       JWKS
	loaded     bool
	expiresAt  time.Time
	staleUntil time.Time

	refreshMu sync.Mutex
	refreshCh chan struct{}
	lastErr   error
}

func NewKeySet(url string, httpClient *http.Client) *KeySet {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &KeySet{
		url:          url,
		httpClient:   httpClient,
		ttl:          defaultKeySetTTL,
		maxStale:     defaultKeySetMaxStale,
		fetchTimeout: defaultKeySetTimeout,
		retryBase:    defaultKeySetRetryBase,
		retryMax:     defaultKeySetRetryMax,
		now:          time.Now,
	}
}

// Get returns the cached key set, fetching it when missing or expired.
func (k *KeySet) Get(ctx context.Context) (JWKS, error) {
	if jwks, state := k.lookup(k.now()); state == keySetFresh {
		return jwks, nil
	} else if state == keySetStale {
		k.refreshAsync()
		return jwks, nil
	}
	if err := k.refresh(ctx); err != nil {
		return JWKS{}, err
	}
	jwks, _ := k.lookup(k.now())
	return jwks, nil
}

// Key returns the key with kid, refetching once on a miss in case the server rotated.
func (k *KeySet) Key(ctx context.Context, kid string) (JWK, error) {
	jwks, err := k.Get(ctx)
	if err != nil {
		return JWK{}, err
	}
	if key, ok := SelectJWK(jwks, kid); ok {
		return key, nil
	}
	if err := k.refresh(ctx); err != nil {
		return JWK{}, err
	}
	jwks, _ = k.lookup(k.now())
	if key, ok := SelectJWK(jwks, kid); ok {
		return key, nil
	}
	return JWK{}, fmt.Errorf("kid %q not found in key set", kid)
}

func (k *KeySet) lookup(now time.Time) (JWKS, keySetState) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if !k.loaded {
		return JWKS{}, keySetMissing
	}
	if now.Before(k.expiresAt) {
		return k.jwks, keySetFresh
	}
	if now.Before(k.staleUntil) {
		return k.jwks, keySetStale
	}
	return JWKS{}, keySetMissing
}

func (k *KeySet) refreshAsync() {
	ctx, cancel := context.WithTimeout(context.Background(), k.fetchTimeout)
	go func() {
		_ = k.refresh(ctx)
		cancel()
	}()
}

// refresh lets one caller fetch while the others wait for its result.
func (k *KeySet) refresh(ctx context.Context) error {
	k.refreshMu.Lock()
	if ch := k.refreshCh; ch != nil {
		k.refreshMu.Unlock()
		select {
		case <-ch:
			k.refreshMu.Lock()
			defer k.refreshMu.Unlock()
			return k.lastErr
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	ch := make(chan struct{})
	k.refreshCh = ch
	k.refreshMu.Unlock()

	err := k.doRefresh(ctx)

	k.refreshMu.Lock()
	k.lastErr = err
	close(ch)
	k.refreshCh = nil
	k.refreshMu.Unlock()
	return err
}

func (k *KeySet) doRefresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, k.fetchTimeout)
	defer cancel()

	jwks, err := k.fetchWithRetry(ctx)
	if err != nil {
		return err
	}
	now := k.now()
	k.mu.Lock()
	k.jwks = jwks
	k.loaded = true
	k.expiresAt = now.Add(k.ttl)
	k.staleUntil = k.expiresAt.Add(k.maxStale)
	k.mu.Unlock()
	return nil
}

func (k *KeySet) fetchWithRetry(ctx context.Context) (JWKS, error) {
	delay := k.retryBase
	var lastErr error
	for attempt := 0; attempt < defaultKeySetAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepWithContext(ctx, delay); err != nil {
				return JWKS{}, err
			}
			delay *= 2
			if delay > k.retryMax {
				delay = k.retryMax
			}
		}
		jwks, err := k.fetchOnce(ctx)
		if err == nil {
			return jwks, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return JWKS{}, ctx.Err()
		}
	}
	return JWKS{}, lastErr
}

func (k *KeySet) fetchOnce(ctx context.Context) (JWKS, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return JWKS{}, err
	}
	resp, err := k.httpClient.Do(req)
	if err != nil {
		return JWKS{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return JWKS{}, fmt.Errorf("jwks fetch failed: status %d", resp.StatusCode)
	}
	var payload JWKS
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return JWKS{}, err
	}
	usable := payload.Keys[:0]
	for _, key := range payload.Keys {
		if key.X == "" || key.Kty != domain.JWKKeyTypeOKP || key.Crv != domain.JWKCurve {
			continue
		}
		usable = append(usable, key)
	}
	if len(usable) == 0 {
		return JWKS{}, errors.New("jwks contains no usable keys")
	}
	return JWKS{Keys: usable}, nil
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
