// Package vaultclient fetches signet signing keys from a Vault KV v2 mount.
package vaultclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/domain"
)

// Keys live at secret/data/signet/{env}/keys/{kid}.
const keyPathFormat = "secret/data/signet/%s/keys/%s"

var (
	ErrKeyNotFound  = errors.New("signing key not found in vault")
	ErrKeyDestroyed = errors.New("signing key version deleted in vault")
)

type Client struct {
	base       *url.URL
	token      string
	httpClient *http.Client
}

func New(addr, token string) (*Client, error) {
	if addr == "" || token == "" {
		return nil, errors.New("vault addr and token are required")
	}
	base, err := url.Parse(strings.TrimRight(addr, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid vault addr %q", addr)
	}
	return &Client{
		base:       base,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func KeyPath(env, kid string) (string, error) {
	if env == "" || kid == "" {
		return "", errors.New("env and kid are required")
	}
	if strings.Contains(kid, "/") || strings.Contains(env, "/") {
		return "", errors.New("env and kid must not contain '/'")
	}
	return fmt.Sprintf(keyPathFormat, env, kid), nil
}

type kvResponse struct {
	Data struct {
		Data     *domain.StoredSigningKey `json:"data"`
		Metadata struct {
			Version      int    `json:"version"`
			DeletionTime string `json:"deletion_time"`
			Destroyed    bool   `json:"destroyed"`
		} `json:"metadata"`
	} `json:"data"`
}

// SigningKey returns the latest version of the key stored for env and kid.
func (c *Client) SigningKey(ctx context.Context, env, kid string) (domain.StoredSigningKey, error) {
	path, err := KeyPath(env, kid)
	if err != nil {
		return domain.StoredSigningKey{}, err
	}
	endpoint := c.base.JoinPath("v1", path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return domain.StoredSigningKey{}, err
	}
	req.Header.Set("X-Vault-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.StoredSigningKey{}, fmt.Errorf("vault request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.StoredSigningKey{}, fmt.Errorf("%w: %s", ErrKeyNotFound, path)
	case resp.StatusCode != http.StatusOK:
		return domain.StoredSigningKey{}, fmt.Errorf("vault read %s: status %d", path, resp.StatusCode)
	}

	var payload kvResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.StoredSigningKey{}, fmt.Errorf("decode vault response: %w", err)
	}
	meta := payload.Data.Metadata
	if meta.Destroyed || meta.DeletionTime != "" {
		return domain.StoredSigningKey{}, fmt.Errorf("%w: %s version %d", ErrKeyDestroyed, path, meta.Version)
	}
	if payload.Data.Data == nil {
		return domain.StoredSigningKey{}, fmt.Errorf("%w: %s", ErrKeyNotFound, path)
	}
	return *payload.Data.Data, nil
}
