package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	headerResponseCID = "X-SIGNET-Response-CID"
	headerSignature   = "X-SIGNET-Signature"
	headerKID         = "X-SIGNET-KID"

	maxExportBytes = 64 << 20
)

// Client fetches exports and the key set from a running service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	keys       *KeySet
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		keys:       NewKeySet(baseURL+wellKnownJWKSPath, httpClient),
	}
}

func (c *Client) KeySet() *KeySet {
	return c.keys
}

// FetchExport returns the export bundle of traceID merged with the signature headers, in
// the form VerifyExport accepts.
func (c *Client) FetchExport(ctx context.Context, traceID string) ([]byte, error) {
	endpoint := c.baseURL + "/v1/receipts/export/" + url.PathEscape(traceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxExportBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("export %s: status %d", traceID, resp.StatusCode)
	}
	return MergeExportHeaders(body, resp.Header)
}

// MergeExportHeaders adds response_cid, signature and kid from an export response's
// headers to its body. Fields already in the body are kept.
func MergeExportHeaders(body []byte, header http.Header) ([]byte, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode export: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("decode export: not an object")
	}
	for field, name := range map[string]string{
		"response_cid": headerResponseCID,
		"signature":    headerSignature,
		"kid":          headerKID,
	} {
		value := header.Get(name)
		if value == "" {
			continue
		}
		if _, ok := doc[field]; ok {
			continue
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		doc[field] = encoded
	}
	return json.Marshal(doc)
}

// VerifyTrace fetches an export and the key set, then checks the signature and the chain.
func (c *Client) VerifyTrace(ctx context.Context, v *Verifier, traceID string) (bool, error) {
	if v == nil {
		v = defaultVerifier
	}
	doc, err := c.FetchExport(ctx, traceID)
	if err != nil {
		return false, err
	}
	jwks, err := c.keys.Get(ctx)
	if err != nil {
		return false, err
	}
	var bundle struct {
		Chain []Receipt `json:"chain"`
	}
	if err := json.Unmarshal(doc, &bundle); err != nil {
		return false, nil
	}
	return v.VerifyExport(doc, jwks) && v.VerifyChain(bundle.Chain), nil
}
