package http

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/config"
	"github.com/Maverick0351a/signet-protocol-core-console/internal/domain"
	"github.com/Maverick0351a/signet-protocol-core-console/internal/infra/crypto"
)

var testSeed = bytes.Repeat([]byte{7}, ed25519.SeedSize)

func newTestServer(t *testing.T, overrides map[string]string) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	vars := map[string]string{
		"SP_RECEIPTS_PATH":    filepath.Join(dir, "receipts.jsonl"),
		"SP_LEDGER_PATH":      filepath.Join(dir, "ledger.jsonl"),
		"SP_IDEMPOTENCY_PATH": filepath.Join(dir, "idempotency.jsonl"),
		"SP_HEL_ALLOWLIST":    "allowed.example",
		"SP_PRIVATE_KEY_B64":  base64.RawURLEncoding.EncodeToString(testSeed),
		"SP_KID":              "test-kid",
	}
	for k, v := range overrides {
		vars[k] = v
	}
	cfg, err := config.FromMap(vars)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	srv, err := NewServer(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func do(t *testing.T, srv *Server, method, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

const echoBody = `{"payload_type":"demo.echo","payload":{"hello":"world"}}`

func TestExchangeWithoutForwardRecordsReceipt(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodPost, "/v1/exchange", echoBody, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out domain.ExchangeResponse
	decode(t, rec, &out)
	if out.Policy.Engine != "HEL" || !out.Policy.Allowed || out.Policy.Reason != domain.ReasonNoForward {
		t.Fatalf("unexpected policy block: %+v", out.Policy)
	}
	if out.Forwarded != nil {
		t.Fatalf("expected no forward, got %+v", out.Forwarded)
	}
	if string(out.Normalized) != `{"Document":{"Echo":{"hello":"world"}}}` {
		t.Fatalf("unexpected normalized: %s", out.Normalized)
	}
	if out.Receipt.Hop != 1 || out.Receipt.PrevReceiptHash != nil {
		t.Fatalf("unexpected receipt: %+v", out.Receipt)
	}
	if got := rec.Header().Get(headerTrace); got != out.TraceID {
		t.Fatalf("trace header %q, body %q", got, out.TraceID)
	}

	chainRec := do(t, srv, http.MethodGet, "/v1/receipts/chain/"+out.TraceID, "", nil)
	if chainRec.Code != http.StatusOK {
		t.Fatalf("expected chain 200, got %d", chainRec.Code)
	}
	var chain []domain.Receipt
	decode(t, chainRec, &chain)
	if len(chain) != 1 || chain[0].ReceiptHash != out.Receipt.ReceiptHash {
		t.Fatalf("unexpected chain: %+v", chain)
	}
}

func TestChainUnknownTraceNotFound(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, path := range []string{"/v1/receipts/chain/missing", "/v1/receipts/export/missing"} {
		rec := do(t, srv, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, rec.Code)
		}
		var body map[string]string
		decode(t, rec, &body)
		if body["error"] != "not_found" || body["message"] != "Chain not found" {
			t.Fatalf("%s: unexpected body %v", path, body)
		}
	}
}

func TestExchangeDeniedForwardWritesNothing(t *testing.T) {
	srv := newTestServer(t, nil)

	body := `{"payload_type":"demo.echo","payload":{"a":1},"forward_url":"http://allowed.example/hook","trace_id":"denied-trace"}`
	rec := do(t, srv, http.MethodPost, "/v1/exchange", body, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
	var out map[string]string
	decode(t, rec, &out)
	if out["error"] != "forward_denied" || out["reason"] != domain.ReasonInsecureScheme {
		t.Fatalf("unexpected body: %v", out)
	}
	if out["message"] != "Forward denied: insecure_scheme" {
		t.Fatalf("unexpected message: %q", out["message"])
	}

	chainRec := do(t, srv, http.MethodGet, "/v1/receipts/chain/denied-trace", "", nil)
	if chainRec.Code != http.StatusNotFound {
		t.Fatalf("denied exchange must not create a chain, got %d", chainRec.Code)
	}

	rec = do(t, srv, http.MethodPost, "/v1/exchange",
		`{"payload_type":"demo.echo","payload":{},"forward_url":"https://other.example/hook"}`, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	decode(t, rec, &out)
	if out["reason"] != domain.ReasonHostNotAllowlisted {
		t.Fatalf("unexpected reason: %v", out)
	}
}

func TestExchangeAllowedForward(t *testing.T) {
	srv := newTestServer(t, nil)

	body := `{"payload_type":"demo.echo","payload":{"a":1},"forward_url":"https://allowed.example/hook"}`
	rec := do(t, srv, http.MethodPost, "/v1/exchange", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out domain.ExchangeResponse
	decode(t, rec, &out)
	if out.Policy.Reason != domain.ReasonOK {
		t.Fatalf("unexpected reason %q", out.Policy.Reason)
	}
	if out.Forwarded == nil || out.Forwarded.StatusCode != http.StatusAccepted || out.Forwarded.Host != "https://allowed.example/hook" {
		t.Fatalf("unexpected forwarded: %+v", out.Forwarded)
	}
}

func TestExchangePayloadTooLarge(t *testing.T) {
	srv := newTestServer(t, map[string]string{"SP_MAX_EXCHANGE_BODY_BYTES": "200"})

	big := `{"payload_type":"demo.echo","payload":{"blob":"` + strings.Repeat("x", 300) + `"}}`
	rec := do(t, srv, http.MethodPost, "/v1/exchange", big, nil)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	var out map[string]string
	decode(t, rec, &out)
	if out["error"] != "payload_too_large" || out["message"] != "Request body exceeds size limit" {
		t.Fatalf("unexpected body: %v", out)
	}
}

func TestExchangeInvalidRequest(t *testing.T) {
	srv := newTestServer(t, nil)

	cases := []string{
		`not json`,
		`{"payload":{"a":1}}`,
		`{"payload_type":"demo.echo","payload":[1,2]}`,
		`{"payload_type":"demo.echo","payload":{},"trace_id":"has space"}`,
	}
	for _, body := range cases {
		rec := do(t, srv, http.MethodPost, "/v1/exchange", body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rec.Code)
		}
		var out map[string]string
		decode(t, rec, &out)
		if out["error"] != "invalid_request" {
			t.Fatalf("%s: unexpected body %v", body, out)
		}
	}
}

func TestExchangeIdempotentReplay(t *testing.T) {
	srv := newTestServer(t, nil)
	headers := map[string]string{headerIdempotencyKey: "key-1"}

	first := do(t, srv, http.MethodPost, "/v1/exchange", echoBody, headers)
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", first.Code)
	}
	if first.Header().Get(headerIdempotent) != "" {
		t.Fatalf("first response must not be marked idempotent")
	}
	var original domain.ExchangeResponse
	decode(t, first, &original)

	second := do(t, srv, http.MethodPost, "/v1/exchange", echoBody, headers)
	if second.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", second.Code)
	}
	if second.Header().Get(headerIdempotent) != "true" {
		t.Fatalf("expected replay header")
	}
	if second.Header().Get(headerIdempotentMismatch) != "" {
		t.Fatalf("identical request must not be flagged")
	}
	var replay domain.ExchangeResponse
	decode(t, second, &replay)
	if !replay.Idempotent || replay.TraceID != original.TraceID || replay.Receipt.ReceiptHash != original.Receipt.ReceiptHash {
		t.Fatalf("unexpected replay: %+v", replay)
	}

	different := do(t, srv, http.MethodPost, "/v1/exchange", `{"payload_type":"demo.echo","payload":{"other":true}}`, headers)
	if different.Header().Get(headerIdempotentMismatch) != "true" {
		t.Fatalf("expected mismatch header")
	}
	decode(t, different, &replay)
	if replay.TraceID != original.TraceID {
		t.Fatalf("first writer must win, got trace %q", replay.TraceID)
	}

	chainRec := do(t, srv, http.MethodGet, "/v1/receipts/chain/"+original.TraceID, "", nil)
	var chain []domain.Receipt
	decode(t, chainRec, &chain)
	if len(chain) != 1 {
		t.Fatalf("replays must not append receipts, chain length %d", len(chain))
	}
}

func TestExportSignatureVerifies(t *testing.T) {
	srv := newTestServer(t, nil)

	first := do(t, srv, http.MethodPost, "/v1/exchange",
		`{"payload_type":"demo.echo","payload":{"n":1},"trace_id":"export-trace"}`, nil)
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", first.Code, first.Body.String())
	}
	second := do(t, srv, http.MethodPost, "/v1/exchange",
		`{"payload_type":"demo.echo","payload":{"n":2},"trace_id":"export-trace"}`, nil)
	var hop2 domain.ExchangeResponse
	decode(t, second, &hop2)
	if hop2.Receipt.Hop != 2 {
		t.Fatalf("expected hop 2, got %d", hop2.Receipt.Hop)
	}

	rec := do(t, srv, http.MethodGet, "/v1/receipts/export/export-trace", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var bundle domain.ExportBundle
	decode(t, rec, &bundle)
	if bundle.TraceID != "export-trace" || len(bundle.Chain) != 2 {
		t.Fatalf("unexpected bundle: %+v", bundle)
	}
	responseCID := rec.Header().Get(headerResponseCID)
	if responseCID != hop2.Receipt.ReceiptHash {
		t.Fatalf("response cid %q, want last receipt hash %q", responseCID, hop2.Receipt.ReceiptHash)
	}
	if rec.Header().Get(headerKID) != "test-kid" {
		t.Fatalf("unexpected kid %q", rec.Header().Get(headerKID))
	}
	sig, err := crypto.DecodeBase64URL(rec.Header().Get(headerSignature))
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	pub := ed25519.NewKeyFromSeed(testSeed).Public().(ed25519.PublicKey)
	msg := crypto.ExportMessage(responseCID, bundle.TraceID, bundle.ExportedAt)
	if !crypto.VerifyEd25519(pub, msg, sig) {
		t.Fatalf("export signature does not verify")
	}
}

func TestJWKSPublishesSigningKey(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/.well-known/jwks.json", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var jwks domain.JWKS
	decode(t, rec, &jwks)
	if len(jwks.Keys) != 1 {
		t.Fatalf("expected one key, got %d", len(jwks.Keys))
	}
	key := jwks.Keys[0]
	pub := ed25519.NewKeyFromSeed(testSeed).Public().(ed25519.PublicKey)
	if key.Kty != "OKP" || key.Crv != "Ed25519" || key.Kid != "test-kid" || key.X != base64.RawURLEncoding.EncodeToString(pub) {
		t.Fatalf("unexpected jwk: %+v", key)
	}
}

func TestHealthzAndCompliance(t *testing.T) {
	srv := newTestServer(t, map[string]string{"SP_CANONICAL_MODE": "sorted"})

	rec := do(t, srv, http.MethodGet, "/healthz", "", nil)
	var health map[string]any
	decode(t, rec, &health)
	if health["ok"] != true || health["service"] != "signet-core-api" || health["storage"] != "file" || health["canonical"] != "sorted" {
		t.Fatalf("unexpected healthz: %v", health)
	}

	rec = do(t, srv, http.MethodGet, "/v1/compliance/dashboard", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"annex4":"ready"`) {
		t.Fatalf("unexpected dashboard: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, srv, http.MethodGet, "/v1/compliance/annex4/t-1", "", nil)
	if !strings.Contains(rec.Body.String(), `"trace_id":"t-1"`) || !strings.Contains(rec.Body.String(), `"status":"generated"`) {
		t.Fatalf("unexpected annex4: %s", rec.Body.String())
	}
	rec = do(t, srv, http.MethodGet, "/v1/compliance/pmm/t-1", "", nil)
	if !strings.Contains(rec.Body.String(), `"drift":"none"`) {
		t.Fatalf("unexpected pmm: %s", rec.Body.String())
	}

	rec = do(t, srv, http.MethodGet, "/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestMetricsCountExchanges(t *testing.T) {
	srv := newTestServer(t, nil)

	do(t, srv, http.MethodPost, "/v1/exchange", echoBody, nil)
	do(t, srv, http.MethodPost, "/v1/exchange",
		`{"payload_type":"demo.echo","payload":{},"forward_url":"ftp://allowed.example"}`, nil)

	rec := do(t, srv, http.MethodGet, "/metrics", "", nil)
	body := rec.Body.String()
	for _, want := range []string{
		`signet_exchanges_total{result="ok"} 1`,
		`signet_exchanges_total{result="denied"} 1`,
		`signet_denied_total{reason="insecure_scheme"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

func TestExchangeRateLimited(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"RATE_LIMIT_REQUESTS":       "2",
		"RATE_LIMIT_WINDOW_SECONDS": "60",
	})

	for i := 0; i < 2; i++ {
		rec := do(t, srv, http.MethodPost, "/v1/exchange", echoBody, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
	rec := do(t, srv, http.MethodPost, "/v1/exchange", echoBody, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" || rec.Header().Get("RateLimit-Remaining") != "0" {
		t.Fatalf("expected quota headers, got %v", rec.Header())
	}

	metrics := do(t, srv, http.MethodGet, "/metrics", "", nil)
	if !strings.Contains(metrics.Body.String(), `signet_rate_limited_total{route="exchange"} 1`) {
		t.Fatalf("expected rate limited counter")
	}
}

func TestNewServerRefusesEphemeralKeyInProduction(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.FromMap(map[string]string{
		"SP_ENV":              "production",
		"SP_RECEIPTS_PATH":    filepath.Join(dir, "receipts.jsonl"),
		"SP_LEDGER_PATH":      filepath.Join(dir, "ledger.jsonl"),
		"SP_IDEMPOTENCY_PATH": filepath.Join(dir, "idempotency.jsonl"),
	})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if _, err := NewServer(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Fatalf("expected missing key to fail in production")
	}
}

func TestNewServerLoadsKeyFromVault(t *testing.T) {
	vaultSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != "root" || r.URL.Path != "/v1/secret/data/signet/development/keys/vault-kid" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"data": map[string]string{
					"alg":                "ed25519",
					"kid":                "vault-kid",
					"private_key_base64": base64.StdEncoding.EncodeToString(testSeed),
				},
			},
		})
	}))
	t.Cleanup(vaultSrv.Close)

	srv := newTestServer(t, map[string]string{
		"SP_PRIVATE_KEY_B64": "",
		"SP_KID":             "vault-kid",
		"VAULT_ADDR":         vaultSrv.URL,
		"VAULT_TOKEN":        "root",
	})

	rec := do(t, srv, http.MethodGet, "/.well-known/jwks.json", "", nil)
	var jwks domain.JWKS
	decode(t, rec, &jwks)
	pub := ed25519.NewKeyFromSeed(testSeed).Public().(ed25519.PublicKey)
	if len(jwks.Keys) != 1 || jwks.Keys[0].Kid != "vault-kid" || jwks.Keys[0].X != base64.RawURLEncoding.EncodeToString(pub) {
		t.Fatalf("unexpected jwks: %+v", jwks)
	}
}
