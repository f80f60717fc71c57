package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/domain"
)

const maxTraceIDLength = 128

type SubmitExchangeRequest struct {
	PayloadType    string
	TargetType     *string
	Payload        json.RawMessage
	ForwardURL     string
	TraceID        string
	IdempotencyKey string
}

type SubmitExchangeResponse struct {
	Exchange domain.ExchangeResponse
	// Body is the exact response body; replays return the stored bytes with idempotent set.
	Body     json.RawMessage
	Replayed bool
	Mismatch bool
}

type SubmitExchange struct {
	Ledger       domain.ReceiptLedger
	Audit        domain.AuditLedger
	Policy       domain.EgressPolicy
	Hasher       ContentHasher
	Forwarder    Forwarder
	Idempotency  *IdempotencyCache
	NewTraceID   func() string
	MaxBodyBytes int64
	Logger       *slog.Logger
}

func (uc *SubmitExchange) Execute(ctx context.Context, req SubmitExchangeRequest) (*SubmitExchangeResponse, error) {
	if strings.TrimSpace(req.PayloadType) == "" {
		return nil, fmt.Errorf("%w: payload_type is required", domain.ErrInvalidRequest)
	}
	payload, err := compactObject(req.Payload)
	if err != nil {
		return nil, err
	}
	if req.TraceID != "" && !ValidTraceID(req.TraceID) {
		return nil, domain.ErrInvalidTraceID
	}

	// the compact request is what gets hashed; its size is checked before any hashing
	requestDoc, err := json.Marshal(requestDocument{
		PayloadType: req.PayloadType,
		TargetType:  req.TargetType,
		Payload:     payload,
		ForwardURL:  req.ForwardURL,
		TraceID:     req.TraceID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	if uc.MaxBodyBytes > 0 && int64(len(requestDoc)) > uc.MaxBodyBytes {
		return nil, domain.ErrPayloadTooLarge
	}
	requestCID := ""
	if req.IdempotencyKey != "" {
		requestCID, err = uc.Hasher.CID(requestDoc)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCanonicalize, err)
		}
	}

	result, err := uc.Idempotency.Do(ctx, req.IdempotencyKey, requestCID, func(ctx context.Context) (json.RawMessage, error) {
		exchange, err := uc.process(ctx, req, payload)
		if err != nil {
			return nil, err
		}
		return json.Marshal(exchange)
	})
	if err != nil {
		return nil, err
	}

	var exchange domain.ExchangeResponse
	if err := json.Unmarshal(result.Response, &exchange); err != nil {
		return nil, fmt.Errorf("%w: decode stored response: %v", domain.ErrStorageRead, err)
	}
	body := result.Response
	if result.Replayed {
		exchange.Idempotent = true
		body, err = json.Marshal(exchange)
		if err != nil {
			return nil, err
		}
	}
	return &SubmitExchangeResponse{
		Exchange: exchange,
		Body:     body,
		Replayed: result.Replayed,
		Mismatch: result.Mismatch,
	}, nil
}

func (uc *SubmitExchange) process(ctx context.Context, req SubmitExchangeRequest, payload json.RawMessage) (domain.ExchangeResponse, error) {
	normalized := Normalize(payload)

	decision := uc.Policy.Decide(ctx, req.ForwardURL)
	if !decision.Allowed {
		uc.logger().Info("forward denied", "reason", decision.Reason, "engine", uc.Policy.Name())
		return domain.ExchangeResponse{}, &domain.PolicyDeniedError{Reason: decision.Reason}
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = uc.NewTraceID()
	}
	receipt, err := uc.Ledger.Append(ctx, traceID, normalized)
	if err != nil {
		return domain.ExchangeResponse{}, err
	}
	if err := uc.Audit.Record(ctx, domain.LedgerEntry{
		TraceID:     traceID,
		Hop:         receipt.Hop,
		TS:          receipt.TS,
		PayloadType: req.PayloadType,
		TargetType:  req.TargetType,
		CID:         receipt.CID,
	}); err != nil {
		uc.logger().Error("audit ledger write failed", "trace_id", traceID, "hop", receipt.Hop, "error", err)
		return domain.ExchangeResponse{}, err
	}

	var forwarded *domain.Forwarded
	if strings.TrimSpace(req.ForwardURL) != "" {
		out := uc.Forwarder.Forward(ctx, domain.ForwardRequest{
			URL:        req.ForwardURL,
			TraceID:    traceID,
			CID:        receipt.CID,
			Normalized: normalized,
		})
		forwarded = &out
	}

	return domain.ExchangeResponse{
		TraceID:    traceID,
		Normalized: normalized,
		Policy: domain.PolicyBlock{
			Engine:  uc.Policy.Name(),
			Allowed: decision.Allowed,
			Reason:  decision.Reason,
			CID:     receipt.CID,
		},
		Receipt:   receipt,
		Forwarded: forwarded,
	}, nil
}

func (uc *SubmitExchange) logger() *slog.Logger {
	if uc.Logger == nil {
		return slog.Default()
	}
	return uc.Logger
}

type requestDocument struct {
	PayloadType string          `json:"payload_type"`
	TargetType  *string         `json:"target_type"`
	Payload     json.RawMessage `json:"payload"`
	ForwardURL  string          `json:"forward_url,omitempty"`
	TraceID     string          `json:"trace_id,omitempty"`
}

// Normalize wraps payload as {"Document":{"Echo":payload}} without re-encoding it.
func Normalize(payload json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	buf.Grow(len(payload) + 24)
	buf.WriteString(`{"Document":{"Echo":`)
	buf.Write(payload)
	buf.WriteString(`}}`)
	return buf.Bytes()
}

// compactObject requires a JSON object and strips insignificant whitespace, leaving
// number literals untouched.
func compactObject(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: payload must be a JSON object", domain.ErrInvalidRequest)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", domain.ErrInvalidRequest, err)
	}
	return buf.Bytes(), nil
}

// ValidTraceID accepts 1 to 128 characters of [A-Za-z0-9._:-].
func ValidTraceID(id string) bool {
	if id == "" || len(id) > maxTraceIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '_', c == ':', c == '-':
		default:
			return false
		}
	}
	return true
}
