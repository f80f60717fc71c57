package domain

import "encoding/json"

// ForwardRequest is one delivery to a URL that already passed the egress policy.
type ForwardRequest struct {
	URL        string
	TraceID    string
	CID        string
	Normalized json.RawMessage
}

// Forwarded describes the outcome of forwarding a normalized document.
type Forwarded struct {
	StatusCode int    `json:"status_code"`
	Host       string `json:"host"`
	Error      string `json:"error,omitempty"`
}

type ExchangeResponse struct {
	TraceID    string          `json:"trace_id"`
	Normalized json.RawMessage `json:"normalized"`
	Policy     PolicyBlock     `json:"policy"`
	Receipt    Receipt         `json:"receipt"`
	Forwarded  *Forwarded      `json:"forwarded"`
	Idempotent bool            `json:"idempotent"`
}
