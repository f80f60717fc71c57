// Package forward delivers normalized documents to an allowed destination.
package forward

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/domain"
)

const (
	HeaderTrace = "X-SIGNET-Trace"
	HeaderCID   = "X-SIGNET-CID"

	acceptedStatus = http.StatusAccepted
)

// Recorder acknowledges forwards without network I/O. The caller records the request as
// accepted.
type Recorder struct{}

func (Recorder) Forward(_ context.Context, req domain.ForwardRequest) domain.Forwarded {
	return domain.Forwarded{StatusCode: acceptedStatus, Host: req.URL}
}

// HTTPForwarder POSTs the normalized document. Upstream failures are reported in the
// result, never returned: the receipt is already durable when forwarding happens.
type HTTPForwarder struct {
	client *http.Client
	logger *slog.Logger
}

func NewHTTPForwarder(timeout time.Duration, logger *slog.Logger) *HTTPForwarder {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPForwarder{
		client: &http.Client{
			Timeout: timeout,
			// redirects could leave the allow-listed host
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
}

func (f *HTTPForwarder) Forward(ctx context.Context, req domain.ForwardRequest) domain.Forwarded {
	result := domain.Forwarded{Host: req.URL}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Normalized))
	if err != nil {
		result.Error = fmt.Sprintf("build request: %v", err)
		return result
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(HeaderTrace, req.TraceID)
	httpReq.Header.Set(HeaderCID, req.CID)

	resp, err := f.client.Do(httpReq)
	if err != nil {
		f.logger.Warn("forward failed", "trace_id", req.TraceID, "url", req.URL, "error", err)
		result.Error = err.Error()
		return result
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	result.StatusCode = resp.StatusCode
	return result
}
