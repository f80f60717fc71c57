package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/domain"
	"github.com/Maverick0351a/signet-protocol-core-console/internal/usecase"
)

const (
	headerIdempotencyKey     = "X-SIGNET-Idempotency-Key"
	headerIdempotent         = "X-SIGNET-Idempotent"
	headerIdempotentMismatch = "X-SIGNET-Idempotent-Mismatch"
	headerTrace              = "X-SIGNET-Trace"
	headerResponseCID        = "X-SIGNET-Response-CID"
	headerSignature          = "X-SIGNET-Signature"
	headerKID                = "X-SIGNET-KID"
	payloadTooLargeMessage   = "Request body exceeds size limit"
	chainNotFoundMessage     = "Chain not found"
)

type errorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// exchangeError is the error body of the exchange and receipt routes.
type exchangeError struct {
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

type exchangeRequest struct {
	PayloadType string          `json:"payload_type"`
	TargetType  *string         `json:"target_type"`
	Payload     json.RawMessage `json:"payload"`
	ForwardURL  *string         `json:"forward_url"`
	TraceID     *string         `json:"trace_id"`
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"service":   serviceName,
		"storage":   s.cfg.Storage,
		"canonical": s.cfg.CanonicalMode,
	})
}

func (s *Server) handleJWKS(c *gin.Context) {
	c.JSON(http.StatusOK, s.jwksUC.Execute(c.Request.Context()))
}

func (s *Server) handleExchange(c *gin.Context) {
	start := time.Now()
	result := resultError
	defer func() {
		s.metrics.ExchangesTotal.WithLabelValues(result).Inc()
		s.metrics.ExchangeLatency.Observe(time.Since(start).Seconds())
	}()

	limit := s.cfg.MaxExchangeBodyBytes
	if c.Request.ContentLength > limit {
		result = resultRejected
		writePayloadTooLarge(c)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			result = resultRejected
			writePayloadTooLarge(c)
			return
		}
		result = resultRejected
		writeInvalidRequest(c, "could not read request body")
		return
	}

	var req exchangeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		result = resultRejected
		writeInvalidRequest(c, "request body must be a JSON object with payload_type and payload")
		return
	}

	out, err := s.submitUC.Execute(c.Request.Context(), usecase.SubmitExchangeRequest{
		PayloadType:    req.PayloadType,
		TargetType:     req.TargetType,
		Payload:        req.Payload,
		ForwardURL:     stringValue(req.ForwardURL),
		TraceID:        stringValue(req.TraceID),
		IdempotencyKey: strings.TrimSpace(c.GetHeader(headerIdempotencyKey)),
	})
	if err != nil {
		var denied *domain.PolicyDeniedError
		switch {
		case errors.As(err, &denied):
			result = resultDenied
			s.metrics.DeniedTotal.WithLabelValues(denied.Reason).Inc()
			c.JSON(http.StatusForbidden, exchangeError{
				Error:   "forward_denied",
				Reason:  denied.Reason,
				Message: "Forward denied: " + denied.Reason,
			})
		case errors.Is(err, domain.ErrPayloadTooLarge):
			result = resultRejected
			writePayloadTooLarge(c)
		case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidTraceID):
			result = resultRejected
			writeInvalidRequest(c, err.Error())
		default:
			s.logger.Error("exchange failed", "error", err)
			writeError(c, err)
		}
		return
	}

	if out.Replayed {
		result = resultReplay
		c.Header(headerIdempotent, "true")
		if out.Mismatch {
			c.Header(headerIdempotentMismatch, "true")
		}
	} else {
		result = resultOK
		if fwd := out.Exchange.Forwarded; fwd != nil {
			s.metrics.ForwardTotal.WithLabelValues(forwardHost(fwd.Host)).Inc()
		}
	}
	c.Header(headerTrace, out.Exchange.TraceID)
	c.Data(http.StatusOK, "application/json", out.Body)
}

func (s *Server) handleChain(c *gin.Context) {
	chain, err := s.chainUC.Execute(c.Request.Context(), c.Param("trace_id"))
	if err != nil {
		s.writeReceiptsError(c, err)
		return
	}
	c.JSON(http.StatusOK, chain)
}

func (s *Server) handleExport(c *gin.Context) {
	out, err := s.exportUC.Execute(c.Request.Context(), c.Param("trace_id"))
	if err != nil {
		s.writeReceiptsError(c, err)
		return
	}
	c.Header(headerResponseCID, out.ResponseCID)
	c.Header(headerSignature, out.Signature)
	c.Header(headerKID, out.KID)
	c.JSON(http.StatusOK, out.Bundle)
}

func (s *Server) writeReceiptsError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, exchangeError{Error: "not_found", Message: chainNotFoundMessage})
		return
	}
	s.logger.Error("receipts request failed", "trace_id", c.Param("trace_id"), "error", err)
	writeError(c, err)
}

func writePayloadTooLarge(c *gin.Context) {
	c.JSON(http.StatusRequestEntityTooLarge, exchangeError{
		Error:   "payload_too_large",
		Message: payloadTooLargeMessage,
	})
}

func writeInvalidRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, exchangeError{Error: "invalid_request", Message: message})
}

// writeError maps sentinel errors to a status. Internal failures do not echo the cause.
func writeError(c *gin.Context, err error) {
	status, code, message := http.StatusInternalServerError, "INTERNAL", "internal error"
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status, code, message = http.StatusNotFound, "NOT_FOUND", err.Error()
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidTraceID):
		status, code, message = http.StatusBadRequest, "INVALID_REQUEST", err.Error()
	case errors.Is(err, domain.ErrCanonicalize):
		status, code, message = http.StatusBadRequest, "CANONICALIZATION_FAILED", "payload cannot be canonicalized"
	case errors.Is(err, domain.ErrPayloadTooLarge):
		status, code, message = http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", payloadTooLargeMessage
	case errors.Is(err, domain.ErrStorageWrite), errors.Is(err, domain.ErrStorageRead):
		code, message = "STORAGE_ERROR", "storage unavailable"
	case errors.Is(err, domain.ErrSigningKey):
		code, message = "SIGNING_KEY_UNAVAILABLE", "signing key unavailable"
	}
	writeErrorCode(c, status, code, message)
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}

func forwardHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
