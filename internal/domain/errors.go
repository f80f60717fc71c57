package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrInvalidTraceID  = errors.New("invalid trace id")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrStorageWrite    = errors.New("storage write failed")
	ErrStorageRead     = errors.New("storage read failed")
	ErrSigningKey      = errors.New("signing key unavailable")
	ErrCanonicalize    = errors.New("canonicalization failed")
)

// PolicyDeniedError is returned when the egress policy refuses a forward.
type PolicyDeniedError struct {
	Reason string
}

func (e *PolicyDeniedError) Error() string {
	return fmt.Sprintf("forward denied: %s", e.Reason)
}
