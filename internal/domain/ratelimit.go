package domain

import (
	"context"
	"time"
)

// QuotaPolicy allows Requests exchanges per client within any Window.
type QuotaPolicy struct {
	Requests int
	Window   time.Duration
}

func (p QuotaPolicy) Enabled() bool {
	return p.Requests > 0 && p.Window > 0
}

// Admission is the result of charging one request against a client's quota.
type Admission struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// ClientQuota meters requests per client key.
type ClientQuota interface {
	Admit(ctx context.Context, client string) (Admission, error)
}
