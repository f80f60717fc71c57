package domain

import "context"

const (
	ReasonOK                 = "ok"
	ReasonNoForward          = "no_forward"
	ReasonInsecureScheme     = "insecure_scheme"
	ReasonHostNotAllowlisted = "host_not_allowlisted"
	ReasonPolicyError        = "policy_error"
)

type PolicyDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// EgressPolicy decides whether a payload may be forwarded to a URL.
// Implementations must be safe for concurrent use and free of side effects.
type EgressPolicy interface {
	Name() string
	Decide(ctx context.Context, forwardURL string) PolicyDecision
}

// PolicyBlock is the policy section of an exchange response.
type PolicyBlock struct {
	Engine  string `json:"engine"`
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	CID     string `json:"cid"`
}
