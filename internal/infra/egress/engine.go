// Package egress decides whether a normalized document may be forwarded to a URL.
package egress

import (
	"context"
	"net/url"
	"strings"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/domain"
)

const EngineName = "HEL"

// Target is the part of a forward URL that policy looks at.
type Target struct {
	Scheme string `json:"scheme"`
	Host   string `json:"host"`
	Valid  bool   `json:"valid"`
}

// ParseTarget lowercases scheme and host and drops the port. Valid is false when the
// URL cannot be parsed at all.
func ParseTarget(forwardURL string) Target {
	u, err := url.Parse(strings.TrimSpace(forwardURL))
	if err != nil {
		return Target{}
	}
	return Target{
		Scheme: strings.ToLower(u.Scheme),
		Host:   strings.ToLower(u.Hostname()),
		Valid:  true,
	}
}

// Engine is the native allow-list policy. The zero allow-list disables host checks.
type Engine struct {
	hosts map[string]struct{}
}

func NewEngine(allowlist []string) *Engine {
	e := &Engine{}
	if len(allowlist) == 0 {
		return e
	}
	e.hosts = make(map[string]struct{}, len(allowlist))
	for _, host := range allowlist {
		e.hosts[strings.ToLower(strings.TrimSpace(host))] = struct{}{}
	}
	return e
}

func (e *Engine) Name() string {
	return EngineName
}

func (e *Engine) Decide(_ context.Context, forwardURL string) domain.PolicyDecision {
	if strings.TrimSpace(forwardURL) == "" {
		return domain.PolicyDecision{Allowed: true, Reason: domain.ReasonNoForward}
	}
	target := ParseTarget(forwardURL)
	if !target.Valid || target.Scheme != "https" {
		return deny(domain.ReasonInsecureScheme)
	}
	// a URL without a host has nowhere to go, even with host checks disabled
	if target.Host == "" {
		return deny(domain.ReasonHostNotAllowlisted)
	}
	if e.hosts != nil {
		if _, ok := e.hosts[target.Host]; !ok {
			return deny(domain.ReasonHostNotAllowlisted)
		}
	}
	return domain.PolicyDecision{Allowed: true, Reason: domain.ReasonOK}
}

func deny(reason string) domain.PolicyDecision {
	return domain.PolicyDecision{Allowed: false, Reason: reason}
}

var _ domain.EgressPolicy = (*Engine)(nil)
