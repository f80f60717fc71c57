package config

import (
	"encoding/json"
	"strings"
)

// HostAllowlist is the set of hosts the egress policy may forward to.
// An empty list disables host checking; the scheme check is always applied.
type HostAllowlist []string

func (a *HostAllowlist) UnmarshalText(text []byte) error {
	*a = ParseAllowlist(string(text))
	return nil
}

func (a HostAllowlist) Disabled() bool {
	return len(a) == 0
}

// ParseAllowlist accepts a JSON array of strings or a list separated by commas, semicolons,
// newlines or whitespace. "*" or a blank value disables host checking. Malformed JSON is
// parsed with the delimiter rules instead of failing.
func ParseAllowlist(raw string) HostAllowlist {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "*" {
		return nil
	}
	if strings.HasPrefix(raw, "[") {
		var hosts []string
		if err := json.Unmarshal([]byte(raw), &hosts); err == nil {
			return normalizeHosts(hosts)
		}
	}
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		switch r {
		case ',', ';', '\n', '\r', '\t', ' ':
			return true
		}
		return false
	})
	return normalizeHosts(fields)
}

func normalizeHosts(hosts []string) HostAllowlist {
	out := make(HostAllowlist, 0, len(hosts))
	seen := make(map[string]struct{}, len(hosts))
	for _, host := range hosts {
		host = strings.ToLower(strings.TrimSpace(host))
		if host == "" {
			continue
		}
		if host == "*" {
			return nil
		}
		if _, ok := seen[host]; ok {
			continue
		}
		seen[host] = struct{}{}
		out = append(out, host)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
