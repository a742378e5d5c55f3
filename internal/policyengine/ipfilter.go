package policyengine

import (
	"context"

	"gatewaycore/internal/domain"
)

// IPFilter implements the IP Filtering built-in policy: pure CPU, no
// suspension points, per §5. Allowlist, when non-empty, takes precedence.
type IPFilter struct {
	Allowlist map[string]struct{}
	Denylist  map[string]struct{}
}

// NewIPFilter builds an IPFilter from plain string slices.
func NewIPFilter(allow, deny []string) *IPFilter {
	return &IPFilter{Allowlist: toSet(allow), Denylist: toSet(deny)}
}

func toSet(ips []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ips))
	for _, ip := range ips {
		set[ip] = struct{}{}
	}
	return set
}

func (p *IPFilter) Evaluate(_ context.Context, rc *domain.RequestContext) (*domain.PolicyResult, error) {
	if len(p.Allowlist) > 0 {
		if _, ok := p.Allowlist[rc.ClientIP]; !ok {
			return domain.Deny(403, "Forbidden", "client IP not in allowlist"), nil
		}
	}
	if _, denied := p.Denylist[rc.ClientIP]; denied {
		return domain.Deny(403, "Forbidden", "client IP is denylisted"), nil
	}
	return domain.Allow(), nil
}
