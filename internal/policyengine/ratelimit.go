package policyengine

import (
	"context"
	"fmt"
	"time"

	"gatewaycore/internal/domain"
	"gatewaycore/internal/store"
	"gatewaycore/internal/telemetry"
)

// RateLimit implements the Rate Limiting built-in policy: a fixed tumbling
// window over the Shared Store, keyed by route+client IP. On store
// unavailability it fails open (allow) per §4.2/§5, logging at most once a
// minute.
type RateLimit struct {
	Store  store.Store
	Limit  int
	Window time.Duration
	warn   *telemetry.RateLimitedWarn
}

// NewRateLimit builds a RateLimit policy with the default limit/window
// applied when either is zero (100 requests / 60 seconds, per §4.2).
func NewRateLimit(st store.Store, limit int, window time.Duration, log telemetry.Logger) *RateLimit {
	if limit <= 0 {
		limit = 100
	}
	if window <= 0 {
		window = 60 * time.Second
	}
	return &RateLimit{Store: st, Limit: limit, Window: window, warn: telemetry.NewRateLimitedWarn(log)}
}

func (p *RateLimit) Evaluate(ctx context.Context, rc *domain.RequestContext) (*domain.PolicyResult, error) {
	key := fmt.Sprintf("ratelimit:%s:%s", rc.Route.ID, rc.ClientIP)

	sctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	count, err := p.Store.Incr(sctx, key, p.Window)
	if err != nil {
		p.warn.Warn("ratelimit-store:"+rc.Route.ID, "rate limiter shared store unavailable, failing open", "route", rc.Route.ID, "error", err)
		return domain.Allow(), nil
	}

	if count > int64(p.Limit) {
		return domain.Deny(429, "Too Many Requests", "rate limit exceeded"), nil
	}
	return domain.Allow(), nil
}
