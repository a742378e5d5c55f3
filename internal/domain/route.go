// Package domain holds the core types shared across the gateway: routes,
// circuit breaker configuration and state, policy results, and the
// per-request context threaded through the pipeline.
package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Route describes a single upstream binding: a path pattern, the upstream
// it forwards to, the ordered policy chain that guards it, and the circuit
// breaker configuration that protects its upstream.
type Route struct {
	ID          string            `json:"id"`
	Pattern     string            `json:"pattern"`
	Upstream    string            `json:"upstream"`
	Methods     []string          `json:"methods"`
	Policies    []string          `json:"policies"`
	Breaker     CircuitBreakerConfig `json:"breaker"`
	Timeout     time.Duration     `json:"timeout"`
	Retries     int               `json:"retries"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// CircuitBreakerConfig parameterizes the failure threshold, reset timeout,
// and per-success failure decrement applied while CLOSED for a single
// route's breaker.
type CircuitBreakerConfig struct {
	FailureThreshold     int           `json:"failure_threshold" toml:"failure_threshold"`
	ResetTimeout         time.Duration `json:"reset_timeout" toml:"reset_timeout"`
	SuccessesBeforeReset int           `json:"successes_before_reset" toml:"successes_before_reset"`
	Distributed          bool          `json:"distributed" toml:"distributed"`
}

// Validate checks a Route for structural correctness before it is admitted
// into the Config Manager's active set.
func (r Route) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("route id must not be empty")
	}
	if !strings.HasPrefix(r.Pattern, "/") {
		return fmt.Errorf("route %s: pattern must start with /", r.ID)
	}
	if strings.TrimSpace(r.Upstream) == "" {
		return fmt.Errorf("route %s: upstream must not be empty", r.ID)
	}
	target, err := url.Parse(r.Upstream)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return fmt.Errorf("route %s: upstream must be a valid absolute URL", r.ID)
	}
	if r.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("route %s: failure_threshold must be > 0", r.ID)
	}
	if r.Breaker.ResetTimeout <= 0 {
		return fmt.Errorf("route %s: reset_timeout must be > 0", r.ID)
	}
	if r.Breaker.SuccessesBeforeReset < 0 {
		return fmt.Errorf("route %s: successes_before_reset must be >= 0", r.ID)
	}
	if r.Retries < 0 {
		return fmt.Errorf("route %s: retries must be >= 0", r.ID)
	}
	return nil
}

// PatternSegments splits the route pattern into path segments, used by the
// matcher for longest-literal-prefix comparison.
func (r Route) PatternSegments() []string {
	trimmed := strings.Trim(r.Pattern, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
