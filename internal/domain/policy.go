package domain

import "net/http"

// PolicyResult is what a single named policy returns after evaluating a
// request. Allowed=false short-circuits the chain. Error is the short
// machine-facing label (e.g. "Unauthorized"); Reason is the human-readable
// detail. PolicyName is filled in by the Engine, not the policy itself.
type PolicyResult struct {
	Allowed    bool
	Status     int
	Error      string
	Reason     string
	PolicyName string
}

// Allow is a convenience constructor for a passing policy result.
func Allow() *PolicyResult {
	return &PolicyResult{Allowed: true}
}

// Deny is a convenience constructor for a failing policy result with an
// explicit HTTP status, short error label, and human-readable reason.
func Deny(status int, errLabel, reason string) *PolicyResult {
	return &PolicyResult{Allowed: false, Status: status, Error: errLabel, Reason: reason}
}

// RequestContext carries the per-request state threaded through the
// pipeline: the matched route, the inbound request, the assigned request
// id, and the identity extracted by the authentication policy (if any).
type RequestContext struct {
	RequestID string
	Route     *Route
	Request   *http.Request
	ClientIP  string
	Identity  string
}
