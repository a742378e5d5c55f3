// Package gateway implements the request pipeline: match a route, run its
// policy chain, consult its circuit breaker, forward to the upstream, and
// record telemetry. Grounded on the teacher's internal/gateway.Service
// (a struct composing many injected collaborators) and
// internal/resilience.Retry (simplified here to fixed backoff per the
// forwarding step's retry contract).
package gateway

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"gatewaycore/internal/breaker"
	"gatewaycore/internal/domain"
	"gatewaycore/internal/policyengine"
	"gatewaycore/internal/routematch"
	"gatewaycore/internal/telemetry"
)

// RouteSource supplies the matcher the pipeline should use for the current
// request; the caller rebuilds it whenever the Config Manager's active set
// changes.
type RouteSource interface {
	Matcher() *routematch.Matcher
}

// Pipeline composes a matcher source, the policy engine, the breaker
// registry, and the telemetry surface into a single request handler.
type Pipeline struct {
	Routes  RouteSource
	Policy  *policyengine.Engine
	Breaker *breaker.Registry
	Metrics *telemetry.Metrics
	Log     telemetry.Logger

	Transport http.RoundTripper
}

// errorBody is the JSON shape for every gateway-synthesized error response,
// per §6: {"error": <short>, "reason": <detail>}.
type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// Handle implements §4.1's six steps and recovers any panic at this
// boundary, converting it to a 500 rather than letting it escape.
func (p *Pipeline) Handle(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			p.Log.Error("pipeline panic recovered", "panic", rec)
			writeJSON(w, 500, errorBody{Error: "Internal Server Error", Reason: "unexpected error"})
		}
	}()

	start := time.Now()
	requestID := uuid.NewString()
	w.Header().Set("X-Request-Id", requestID)

	matcher := p.Routes.Matcher()
	result, ok := matcher.Match(r.Method, r.URL.Path)
	if !ok {
		writeJSON(w, 404, errorBody{Error: "Not Found", Reason: "no matching route"})
		return
	}
	route := result.Route

	rc := &domain.RequestContext{
		RequestID: requestID,
		Route:     route,
		Request:   r,
		ClientIP:  clientIP(r),
	}

	policyResult := p.Policy.Apply(r.Context(), route.Policies, rc)
	if !policyResult.Allowed {
		p.Log.Info("policy denied request", "route", route.ID, "policy", policyResult.PolicyName, "status", policyResult.Status)
		writeJSON(w, policyResult.Status, errorBody{Error: policyResult.Error, Reason: policyResult.Reason})
		p.recordMetrics(route.ID, r.Method, policyResult.Status, start)
		return
	}

	if !p.Breaker.IsAllowed(route.ID) {
		writeJSON(w, 503, errorBody{Error: "Service Unavailable", Reason: "circuit open"})
		p.recordMetrics(route.ID, r.Method, 503, start)
		return
	}

	status := p.forward(w, r, route, result.Remainder, requestID, rc.ClientIP)
	p.recordMetrics(route.ID, r.Method, status, start)
}

func (p *Pipeline) recordMetrics(route, method string, status int, start time.Time) {
	p.Metrics.RecordRequest(route, method, statusLabel(status), time.Since(start).Seconds())
}

func statusLabel(status int) string {
	return strconv.Itoa(status)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
