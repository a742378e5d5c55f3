package policyengine

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"

	"gatewaycore/internal/domain"
	"gatewaycore/internal/telemetry"
)

type fixedPolicy struct {
	result *domain.PolicyResult
	err    error
	panics bool
}

func (f *fixedPolicy) Evaluate(context.Context, *domain.RequestContext) (*domain.PolicyResult, error) {
	if f.panics {
		panic("boom")
	}
	return f.result, f.err
}

func newCtx() *domain.RequestContext {
	req, _ := http.NewRequest("GET", "/x", nil)
	return &domain.RequestContext{Request: req, Route: &domain.Route{ID: "svc"}}
}

func TestApplyAllowsWhenChainPasses(t *testing.T) {
	e := New(telemetry.NewLogger(slog.LevelError))
	e.Register("always-allow", &fixedPolicy{result: domain.Allow()})

	res := e.Apply(context.Background(), []string{"always-allow"}, newCtx())
	if !res.Allowed {
		t.Fatalf("expected allow, got %+v", res)
	}
}

func TestApplyShortCircuitsOnDenial(t *testing.T) {
	e := New(telemetry.NewLogger(slog.LevelError))
	e.Register("deny", &fixedPolicy{result: domain.Deny(403, "Forbidden", "nope")})
	e.Register("never-reached", &fixedPolicy{panics: true})

	res := e.Apply(context.Background(), []string{"deny", "never-reached"}, newCtx())
	if res.Allowed || res.Status != 403 {
		t.Fatalf("expected 403 denial, got %+v", res)
	}
}

func TestApplySkipsMissingPolicy(t *testing.T) {
	e := New(telemetry.NewLogger(slog.LevelError))
	res := e.Apply(context.Background(), []string{"does-not-exist"}, newCtx())
	if !res.Allowed {
		t.Fatalf("expected allow when the only policy is missing, got %+v", res)
	}
}

func TestApplyAbortsOnPolicyError(t *testing.T) {
	e := New(telemetry.NewLogger(slog.LevelError))
	e.Register("broken", &fixedPolicy{err: errors.New("internal failure")})

	res := e.Apply(context.Background(), []string{"broken"}, newCtx())
	if res.Allowed || res.Status != 500 {
		t.Fatalf("expected 500 abort, got %+v", res)
	}
}

func TestApplyRecoversPolicyPanic(t *testing.T) {
	e := New(telemetry.NewLogger(slog.LevelError))
	e.Register("panics", &fixedPolicy{panics: true})

	res := e.Apply(context.Background(), []string{"panics"}, newCtx())
	if res.Allowed || res.Status != 500 {
		t.Fatalf("expected 500 from recovered panic, got %+v", res)
	}
}

func TestIPFilterAllowlistPrecedence(t *testing.T) {
	f := NewIPFilter([]string{"10.0.0.1"}, []string{"10.0.0.2"})
	rc := newCtx()
	rc.ClientIP = "10.0.0.5"

	res, _ := f.Evaluate(context.Background(), rc)
	if res.Allowed {
		t.Fatal("expected IP not in allowlist to be denied")
	}
}

func TestIPFilterDenylist(t *testing.T) {
	f := NewIPFilter(nil, []string{"10.0.0.2"})
	rc := newCtx()
	rc.ClientIP = "10.0.0.2"

	res, _ := f.Evaluate(context.Background(), rc)
	if res.Allowed {
		t.Fatal("expected denylisted IP to be denied")
	}
}
