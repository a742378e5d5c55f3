package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gatewaycore/internal/breaker"
	"gatewaycore/internal/domain"
	"gatewaycore/internal/eventbus"
	"gatewaycore/internal/policyengine"
	"gatewaycore/internal/store"
	"gatewaycore/internal/telemetry"
)

func newTestPipeline(t *testing.T, upstream string, routes ...domain.Route) (*Pipeline, *breaker.Registry) {
	t.Helper()
	log := telemetry.NewLogger(slog.LevelError)
	metrics := telemetry.NewMetrics()
	bus := eventbus.New()
	st := store.NewMemoryStore()
	br := breaker.NewRegistry(st, bus, metrics, log)
	pe := policyengine.New(log)
	pe.Register("authentication", &policyengine.Authentication{JWTSecret: []byte("secret"), APIKey: "key"})
	pe.Register("rate_limit", policyengine.NewRateLimit(st, 2, time.Minute, log))
	pe.Register("ip_filter", policyengine.NewIPFilter(nil, nil))

	for i := range routes {
		if routes[i].Upstream == "" {
			routes[i].Upstream = upstream
		}
		br.Register(context.Background(), routes[i].ID, routes[i].Breaker)
	}

	src := NewManagerRouteSource(staticRoutes(routes))

	return &Pipeline{
		Routes:  src,
		Policy:  pe,
		Breaker: br,
		Metrics: metrics,
		Log:     log,
	}, br
}

type staticRoutes []domain.Route

func (s staticRoutes) GetRoutes() []domain.Route { return s }

func newRoute(id, pattern string, policies []string) domain.Route {
	return domain.Route{
		ID:       id,
		Pattern:  pattern,
		Policies: policies,
		Timeout:  2 * time.Second,
		Breaker: domain.CircuitBreakerConfig{
			FailureThreshold:     3,
			ResetTimeout:         100 * time.Millisecond,
			SuccessesBeforeReset: 1,
		},
	}
}

func TestHappyPath(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	}))
	defer upstream.Close()

	p, _ := newTestPipeline(t, upstream.URL, newRoute("svc", "/a/:id", nil))

	req := httptest.NewRequest("GET", "/a/42", nil)
	rec := httptest.NewRecorder()
	p.Handle(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAuthDenial(t *testing.T) {
	p, _ := newTestPipeline(t, "http://unused", newRoute("svc", "/a", []string{"authentication"}))

	req := httptest.NewRequest("GET", "/a", nil)
	rec := httptest.NewRecorder()
	p.Handle(rec, req)

	if rec.Code != 401 {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var body errorBody
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Error != "Unauthorized" {
		t.Fatalf("expected Unauthorized label, got %+v", body)
	}
}

func TestRateLimitDenialAfterThreshold(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer upstream.Close()

	p, _ := newTestPipeline(t, upstream.URL, newRoute("svc", "/a", []string{"rate_limit"}))

	req := func() *http.Request {
		r := httptest.NewRequest("GET", "/a", nil)
		r.RemoteAddr = "9.9.9.9:1111"
		return r
	}

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		p.Handle(rec, req())
		if rec.Code != 200 {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
	rec := httptest.NewRecorder()
	p.Handle(rec, req())
	if rec.Code != 429 {
		t.Fatalf("expected 429 after exceeding limit, got %d", rec.Code)
	}
}

func TestBreakerOpensAfterUpstreamFailures(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer upstream.Close()

	p, br := newTestPipeline(t, upstream.URL, newRoute("svc", "/a", nil))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		p.Handle(rec, httptest.NewRequest("GET", "/a", nil))
		if rec.Code != 502 {
			t.Fatalf("request %d: expected synthesized 502, got %d", i, rec.Code)
		}
	}

	if br.IsAllowed("svc") {
		t.Fatal("expected breaker to be open after repeated 5xx failures")
	}

	rec := httptest.NewRecorder()
	p.Handle(rec, httptest.NewRequest("GET", "/a", nil))
	if rec.Code != 503 {
		t.Fatalf("expected 503 circuit-open response, got %d", rec.Code)
	}
}

func TestRetryResendsFullBody(t *testing.T) {
	var bodies []string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(buf)
		bodies = append(bodies, string(buf))
		if len(bodies) < 2 {
			w.WriteHeader(500)
			return
		}
		w.WriteHeader(200)
	}))
	defer upstream.Close()

	route := newRoute("svc", "/a", nil)
	route.Retries = 1
	p, _ := newTestPipeline(t, upstream.URL, route)

	req := httptest.NewRequest("POST", "/a", strings.NewReader("payload"))
	req.ContentLength = int64(len("payload"))
	rec := httptest.NewRecorder()
	p.Handle(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200 after retry, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(bodies) != 2 {
		t.Fatalf("expected 2 upstream attempts, got %d", len(bodies))
	}
	for i, b := range bodies {
		if b != "payload" {
			t.Fatalf("attempt %d: expected full body to be resent, got %q", i, b)
		}
	}
}

func TestMissingRouteReturns404(t *testing.T) {
	p, _ := newTestPipeline(t, "http://unused", newRoute("svc", "/a", nil))

	rec := httptest.NewRecorder()
	p.Handle(rec, httptest.NewRequest("GET", "/does-not-exist", nil))
	if rec.Code != 404 {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
