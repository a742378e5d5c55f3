package breaker

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"gatewaycore/internal/domain"
	"gatewaycore/internal/eventbus"
	"gatewaycore/internal/store"
	"gatewaycore/internal/telemetry"
)

func newTestRegistry() *Registry {
	return NewRegistry(store.NewMemoryStore(), eventbus.New(), telemetry.NewMetrics(), telemetry.NewLogger(slog.LevelError))
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	r := newTestRegistry()
	cfg := domain.CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: 50 * time.Millisecond, SuccessesBeforeReset: 1}
	r.Register(context.Background(), "svc", cfg)

	for i := 0; i < 2; i++ {
		r.RecordFailure("svc", domain.ErrorKindTransport, errors.New("boom"))
		if !r.IsAllowed("svc") {
			t.Fatalf("expected still allowed after %d failures", i+1)
		}
	}
	r.RecordFailure("svc", domain.ErrorKindTransport, errors.New("boom"))
	if r.IsAllowed("svc") {
		t.Fatal("expected breaker to be open after hitting threshold")
	}
}

func TestBreakerHalfOpenAfterTimeout(t *testing.T) {
	r := newTestRegistry()
	cfg := domain.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond, SuccessesBeforeReset: 1}
	r.Register(context.Background(), "svc", cfg)

	r.RecordFailure("svc", domain.ErrorKindTransport, errors.New("boom"))
	if r.IsAllowed("svc") {
		t.Fatal("expected open immediately")
	}
	time.Sleep(20 * time.Millisecond)
	if !r.IsAllowed("svc") {
		t.Fatal("expected half-open probe to be admitted after timeout")
	}
	r.RecordSuccess("svc")
	if !r.IsAllowed("svc") {
		t.Fatal("expected closed after successful probe")
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	r := newTestRegistry()
	cfg := domain.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond, SuccessesBeforeReset: 1}
	r.Register(context.Background(), "svc", cfg)

	r.RecordFailure("svc", domain.ErrorKindTransport, errors.New("boom"))
	time.Sleep(20 * time.Millisecond)
	r.IsAllowed("svc") // promotes to half-open
	r.RecordFailure("svc", domain.ErrorKindTransport, errors.New("boom again"))
	if r.IsAllowed("svc") {
		t.Fatal("expected breaker to be open again after half-open failure")
	}
}

func TestBreakerHalfOpenAdmitsSingleProbe(t *testing.T) {
	r := newTestRegistry()
	cfg := domain.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond, SuccessesBeforeReset: 1}
	r.Register(context.Background(), "svc", cfg)

	r.RecordFailure("svc", domain.ErrorKindTransport, errors.New("boom"))
	time.Sleep(20 * time.Millisecond)

	if !r.IsAllowed("svc") {
		t.Fatal("expected first caller to win the half-open probe gate")
	}
	if r.IsAllowed("svc") {
		t.Fatal("expected second concurrent caller to be denied while probe is in flight")
	}

	r.RecordSuccess("svc")
	if !r.IsAllowed("svc") {
		t.Fatal("expected closed and admitting again after probe succeeds")
	}
}

func TestBreakerMissingRegistrationAllowsByDefault(t *testing.T) {
	r := newTestRegistry()
	if !r.IsAllowed("unregistered") {
		t.Fatal("expected unregistered service to be allowed")
	}
}
