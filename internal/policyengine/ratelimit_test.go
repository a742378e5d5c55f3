package policyengine

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"gatewaycore/internal/store"
	"gatewaycore/internal/telemetry"
)

func TestRateLimitDeniesOverLimit(t *testing.T) {
	st := store.NewMemoryStore()
	rl := NewRateLimit(st, 2, time.Minute, telemetry.NewLogger(slog.LevelError))
	rc := newCtx()
	rc.ClientIP = "1.2.3.4"

	for i := 0; i < 2; i++ {
		res, err := rl.Evaluate(context.Background(), rc)
		if err != nil || !res.Allowed {
			t.Fatalf("request %d: expected allow, got %+v, %v", i, res, err)
		}
	}
	res, err := rl.Evaluate(context.Background(), rc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Allowed || res.Status != 429 {
		t.Fatalf("expected 429 after exceeding limit, got %+v", res)
	}
}

func TestRateLimitDefaultsApplied(t *testing.T) {
	rl := NewRateLimit(store.NewMemoryStore(), 0, 0, telemetry.NewLogger(slog.LevelError))
	if rl.Limit != 100 || rl.Window != 60*time.Second {
		t.Fatalf("expected defaults 100/60s, got %d/%s", rl.Limit, rl.Window)
	}
}
