// Package breaker implements the per-service circuit breaker state machine:
// CLOSED/OPEN/HALF_OPEN, optional distributed coordination via the Shared
// Store, and Event Bus notifications on every transition.
//
// Each service gets its own mutex-guarded circuit held in a sync.Map, the
// way the teacher's resilience.CircuitBreaker keys its cache by service id,
// adapted here from a Postgres row to a Shared Store hash plus an
// atomic.Bool half-open gate (itsneelabh-gomind/resilience's atomic-state
// idiom).
package breaker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gatewaycore/internal/domain"
	"gatewaycore/internal/eventbus"
	"gatewaycore/internal/store"
	"gatewaycore/internal/telemetry"
)

// circuit is the mutable, mutex-guarded state for one service_id.
type circuit struct {
	mu sync.Mutex

	config domain.CircuitBreakerConfig

	state       domain.CircuitState
	failures    int
	successes   int
	lastFailure time.Time
	nextAttempt time.Time

	// probeInFlight gates HALF_OPEN admission to a single caller at a time
	// (§4.3's SHOULD), resolved as single-probe semantics.
	probeInFlight atomic.Bool
}

// Registry owns every service's circuit, plus the collaborators it reports
// through: the Shared Store for distributed mode, the Event Bus for
// notifications, the Metrics Registry for the breaker gauges/counters, and
// a Logger for fail-open/local-only degradation notices.
type Registry struct {
	circuits sync.Map // service_id -> *circuit

	store   store.Store
	bus     *eventbus.Bus
	metrics *telemetry.Metrics
	warn    *telemetry.RateLimitedWarn
}

// NewRegistry builds an empty Registry.
func NewRegistry(st store.Store, bus *eventbus.Bus, metrics *telemetry.Metrics, log telemetry.Logger) *Registry {
	return &Registry{
		store:   st,
		bus:     bus,
		metrics: metrics,
		warn:    telemetry.NewRateLimitedWarn(log),
	}
}

// Register installs or replaces the breaker configuration for service_id,
// hydrating from the Shared Store if config.Distributed and a prior state
// is present there.
func (r *Registry) Register(ctx context.Context, serviceID string, config domain.CircuitBreakerConfig) {
	c := &circuit{config: config, state: domain.StateClosed}

	if config.Distributed {
		r.hydrate(ctx, serviceID, c)
	}

	r.circuits.Store(serviceID, c)
	r.metrics.SetBreakerState(serviceID, int(c.state))
}

// Unregister removes serviceID's breaker entirely, used when its route is
// deleted from the Config Manager's active set.
func (r *Registry) Unregister(serviceID string) {
	r.circuits.Delete(serviceID)
}

func (r *Registry) get(serviceID string) (*circuit, bool) {
	v, ok := r.circuits.Load(serviceID)
	if !ok {
		return nil, false
	}
	return v.(*circuit), true
}

// IsAllowed reports whether a request to serviceID may proceed. A missing
// registration is treated as always-allowed (§4.1 edge case) and logged at
// most once a minute per service, not only once.
func (r *Registry) IsAllowed(serviceID string) bool {
	c, ok := r.get(serviceID)
	if !ok {
		r.warn.Warn("missing-breaker:"+serviceID, "no circuit breaker registered for service, allowing by default", "service_id", serviceID)
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case domain.StateClosed:
		return true
	case domain.StateHalfOpen:
		// Single-probe semantics: only the caller that wins the gate is
		// admitted; later callers are denied until the probe resolves.
		return c.probeInFlight.CompareAndSwap(false, true)
	case domain.StateOpen:
		if time.Now().Before(c.nextAttempt) {
			return false
		}
		// Timeout elapsed: promote to HALF_OPEN and admit a single probe.
		c.state = domain.StateHalfOpen
		c.probeInFlight.Store(true)
		r.metrics.SetBreakerState(serviceID, int(c.state))
		r.publish(serviceID, c, eventbus.TopicStateChange, "reset_timeout_elapsed")
		r.persist(serviceID, c)
		return true
	default:
		return true
	}
}

// RecordSuccess records a successful call against serviceID.
func (r *Registry) RecordSuccess(serviceID string) {
	c, ok := r.get(serviceID)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case domain.StateHalfOpen:
		c.state = domain.StateClosed
		c.failures = 0
		c.successes = 1
		c.probeInFlight.Store(false)
		r.metrics.SetBreakerState(serviceID, int(c.state))
		r.publish(serviceID, c, eventbus.TopicStateChange, "half_open_probe_succeeded")
		r.persist(serviceID, c)
	case domain.StateClosed:
		c.successes++
		if c.failures > 0 {
			c.failures -= c.config.SuccessesBeforeReset
			if c.failures < 0 {
				c.failures = 0
			}
			r.persist(serviceID, c)
		}
	}
}

// RecordFailure records a failed call against serviceID and transitions
// state per §4.3's table.
func (r *Registry) RecordFailure(serviceID string, kind domain.ErrorKind, err error) {
	c, ok := r.get(serviceID)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastFailure = time.Now()
	c.successes = 0
	r.metrics.RecordBreakerFailure(serviceID, string(kind))

	switch c.state {
	case domain.StateHalfOpen:
		c.state = domain.StateOpen
		c.nextAttempt = time.Now().Add(c.config.ResetTimeout)
		c.probeInFlight.Store(false)
		r.metrics.SetBreakerState(serviceID, int(c.state))
		r.publishFailure(serviceID, c, eventbus.TopicStateChange, kind, errString(err))
		r.persist(serviceID, c)
	case domain.StateClosed:
		c.failures++
		if c.failures >= c.config.FailureThreshold {
			c.state = domain.StateOpen
			c.nextAttempt = time.Now().Add(c.config.ResetTimeout)
			r.metrics.SetBreakerState(serviceID, int(c.state))
			r.publishFailure(serviceID, c, eventbus.TopicStateChange, kind, errString(err))
		} else {
			r.publishFailure(serviceID, c, eventbus.TopicFailure, kind, errString(err))
		}
		r.persist(serviceID, c)
	}
}

// Reset forces serviceID's breaker back to CLOSED with counters cleared.
func (r *Registry) Reset(serviceID string) {
	c, ok := r.get(serviceID)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = domain.StateClosed
	c.failures = 0
	c.successes = 0
	c.probeInFlight.Store(false)
	r.metrics.SetBreakerState(serviceID, int(c.state))
	r.publish(serviceID, c, eventbus.TopicReset, "")
	r.persist(serviceID, c)
}

// Health returns a point-in-time snapshot of every registered breaker.
func (r *Registry) Health() map[string]domain.CircuitSnapshot {
	out := make(map[string]domain.CircuitSnapshot)
	r.circuits.Range(func(key, value any) bool {
		id := key.(string)
		c := value.(*circuit)
		c.mu.Lock()
		out[id] = domain.CircuitSnapshot{
			ServiceID:   id,
			State:       c.state,
			Failures:    c.failures,
			Successes:   c.successes,
			LastFailure: unixMilliOrZero(c.lastFailure),
			NextAttempt: unixMilliOrZero(c.nextAttempt),
		}
		c.mu.Unlock()
		return true
	})
	return out
}

func (r *Registry) publish(serviceID string, c *circuit, topic, reason string) {
	r.bus.Publish(topic, domain.FailureEvent{ServiceID: serviceID, State: c.state, Reason: reason})
}

func (r *Registry) publishFailure(serviceID string, c *circuit, topic string, kind domain.ErrorKind, reason string) {
	r.bus.Publish(topic, domain.FailureEvent{ServiceID: serviceID, State: c.state, Kind: kind, Reason: reason})
}

// persist mirrors the breaker's state to the Shared Store when distributed
// mode is on. Failures here degrade to local-only operation, logged at
// most once a minute per §5.
func (r *Registry) persist(serviceID string, c *circuit) {
	if !c.config.Distributed {
		return
	}
	ttl := 2 * c.config.ResetTimeout
	if ttl < 30*time.Minute {
		ttl = 30 * time.Minute
	}
	kv := map[string]string{
		key(serviceID, "state"):       fmt.Sprint(int(c.state)),
		key(serviceID, "failures"):    fmt.Sprint(c.failures),
		key(serviceID, "lastFailure"): fmt.Sprint(unixMilliOrZero(c.lastFailure)),
		key(serviceID, "nextAttempt"): fmt.Sprint(unixMilliOrZero(c.nextAttempt)),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.store.MultiSet(ctx, kv, ttl); err != nil {
		r.warn.Warn("distributed-breaker-write:"+serviceID, "circuit breaker distributed write failed, continuing local-only", "service_id", serviceID, "error", err)
	}
}

func (r *Registry) hydrate(ctx context.Context, serviceID string, c *circuit) {
	hctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	stateStr, err := r.store.Get(hctx, key(serviceID, "state"))
	if err != nil {
		r.warn.Warn("distributed-breaker-read:"+serviceID, "circuit breaker distributed hydrate failed, starting local-only", "service_id", serviceID, "error", err)
		return
	}
	var state int
	fmt.Sscanf(stateStr, "%d", &state)
	c.state = domain.CircuitState(state)

	if v, err := r.store.Get(hctx, key(serviceID, "failures")); err == nil {
		fmt.Sscanf(v, "%d", &c.failures)
	}
	if v, err := r.store.Get(hctx, key(serviceID, "lastFailure")); err == nil {
		var n int64
		fmt.Sscanf(v, "%d", &n)
		if n > 0 {
			c.lastFailure = time.UnixMilli(n)
		}
	}
	if v, err := r.store.Get(hctx, key(serviceID, "nextAttempt")); err == nil {
		var n int64
		fmt.Sscanf(v, "%d", &n)
		if n > 0 {
			c.nextAttempt = time.UnixMilli(n)
		}
	}
}

func key(serviceID, field string) string {
	return fmt.Sprintf("circuit:%s:%s", serviceID, field)
}

func unixMilliOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
