// Package policyengine implements the named policy registry and chain
// evaluator, matching the teacher's policy.Engine registry/locking idiom
// (internal/policy/engine.go's patternCache double-checked locking) while
// replacing the ARN/tenant-specific business logic with the gateway's
// authentication/rate-limit/IP-filter built-ins.
package policyengine

import (
	"context"
	"fmt"
	"sync"

	"gatewaycore/internal/domain"
	"gatewaycore/internal/telemetry"
)

// Policy evaluates a single request and returns whether it may proceed.
type Policy interface {
	Evaluate(ctx context.Context, rc *domain.RequestContext) (*domain.PolicyResult, error)
}

// Engine is the named policy registry. Policies are looked up by name on
// every Apply call so re-registration (replace-on-conflict) takes effect
// immediately for requests in flight.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]Policy
	log      telemetry.Logger
}

// New builds an empty Engine.
func New(log telemetry.Logger) *Engine {
	return &Engine{policies: make(map[string]Policy), log: log}
}

// Register inserts or replaces the policy under name.
func (e *Engine) Register(name string, p Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies[name] = p
}

func (e *Engine) lookup(name string) (Policy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.policies[name]
	return p, ok
}

// Apply evaluates names in order against rc. A missing name is logged and
// skipped. The first denial short-circuits the chain. A policy that
// returns an error (or panics) aborts the chain with a 500 result carrying
// the offending policy's name.
func (e *Engine) Apply(ctx context.Context, names []string, rc *domain.RequestContext) *domain.PolicyResult {
	for _, name := range names {
		p, ok := e.lookup(name)
		if !ok {
			e.log.Warn("policy not registered, skipping", "policy", name)
			continue
		}

		result, err := e.runSafely(ctx, p, rc, name)
		if err != nil {
			return &domain.PolicyResult{
				Allowed:    false,
				Status:     500,
				Error:      "Internal Server Error",
				Reason:     "Error evaluating policy",
				PolicyName: name,
			}
		}
		if !result.Allowed {
			result.PolicyName = name
			return result
		}
	}
	return domain.Allow()
}

// runSafely recovers a panicking policy and converts it to an error, the
// same boundary-recovery idiom the pipeline applies at the top level.
func (e *Engine) runSafely(ctx context.Context, p Policy, rc *domain.RequestContext, name string) (result *domain.PolicyResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("policy panicked", "policy", name, "panic", r)
			err = fmt.Errorf("policy %s panicked: %v", name, r)
		}
	}()
	return p.Evaluate(ctx, rc)
}
