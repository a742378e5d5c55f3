// Package routestore implements the Config Manager: it owns the active
// route list, persists changes durably (atomic write-temp-then-rename to
// disk, mirrored to the Shared Store), and hands a fresh snapshot to
// callers that need to rebuild a routematch.Matcher.
//
// Grounded on the teacher's internal/config.Load two-phase pattern
// (defaults, then overlay) and internal/storage/memory.go's mutex-guarded
// in-memory map.
package routestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gatewaycore/internal/domain"
	"gatewaycore/internal/store"
	"gatewaycore/internal/telemetry"
)

const sharedStoreKey = "config:routes"

// DefaultBreakerConfig parameterizes the circuit breaker settings applied
// to the seeded default route when no prior configuration exists, sourced
// from the DEFAULT_FAILURE_THRESHOLD/DEFAULT_RESET_TIMEOUT environment
// variables (§6).
type DefaultBreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

// Manager owns the active Route set.
type Manager struct {
	mu     sync.RWMutex
	routes []domain.Route
	byID   map[string]int

	// writeMu serializes the full mutate-then-persist-or-rollback sequence
	// of AddRoute/UpdateRoute/DeleteRoute, so a concurrent mutation's
	// rollback can never clobber another mutation that already committed.
	writeMu sync.Mutex

	store          store.Store
	filePath       string
	log            telemetry.Logger
	defaultBreaker DefaultBreakerConfig
}

// New builds a Manager over dir/routes.json and the given Shared Store,
// without loading anything yet; call Load to populate it.
func New(st store.Store, dir string, log telemetry.Logger, defaultBreaker ...DefaultBreakerConfig) *Manager {
	dbc := DefaultBreakerConfig{FailureThreshold: 5, ResetTimeout: 30 * time.Second}
	if len(defaultBreaker) > 0 {
		dbc = defaultBreaker[0]
	}
	return &Manager{
		routes:         nil,
		byID:           make(map[string]int),
		store:          st,
		filePath:       filepath.Join(dir, "routes.json"),
		log:            log,
		defaultBreaker: dbc,
	}
}

// Load implements §4.4's load order: shared store, then disk, then a
// seeded default. Routes read from disk are mirrored to the shared store
// and a seeded default is written to both; routes read from the shared
// store are not written to disk.
func (m *Manager) Load(ctx context.Context) error {
	if routes, ok := m.loadFromStore(ctx); ok && len(routes) > 0 {
		m.setAll(routes)
		return nil
	}

	if routes, ok := m.loadFromDisk(); ok && len(routes) > 0 {
		m.setAll(routes)
		m.mirrorToStore(ctx, routes)
		return nil
	}

	defaults := []domain.Route{m.defaultRoute()}
	m.setAll(defaults)
	if err := m.writeToDisk(defaults); err != nil {
		return fmt.Errorf("routestore: seeding default route to disk: %w", err)
	}
	m.mirrorToStore(ctx, defaults)
	return nil
}

func (m *Manager) defaultRoute() domain.Route {
	return domain.Route{
		ID:       "default",
		Pattern:  "/",
		Upstream: "http://localhost:9000",
		Methods:  nil,
		Policies: nil,
		Breaker: domain.CircuitBreakerConfig{
			FailureThreshold:     m.defaultBreaker.FailureThreshold,
			ResetTimeout:         m.defaultBreaker.ResetTimeout,
			SuccessesBeforeReset: 1,
		},
		Timeout: 5 * time.Second,
		Retries: 0,
	}
}

func (m *Manager) loadFromStore(ctx context.Context) ([]domain.Route, bool) {
	sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	raw, err := m.store.Get(sctx, sharedStoreKey)
	if err != nil {
		return nil, false
	}
	var routes []domain.Route
	if err := json.Unmarshal([]byte(raw), &routes); err != nil {
		m.log.Warn("routestore: shared store route payload unreadable, ignoring", "error", err)
		return nil, false
	}
	return routes, true
}

func (m *Manager) loadFromDisk() ([]domain.Route, bool) {
	data, err := os.ReadFile(m.filePath)
	if err != nil {
		return nil, false
	}
	var routes []domain.Route
	if err := json.Unmarshal(data, &routes); err != nil {
		m.log.Warn("routestore: routes.json unreadable, ignoring", "path", m.filePath, "error", err)
		return nil, false
	}
	return routes, true
}

func (m *Manager) mirrorToStore(ctx context.Context, routes []domain.Route) {
	data, err := json.Marshal(routes)
	if err != nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := m.store.Set(sctx, sharedStoreKey, string(data), 0); err != nil {
		m.log.Warn("routestore: mirroring routes to shared store failed", "error", err)
	}
}

func (m *Manager) setAll(routes []domain.Route) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = routes
	m.byID = make(map[string]int, len(routes))
	for i, r := range routes {
		m.byID[r.ID] = i
	}
}

// GetRoutes returns a snapshot of the active route list.
func (m *Manager) GetRoutes() []domain.Route {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := make([]domain.Route, len(m.routes))
	copy(cp, m.routes)
	return cp
}

// AddRoute appends route. The id must be unique across the active set.
func (m *Manager) AddRoute(ctx context.Context, route domain.Route) error {
	if err := route.Validate(); err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	if _, exists := m.byID[route.ID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("routestore: route %q already exists", route.ID)
	}
	previous := append([]domain.Route(nil), m.routes...)
	m.routes = append(m.routes, route)
	m.byID[route.ID] = len(m.routes) - 1
	m.mu.Unlock()

	return m.persistOrRollback(ctx, previous)
}

// UpdateRoute replaces the route named id, returning whether it existed.
func (m *Manager) UpdateRoute(ctx context.Context, id string, route domain.Route) (bool, error) {
	if err := route.Validate(); err != nil {
		return false, err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	idx, exists := m.byID[id]
	if !exists {
		m.mu.Unlock()
		return false, nil
	}
	previous := append([]domain.Route(nil), m.routes...)
	route.ID = id
	m.routes[idx] = route
	m.mu.Unlock()

	if err := m.persistOrRollback(ctx, previous); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteRoute removes the route named id, returning whether it existed.
func (m *Manager) DeleteRoute(ctx context.Context, id string) (bool, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	idx, exists := m.byID[id]
	if !exists {
		m.mu.Unlock()
		return false, nil
	}
	previous := append([]domain.Route(nil), m.routes...)
	m.routes = append(m.routes[:idx], m.routes[idx+1:]...)
	delete(m.byID, id)
	for i := idx; i < len(m.routes); i++ {
		m.byID[m.routes[i].ID] = i
	}
	m.mu.Unlock()

	if err := m.persistOrRollback(ctx, previous); err != nil {
		return false, err
	}
	return true, nil
}

// persistOrRollback writes the current in-memory route list to disk and
// the shared store; if either fails, the in-memory list is rolled back to
// previous and an error is returned, per §4.4.
func (m *Manager) persistOrRollback(ctx context.Context, previous []domain.Route) error {
	current := m.GetRoutes()

	if err := m.writeToDisk(current); err != nil {
		m.setAll(previous)
		return fmt.Errorf("routestore: persisting to disk: %w", err)
	}

	sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	data, err := json.Marshal(current)
	if err != nil {
		m.setAll(previous)
		return fmt.Errorf("routestore: marshaling routes: %w", err)
	}
	if err := m.store.Set(sctx, sharedStoreKey, string(data), 0); err != nil {
		m.setAll(previous)
		_ = m.writeToDisk(previous)
		return fmt.Errorf("routestore: persisting to shared store: %w", err)
	}
	return nil
}

// writeToDisk atomically replaces routes.json via write-temp-then-rename.
func (m *Manager) writeToDisk(routes []domain.Route) error {
	data, err := json.MarshalIndent(routes, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(m.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".routes-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, m.filePath)
}
