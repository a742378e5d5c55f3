package gateway

import (
	"sync"

	"gatewaycore/internal/domain"
	"gatewaycore/internal/routematch"
)

// routeLister is the subset of routestore.Manager the pipeline depends on.
type routeLister interface {
	GetRoutes() []domain.Route
}

// ManagerRouteSource adapts a routestore.Manager into a RouteSource,
// rebuilding its routematch.Matcher whenever Refresh is called (after any
// Config Manager mutation) and caching it between calls.
type ManagerRouteSource struct {
	manager routeLister

	mu      sync.RWMutex
	matcher *routematch.Matcher
}

// NewManagerRouteSource builds a ManagerRouteSource over manager and
// constructs its initial matcher snapshot.
func NewManagerRouteSource(manager routeLister) *ManagerRouteSource {
	s := &ManagerRouteSource{manager: manager}
	s.Refresh()
	return s
}

// Refresh rebuilds the cached matcher from the manager's current routes.
func (s *ManagerRouteSource) Refresh() {
	m := routematch.New(s.manager.GetRoutes())
	s.mu.Lock()
	s.matcher = m
	s.mu.Unlock()
}

// Matcher returns the current cached matcher.
func (s *ManagerRouteSource) Matcher() *routematch.Matcher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matcher
}
