// Package httpapi wires the gateway's externally-visible HTTP surface:
// the catch-all gateway handler, the admin route CRUD endpoints, and the
// metrics/health probes, composed over http.ServeMux the way the teacher's
// internal/http/server.go wires its handlers.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"gatewaycore/internal/breaker"
	"gatewaycore/internal/domain"
	"gatewaycore/internal/gateway"
	"gatewaycore/internal/routestore"
	"gatewaycore/internal/store"
	"gatewaycore/internal/telemetry"
)

// Server composes the gateway pipeline with the admin/metrics/health
// endpoints into a single http.Handler.
type Server struct {
	Pipeline *gateway.Pipeline
	Routes   *routestore.Manager
	Source   *gateway.ManagerRouteSource
	Breaker  *breaker.Registry
	Metrics  *telemetry.Metrics
	Store    store.Store
	Log      telemetry.Logger

	mux *http.ServeMux
}

// New builds the composed mux. Call it once after all collaborators are
// constructed and the route store has been loaded.
func New(s *Server) *http.ServeMux {
	mux := http.NewServeMux()
	s.mux = mux

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/ready", s.handleReady)
	mux.Handle("GET /metrics", s.Metrics.Handler())

	mux.HandleFunc("GET /admin/routes", s.handleListRoutes)
	mux.HandleFunc("POST /admin/routes", s.handleAddRoute)
	mux.HandleFunc("PUT /admin/routes/{id}", s.handleUpdateRoute)
	mux.HandleFunc("DELETE /admin/routes/{id}", s.handleDeleteRoute)

	mux.HandleFunc("/", s.Pipeline.Handle)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeJSON(w, 503, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, 200, map[string]string{"status": "ready"})
}

func (s *Server) handleListRoutes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, 200, s.Routes.GetRoutes())
}

func (s *Server) handleAddRoute(w http.ResponseWriter, r *http.Request) {
	var route domain.Route
	if err := json.NewDecoder(r.Body).Decode(&route); err != nil {
		writeJSON(w, 400, map[string]string{"error": "Bad Request", "reason": "invalid route payload"})
		return
	}
	if err := s.Routes.AddRoute(r.Context(), route); err != nil {
		writeJSON(w, 409, map[string]string{"error": "Conflict", "reason": err.Error()})
		return
	}
	s.Breaker.Register(r.Context(), route.ID, route.Breaker)
	s.Source.Refresh()
	writeJSON(w, 201, route)
}

func (s *Server) handleUpdateRoute(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var route domain.Route
	if err := json.NewDecoder(r.Body).Decode(&route); err != nil {
		writeJSON(w, 400, map[string]string{"error": "Bad Request", "reason": "invalid route payload"})
		return
	}
	existed, err := s.Routes.UpdateRoute(r.Context(), id, route)
	if err != nil {
		writeJSON(w, 400, map[string]string{"error": "Bad Request", "reason": err.Error()})
		return
	}
	if !existed {
		writeJSON(w, 404, map[string]string{"error": "Not Found", "reason": "route does not exist"})
		return
	}
	route.ID = id
	s.Breaker.Register(r.Context(), id, route.Breaker)
	s.Source.Refresh()
	writeJSON(w, 200, route)
}

func (s *Server) handleDeleteRoute(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existed, err := s.Routes.DeleteRoute(r.Context(), id)
	if err != nil {
		writeJSON(w, 500, map[string]string{"error": "Internal Server Error", "reason": err.Error()})
		return
	}
	if !existed {
		writeJSON(w, 404, map[string]string{"error": "Not Found", "reason": "route does not exist"})
		return
	}
	s.Breaker.Unregister(id)
	s.Source.Refresh()
	w.WriteHeader(204)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
