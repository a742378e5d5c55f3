// Command gateway runs the API gateway: it loads configuration, wires the
// shared store, event bus, metrics registry, policy engine, circuit
// breaker registry, and route store into a Pipeline, and serves HTTP until
// signaled to shut down. Grounded on the teacher's cmd/modelgate/main.go
// and other_examples/.../3xpluto-go-api-gateway's main.go wiring and
// graceful-shutdown sequence.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gatewaycore/internal/breaker"
	"gatewaycore/internal/config"
	"gatewaycore/internal/eventbus"
	"gatewaycore/internal/gateway"
	"gatewaycore/internal/httpapi"
	"gatewaycore/internal/policyengine"
	"gatewaycore/internal/routestore"
	"gatewaycore/internal/store"
	"gatewaycore/internal/telemetry"
)

func main() {
	cfg, err := config.Load(os.Getenv("GATEWAY_CONFIG_FILE"))
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := telemetry.NewLogger(parseLevel(cfg.LogLevel))
	metrics := telemetry.NewMetrics()
	bus := eventbus.New()

	sharedStore := buildStore(cfg, log)
	if err := sharedStore.Ping(context.Background()); err != nil {
		log.Warn("shared store unreachable at startup, continuing in degraded mode", "error", err)
	}

	routeManager := routestore.New(sharedStore, cfg.Routes.Dir, log, routestore.DefaultBreakerConfig{
		FailureThreshold: cfg.Limits.DefaultFailureThreshold,
		ResetTimeout:     cfg.Limits.DefaultResetTimeout,
	})
	if err := routeManager.Load(context.Background()); err != nil {
		log.Error("failed to load routes", "error", err)
		os.Exit(1)
	}

	breakerRegistry := breaker.NewRegistry(sharedStore, bus, metrics, log)
	for _, r := range routeManager.GetRoutes() {
		breakerRegistry.Register(context.Background(), r.ID, r.Breaker)
	}

	policyEngine := policyengine.New(log)
	policyEngine.Register("authentication", &policyengine.Authentication{
		JWTSecret: []byte(cfg.Auth.JWTSecret),
		APIKey:    cfg.Auth.APIKey,
	})
	policyEngine.Register("rate_limit", policyengine.NewRateLimit(
		sharedStore, cfg.Limits.DefaultRateLimit, cfg.Limits.DefaultRateWindow, log,
	))
	policyEngine.Register("ip_filter", policyengine.NewIPFilter(cfg.Limits.IPWhitelist, cfg.Limits.IPBlacklist))

	routeSource := gateway.NewManagerRouteSource(routeManager)

	pipeline := &gateway.Pipeline{
		Routes:  routeSource,
		Policy:  policyEngine,
		Breaker: breakerRegistry,
		Metrics: metrics,
		Log:     log,
	}

	srv := &httpapi.Server{
		Pipeline: pipeline,
		Routes:   routeManager,
		Source:   routeSource,
		Breaker:  breakerRegistry,
		Metrics:  metrics,
		Store:    sharedStore,
		Log:      log,
	}
	mux := httpapi.New(srv)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: mux,
	}

	go func() {
		log.Info("gateway listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}

func buildStore(cfg *config.Config, log telemetry.Logger) store.Store {
	if cfg.Store.Addr == "" {
		log.Warn("no shared store address configured, using in-process memory store")
		return store.NewMemoryStore()
	}
	return store.NewRedisStore(store.RedisOptions{
		Addr:     cfg.Store.Addr,
		Password: cfg.Store.Password,
		DB:       cfg.Store.DB,
	})
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
