package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vitaliisemenov/timerd/internal/api/handlers"
	"github.com/vitaliisemenov/timerd/internal/api/middleware"
	"github.com/vitaliisemenov/timerd/internal/repository/postgres"
	"github.com/vitaliisemenov/timerd/internal/scheduler"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	EnableAuth        bool
	EnableRateLimit   bool
	EnableCompression bool
	EnableCORS        bool
	EnableMetrics     bool

	AuthConfig middleware.AuthConfig

	RateLimitPerMinute int
	RateLimitBurst     int

	CORSConfig middleware.CORSConfig

	Logger *slog.Logger

	Engine scheduler.Engine
	Pool   *postgres.Pool

	MetricsPath string
}

// DefaultRouterConfig returns default router configuration.
func DefaultRouterConfig(logger *slog.Logger) RouterConfig {
	return RouterConfig{
		EnableAuth:         true,
		EnableRateLimit:    true,
		EnableCompression:  true,
		EnableCORS:         true,
		EnableMetrics:      true,
		RateLimitPerMinute: 600,
		RateLimitBurst:     50,
		CORSConfig:         middleware.DefaultCORSConfig(),
		Logger:             logger,
		MetricsPath:        "/metrics",
	}
}

// NewRouter creates a new API router with all middleware configured.
//
// The middleware stack is applied in order:
//  1. RequestID (always)
//  2. Logging (always)
//  3. Metrics (if enabled)
//  4. CORS (if enabled)
//  5. Compression (if enabled)
//  6. Route-specific: Auth, RateLimit, Validation
func NewRouter(config RouterConfig) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.RequestIDMiddleware)
	router.Use(middleware.LoggingMiddleware(config.Logger))

	if config.EnableMetrics {
		router.Use(middleware.MetricsMiddleware)
	}
	if config.EnableCORS {
		router.Use(middleware.CORSMiddleware(config.CORSConfig))
	}
	if config.EnableCompression {
		router.Use(middleware.CompressionMiddleware)
	}

	router.HandleFunc("/healthz", HealthCheckHandler(config.Pool, config.Logger)).Methods(http.MethodGet)
	if config.EnableMetrics {
		router.Handle(config.MetricsPath, promhttp.Handler()).Methods(http.MethodGet)
	}

	setupTimerRoutes(router, config)

	return router
}

func setupTimerRoutes(router *mux.Router, config RouterConfig) {
	h := handlers.NewTimerHandler(config.Engine, config.Logger)

	v1 := router.PathPrefix("/v1").Subrouter()
	if config.EnableAuth {
		v1.Use(middleware.AuthMiddleware(config.AuthConfig))
	}
	if config.EnableRateLimit {
		v1.Use(middleware.RateLimitMiddleware(config.RateLimitPerMinute, config.RateLimitBurst))
	}
	v1.Use(middleware.ValidationMiddleware)

	timers := v1.PathPrefix("/timers").Subrouter()
	timers.HandleFunc("", h.CreateTimer).Methods(http.MethodPost)
	timers.HandleFunc("", h.ListTimers).Methods(http.MethodGet)
	timers.HandleFunc("/{id}", h.GetTimer).Methods(http.MethodGet)
	timers.HandleFunc("/{id}", h.UpdateTimer).Methods(http.MethodPatch)
	timers.HandleFunc("/{id}/cancel", h.CancelTimer).Methods(http.MethodPost)
}

// HealthCheckHandler reports liveness plus persistent-store reachability.
func HealthCheckHandler(pool *postgres.Pool, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbHealthy := pool == nil || pool.Healthy(r.Context())

		status := http.StatusOK
		dbStatus := "healthy"
		if !dbHealthy {
			status = http.StatusServiceUnavailable
			dbStatus = "unhealthy"
		}

		response := map[string]interface{}{
			"status": map[bool]string{true: "healthy", false: "unhealthy"}[dbHealthy],
			"checks": map[string]string{
				"database": dbStatus,
			},
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.Error("failed to encode health response", "error", err)
		}
	}
}
