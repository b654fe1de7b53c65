package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ebalan/recordlock/auth"
	"github.com/ebalan/recordlock/config"
	"github.com/ebalan/recordlock/metrics"
	"github.com/ebalan/recordlock/server/handlers"
	authMiddleware "github.com/ebalan/recordlock/server/middleware"
	"github.com/ebalan/recordlock/service"
)

// NewRouter creates and configures the HTTP router
func NewRouter(
	svc *service.Service,
	hub *service.Hub,
	authenticator auth.Authenticator,
	rateLimitConfig *config.RateLimitConfig,
	logger *zap.Logger,
) chi.Router {
	// Initialize metrics
	metrics.RegisterMetrics()

	r := chi.NewRouter()

	// Basic middleware
	r.Use(authMiddleware.V1RequestIDMiddleware())
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(authMiddleware.V1SecurityHeaders())

	// Custom logging and metrics middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			duration := time.Since(start)

			metrics.HTTPRequestsTotal.WithLabelValues(
				r.Method,
				r.URL.Path,
				http.StatusText(ww.Status()),
			).Inc()

			metrics.HTTPRequestDuration.WithLabelValues(
				r.Method,
				r.URL.Path,
			).Observe(duration.Seconds())

			logger.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", duration),
				zap.String("remote_addr", r.RemoteAddr))
		})
	})

	// Health check endpoint (no auth required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
			logger.Error("Failed to write health check response", zap.Error(err))
		}
	})

	// Metrics endpoint (no auth required)
	r.Handle("/metrics", promhttp.Handler())

	// API v1 routes with authentication
	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware.V1AuthMiddleware(authenticator, logger))

		r.Route("/locks", func(r chi.Router) {
			lockRateLimiter := rate.NewLimiter(rate.Limit(rateLimitConfig.RPS), rateLimitConfig.Burst)
			r.With(authMiddleware.V1RateLimitMiddleware(lockRateLimiter, logger)).
				Post("/", handlers.V1LockHandler(svc, logger))

			r.Get("/watch", handlers.V1LockWatch(hub, logger))
		})
	})

	logger.Info("HTTP router configured successfully")

	return r
}
