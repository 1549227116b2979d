/**
 * @description
 * This file sets up the HTTP router for the back-office service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies the
 * middleware stack: request ids, panic recovery, CORS, per-client throttling and
 * session resolution.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS handling.
 */

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

const requestTimeout = 30 * time.Second

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// RouterOptions collects the pieces the router wires together.
type RouterOptions struct {
	Handlers       *Handlers
	Sessions       *SessionResolver
	RateLimiter    *ClientRateLimiter
	AllowedOrigins []string
	Health         HealthCheck
	Logger         *zap.Logger
}

// NewRouter creates and returns the router for the back-office service.
func NewRouter(opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type", "X-CSRF-Token",
			HeaderInternalAPIKey, HeaderUserID, HeaderUserRole, HeaderLocationID, HeaderPrivilegedPIN,
		},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if opts.Health != nil {
			if err := opts.Health(r.Context()); err != nil {
				logger.Warn("health check failed", zap.Error(err))
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		if opts.RateLimiter != nil {
			r.Use(opts.RateLimiter.Middleware)
		}
		if opts.Sessions != nil {
			r.Use(opts.Sessions.Middleware)
		}

		h := opts.Handlers

		r.Post("/locations", h.CreateLocationHandler)
		r.Post("/locations/{id}/deactivate", h.DeactivateLocationHandler)
		r.Put("/locations/{id}/config", h.UpdateLocationConfigHandler)
		r.Post("/locations/{id}/terminals", h.CreateTerminalHandler)

		r.Post("/accounts", h.CreateAccountHandler)
		r.Put("/accounts/{id}", h.UpdateAccountHandler)
		r.Post("/accounts/{id}/deactivate", h.DeactivateAccountHandler)

		r.Put("/staff/{userId}/location", h.AssignStaffHandler)
		r.Put("/staff/{userId}/pin", h.SetStaffPINHandler)

		r.Get("/settings/{key}", h.GetSettingHandler)
		r.Put("/settings/{key}", h.UpdateSettingHandler)

		r.Get("/audit/{entityType}/{entityId}", h.QueryAuditHandler)
	})

	return r
}

// requestLogger logs one structured line per request. Bodies are never logged since they carry PINs.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	logger = logger.With(zap.String("component", "http"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
