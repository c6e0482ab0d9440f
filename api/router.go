package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/cacheforge/semcache/config"
	"github.com/cacheforge/semcache/manager"
	scmw "github.com/cacheforge/semcache/middleware"
)

// NewRouter returns a configured chi Router exposing the cache's
// admin surface: CORS → security headers → request ID → panic
// recovery → request logger → header normalization → timeout →
// rate limit, then the /v1/cache routes, /metrics, and /healthz.
func NewRouter(cfg *config.Config, mgr *manager.Manager, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(scmw.CORSMiddleware([]string{"*"}))
	r.Use(scmw.SecurityHeadersMiddleware)
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(logger))

	headerNorm := scmw.NewResponseHeaders(logger, cfg.Name, cfg.CacheVersion)
	r.Use(headerNorm.Handler)

	timeoutMW := scmw.NewTimeoutMiddleware(logger, cfg)
	r.Use(timeoutMW.Handler)

	rateLimiter := scmw.NewRateLimiter(logger, cfg.RateLimitEnabled, cfg.RateLimitRPM, cfg.RateLimitBurst)
	r.Use(rateLimiter.Handler)

	r.Get("/healthz", healthzHandler(cfg, mgr))

	cacheHandler := NewCacheHandler(mgr, logger)
	r.Get("/metrics", cacheHandler.Metrics().ServeHTTP)

	r.Route("/v1/cache", func(r chi.Router) {
		r.Post("/check", cacheHandler.Check)
		r.Post("/store", cacheHandler.Store)
		r.Post("/batch-check", cacheHandler.BatchCheck)
		r.Post("/invalidate-tags", cacheHandler.InvalidateTags)
		r.Delete("/tags/{tag}", cacheHandler.InvalidateTag)
		r.Delete("/l1", cacheHandler.ClearL1)
		r.Get("/stats", cacheHandler.Stats)
	})

	return r
}

// healthzHandler reports degraded status (503) when the L2 backend
// cannot be reached, mirroring redisclient.Client.Ping against the
// manager's own RedisTimeout budget rather than hardcoding "ok".
func healthzHandler(cfg *config.Config, mgr *manager.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), cfg.RedisTimeout)
		defer cancel()

		if err := mgr.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "degraded",
				"service": cfg.Name,
				"error":   err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": cfg.Name})
	}
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rw, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("req_id", chimw.GetReqID(r.Context())).
				Int("status", rw.Status()).
				Dur("duration", time.Since(start)).
				Msg("request completed")
		})
	}
}
