// Command semcached runs the semantic cache as a standalone HTTP
// service: config → logger → Redis (optional) → L2 backend →
// vectorizer/reranker → Cache Manager → admin router → graceful
// shutdown on SIGINT/SIGTERM.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/cacheforge/semcache/api"
	"github.com/cacheforge/semcache/config"
	"github.com/cacheforge/semcache/l2"
	"github.com/cacheforge/semcache/logger"
	"github.com/cacheforge/semcache/manager"
	"github.com/cacheforge/semcache/metrics"
	"github.com/cacheforge/semcache/redisclient"
	"github.com/cacheforge/semcache/reranker"
	"github.com/cacheforge/semcache/staleness"
	"github.com/cacheforge/semcache/vectorizer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.New(cfg)

	log.Info().Str("env", cfg.Env).Str("name", cfg.Name).Msg("semantic cache starting")

	backend := buildL2Backend(cfg, log)

	embedder, err := vectorizer.New(cfg.Vectorizer)
	if err != nil {
		log.Fatal().Err(err).Msg("vectorizer init failed")
	}

	rr, err := reranker.New(cfg.Reranker)
	if err != nil {
		log.Fatal().Err(err).Msg("reranker init failed")
	}

	reg := metrics.New(cfg.Observability.MetricsPrefix)

	mgr := manager.New(manager.Options{
		Config:    cfg,
		L2Backend: backend,
		Embedder:  embedder,
		Reranker:  rr,
		Metrics:   reg,
		Refresh:   buildRefreshFunc(cfg, log),
	})

	r := api.NewRouter(cfg, mgr, log)

	srv := &http.Server{
		Addr:         cfg.AdminAddr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.AdminAddr).Msg("semantic cache listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("semantic cache stopped gracefully")
	}

	if err := mgr.Close(); err != nil {
		log.Error().Err(err).Msg("cache manager teardown failed")
	}
}

// buildL2Backend connects to Redis when configured and reachable,
// falling back to the in-memory backend otherwise — the same
// continue-without-Redis posture the teacher's entry point takes.
func buildL2Backend(cfg *config.Config, log zerolog.Logger) l2.Backend {
	rc, err := redisclient.New(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("redis init failed — falling back to in-memory L2 backend")
		return l2.NewInMemoryBackend()
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.RedisTimeout)
	defer cancel()
	if err := rc.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("redis ping failed — falling back to in-memory L2 backend")
		return l2.NewInMemoryBackend()
	}
	log.Info().Msg("redis connected")
	return l2.NewRedisBackend(rc, cfg.Name)
}

// buildRefreshFunc wires stale-while-revalidate's background refresh
// to an application-level regeneration webhook when one is
// configured; otherwise refresh stays disabled (spec's
// stale_refresh_callback defaults to none — this binary has no
// upstream LLM of its own to call).
func buildRefreshFunc(cfg *config.Config, log zerolog.Logger) staleness.RefreshFunc {
	if !cfg.EnableStaleWhileRevalidate {
		return nil
	}
	webhookURL := os.Getenv("SEMANTIC_CACHE_REFRESH_WEBHOOK_URL")
	if webhookURL == "" {
		log.Warn().Msg("enable_stale_while_revalidate is set but SEMANTIC_CACHE_REFRESH_WEBHOOK_URL is empty — background refresh disabled")
		return nil
	}

	client := &http.Client{Timeout: cfg.EmbedTimeout}
	return func(ctx context.Context, req staleness.RefreshRequest) (string, error) {
		body, err := json.Marshal(map[string]interface{}{
			"prompt":  req.Prompt,
			"user_id": req.UserID,
			"scope":   req.Scope,
		})
		if err != nil {
			return "", err
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(httpReq)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("refresh webhook returned status %d", resp.StatusCode)
		}

		var out struct {
			Response string `json:"response"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", err
		}
		return out.Response, nil
	}
}
