// Package api exposes the Cache Manager over HTTP: the admin/demo
// surface spec §6 describes (check, store, batch-check, tag
// invalidation, L1 clear, stats, Prometheus metrics, health).
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/cacheforge/semcache/manager"
)

// CacheHandler wraps a manager.Manager with REST handlers, the way
// the teacher's CacheHandler wraps its caching.Engine.
type CacheHandler struct {
	mgr    *manager.Manager
	logger zerolog.Logger
}

// NewCacheHandler creates a new cache handler.
func NewCacheHandler(mgr *manager.Manager, logger zerolog.Logger) *CacheHandler {
	return &CacheHandler{
		mgr:    mgr,
		logger: logger.With().Str("handler", "cache").Logger(),
	}
}

// Check handles POST /v1/cache/check.
func (h *CacheHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Prompt == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "prompt must not be empty"})
		return
	}

	response, hit := h.mgr.Check(r.Context(), req.Prompt, req.UserID, req.Scope, shouldBypass(r))
	writeJSON(w, http.StatusOK, checkResponse{Hit: hit, Response: response})
}

// Store handles POST /v1/cache/store.
func (h *CacheHandler) Store(w http.ResponseWriter, r *http.Request) {
	var req storeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.mgr.Store(r.Context(), req.Prompt, req.Response, req.UserID, req.Scope, req.Tags, req.Metadata); err != nil {
		h.logger.Warn().Err(err).Msg("store rejected")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// BatchCheck handles POST /v1/cache/batch-check.
func (h *CacheHandler) BatchCheck(w http.ResponseWriter, r *http.Request) {
	var req batchCheckRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	requests := make([]manager.BatchRequest, len(req.Requests))
	for i, item := range req.Requests {
		requests[i] = manager.BatchRequest{Prompt: item.Prompt, UserID: item.UserID, Scope: item.Scope}
	}

	results := h.mgr.BatchCheck(r.Context(), requests, req.Concurrency)
	dto := make([]batchCheckResultDTO, len(results))
	for i, res := range results {
		dto[i] = batchCheckResultDTO{Hit: res.Hit, Response: res.Response}
	}
	writeJSON(w, http.StatusOK, dto)
}

// InvalidateTag handles DELETE /v1/cache/tags/{tag}.
func (h *CacheHandler) InvalidateTag(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "tag")
	count, err := h.mgr.InvalidateByTag(r.Context(), tag)
	if err != nil {
		h.logger.Error().Err(err).Str("tag", tag).Msg("tag invalidation failed")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	h.logger.Info().Str("tag", tag).Int("evicted", count).Msg("tag invalidated")
	writeJSON(w, http.StatusOK, invalidateResponse{Invalidated: true, Count: count})
}

// InvalidateTags handles POST /v1/cache/invalidate-tags.
func (h *CacheHandler) InvalidateTags(w http.ResponseWriter, r *http.Request) {
	var req invalidateTagsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	count, err := h.mgr.InvalidateByTags(r.Context(), req.Tags, req.MatchAll)
	if err != nil {
		h.logger.Error().Err(err).Strs("tags", req.Tags).Msg("tag invalidation failed")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	h.logger.Info().Strs("tags", req.Tags).Bool("match_all", req.MatchAll).Int("evicted", count).Msg("tags invalidated")
	writeJSON(w, http.StatusOK, invalidateResponse{Invalidated: true, Count: count})
}

// ClearL1 handles DELETE /v1/cache/l1.
func (h *CacheHandler) ClearL1(w http.ResponseWriter, r *http.Request) {
	h.mgr.ClearL1()
	h.logger.Info().Msg("l1 cleared")
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

// Stats handles GET /v1/cache/stats.
func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.mgr.GetMetrics())
}

// Metrics handles GET /metrics.
func (h *CacheHandler) Metrics() http.Handler {
	return h.mgr.GetMetricsPrometheus()
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// shouldBypass mirrors the gateway's ShouldBypass check: a caller can
// force a cache miss per-request via either a standard no-cache
// directive or a dedicated override header.
func shouldBypass(r *http.Request) bool {
	if r.Header.Get("X-Cache-Bypass") == "true" {
		return true
	}
	return strings.Contains(r.Header.Get("Cache-Control"), "no-cache")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return false
	}
	return true
}
