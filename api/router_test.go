package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/cacheforge/semcache/api"
	"github.com/cacheforge/semcache/config"
	"github.com/cacheforge/semcache/l2"
	"github.com/cacheforge/semcache/manager"
	"github.com/cacheforge/semcache/metrics"
)

type stubEmbedder struct{}

func (stubEmbedder) Name() string { return "stub" }
func (stubEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	if text == "q" {
		return []float64{1, 0, 0}, nil
	}
	return []float64{0, 1, 0}, nil
}

func testRouter() http.Handler {
	cfg := config.Defaults()
	cfg.RedisURL = "redis://localhost:6379"
	cfg.L1Cache.Enabled = true
	cfg.L1Cache.MaxSize = 100
	cfg.EmbedTimeout = 5 * time.Second

	mgr := manager.New(manager.Options{
		Config:    &cfg,
		L2Backend: l2.NewInMemoryBackend(),
		Embedder:  stubEmbedder{},
		Metrics:   metrics.New("test"),
	})
	logger := zerolog.New(io.Discard)
	return api.NewRouter(&cfg, mgr, logger)
}

func TestHealthz(t *testing.T) {
	r := testRouter()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

// unreachableBackend fails Ping the way a downed Redis instance would,
// so /healthz can be exercised against a degraded L2 backend.
type unreachableBackend struct {
	*l2.InMemoryBackend
}

func (b *unreachableBackend) Ping(context.Context) error {
	return errors.New("connection refused")
}

func TestHealthzReportsDegradedOnBackendFailure(t *testing.T) {
	cfg := config.Defaults()
	cfg.RedisURL = "redis://localhost:6379"

	mgr := manager.New(manager.Options{
		Config:    &cfg,
		L2Backend: &unreachableBackend{InMemoryBackend: l2.NewInMemoryBackend()},
		Embedder:  stubEmbedder{},
		Metrics:   metrics.New("test-degraded"),
	})
	logger := zerolog.New(io.Discard)
	r := api.NewRouter(&cfg, mgr, logger)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStoreThenCheckRoundTrip(t *testing.T) {
	r := testRouter()

	storeBody, _ := json.Marshal(map[string]interface{}{"prompt": "q", "response": "a"})
	req := httptest.NewRequest(http.MethodPost, "/v1/cache/store", bytes.NewReader(storeBody))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	checkBody, _ := json.Marshal(map[string]interface{}{"prompt": "q"})
	req = httptest.NewRequest(http.MethodPost, "/v1/cache/check", bytes.NewReader(checkBody))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Hit      bool   `json:"hit"`
		Response string `json:"response"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Hit)
	require.Equal(t, "a", resp.Response)
}

func TestCheckRejectsEmptyPrompt(t *testing.T) {
	r := testRouter()
	body, _ := json.Marshal(map[string]interface{}{"prompt": ""})
	req := httptest.NewRequest(http.MethodPost, "/v1/cache/check", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpointExposesPrometheusText(t *testing.T) {
	r := testRouter()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "test_queries_total")
}

func TestCheckHonorsCacheBypassHeader(t *testing.T) {
	r := testRouter()

	storeBody, _ := json.Marshal(map[string]interface{}{"prompt": "q", "response": "a"})
	req := httptest.NewRequest(http.MethodPost, "/v1/cache/store", bytes.NewReader(storeBody))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	checkBody, _ := json.Marshal(map[string]interface{}{"prompt": "q"})
	req = httptest.NewRequest(http.MethodPost, "/v1/cache/check", bytes.NewReader(checkBody))
	req.Header.Set("X-Cache-Bypass", "true")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var resp struct {
		Hit bool `json:"hit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Hit)
}

func TestSecurityAndCORSHeadersPresent(t *testing.T) {
	r := testRouter()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Strict-Transport-Security", "Access-Control-Allow-Methods"} {
		require.NotEmpty(t, rec.Header().Get(h))
	}
}
