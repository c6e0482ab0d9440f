package vectorizer_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cacheforge/semcache/config"
	"github.com/cacheforge/semcache/vectorizer"
)

func TestOpenAIEmbedderParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float64{0.1, 0.2, 0.3}}},
		})
	}))
	defer server.Close()

	embedder, err := vectorizer.New(config.VectorizerConfig{
		Provider:  config.VectorizerOpenAI,
		Model:     "text-embedding-3-small",
		APIConfig: map[string]string{"api_key": "test-key", "base_url": server.URL},
	})
	require.NoError(t, err)
	require.Equal(t, "openai", embedder.Name())

	vec, err := embedder.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	require.Equal(t, []float64{0.1, 0.2, 0.3}, vec)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := vectorizer.New(config.VectorizerConfig{Provider: "not-a-provider"})
	require.Error(t, err)
}

func TestCohereEmbedderParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float64{{0.4, 0.5}},
		})
	}))
	defer server.Close()

	embedder, err := vectorizer.New(config.VectorizerConfig{
		Provider:  config.VectorizerCohere,
		Model:     "embed-english-v3.0",
		APIConfig: map[string]string{"api_key": "k", "base_url": server.URL},
	})
	require.NoError(t, err)

	vec, err := embedder.Embed(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, []float64{0.4, 0.5}, vec)
}
