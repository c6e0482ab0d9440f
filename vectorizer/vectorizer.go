// Package vectorizer implements the pluggable Vectorizer (spec §4,
// "Pluggable providers"): a capability interface with a factory,
// backed by one HTTP connector per supported embedding provider.
// Connectors follow the teacher's provider package shape — a pooled
// *http.Client, a JSON request/response pair, context-scoped
// requests — narrowed to the single Embeddings operation this cache
// needs.
package vectorizer

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cacheforge/semcache/config"
)

// Embedder produces a fixed-dimension embedding for a prompt (spec
// §3's "Embedding").
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float64, error)
}

// New constructs the configured embedding provider connector.
func New(cfg config.VectorizerConfig) (Embedder, error) {
	client := pooledClient()
	switch cfg.Provider {
	case config.VectorizerOpenAI:
		return newOpenAIEmbedder(cfg, client), nil
	case config.VectorizerHuggingFace:
		return newHuggingFaceEmbedder(cfg, client), nil
	case config.VectorizerCohere:
		return newCohereEmbedder(cfg, client), nil
	case config.VectorizerVertexAI:
		return newVertexAIEmbedder(cfg, client), nil
	case config.VectorizerVoyageAI:
		return newVoyageAIEmbedder(cfg, client), nil
	default:
		return nil, fmt.Errorf("vectorizer: unknown provider %q", cfg.Provider)
	}
}

// pooledClient mirrors the teacher's provider connectors: a dedicated
// transport with keep-alive pooling rather than http.DefaultClient.
func pooledClient() *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{Transport: transport, Timeout: 30 * time.Second}
}

func apiKey(cfg config.VectorizerConfig) string {
	return cfg.APIConfig["api_key"]
}

func baseURL(cfg config.VectorizerConfig, fallback string) string {
	if v, ok := cfg.APIConfig["base_url"]; ok && v != "" {
		return v
	}
	return fallback
}
