// Package reranker implements the optional Reranker pass (spec §4,
// "Pluggable providers"): given a prompt and a short list of
// candidate responses retrieved from L2, return them reordered by
// relevance, most relevant first.
package reranker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cacheforge/semcache/config"
)

// Candidate is one L2 match offered to the reranker.
type Candidate struct {
	EntryID string
	Text    string
}

// Ranked pairs a candidate with its relevance score (higher is more
// relevant); Candidates come back sorted descending by Score.
type Ranked struct {
	Candidate Candidate
	Score     float64
}

// Reranker reorders candidates by relevance to query.
type Reranker interface {
	Name() string
	Rerank(ctx context.Context, query string, candidates []Candidate) ([]Ranked, error)
}

// New constructs the configured reranker connector. Returns nil, nil
// when reranking is disabled — callers should treat a nil Reranker as
// "skip this stage" rather than an error (spec §4.6.1: reranker is
// optional).
func New(cfg config.RerankerConfig) (Reranker, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	client := pooledClient()
	switch cfg.Provider {
	case config.RerankerHuggingFace:
		return newHuggingFaceReranker(cfg, client), nil
	case config.RerankerCohere:
		return newCohereReranker(cfg, client), nil
	case config.RerankerVoyageAI:
		return newVoyageAIReranker(cfg, client), nil
	default:
		return nil, fmt.Errorf("reranker: unknown provider %q", cfg.Provider)
	}
}

func pooledClient() *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{Transport: transport, Timeout: 30 * time.Second}
}

func apiKey(cfg config.RerankerConfig) string {
	return cfg.APIConfig["api_key"]
}

func rerankerBaseURL(cfg config.RerankerConfig, fallback string) string {
	if v, ok := cfg.APIConfig["base_url"]; ok && v != "" {
		return v
	}
	return fallback
}
