package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/cacheforge/semcache/cerr"
	"github.com/cacheforge/semcache/config"
)

const cohereRerankURL = "https://api.cohere.com/v1/rerank"

type cohereReranker struct {
	cfg    config.RerankerConfig
	client *http.Client
	url    string
}

func newCohereReranker(cfg config.RerankerConfig, client *http.Client) *cohereReranker {
	return &cohereReranker{cfg: cfg, client: client, url: rerankerBaseURL(cfg, cohereRerankURL)}
}

func (r *cohereReranker) Name() string { return "cohere" }

type cohereRerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

type cohereRerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

func (r *cohereReranker) Rerank(ctx context.Context, query string, candidates []Candidate) ([]Ranked, error) {
	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Text
	}

	body, err := json.Marshal(cohereRerankRequest{Model: r.cfg.Model, Query: query, Documents: docs, TopN: r.cfg.Limit})
	if err != nil {
		return nil, cerr.New(cerr.KindSerialization, "reranker.cohere.Rerank", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, cerr.New(cerr.KindBackendUnavailable, "reranker.cohere.Rerank", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey(r.cfg))

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, cerr.New(cerr.KindBackendTransient, "reranker.cohere.Rerank", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, cerr.New(cerr.KindBackendUnavailable, "reranker.cohere.Rerank",
			fmt.Errorf("cohere returned status %d: %s", resp.StatusCode, string(raw)))
	}

	var parsed cohereRerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, cerr.New(cerr.KindSerialization, "reranker.cohere.Rerank", err)
	}

	ranked := make([]Ranked, 0, len(parsed.Results))
	for _, result := range parsed.Results {
		if result.Index < 0 || result.Index >= len(candidates) {
			continue
		}
		ranked = append(ranked, Ranked{Candidate: candidates[result.Index], Score: result.RelevanceScore})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked, nil
}
