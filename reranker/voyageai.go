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

const voyageAIRerankURL = "https://api.voyageai.com/v1/rerank"

type voyageAIReranker struct {
	cfg    config.RerankerConfig
	client *http.Client
	url    string
}

func newVoyageAIReranker(cfg config.RerankerConfig, client *http.Client) *voyageAIReranker {
	return &voyageAIReranker{cfg: cfg, client: client, url: rerankerBaseURL(cfg, voyageAIRerankURL)}
}

func (r *voyageAIReranker) Name() string { return "voyageai" }

type voyageAIRerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopK      int      `json:"top_k,omitempty"`
}

type voyageAIRerankResponse struct {
	Data []struct {
		Index         int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"data"`
}

func (r *voyageAIReranker) Rerank(ctx context.Context, query string, candidates []Candidate) ([]Ranked, error) {
	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Text
	}

	body, err := json.Marshal(voyageAIRerankRequest{Model: r.cfg.Model, Query: query, Documents: docs, TopK: r.cfg.Limit})
	if err != nil {
		return nil, cerr.New(cerr.KindSerialization, "reranker.voyageai.Rerank", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, cerr.New(cerr.KindBackendUnavailable, "reranker.voyageai.Rerank", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey(r.cfg))

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, cerr.New(cerr.KindBackendTransient, "reranker.voyageai.Rerank", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, cerr.New(cerr.KindBackendUnavailable, "reranker.voyageai.Rerank",
			fmt.Errorf("voyageai returned status %d: %s", resp.StatusCode, string(raw)))
	}

	var parsed voyageAIRerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, cerr.New(cerr.KindSerialization, "reranker.voyageai.Rerank", err)
	}

	ranked := make([]Ranked, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(candidates) {
			continue
		}
		ranked = append(ranked, Ranked{Candidate: candidates[d.Index], Score: d.RelevanceScore})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked, nil
}
