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

const huggingFaceRerankURL = "https://api-inference.huggingface.co/pipeline/sentence-similarity"

type huggingFaceReranker struct {
	cfg    config.RerankerConfig
	client *http.Client
	url    string
}

func newHuggingFaceReranker(cfg config.RerankerConfig, client *http.Client) *huggingFaceReranker {
	return &huggingFaceReranker{cfg: cfg, client: client, url: rerankerBaseURL(cfg, huggingFaceRerankURL)}
}

func (r *huggingFaceReranker) Name() string { return "huggingface" }

type huggingFaceRerankInputs struct {
	SourceSentence string   `json:"source_sentence"`
	Sentences      []string `json:"sentences"`
}

type huggingFaceRerankRequest struct {
	Inputs huggingFaceRerankInputs `json:"inputs"`
}

func (r *huggingFaceReranker) Rerank(ctx context.Context, query string, candidates []Candidate) ([]Ranked, error) {
	sentences := make([]string, len(candidates))
	for i, c := range candidates {
		sentences[i] = c.Text
	}

	body, err := json.Marshal(huggingFaceRerankRequest{
		Inputs: huggingFaceRerankInputs{SourceSentence: query, Sentences: sentences},
	})
	if err != nil {
		return nil, cerr.New(cerr.KindSerialization, "reranker.huggingface.Rerank", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, cerr.New(cerr.KindBackendUnavailable, "reranker.huggingface.Rerank", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey(r.cfg))

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, cerr.New(cerr.KindBackendTransient, "reranker.huggingface.Rerank", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, cerr.New(cerr.KindBackendUnavailable, "reranker.huggingface.Rerank",
			fmt.Errorf("huggingface returned status %d: %s", resp.StatusCode, string(raw)))
	}

	var scores []float64
	if err := json.NewDecoder(resp.Body).Decode(&scores); err != nil {
		return nil, cerr.New(cerr.KindSerialization, "reranker.huggingface.Rerank", err)
	}

	ranked := make([]Ranked, 0, len(candidates))
	for i, score := range scores {
		if i >= len(candidates) {
			break
		}
		ranked = append(ranked, Ranked{Candidate: candidates[i], Score: score})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if r.cfg.Limit > 0 && len(ranked) > r.cfg.Limit {
		ranked = ranked[:r.cfg.Limit]
	}
	return ranked, nil
}
