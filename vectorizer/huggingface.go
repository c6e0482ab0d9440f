package vectorizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cacheforge/semcache/cerr"
	"github.com/cacheforge/semcache/config"
)

const huggingFaceEmbeddingsURLTemplate = "https://api-inference.huggingface.co/pipeline/feature-extraction/%s"

type huggingFaceEmbedder struct {
	cfg    config.VectorizerConfig
	client *http.Client
	url    string
}

func newHuggingFaceEmbedder(cfg config.VectorizerConfig, client *http.Client) *huggingFaceEmbedder {
	fallback := fmt.Sprintf(huggingFaceEmbeddingsURLTemplate, cfg.Model)
	return &huggingFaceEmbedder{cfg: cfg, client: client, url: baseURL(cfg, fallback)}
}

func (e *huggingFaceEmbedder) Name() string { return "huggingface" }

type huggingFaceEmbeddingsRequest struct {
	Inputs string `json:"inputs"`
}

func (e *huggingFaceEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(huggingFaceEmbeddingsRequest{Inputs: text})
	if err != nil {
		return nil, cerr.New(cerr.KindSerialization, "vectorizer.huggingface.Embed", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, cerr.New(cerr.KindBackendUnavailable, "vectorizer.huggingface.Embed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey(e.cfg))

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, cerr.New(cerr.KindBackendTransient, "vectorizer.huggingface.Embed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, cerr.New(cerr.KindBackendUnavailable, "vectorizer.huggingface.Embed",
			fmt.Errorf("huggingface returned status %d: %s", resp.StatusCode, string(raw)))
	}

	// Feature-extraction returns a flat vector for single-sentence
	// input; some models nest it as a token-by-dimension matrix, in
	// which case the first row stands in for the pooled embedding.
	var flat []float64
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, cerr.New(cerr.KindBackendUnavailable, "vectorizer.huggingface.Embed", err)
	}
	if err := json.Unmarshal(raw, &flat); err == nil {
		return flat, nil
	}

	var nested [][]float64
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, cerr.New(cerr.KindSerialization, "vectorizer.huggingface.Embed", err)
	}
	if len(nested) == 0 {
		return nil, cerr.New(cerr.KindBackendUnavailable, "vectorizer.huggingface.Embed", fmt.Errorf("empty embeddings response"))
	}
	return nested[0], nil
}
