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

const cohereEmbeddingsURL = "https://api.cohere.com/v1/embed"

type cohereEmbedder struct {
	cfg    config.VectorizerConfig
	client *http.Client
	url    string
}

func newCohereEmbedder(cfg config.VectorizerConfig, client *http.Client) *cohereEmbedder {
	return &cohereEmbedder{cfg: cfg, client: client, url: baseURL(cfg, cohereEmbeddingsURL)}
}

func (e *cohereEmbedder) Name() string { return "cohere" }

type cohereEmbeddingsRequest struct {
	Model     string   `json:"model"`
	Texts     []string `json:"texts"`
	InputType string   `json:"input_type"`
}

type cohereEmbeddingsResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

func (e *cohereEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(cohereEmbeddingsRequest{
		Model:     e.cfg.Model,
		Texts:     []string{text},
		InputType: "search_query",
	})
	if err != nil {
		return nil, cerr.New(cerr.KindSerialization, "vectorizer.cohere.Embed", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, cerr.New(cerr.KindBackendUnavailable, "vectorizer.cohere.Embed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey(e.cfg))

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, cerr.New(cerr.KindBackendTransient, "vectorizer.cohere.Embed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, cerr.New(cerr.KindBackendUnavailable, "vectorizer.cohere.Embed",
			fmt.Errorf("cohere returned status %d: %s", resp.StatusCode, string(raw)))
	}

	var parsed cohereEmbeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, cerr.New(cerr.KindSerialization, "vectorizer.cohere.Embed", err)
	}
	if len(parsed.Embeddings) == 0 {
		return nil, cerr.New(cerr.KindBackendUnavailable, "vectorizer.cohere.Embed", fmt.Errorf("empty embeddings response"))
	}
	return parsed.Embeddings[0], nil
}
