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

const openAIEmbeddingsURL = "https://api.openai.com/v1/embeddings"

type openAIEmbedder struct {
	cfg    config.VectorizerConfig
	client *http.Client
	url    string
}

func newOpenAIEmbedder(cfg config.VectorizerConfig, client *http.Client) *openAIEmbedder {
	return &openAIEmbedder{cfg: cfg, client: client, url: baseURL(cfg, openAIEmbeddingsURL)}
}

func (e *openAIEmbedder) Name() string { return "openai" }

type openAIEmbeddingsRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIEmbeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func (e *openAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(openAIEmbeddingsRequest{Model: e.cfg.Model, Input: text})
	if err != nil {
		return nil, cerr.New(cerr.KindSerialization, "vectorizer.openai.Embed", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, cerr.New(cerr.KindBackendUnavailable, "vectorizer.openai.Embed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey(e.cfg))

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, cerr.New(cerr.KindBackendTransient, "vectorizer.openai.Embed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, cerr.New(cerr.KindBackendUnavailable, "vectorizer.openai.Embed",
			fmt.Errorf("openai returned status %d: %s", resp.StatusCode, string(raw)))
	}

	var parsed openAIEmbeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, cerr.New(cerr.KindSerialization, "vectorizer.openai.Embed", err)
	}
	if len(parsed.Data) == 0 {
		return nil, cerr.New(cerr.KindBackendUnavailable, "vectorizer.openai.Embed", fmt.Errorf("empty embeddings response"))
	}
	return parsed.Data[0].Embedding, nil
}
