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

const voyageAIEmbeddingsURL = "https://api.voyageai.com/v1/embeddings"

type voyageAIEmbedder struct {
	cfg    config.VectorizerConfig
	client *http.Client
	url    string
}

func newVoyageAIEmbedder(cfg config.VectorizerConfig, client *http.Client) *voyageAIEmbedder {
	return &voyageAIEmbedder{cfg: cfg, client: client, url: baseURL(cfg, voyageAIEmbeddingsURL)}
}

func (e *voyageAIEmbedder) Name() string { return "voyageai" }

type voyageAIEmbeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type voyageAIEmbeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func (e *voyageAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(voyageAIEmbeddingsRequest{Model: e.cfg.Model, Input: []string{text}})
	if err != nil {
		return nil, cerr.New(cerr.KindSerialization, "vectorizer.voyageai.Embed", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, cerr.New(cerr.KindBackendUnavailable, "vectorizer.voyageai.Embed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey(e.cfg))

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, cerr.New(cerr.KindBackendTransient, "vectorizer.voyageai.Embed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, cerr.New(cerr.KindBackendUnavailable, "vectorizer.voyageai.Embed",
			fmt.Errorf("voyageai returned status %d: %s", resp.StatusCode, string(raw)))
	}

	var parsed voyageAIEmbeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, cerr.New(cerr.KindSerialization, "vectorizer.voyageai.Embed", err)
	}
	if len(parsed.Data) == 0 {
		return nil, cerr.New(cerr.KindBackendUnavailable, "vectorizer.voyageai.Embed", fmt.Errorf("empty embeddings response"))
	}
	return parsed.Data[0].Embedding, nil
}
