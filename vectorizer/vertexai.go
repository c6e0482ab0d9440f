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

const vertexAIEmbeddingsURLTemplate = "https://us-central1-aiplatform.googleapis.com/v1/publishers/google/models/%s:predict"

// vertexAIEmbedder speaks the Vertex AI text-embeddings predict
// endpoint. Authentication there is normally an OAuth2 bearer token
// obtained via a service account; this connector accepts a
// pre-minted token through api_config["api_key"], keeping the
// provider set's auth story uniform (spec: "replaceable at
// construction time without touching Cache Manager").
type vertexAIEmbedder struct {
	cfg    config.VectorizerConfig
	client *http.Client
	url    string
}

func newVertexAIEmbedder(cfg config.VectorizerConfig, client *http.Client) *vertexAIEmbedder {
	fallback := fmt.Sprintf(vertexAIEmbeddingsURLTemplate, cfg.Model)
	return &vertexAIEmbedder{cfg: cfg, client: client, url: baseURL(cfg, fallback)}
}

func (e *vertexAIEmbedder) Name() string { return "vertexai" }

type vertexAIInstance struct {
	Content string `json:"content"`
}

type vertexAIRequest struct {
	Instances []vertexAIInstance `json:"instances"`
}

type vertexAIResponse struct {
	Predictions []struct {
		Embeddings struct {
			Values []float64 `json:"values"`
		} `json:"embeddings"`
	} `json:"predictions"`
}

func (e *vertexAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(vertexAIRequest{Instances: []vertexAIInstance{{Content: text}}})
	if err != nil {
		return nil, cerr.New(cerr.KindSerialization, "vectorizer.vertexai.Embed", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, cerr.New(cerr.KindBackendUnavailable, "vectorizer.vertexai.Embed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey(e.cfg))

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, cerr.New(cerr.KindBackendTransient, "vectorizer.vertexai.Embed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, cerr.New(cerr.KindBackendUnavailable, "vectorizer.vertexai.Embed",
			fmt.Errorf("vertexai returned status %d: %s", resp.StatusCode, string(raw)))
	}

	var parsed vertexAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, cerr.New(cerr.KindSerialization, "vectorizer.vertexai.Embed", err)
	}
	if len(parsed.Predictions) == 0 {
		return nil, cerr.New(cerr.KindBackendUnavailable, "vectorizer.vertexai.Embed", fmt.Errorf("empty embeddings response"))
	}
	return parsed.Predictions[0].Embeddings.Values, nil
}
