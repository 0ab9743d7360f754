package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// OllamaEmbedder calls the Ollama /api/embeddings endpoint.
type OllamaEmbedder struct {
	apiURL string
	model  string
	client *http.Client
}

type OllamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type OllamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

func NewOllamaEmbedder(apiURL, model string, timeout time.Duration) *OllamaEmbedder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OllamaEmbedder{
		apiURL: endpoint(apiURL, "/api/embeddings"),
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

// Embed returns the raw model vector. It is not normalized: distance
// thresholds are calibrated on raw vectors.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := postJSON(ctx, e.client, e.apiURL, nil, OllamaEmbeddingRequest{
		Model:  e.model,
		Prompt: text,
	}, defaultMaxRetries)
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: %w", err)
	}

	var resp OllamaEmbeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, errors.New("ollama embeddings: empty embedding returned")
	}
	return toFloat32(resp.Embedding), nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
