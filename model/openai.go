package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// OpenAIEmbedder talks to any OpenAI-compatible /v1/embeddings endpoint.
type OpenAIEmbedder struct {
	url    string
	apiKey string
	model  string
	client *http.Client
}

func NewOpenAIEmbedder(baseURL, model, apiKey string, timeout time.Duration) *OpenAIEmbedder {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIEmbedder{
		url:    endpoint(baseURL, "/v1/embeddings"),
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	req := struct {
		Model string `json:"model"`
		Input string `json:"input"`
	}{Model: e.model, Input: text}

	body, err := postJSON(ctx, e.client, e.url, map[string]string{"Authorization": "Bearer " + e.apiKey}, req, defaultMaxRetries)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	var out struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
		// Ollama-native shape, served by some compatible proxies
		Embedding []float64 `json:"embedding"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	switch {
	case len(out.Data) > 0 && len(out.Data[0].Embedding) > 0:
		return toFloat32(out.Data[0].Embedding), nil
	case len(out.Embedding) > 0:
		return toFloat32(out.Embedding), nil
	}
	return nil, errors.New("openai embeddings: no embedding returned")
}
