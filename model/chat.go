package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ragsql/types"
)

// ChatCompleter is the language-generation boundary: ordered messages in, a
// single reply out.
type ChatCompleter interface {
	Complete(ctx context.Context, messages []types.Message, opts ...CallOption) (string, error)
}

type CallOptions struct {
	Temperature *float64
}

type CallOption func(*CallOptions)

func WithTemperature(t float64) CallOption {
	return func(o *CallOptions) { o.Temperature = &t }
}

func applyOptions(opts []CallOption) CallOptions {
	var o CallOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func NewChatCompleter(provider, url, model, apiKey string, timeout time.Duration) (ChatCompleter, error) {
	switch provider {
	case "ollama":
		return NewOllamaChat(url, model, timeout), nil
	case "", "openai":
		if apiKey == "" {
			return nil, types.NewConfigurationError("OPENAI_API_KEY", "required for the openai provider")
		}
		return NewOpenAIChat(url, model, apiKey, timeout), nil
	}
	return nil, types.NewConfigurationError("LLM_PROVIDER", fmt.Sprintf("unknown provider %q", provider))
}

// OllamaChat calls /api/chat with streaming disabled.
type OllamaChat struct {
	url    string
	model  string
	client *http.Client
}

func NewOllamaChat(baseURL, model string, timeout time.Duration) *OllamaChat {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OllamaChat{
		url:    endpoint(baseURL, "/api/chat"),
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []types.Message `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message types.Message `json:"message"`
	Done    bool          `json:"done"`
}

func (c *OllamaChat) Complete(ctx context.Context, messages []types.Message, opts ...CallOption) (string, error) {
	o := applyOptions(opts)
	req := ollamaChatRequest{Model: c.model, Messages: messages}
	if o.Temperature != nil {
		req.Options = map[string]any{"temperature": *o.Temperature}
	}

	body, err := postJSON(ctx, c.client, c.url, nil, req, 1)
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}

	// some servers stream NDJSON even with stream=false
	var b strings.Builder
	decoder := json.NewDecoder(bytes.NewReader(body))
	for decoder.More() {
		var part ollamaChatResponse
		if err := decoder.Decode(&part); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		b.WriteString(part.Message.Content)
		if part.Done {
			break
		}
	}
	return b.String(), nil
}

// OpenAIChat calls an OpenAI-compatible /v1/chat/completions endpoint.
type OpenAIChat struct {
	url    string
	apiKey string
	model  string
	client *http.Client
}

func NewOpenAIChat(baseURL, model, apiKey string, timeout time.Duration) *OpenAIChat {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIChat{
		url:    endpoint(baseURL, "/v1/chat/completions"),
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []types.Message `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message types.Message `json:"message"`
	} `json:"choices"`
}

func (c *OpenAIChat) Complete(ctx context.Context, messages []types.Message, opts ...CallOption) (string, error) {
	o := applyOptions(opts)
	req := openAIChatRequest{Model: c.model, Messages: messages, Temperature: o.Temperature}

	body, err := postJSON(ctx, c.client, c.url, map[string]string{"Authorization": "Bearer " + c.apiKey}, req, defaultMaxRetries)
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}

	var resp openAIChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai chat: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
