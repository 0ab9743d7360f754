package model

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ragsql/types"

	"golang.org/x/sync/errgroup"
)

// Embedder maps text to a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NewEmbedder builds the embedder for the configured provider.
func NewEmbedder(provider, url, model, apiKey string, timeout time.Duration) (Embedder, error) {
	switch provider {
	case "", "ollama":
		return NewOllamaEmbedder(url, model, timeout), nil
	case "openai":
		if apiKey == "" {
			return nil, types.NewConfigurationError("EMBEDDING_API_KEY", "required for the openai embedding provider")
		}
		return NewOpenAIEmbedder(url, model, apiKey, timeout), nil
	}
	return nil, types.NewConfigurationError("EMBEDDING_PROVIDER", fmt.Sprintf("unknown provider %q", provider))
}

const DefaultWorkers = 4

// BatchEmbedder fans embedding calls out to a bounded pool. Result i always
// belongs to input i.
type BatchEmbedder struct {
	embedder Embedder
	workers  int
	logger   *slog.Logger
}

func NewBatchEmbedder(e Embedder, workers int) *BatchEmbedder {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &BatchEmbedder{
		embedder: e,
		workers:  workers,
		logger:   slog.Default(),
	}
}

func (b *BatchEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return b.embedder.Embed(ctx, text)
}

// EmbedBatch embeds every text or none: the first failing index rejects the
// whole batch and cancels the calls still running.
func (b *BatchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	start := time.Now()
	results := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, text := range texts {
		g.Go(func() error {
			vec, err := b.embedder.Embed(gctx, text)
			if err != nil {
				return &types.EmbeddingError{Index: i, Err: err}
			}
			results[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		b.logger.Error("embedding batch rejected", slog.Int("size", len(texts)), slog.Any("error", err))
		return nil, err
	}

	if err := checkAlignment(len(texts), results); err != nil {
		return nil, err
	}

	b.logger.Debug("embedding batch done",
		slog.Int("size", len(texts)),
		slog.Int("workers", b.workers),
		slog.Duration("took", time.Since(start)))
	return results, nil
}

// checkAlignment rejects batches with missing slots or mixed dimensions.
func checkAlignment(expected int, results [][]float32) error {
	if len(results) != expected {
		return &types.IndexMisalignmentError{Expected: expected, Got: len(results), Index: -1}
	}
	dim := -1
	for i, v := range results {
		if len(v) == 0 {
			return &types.IndexMisalignmentError{Expected: expected, Got: len(results), Index: i, Reason: "empty embedding"}
		}
		if dim == -1 {
			dim = len(v)
		} else if len(v) != dim {
			return &types.IndexMisalignmentError{
				Expected: expected,
				Got:      len(results),
				Index:    i,
				Reason:   fmt.Sprintf("dimension %d differs from %d", len(v), dim),
			}
		}
	}
	return nil
}
