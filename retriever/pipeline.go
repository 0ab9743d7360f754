package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ragsql/model"
	"ragsql/store"
	"ragsql/types"
)

const DefaultTopK = 3

// Composer writes an answer grounded in the given chunks.
type Composer interface {
	Compose(ctx context.Context, question string, chunks []types.RetrievedChunk) (string, error)
}

type Pipeline struct {
	embedder model.Embedder
	store    store.ChunkStore
	filter   *Filter
	composer Composer
	topK     int
	logger   *slog.Logger
}

type Option func(*Pipeline)

func WithTopK(k int) Option {
	return func(p *Pipeline) {
		if k > 0 {
			p.topK = k
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

func NewPipeline(e model.Embedder, s store.ChunkStore, c Composer, cal types.Calibration, opts ...Option) (*Pipeline, error) {
	f, err := NewFilter(cal, s.Metric())
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		embedder: e,
		store:    s,
		filter:   f,
		composer: c,
		topK:     DefaultTopK,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Retrieve embeds the query and returns the k nearest chunks unfiltered. An
// empty store gives an empty result.
func (p *Pipeline) Retrieve(ctx context.Context, query string, k int) ([]types.RetrievedChunk, error) {
	if k <= 0 {
		k = p.topK
	}
	vec, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	chunks, err := p.store.Query(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	return chunks, nil
}

// Answer runs retrieve, filter and compose. No surviving context yields the
// refusal with Refused set, never an error.
func (p *Pipeline) Answer(ctx context.Context, question string, k int) (types.Answer, error) {
	start := time.Now()
	defer func() {
		p.logger.Debug("rag answer finished", slog.Duration("took", time.Since(start)))
	}()

	chunks, err := p.Retrieve(ctx, question, k)
	if err != nil {
		return types.Answer{}, err
	}
	for _, c := range chunks {
		p.logger.Debug("candidate chunk",
			slog.String("source", c.Metadata.Source),
			slog.Int("chunk_index", c.Metadata.ChunkIndex),
			slog.Float64("distance", c.Distance))
	}

	hits := p.filter.Apply(question, chunks)
	if len(hits) == 0 {
		p.logger.Info("no relevant context", slog.Int("candidates", len(chunks)))
		return types.Answer{
			Text:      Refusal,
			Refused:   true,
			Sources:   []types.Source{},
			Timestamp: time.Now(),
		}, nil
	}

	text, err := p.composer.Compose(ctx, question, hits)
	if err != nil {
		return types.Answer{}, fmt.Errorf("failed to compose answer: %w", err)
	}

	sources := make([]types.Source, len(hits))
	for i, c := range hits {
		sources[i] = types.Source{
			Source:     c.Metadata.Source,
			ChunkIndex: c.Metadata.ChunkIndex,
			Distance:   c.Distance,
		}
	}
	return types.Answer{
		Text:      text,
		Sources:   sources,
		Timestamp: time.Now(),
	}, nil
}
