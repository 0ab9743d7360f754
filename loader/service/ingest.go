package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"ragsql/loader/chunker"
	"ragsql/loader/extract"
	"ragsql/store"
	"ragsql/types"
)

type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Ingester extracts, chunks, embeds and stores documents. Re-ingesting a
// source appends new chunks; nothing is replaced.
type Ingester struct {
	splitter *chunker.Splitter
	embedder BatchEmbedder
	store    store.ChunkStore
	margins  extract.Margins
	logger   *slog.Logger
}

type IngesterOption func(*Ingester)

func WithMargins(m extract.Margins) IngesterOption {
	return func(i *Ingester) { i.margins = m }
}

func WithIngestLogger(l *slog.Logger) IngesterOption {
	return func(i *Ingester) { i.logger = l }
}

func NewIngester(splitter *chunker.Splitter, embedder BatchEmbedder, s store.ChunkStore, opts ...IngesterOption) *Ingester {
	i := &Ingester{
		splitter: splitter,
		embedder: embedder,
		store:    s,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Prepare reads the file and returns its embedded chunks without storing
// them. An empty source defaults to the file's base name.
func (i *Ingester) Prepare(ctx context.Context, path, source string) ([]types.EmbeddedChunk, error) {
	if source == "" {
		source = filepath.Base(path)
	}
	text, err := extract.File(path, i.margins)
	if err != nil {
		return nil, err
	}
	return i.PrepareText(ctx, text, source)
}

func (i *Ingester) PrepareText(ctx context.Context, text, source string) ([]types.EmbeddedChunk, error) {
	chunks := i.splitter.Collect(text, source)
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for n, c := range chunks {
		texts[n] = c.Content
	}

	start := time.Now()
	vectors, err := i.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %s: %w", source, err)
	}
	i.logger.Debug("embedded chunks",
		slog.String("source", source),
		slog.Int("chunks", len(chunks)),
		slog.Duration("took", time.Since(start)),
	)

	out := make([]types.EmbeddedChunk, len(chunks))
	for n, c := range chunks {
		out[n] = types.EmbeddedChunk{Chunk: c, Embedding: vectors[n]}
	}
	return out, nil
}

// Save inserts chunks in chunk_index order and stops at the first failure.
func (i *Ingester) Save(ctx context.Context, chunks []types.EmbeddedChunk) error {
	for _, c := range chunks {
		if err := i.store.Insert(ctx, c); err != nil {
			return fmt.Errorf("failed to store chunk %d of %s: %w", c.Metadata.ChunkIndex, c.Metadata.Source, err)
		}
	}
	return nil
}

// IngestFile runs Prepare then Save.
func (i *Ingester) IngestFile(ctx context.Context, path, source string) (types.IngestResponse, error) {
	if source == "" {
		source = filepath.Base(path)
	}
	chunks, err := i.Prepare(ctx, path, source)
	if err != nil {
		return types.IngestResponse{}, err
	}
	return i.save(ctx, source, chunks)
}

func (i *Ingester) IngestText(ctx context.Context, text, source string) (types.IngestResponse, error) {
	chunks, err := i.PrepareText(ctx, text, source)
	if err != nil {
		return types.IngestResponse{}, err
	}
	return i.save(ctx, source, chunks)
}

func (i *Ingester) save(ctx context.Context, source string, chunks []types.EmbeddedChunk) (types.IngestResponse, error) {
	if err := i.Save(ctx, chunks); err != nil {
		return types.IngestResponse{}, err
	}
	i.logger.Info("document ingested", slog.String("source", source), slog.Int("chunks", len(chunks)))
	return types.IngestResponse{Source: source, Chunks: len(chunks)}, nil
}
