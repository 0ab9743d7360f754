package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ragsql/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ChunkStore persists embedded chunks and answers nearest-neighbour queries.
// Query results are ascending by distance with ties in insertion order.
type ChunkStore interface {
	Insert(context.Context, types.EmbeddedChunk) error
	Query(context.Context, []float32, int) ([]types.RetrievedChunk, error)
	Metric() types.Metric
}

type PostgresStore struct {
	pool      *pgxpool.Pool
	metric    types.Metric
	dimension int
	hnsw      bool
	logger    *slog.Logger
}

type Option func(*PostgresStore)

func WithMetric(m types.Metric) Option {
	return func(p *PostgresStore) { p.metric = m }
}

// WithDimension fixes the vector column width; 0 leaves it untyped.
func WithDimension(dim int) Option {
	return func(p *PostgresStore) { p.dimension = dim }
}

// WithHNSWIndex builds an approximate index for the metric. Needs a fixed
// dimension; without it every query is an exact scan.
func WithHNSWIndex(enabled bool) Option {
	return func(p *PostgresStore) { p.hnsw = enabled }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *PostgresStore) { p.logger = l }
}

func NewPostgresStore(ctx context.Context, connStr string, opts ...Option) (*PostgresStore, error) {
	if connStr == "" {
		return nil, types.NewConfigurationError("DATABASE_URL", "no database connection configured")
	}
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	p := &PostgresStore{
		pool:   pool,
		metric: types.MetricL2,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *PostgresStore) Metric() types.Metric {
	return p.metric
}

func (p *PostgresStore) Insert(ctx context.Context, c types.EmbeddedChunk) error {
	if len(c.Embedding) == 0 {
		return errors.New("insert chunk: empty embedding")
	}
	if p.dimension > 0 && len(c.Embedding) != p.dimension {
		return fmt.Errorf("insert chunk: embedding has %d dimensions, store expects %d", len(c.Embedding), p.dimension)
	}

	query := `
	INSERT INTO document_chunks (id, content, metadata, embedding)
	VALUES ($1, $2, $3, $4)
	`
	_, err := p.pool.Exec(ctx, query,
		uuid.New(), c.Content, c.Metadata, pgvector.NewVector(c.Embedding),
	)
	if err != nil {
		return fmt.Errorf("insert chunk: %w", err)
	}
	return nil
}

// Query ranks every row exactly. The seq tie-break keeps equal distances in
// insertion order and also keeps the planner on an exact scan. With an HNSW
// index the tie-break is dropped so the index can serve the ORDER BY.
func (p *PostgresStore) Query(ctx context.Context, queryVec []float32, k int) ([]types.RetrievedChunk, error) {
	if len(queryVec) == 0 {
		return nil, errors.New("query chunks: empty query vector")
	}
	if k <= 0 {
		return []types.RetrievedChunk{}, nil
	}

	order := "distance ASC, seq ASC"
	if p.hnsw && p.dimension > 0 {
		order = "embedding " + p.metric.Operator() + " $1"
	}
	query := fmt.Sprintf(`
		SELECT content, metadata, embedding %s $1 AS distance
		FROM document_chunks
		ORDER BY %s
		LIMIT $2
	`, p.metric.Operator(), order)

	rows, err := p.pool.Query(ctx, query, pgvector.NewVector(queryVec), k)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	chunks := []types.RetrievedChunk{}
	for rows.Next() {
		var c types.RetrievedChunk
		if err := rows.Scan(&c.Content, &c.Metadata, &c.Distance); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		p.logger.Debug("chunk found",
			slog.String("source", c.Metadata.Source),
			slog.Int("chunk_index", c.Metadata.ChunkIndex),
			slog.Float64("distance", c.Distance))
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	return chunks, nil
}

// Count returns the number of stored chunks.
func (p *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM document_chunks`).Scan(&n)
	return n, err
}

func (p *PostgresStore) createRagTables(ctx context.Context) error {
	vectorType := "vector"
	if p.dimension > 0 {
		vectorType = fmt.Sprintf("vector(%d)", p.dimension)
	}

	query := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS document_chunks (
		seq BIGSERIAL PRIMARY KEY,
		id UUID NOT NULL,
		content TEXT NOT NULL,
		metadata JSONB NOT NULL,
		embedding %s NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_document_chunks_source ON document_chunks ((metadata->>'source'));

	CREATE TABLE IF NOT EXISTS web_facts (
		id SERIAL PRIMARY KEY,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		source_url TEXT NOT NULL,
		fetched_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`, vectorType)
	_, err := p.pool.Exec(ctx, query)
	return err
}

// bootstrapIndexes prefers a trigram index for the fuzzy question lookup and
// falls back to a plain btree when pg_trgm is unavailable.
func (p *PostgresStore) bootstrapIndexes(ctx context.Context) {
	_, err := p.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS pg_trgm`)
	if err == nil {
		_, err = p.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS web_facts_question_trgm_idx ON web_facts USING gin (question gin_trgm_ops)`)
	}
	if err == nil {
		return
	}
	p.logger.Warn("trigram index unavailable, using btree", slog.Any("error", err))
	if _, err := p.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS web_facts_question_idx ON web_facts (question)`); err != nil {
		p.logger.Warn("failed to create web_facts index", slog.Any("error", err))
	}
}

func (p *PostgresStore) Init(ctx context.Context) error {
	if err := p.createRagTables(ctx); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	p.bootstrapIndexes(ctx)
	if p.hnsw && p.dimension > 0 {
		query := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS document_chunks_embedding_idx ON document_chunks USING hnsw (embedding %s)`,
			p.metric.OpsClass())
		if _, err := p.pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to create hnsw index: %w", err)
		}
	}
	return nil
}

// Close closes the connection pool.
func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		p.logger.Info("postgres connection pool is closed")
	}
	return nil
}
