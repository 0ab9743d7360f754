package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"ragsql/types"
)

// MemoryStore is an exact-scan ChunkStore for small corpora and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	metric types.Metric
	dim    int
	rows   []types.EmbeddedChunk
}

func NewMemoryStore(metric types.Metric) *MemoryStore {
	if metric == "" {
		metric = types.MetricL2
	}
	return &MemoryStore{metric: metric}
}

func (m *MemoryStore) Metric() types.Metric {
	return m.metric
}

func (m *MemoryStore) Insert(_ context.Context, c types.EmbeddedChunk) error {
	if len(c.Embedding) == 0 {
		return fmt.Errorf("insert chunk: empty embedding")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dim == 0 {
		m.dim = len(c.Embedding)
	} else if len(c.Embedding) != m.dim {
		return fmt.Errorf("insert chunk: %w: store has %d dimensions, got %d", ErrDimensionMismatch, m.dim, len(c.Embedding))
	}
	vec := make([]float32, len(c.Embedding))
	copy(vec, c.Embedding)
	c.Embedding = vec
	m.rows = append(m.rows, c)
	return nil
}

func (m *MemoryStore) Query(_ context.Context, queryVec []float32, k int) ([]types.RetrievedChunk, error) {
	if len(queryVec) == 0 {
		return nil, fmt.Errorf("query chunks: empty query vector")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if k <= 0 || len(m.rows) == 0 {
		return []types.RetrievedChunk{}, nil
	}

	type scored struct {
		seq  int
		dist float64
	}
	scores := make([]scored, 0, len(m.rows))
	for i, row := range m.rows {
		d, err := Distance(m.metric, queryVec, row.Embedding)
		if err != nil {
			return nil, fmt.Errorf("query chunks: %w", err)
		}
		scores = append(scores, scored{seq: i, dist: d})
	}

	// NaN (cosine against a zero vector) sorts last, as in Postgres
	sort.SliceStable(scores, func(i, j int) bool {
		di, dj := scores[i].dist, scores[j].dist
		if math.IsNaN(di) {
			return false
		}
		return math.IsNaN(dj) || di < dj
	})
	if k > len(scores) {
		k = len(scores)
	}

	out := make([]types.RetrievedChunk, 0, k)
	for _, s := range scores[:k] {
		row := m.rows[s.seq]
		out = append(out, types.RetrievedChunk{
			Content:  row.Content,
			Metadata: row.Metadata,
			Distance: s.dist,
		})
	}
	return out, nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}
