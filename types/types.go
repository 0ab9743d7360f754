package types

import (
	"time"
)

// ChunkMetadata is stored as JSON next to every chunk.
type ChunkMetadata struct {
	Source     string `json:"source"`
	ChunkIndex int    `json:"chunk_index"`
}

// Chunk is a bounded segment of source text. It is never mutated once built;
// re-ingesting a source appends new chunks.
type Chunk struct {
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
}

type EmbeddedChunk struct {
	Chunk
	Embedding []float32 `json:"-"`
}

// RetrievedChunk is one row of a retrieval result. Lower distance means more
// similar; the meaning of the number depends on the store Metric.
type RetrievedChunk struct {
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
	Distance float64       `json:"distance"`
}

// Metric names the distance function used by a vector store.
type Metric string

const (
	// MetricL2 is Euclidean distance, pgvector operator <->.
	MetricL2 Metric = "l2"
	// MetricCosine is 1 - cosine similarity, pgvector operator <=>.
	MetricCosine Metric = "cosine"
	// MetricInnerProduct is the negative inner product, pgvector operator <#>.
	MetricInnerProduct Metric = "inner_product"
)

func (m Metric) Operator() string {
	switch m {
	case MetricCosine:
		return "<=>"
	case MetricInnerProduct:
		return "<#>"
	default:
		return "<->"
	}
}

// OpsClass is the pgvector index operator class for the metric.
func (m Metric) OpsClass() string {
	switch m {
	case MetricCosine:
		return "vector_cosine_ops"
	case MetricInnerProduct:
		return "vector_ip_ops"
	default:
		return "vector_l2_ops"
	}
}

func ParseMetric(s string) (Metric, bool) {
	switch Metric(s) {
	case MetricL2, MetricCosine, MetricInnerProduct:
		return Metric(s), true
	case "":
		return MetricL2, true
	}
	return "", false
}

// Calibration ties a relevance threshold to the metric and embedding model it
// was measured with. A threshold is meaningless under any other pair.
type Calibration struct {
	Metric    Metric
	Model     string
	Threshold float64
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type WebFact struct {
	ID        int64     `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	SourceURL string    `json:"source_url"`
	FetchedAt time.Time `json:"fetched_at"`
}

// SQLCandidate is a generated statement and the verdict of the safety gate.
type SQLCandidate struct {
	Raw    string `json:"raw"`
	SQL    string `json:"sql"`
	Safe   bool   `json:"safe"`
	Reason string `json:"reason,omitempty"`
}

type Config struct {
	MonitoringTime time.Duration
	SourceDir      string
	ArchiveDir     string
	BadDir         string
	ChunkSize      int
	ChunkOverlap   int
	CropTop        float64
	CropBottom     float64
}
