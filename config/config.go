package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"ragsql/types"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultChunkSize           = 300
	DefaultChunkOverlap        = 50
	DefaultSimilarityThreshold = 20.0
	DefaultEmbeddingModel      = "mxbai-embed-large"
	DefaultEmbeddingWorkers    = 4
	DefaultTopK                = 3
)

var DefaultSearchAllowlist = []string{"nasa.gov", "wikipedia.org", "britannica.com", "esa.int", "noirlab.edu"}

type EmbeddingConfig struct {
	Provider string `yaml:"provider" validate:"oneof=ollama openai"`
	URL      string `yaml:"url" validate:"required,url"`
	Model    string `yaml:"model" validate:"required"`
	APIKey   string `yaml:"-"`
	// Dimension fixes the vector column type when > 0.
	Dimension int           `yaml:"dimension" validate:"gte=0"`
	Workers   int           `yaml:"workers" validate:"min=1,max=64"`
	Timeout   time.Duration `yaml:"timeout"`
}

type LLMConfig struct {
	Provider string        `yaml:"provider" validate:"oneof=ollama openai"`
	URL      string        `yaml:"url" validate:"required,url"`
	Model    string        `yaml:"model" validate:"required"`
	APIKey   string        `yaml:"-"`
	Timeout  time.Duration `yaml:"timeout"`
}

type RetrievalConfig struct {
	Metric              string  `yaml:"metric" validate:"oneof=l2 cosine inner_product"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" validate:"gt=0"`
	TopK                int     `yaml:"top_k" validate:"min=1,max=50"`
	// HNSWIndex trades exact ranking for speed on large corpora.
	HNSWIndex bool `yaml:"hnsw_index"`
}

type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size" validate:"gt=0"`
	ChunkOverlap int `yaml:"chunk_overlap" validate:"gte=0"`
}

type SearchConfig struct {
	URL             string        `yaml:"url" validate:"required,url"`
	Allowlist       []string      `yaml:"allowlist"`
	MaxResults      int           `yaml:"max_results" validate:"min=1,max=50"`
	RatePerSecond   float64       `yaml:"rate_per_second" validate:"gt=0"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
	MaxPageChars    int           `yaml:"max_page_chars" validate:"gt=0"`
	ExcludedTables  []string      `yaml:"excluded_tables"`
	SummaryDisabled bool          `yaml:"summary_disabled"`
}

type LoaderConfig struct {
	SourceDir      string        `yaml:"source_dir"`
	ArchiveDir     string        `yaml:"archive_dir"`
	BadDir         string        `yaml:"bad_dir"`
	MonitoringTime time.Duration `yaml:"monitoring_time"`
	CropTop        float64       `yaml:"crop_top" validate:"gte=0"`
	CropBottom     float64       `yaml:"crop_bottom" validate:"gte=0"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text pretty"`
}

// Config is every setting the service reads at startup.
type Config struct {
	ServerAddr   string          `yaml:"server_addr" validate:"required"`
	DBConnection string          `yaml:"-" validate:"required"`
	Embedding    EmbeddingConfig `yaml:"embedding"`
	LLM          LLMConfig       `yaml:"llm"`
	Retrieval    RetrievalConfig `yaml:"retrieval"`
	Chunking     ChunkingConfig  `yaml:"chunking"`
	Search       SearchConfig    `yaml:"search"`
	Loader       LoaderConfig    `yaml:"loader"`
	Log          LogConfig       `yaml:"log"`
}

func Default() *Config {
	return &Config{
		ServerAddr: ":3000",
		Embedding: EmbeddingConfig{
			Provider: "ollama",
			URL:      "http://localhost:11434",
			Model:    DefaultEmbeddingModel,
			Workers:  DefaultEmbeddingWorkers,
			Timeout:  30 * time.Second,
		},
		LLM: LLMConfig{
			Provider: "openai",
			URL:      "https://api.openai.com",
			Model:    "gpt-4o",
			Timeout:  60 * time.Second,
		},
		Retrieval: RetrievalConfig{
			Metric:              string(types.MetricL2),
			SimilarityThreshold: DefaultSimilarityThreshold,
			TopK:                DefaultTopK,
		},
		Chunking: ChunkingConfig{
			ChunkSize:    DefaultChunkSize,
			ChunkOverlap: DefaultChunkOverlap,
		},
		Search: SearchConfig{
			URL:            "https://html.duckduckgo.com/html/",
			Allowlist:      append([]string(nil), DefaultSearchAllowlist...),
			MaxResults:     8,
			RatePerSecond:  1,
			FetchTimeout:   15 * time.Second,
			MaxPageChars:   12000,
			ExcludedTables: []string{"document_chunks"},
		},
		Loader: LoaderConfig{
			SourceDir:      "./data/source",
			ArchiveDir:     "./data/archive",
			BadDir:         "./data/bad",
			MonitoringTime: 5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// RAG_CONFIG_FILE, and then the environment (a .env file is read first when
// present). Later sources win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("RAG_CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return types.NewConfigurationError("RAG_CONFIG_FILE", err.Error())
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	e := envReader{lookup: lookup}

	e.str("SERVER_ADDR", &c.ServerAddr)
	c.DBConnection = dbConnection(lookup)

	e.str("EMBEDDING_PROVIDER", &c.Embedding.Provider)
	e.str("OLLAMA_EMBEDDING_URL", &c.Embedding.URL)
	e.str("EMBEDDING_URL", &c.Embedding.URL)
	e.str("OLLAMA_EMBEDDING_MODEL", &c.Embedding.Model)
	e.str("EMBEDDING_MODEL", &c.Embedding.Model)
	e.str("EMBEDDING_API_KEY", &c.Embedding.APIKey)
	e.integer("EMBEDDING_DIM", &c.Embedding.Dimension)
	e.integer("EMBEDDING_WORKERS", &c.Embedding.Workers)
	e.duration("EMBEDDING_TIMEOUT", &c.Embedding.Timeout)

	e.str("LLM_PROVIDER", &c.LLM.Provider)
	e.str("LLM_URL", &c.LLM.URL)
	e.str("LLM_MODEL", &c.LLM.Model)
	e.str("OPENAI_API_KEY", &c.LLM.APIKey)
	e.str("LLM_API_KEY", &c.LLM.APIKey)
	e.duration("LLM_TIMEOUT", &c.LLM.Timeout)
	if c.Embedding.APIKey == "" && c.Embedding.Provider == "openai" {
		c.Embedding.APIKey = c.LLM.APIKey
	}

	e.str("SIMILARITY_METRIC", &c.Retrieval.Metric)
	e.float("SIMILARITY_THRESHOLD", &c.Retrieval.SimilarityThreshold)
	e.integer("RETRIEVAL_TOP_K", &c.Retrieval.TopK)
	e.boolean("RETRIEVAL_HNSW_INDEX", &c.Retrieval.HNSWIndex)

	e.integer("CHUNK_SIZE", &c.Chunking.ChunkSize)
	e.integer("CHUNK_OVERLAP", &c.Chunking.ChunkOverlap)

	e.str("SEARCH_URL", &c.Search.URL)
	e.list("SEARCH_ALLOWLIST", &c.Search.Allowlist)
	e.integer("SEARCH_MAX_RESULTS", &c.Search.MaxResults)
	e.float("SEARCH_RATE", &c.Search.RatePerSecond)
	e.duration("FETCH_TIMEOUT", &c.Search.FetchTimeout)
	e.integer("FETCH_MAX_CHARS", &c.Search.MaxPageChars)
	e.list("SQL_EXCLUDED_TABLES", &c.Search.ExcludedTables)
	e.boolean("SQL_SUMMARY_DISABLED", &c.Search.SummaryDisabled)

	e.str("LOADER_SOURCE_DIR", &c.Loader.SourceDir)
	e.str("LOADER_ARCHIVE_DIR", &c.Loader.ArchiveDir)
	e.str("LOADER_BAD_DIR", &c.Loader.BadDir)
	e.duration("LOADER_MONITORING_TIME", &c.Loader.MonitoringTime)
	e.float("LOADER_CROP_TOP", &c.Loader.CropTop)
	e.float("LOADER_CROP_BOTTOM", &c.Loader.CropBottom)

	e.str("LOG_LEVEL", &c.Log.Level)
	e.str("LOG_FORMAT", &c.Log.Format)

	return errors.Join(e.errs...)
}

// dbConnection prefers DATABASE_URL and falls back to a URL built from the
// PG_* variables, escaped so any password survives.
func dbConnection(lookup lookupFunc) string {
	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		return v
	}
	host, ok := lookup("PG_HOST")
	if !ok || host == "" {
		return ""
	}
	get := func(k, def string) string {
		if v, ok := lookup(k); ok && v != "" {
			return v
		}
		return def
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(get("PG_USER", "postgres"), get("PG_PASS", "")),
		Host:     net.JoinHostPort(host, get("PG_PORT", "5432")),
		Path:     "/" + get("PG_DB_NAME", "postgres"),
		RawQuery: url.Values{"sslmode": {get("PG_SSLMODE", "disable")}}.Encode(),
	}
	return u.String()
}

// Validate checks field constraints and the cross-field chunking rule.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return types.NewConfigurationError(e.Namespace(), fmt.Sprintf("failed on '%s' tag", e.Tag()))
		}
		return types.NewConfigurationError("config", err.Error())
	}
	if c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return types.NewConfigurationError("CHUNK_OVERLAP", "must be smaller than CHUNK_SIZE")
	}
	if c.LLM.Provider == "openai" && c.LLM.APIKey == "" {
		return types.NewConfigurationError("OPENAI_API_KEY", "required for the openai provider")
	}
	return nil
}

func (c *Config) Metric() types.Metric {
	m, _ := types.ParseMetric(c.Retrieval.Metric)
	return m
}

func (c *Config) Calibration() types.Calibration {
	return types.Calibration{
		Metric:    c.Metric(),
		Model:     c.Embedding.Model,
		Threshold: c.Retrieval.SimilarityThreshold,
	}
}

func (c *Config) LoaderConfig() types.Config {
	return types.Config{
		MonitoringTime: c.Loader.MonitoringTime,
		SourceDir:      c.Loader.SourceDir,
		ArchiveDir:     c.Loader.ArchiveDir,
		BadDir:         c.Loader.BadDir,
		ChunkSize:      c.Chunking.ChunkSize,
		ChunkOverlap:   c.Chunking.ChunkOverlap,
		CropTop:        c.Loader.CropTop,
		CropBottom:     c.Loader.CropBottom,
	}
}

// LogValue enumerates the effective settings without secrets.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("server_addr", c.ServerAddr),
		slog.String("embedding_model", c.Embedding.Model),
		slog.String("embedding_provider", c.Embedding.Provider),
		slog.String("llm_model", c.LLM.Model),
		slog.String("metric", c.Retrieval.Metric),
		slog.Float64("similarity_threshold", c.Retrieval.SimilarityThreshold),
		slog.Int("chunk_size", c.Chunking.ChunkSize),
		slog.Int("chunk_overlap", c.Chunking.ChunkOverlap),
		slog.Bool("db_configured", c.DBConnection != ""),
		slog.String("search_allowlist", strings.Join(c.Search.Allowlist, ",")),
	)
}

type envReader struct {
	lookup lookupFunc
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) integer(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, types.NewConfigurationError(key, "not an integer"))
			return
		}
		*dst = n
	}
}

func (e *envReader) float(key string, dst *float64) {
	if v, ok := e.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.errs = append(e.errs, types.NewConfigurationError(key, "not a number"))
			return
		}
		*dst = f
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.errs = append(e.errs, types.NewConfigurationError(key, "not a boolean"))
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			// bare numbers are seconds, as in the loader's MONITORING_TIME
			secs, serr := strconv.Atoi(v)
			if serr != nil {
				e.errs = append(e.errs, types.NewConfigurationError(key, "not a duration"))
				return
			}
			d = time.Duration(secs) * time.Second
		}
		*dst = d
	}
}

func (e *envReader) list(key string, dst *[]string) {
	if v, ok := e.get(key); ok {
		var out []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}
