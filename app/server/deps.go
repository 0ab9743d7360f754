package server

import (
	"context"
	"fmt"
	"log/slog"

	"ragsql/app/agent"
	"ragsql/config"
	"ragsql/loader/chunker"
	"ragsql/loader/extract"
	"ragsql/loader/service"
	"ragsql/model"
	"ragsql/retriever"
	"ragsql/sqlbot"
	"ragsql/store"
	"ragsql/web"
)

// Deps holds every component built from one Config. The server and the CLI
// share it.
type Deps struct {
	Store        *store.PostgresStore
	Pipeline     *retriever.Pipeline
	Orchestrator *sqlbot.Orchestrator
	Ingester     *service.Ingester
	Importer     *web.TableImporter
	Web          *web.Answerer
}

// Build connects to Postgres, creates the tables, and constructs the model
// clients once for every component.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Deps, error) {
	embedder, err := model.NewEmbedder(cfg.Embedding.Provider, cfg.Embedding.URL, cfg.Embedding.Model, cfg.Embedding.APIKey, cfg.Embedding.Timeout)
	if err != nil {
		return nil, err
	}
	llm, err := model.NewChatCompleter(cfg.LLM.Provider, cfg.LLM.URL, cfg.LLM.Model, cfg.LLM.APIKey, cfg.LLM.Timeout)
	if err != nil {
		return nil, err
	}
	splitter, err := chunker.NewSplitter(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	pool, err := store.NewPostgresStore(ctx, cfg.DBConnection,
		store.WithMetric(cfg.Metric()),
		store.WithDimension(cfg.Embedding.Dimension),
		store.WithHNSWIndex(cfg.Retrieval.HNSWIndex),
		store.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	if err := pool.Init(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	pipeline, err := retriever.NewPipeline(embedder, pool,
		agent.NewComposer(llm, retriever.Refusal, logger),
		cfg.Calibration(),
		retriever.WithTopK(cfg.Retrieval.TopK),
		retriever.WithLogger(logger),
	)
	if err != nil {
		pool.Close()
		return nil, err
	}

	fetcher := web.NewFetcher(cfg.Search.FetchTimeout, cfg.Search.MaxPageChars)
	answerer := web.NewAnswerer(
		web.NewSearcher(cfg.Search.URL, cfg.Search.MaxResults,
			web.WithRate(cfg.Search.RatePerSecond),
			web.WithSearchLogger(logger),
		),
		fetcher,
		web.NewExtractor(llm),
		cfg.Search.Allowlist,
		logger,
	)

	opts := []sqlbot.Option{sqlbot.WithLogger(logger)}
	if !cfg.Search.SummaryDisabled {
		opts = append(opts, sqlbot.WithSummarizer(agent.NewSummarizer(llm, logger)))
	}
	orchestrator := sqlbot.NewOrchestrator(agent.NewSQLGenerator(llm, cfg.Search.ExcludedTables, logger), answerer, opts...)

	ingester := service.NewIngester(splitter, model.NewBatchEmbedder(embedder, cfg.Embedding.Workers), pool,
		service.WithMargins(extract.Margins{Top: cfg.Loader.CropTop, Bottom: cfg.Loader.CropBottom}),
		service.WithIngestLogger(logger),
	)

	return &Deps{
		Store:        pool,
		Pipeline:     pipeline,
		Orchestrator: orchestrator,
		Ingester:     ingester,
		Importer:     web.NewTableImporter(fetcher, pool, logger),
		Web:          answerer,
	}, nil
}

// Session acquires one pooled connection for a request.
func (d *Deps) Session(ctx context.Context) (sqlbot.Session, func(), error) {
	sess, err := d.Store.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	return sess, sess.Release, nil
}

func (d *Deps) Close() error {
	if d.Store == nil {
		return nil
	}
	return d.Store.Close()
}
