package main

import (
	"context"
	"log"
	"log/slog"

	"ragsql/config"
	"ragsql/loader/chunker"
	"ragsql/loader/extract"
	"ragsql/loader/internal"
	"ragsql/loader/service"
	"ragsql/logger"
	"ragsql/model"
	"ragsql/store"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration: ", err)
	}
	l := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(l)

	embedder, err := model.NewEmbedder(cfg.Embedding.Provider, cfg.Embedding.URL, cfg.Embedding.Model, cfg.Embedding.APIKey, cfg.Embedding.Timeout)
	if err != nil {
		log.Fatal("failed to create embedder: ", err)
	}
	splitter, err := chunker.NewSplitter(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap)
	if err != nil {
		log.Fatal(err)
	}

	pool, err := store.NewPostgresStore(ctx, cfg.DBConnection,
		store.WithMetric(cfg.Metric()),
		store.WithDimension(cfg.Embedding.Dimension),
		store.WithHNSWIndex(cfg.Retrieval.HNSWIndex),
		store.WithLogger(l),
	)
	if err != nil {
		log.Fatal("error to connect to Postgres database: ", err)
	}
	defer pool.Close()

	if err := pool.Init(ctx); err != nil {
		l.Error("error to create tables", slog.Any("error", err))
		return
	}

	watcher, err := internal.NewWatcher(cfg.LoaderConfig(), l)
	if err != nil {
		l.Error("failed to start watcher", slog.Any("error", err))
		return
	}
	ingester := service.NewIngester(splitter, model.NewBatchEmbedder(embedder, cfg.Embedding.Workers), pool,
		service.WithMargins(extract.Margins{Top: cfg.Loader.CropTop, Bottom: cfg.Loader.CropBottom}),
		service.WithIngestLogger(l),
	)

	service.New(watcher, ingester, l).Run(ctx)
}
