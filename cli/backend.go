package cli

import (
	"context"

	"ragsql/app/server"
	"ragsql/sqlbot"
	"ragsql/types"
)

type depsBackend struct {
	deps *server.Deps
}

// NewBackend runs the commands against d. Close closes d.
func NewBackend(d *server.Deps) Backend {
	return &depsBackend{deps: d}
}

func (b *depsBackend) Ask(ctx context.Context, question string, k int) (types.Answer, error) {
	return b.deps.Pipeline.Answer(ctx, question, k)
}

func (b *depsBackend) SQL(ctx context.Context, question string) (*sqlbot.Result, error) {
	sess, release, err := b.deps.Session(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return b.deps.Orchestrator.Handle(ctx, sess, question)
}

func (b *depsBackend) Ingest(ctx context.Context, path string) (types.IngestResponse, error) {
	return b.deps.Ingester.IngestFile(ctx, path, "")
}

func (b *depsBackend) ImportTable(ctx context.Context, url, table string) (int64, error) {
	return b.deps.Importer.Import(ctx, url, table)
}

func (b *depsBackend) Close() error {
	return b.deps.Close()
}
