package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ragsql/loader/chunker"
	"ragsql/loader/internal"
	"ragsql/store"
	"ragsql/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lengthEmbedder maps each text to a vector holding its rune count.
type lengthEmbedder struct {
	err error
}

func (e lengthEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len([]rune(t))), 1}
	}
	return out, nil
}

func newIngester(t *testing.T, e BatchEmbedder, s store.ChunkStore) *Ingester {
	t.Helper()
	sp, err := chunker.NewSplitter(40, 10)
	require.NoError(t, err)
	return NewIngester(sp, e, s)
}

func TestIngestFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "jupiter.md")
	text := strings.Repeat("Jupiter is the largest planet. ", 6)
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))

	t.Run("Chunks stored under the base name", func(t *testing.T) {
		mem := store.NewMemoryStore(types.MetricL2)
		resp, err := newIngester(t, lengthEmbedder{}, mem).IngestFile(ctx, path, "")
		require.NoError(t, err)
		assert.Equal(t, "jupiter.md", resp.Source)
		assert.Greater(t, resp.Chunks, 1)
		assert.Equal(t, resp.Chunks, mem.Len())

		hits, err := mem.Query(ctx, []float32{40, 1}, 100)
		require.NoError(t, err)
		for _, h := range hits {
			assert.Equal(t, "jupiter.md", h.Metadata.Source)
		}
	})

	t.Run("Explicit source overrides the file name", func(t *testing.T) {
		mem := store.NewMemoryStore(types.MetricL2)
		resp, err := newIngester(t, lengthEmbedder{}, mem).IngestFile(ctx, path, "upload.md")
		require.NoError(t, err)
		assert.Equal(t, "upload.md", resp.Source)
	})

	t.Run("Re-ingesting appends", func(t *testing.T) {
		mem := store.NewMemoryStore(types.MetricL2)
		ing := newIngester(t, lengthEmbedder{}, mem)
		first, err := ing.IngestFile(ctx, path, "")
		require.NoError(t, err)
		_, err = ing.IngestFile(ctx, path, "")
		require.NoError(t, err)
		assert.Equal(t, 2*first.Chunks, mem.Len())
	})

	t.Run("Embedding failure stores nothing", func(t *testing.T) {
		mem := store.NewMemoryStore(types.MetricL2)
		_, err := newIngester(t, lengthEmbedder{err: errors.New("model down")}, mem).IngestFile(ctx, path, "")
		assert.ErrorContains(t, err, "model down")
		assert.Equal(t, 0, mem.Len())
	})

	t.Run("Empty text is zero chunks", func(t *testing.T) {
		mem := store.NewMemoryStore(types.MetricL2)
		resp, err := newIngester(t, lengthEmbedder{}, mem).IngestText(ctx, "", "empty.txt")
		require.NoError(t, err)
		assert.Equal(t, types.IngestResponse{Source: "empty.txt", Chunks: 0}, resp)
	})
}

func TestServiceRun(t *testing.T) {
	root := t.TempDir()
	cfg := types.Config{
		SourceDir:  filepath.Join(root, "source"),
		ArchiveDir: filepath.Join(root, "archive"),
		BadDir:     filepath.Join(root, "bad"),
	}
	w, err := internal.NewWatcher(cfg, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(cfg.SourceDir, "good.txt"), []byte("Io is a moon of Jupiter."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.SourceDir, "slides.pptx"), []byte("binary"), 0o644))

	mem := store.NewMemoryStore(types.MetricL2)
	svc := New(w, newIngester(t, lengthEmbedder{}, mem), nil)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(stopped)
	}()

	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(cfg.SourceDir)
		return err == nil && len(entries) == 0
	}, 15*time.Second, 100*time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("service did not stop")
	}

	assert.Equal(t, 1, mem.Len())
	day := time.Now().Format("2006-01-02")
	assert.FileExists(t, filepath.Join(cfg.ArchiveDir, day, "good.txt"))
	assert.FileExists(t, filepath.Join(cfg.BadDir, day, "slides.pptx"))
}
