package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"ragsql/sqlbot"
	"ragsql/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	question string
	k        int
	ingested []string
	closed   bool
	err      error
}

func (f *fakeBackend) Ask(_ context.Context, q string, k int) (types.Answer, error) {
	f.question, f.k = q, k
	return types.Answer{
		Text:    "The corona is hot.",
		Sources: []types.Source{{Source: "sun.pdf", ChunkIndex: 1, Distance: 3.25}},
	}, f.err
}

func (f *fakeBackend) SQL(_ context.Context, q string) (*sqlbot.Result, error) {
	f.question = q
	t := types.NewTable("name", "moons")
	t.Append("Jupiter", int64(95))
	return &sqlbot.Result{SQL: "SELECT name, moons FROM planets", Table: t, Source: sqlbot.SourceDatabase, Summary: "Jupiter has 95 moons."}, f.err
}

func (f *fakeBackend) Ingest(_ context.Context, path string) (types.IngestResponse, error) {
	f.ingested = append(f.ingested, path)
	return types.IngestResponse{Source: path, Chunks: 3}, f.err
}

func (f *fakeBackend) ImportTable(context.Context, string, string) (int64, error) {
	return 8, f.err
}

func (f *fakeBackend) Close() error {
	f.closed = true
	return nil
}

func execute(t *testing.T, b *fakeBackend, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(func(context.Context) (Backend, error) {
		return b, nil
	})
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestAskCmd(t *testing.T) {
	b := &fakeBackend{}
	out, err := execute(t, b, "ask", "-k", "5", "Is", "the", "corona", "hot?")
	require.NoError(t, err)
	assert.Equal(t, "Is the corona hot?", b.question)
	assert.Equal(t, 5, b.k)
	assert.Contains(t, out, "The corona is hot.")
	assert.Contains(t, out, "sun.pdf (chunk 1, distance 3.250)")
	assert.True(t, b.closed)
}

func TestAskCmdJSON(t *testing.T) {
	out, err := execute(t, &fakeBackend{}, "--json", "ask", "q")
	require.NoError(t, err)
	assert.Contains(t, out, `"answer": "The corona is hot."`)
}

func TestSQLCmd(t *testing.T) {
	out, err := execute(t, &fakeBackend{}, "sql", "How many moons?")
	require.NoError(t, err)
	assert.Contains(t, out, "SQL: SELECT name, moons FROM planets")
	assert.Contains(t, out, "name | moons\nJupiter | 95")
	assert.Contains(t, out, "Jupiter has 95 moons.")
}

func TestIngestCmd(t *testing.T) {
	b := &fakeBackend{}
	out, err := execute(t, b, "ingest", "a.pdf", "b.md")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf", "b.md"}, b.ingested)
	assert.Contains(t, out, "a.pdf: 3 chunks\nb.md: 3 chunks")
}

func TestImportTableCmd(t *testing.T) {
	out, err := execute(t, &fakeBackend{}, "import-table", "https://en.wikipedia.org/wiki/Moons", "moons")
	require.NoError(t, err)
	assert.Contains(t, out, "imported 8 rows into moons")

	_, err = execute(t, &fakeBackend{}, "import-table", "https://example.com")
	assert.ErrorContains(t, err, "accepts 2 arg(s)")
}

func TestBackendErrorsPropagate(t *testing.T) {
	b := &fakeBackend{err: errors.New("llm down")}
	_, err := execute(t, b, "ask", "q")
	assert.ErrorContains(t, err, "llm down")
	assert.True(t, b.closed)
}

func TestOpenFailureSkipsCommand(t *testing.T) {
	root := NewRootCmd(func(context.Context) (Backend, error) {
		return nil, errors.New("no database")
	})
	root.SetOut(new(bytes.Buffer))
	root.SetArgs([]string{"sql", "q"})
	assert.ErrorContains(t, root.Execute(), "no database")
}
