package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"ragsql/sqlbot"
	"ragsql/types"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAnswerer struct {
	ans      types.Answer
	err      error
	question string
	k        int
}

func (f *fakeAnswerer) Answer(_ context.Context, q string, k int) (types.Answer, error) {
	f.question, f.k = q, k
	return f.ans, f.err
}

type fakeQuestions struct {
	res *sqlbot.Result
	err error
}

func (f *fakeQuestions) Handle(context.Context, sqlbot.Session, string) (*sqlbot.Result, error) {
	return f.res, f.err
}

type fakeIngester struct {
	content string
	source  string
	err     error
}

func (f *fakeIngester) IngestFile(_ context.Context, path, source string) (types.IngestResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.IngestResponse{}, err
	}
	f.content, f.source = string(data), source
	return types.IngestResponse{Source: source, Chunks: 2}, f.err
}

func newApp() *fiber.App {
	return fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
}

func postJSON(t *testing.T, app *fiber.App, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode, decode(t, resp.Body)
}

func decode(t *testing.T, r io.Reader) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(r).Decode(&out))
	return out
}

func TestHandleHealthy(t *testing.T) {
	app := newApp()
	app.Get("/check/healthy", NewCheckHandler().HandleHealthy)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/check/healthy", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"result": "ok"}, decode(t, resp.Body))
}

func TestHandleAsk(t *testing.T) {
	t.Run("Answer with sources", func(t *testing.T) {
		a := &fakeAnswerer{ans: types.Answer{
			Text:    "The corona is hot.",
			Sources: []types.Source{{Source: "sun.pdf", ChunkIndex: 2, Distance: 4.5}},
		}}
		app := newApp()
		app.Post("/api/v1/ask", NewRequestHandler(a, nil).HandleAsk)

		code, body := postJSON(t, app, "/api/v1/ask", `{"question":"Is the corona hot?","k":4}`)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "The corona is hot.", body["answer"])
		assert.Equal(t, false, body["refused"])
		assert.Equal(t, "Is the corona hot?", a.question)
		assert.Equal(t, 4, a.k)
		sources := body["sources"].([]any)
		require.Len(t, sources, 1)
		assert.Equal(t, "sun.pdf", sources[0].(map[string]any)["source"])
	})

	t.Run("Refusal has empty sources", func(t *testing.T) {
		a := &fakeAnswerer{ans: types.Answer{Text: "sorry", Refused: true}}
		app := newApp()
		app.Post("/api/v1/ask", NewRequestHandler(a, nil).HandleAsk)

		code, body := postJSON(t, app, "/api/v1/ask", `{"question":"What is dark matter?"}`)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, true, body["refused"])
		assert.Equal(t, []any{}, body["sources"])
	})

	t.Run("Missing question", func(t *testing.T) {
		app := newApp()
		app.Post("/api/v1/ask", NewRequestHandler(&fakeAnswerer{}, nil).HandleAsk)

		code, body := postJSON(t, app, "/api/v1/ask", `{"k":2}`)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Contains(t, body["errors"], "Question")
	})

	t.Run("Malformed JSON", func(t *testing.T) {
		app := newApp()
		app.Post("/api/v1/ask", NewRequestHandler(&fakeAnswerer{}, nil).HandleAsk)

		code, body := postJSON(t, app, "/api/v1/ask", `{"question":`)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "invalid JSON request", body["error"])
	})

	t.Run("Internal cause is not leaked", func(t *testing.T) {
		app := newApp()
		a := &fakeAnswerer{err: errors.New("dial tcp 10.0.0.7:5432: refused")}
		app.Post("/api/v1/ask", NewRequestHandler(a, nil).HandleAsk)

		code, body := postJSON(t, app, "/api/v1/ask", `{"question":"q"}`)
		assert.Equal(t, http.StatusInternalServerError, code)
		assert.Equal(t, "internal server error", body["error"])
	})
}

func TestHandleSQL(t *testing.T) {
	released := 0
	acquire := func(context.Context) (sqlbot.Session, func(), error) {
		return nil, func() { released++ }, nil
	}

	t.Run("Result rendered", func(t *testing.T) {
		table := types.NewTable("name", "mass")
		table.Append("Jupiter", 1.898e27)
		q := &fakeQuestions{res: &sqlbot.Result{SQL: "SELECT name, mass FROM planets", Table: table, Source: sqlbot.SourceDatabase}}
		app := newApp()
		app.Post("/api/v1/sql", NewSQLHandler(acquire, q, nil).HandleSQL)

		code, body := postJSON(t, app, "/api/v1/sql", `{"question":"Mass of Jupiter?"}`)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "SELECT name, mass FROM planets", body["sql"])
		assert.Equal(t, "database", body["source"])
		assert.NotNil(t, body["table"])
		assert.Equal(t, 1, released)
	})

	t.Run("Unsafe query is 422 with the SQL", func(t *testing.T) {
		q := &fakeQuestions{err: &types.UnsafeQueryError{SQL: "DROP TABLE planets", Reason: "statement does not start with SELECT"}}
		app := newApp()
		app.Post("/api/v1/sql", NewSQLHandler(acquire, q, nil).HandleSQL)

		code, body := postJSON(t, app, "/api/v1/sql", `{"question":"drop it"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, code)
		assert.Equal(t, "DROP TABLE planets", body["sql"])
		assert.Contains(t, body["error"], "SELECT")
	})

	t.Run("Execution error is 500 with the SQL", func(t *testing.T) {
		q := &fakeQuestions{err: &types.ExecutionError{SQL: "SELECT nope FROM planets", Err: errors.New(`column "nope" does not exist`)}}
		app := newApp()
		app.Post("/api/v1/sql", NewSQLHandler(acquire, q, nil).HandleSQL)

		code, body := postJSON(t, app, "/api/v1/sql", `{"question":"?"}`)
		assert.Equal(t, http.StatusInternalServerError, code)
		assert.Equal(t, "SELECT nope FROM planets", body["sql"])
		assert.Contains(t, body["error"], "does not exist")
	})

	t.Run("No session is 503", func(t *testing.T) {
		failing := func(context.Context) (sqlbot.Session, func(), error) {
			return nil, nil, errors.New("pool closed")
		}
		app := newApp()
		app.Post("/api/v1/sql", NewSQLHandler(failing, &fakeQuestions{}, nil).HandleSQL)

		code, _ := postJSON(t, app, "/api/v1/sql", `{"question":"q"}`)
		assert.Equal(t, http.StatusServiceUnavailable, code)
	})
}

func upload(t *testing.T, app *fiber.App, field, name, content string) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp, decode(t, resp.Body)
}

func TestHandleUpload(t *testing.T) {
	t.Run("Text file ingested under its name", func(t *testing.T) {
		ing := &fakeIngester{}
		app := newApp()
		app.Post("/api/v1/documents", NewDocumentHandler(ing, nil).HandleUpload)

		resp, body := upload(t, app, "file", "notes.md", "# Io\nA moon.")
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, "notes.md", body["source"])
		assert.Equal(t, float64(2), body["chunks"])
		assert.Equal(t, "# Io\nA moon.", ing.content)
		assert.Equal(t, "notes.md", ing.source)
	})

	t.Run("Unsupported type", func(t *testing.T) {
		app := newApp()
		app.Post("/api/v1/documents", NewDocumentHandler(&fakeIngester{}, nil).HandleUpload)

		resp, _ := upload(t, app, "file", "deck.pptx", "x")
		assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	})

	t.Run("Missing file field", func(t *testing.T) {
		app := newApp()
		app.Post("/api/v1/documents", NewDocumentHandler(&fakeIngester{}, nil).HandleUpload)

		resp, body := upload(t, app, "document", "notes.md", "x")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body["error"], "file")
	})
}
