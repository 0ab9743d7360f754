package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ragsql/app/api"
	"ragsql/app/middleware"
	"ragsql/config"
	"ragsql/sqlbot"
	"ragsql/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cannedAnswerer struct{}

func (cannedAnswerer) Answer(context.Context, string, int) (types.Answer, error) {
	return types.Answer{Text: "ok", Sources: []types.Source{}}, nil
}

type noQuestions struct{}

func (noQuestions) Handle(context.Context, sqlbot.Session, string) (*sqlbot.Result, error) {
	return &sqlbot.Result{Source: sqlbot.SourceNone}, nil
}

type noIngest struct{}

func (noIngest) IngestFile(context.Context, string, string) (types.IngestResponse, error) {
	return types.IngestResponse{}, nil
}

func TestNewAppRoutes(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	acquire := func(context.Context) (sqlbot.Session, func(), error) { return nil, func() {}, nil }
	app := NewApp(Handlers{
		Check:    api.NewCheckHandler(),
		Request:  api.NewRequestHandler(cannedAnswerer{}, logger),
		SQL:      api.NewSQLHandler(acquire, noQuestions{}, logger),
		Document: api.NewDocumentHandler(noIngest{}, logger),
	}, logger)

	for _, tc := range []struct {
		method, path, body string
		want               int
	}{
		{http.MethodGet, "/check/healthy", "", http.StatusOK},
		{http.MethodPost, "/api/v1/ask", `{"question":"q"}`, http.StatusOK},
		{http.MethodPost, "/api/v1/sql", `{"question":"q"}`, http.StatusOK},
		{http.MethodPost, "/api/v1/documents", "", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/unknown", "", http.StatusNotFound},
	} {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get(middleware.RequestIDHeader))
		})
	}
}

func testServer(t *testing.T, build buildFunc) *Server {
	t.Helper()
	s := NewServer(&config.Config{ServerAddr: "127.0.0.1:0"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.build = build
	return s
}

func TestServerStop(t *testing.T) {
	t.Run("Stop before Run skips the build", func(t *testing.T) {
		built := false
		s := testServer(t, func(context.Context, *config.Config, *slog.Logger) (*Deps, error) {
			built = true
			return &Deps{}, nil
		})
		s.Stop()
		require.NoError(t, s.Run(context.Background()))
		assert.False(t, built)
	})

	t.Run("Stop during build never listens", func(t *testing.T) {
		var s *Server
		s = testServer(t, func(context.Context, *config.Config, *slog.Logger) (*Deps, error) {
			s.Stop()
			return &Deps{}, nil
		})
		require.NoError(t, s.Run(context.Background()))
		s.mu.Lock()
		defer s.mu.Unlock()
		assert.Nil(t, s.app)
		assert.Nil(t, s.ln)
	})

	t.Run("Stop while serving ends Run", func(t *testing.T) {
		s := testServer(t, func(context.Context, *config.Config, *slog.Logger) (*Deps, error) {
			return &Deps{}, nil
		})
		errch := make(chan error, 1)
		go func() { errch <- s.Run(context.Background()) }()

		require.Eventually(t, func() bool {
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.ln != nil
		}, 5*time.Second, 10*time.Millisecond)

		s.Stop()
		select {
		case err := <-errch:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Fatal("Run did not return after Stop")
		}
	})
}
