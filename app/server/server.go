package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"ragsql/app/api"
	"ragsql/app/middleware"
	"ragsql/config"

	"github.com/gofiber/fiber/v2"
)

const shutdownTimeout = 5 * time.Second

var fiberConfig = fiber.Config{
	ErrorHandler:          api.ErrorHandler,
	DisableStartupMessage: true,
	BodyLimit:             64 << 20,
}

// Handlers are the route targets; tests build them from fakes.
type Handlers struct {
	Check    *api.CheckHandler
	Request  *api.RequestHandler
	SQL      *api.SQLHandler
	Document *api.DocumentHandler
}

func NewApp(h Handlers, logger *slog.Logger) *fiber.App {
	app := fiber.New(fiberConfig)
	app.Use(middleware.RequestID(), middleware.AccessLog(logger))

	var (
		check = app.Group("/check")
		apiv1 = app.Group("/api/v1")
	)

	check.Get("/healthy", h.Check.HandleHealthy)
	apiv1.Post("/ask", h.Request.HandleAsk)
	apiv1.Post("/sql", h.SQL.HandleSQL)
	apiv1.Post("/documents", h.Document.HandleUpload)
	return app
}

type buildFunc func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Deps, error)

type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	build  buildFunc

	mu      sync.Mutex
	stopped bool
	app     *fiber.App
	ln      net.Listener
	deps    *Deps
}

func NewServer(cfg *config.Config, logger *slog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
		build:  Build,
	}
}

// Run builds the components and serves until Stop. It returns the listen
// error, if any, and nil when Stop came first.
func (s *Server) Run(ctx context.Context) error {
	if s.isStopped() {
		return nil
	}
	deps, err := s.build(ctx, s.cfg, s.logger)
	if err != nil {
		return err
	}
	app := NewApp(Handlers{
		Check:    api.NewCheckHandler(),
		Request:  api.NewRequestHandler(deps.Pipeline, s.logger),
		SQL:      api.NewSQLHandler(deps.Session, deps.Orchestrator, s.logger),
		Document: api.NewDocumentHandler(deps.Ingester, s.logger),
	}, s.logger)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.logger.Info("server stopped before listening")
		return deps.Close()
	}
	s.app, s.deps = app, deps
	// The socket opens under the lock so a concurrent Stop always finds
	// and closes it.
	ln, err := net.Listen("tcp", s.cfg.ServerAddr)
	s.ln = ln
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ServerAddr, err)
	}

	s.logger.Info("server listening", slog.String("addr", ln.Addr().String()))
	return app.Listener(ln)
}

func (s *Server) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Stop shuts the server down. It is safe to call before or during Run.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	if s.app != nil {
		if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			s.logger.Error("failed to shut down http server", slog.Any("error", err))
		}
	}
	if s.ln != nil {
		_ = s.ln.Close()
	}
	if s.deps != nil {
		_ = s.deps.Close()
	}
	s.logger.Info("server stopped")
}
