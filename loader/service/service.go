package service

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"ragsql/loader/internal"
	"ragsql/types"
)

// ShutdownTimeout bounds how long Run waits for its goroutines.
const ShutdownTimeout = 5 * time.Second

type document struct {
	path   string
	chunks []types.EmbeddedChunk
	err    error
}

// Service ingests every stable file dropped into the watched folder.
type Service struct {
	logger   *slog.Logger
	watcher  *internal.Watcher
	ingester *Ingester
}

func New(w *internal.Watcher, ing *Ingester, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logger:   logger,
		watcher:  w,
		ingester: ing,
	}
}

// Run blocks until ctx is done or SIGINT/SIGTERM arrives.
func (s *Service) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fileChan := make(chan string, 10)
	docChan := make(chan *document)
	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		defer close(fileChan)
		s.watcher.WatchFile(ctx, fileChan)
	}()
	go func() {
		defer wg.Done()
		defer close(docChan)
		s.ProcessFile(ctx, fileChan, docChan)
	}()
	go func() {
		defer wg.Done()
		s.DocumentSave(ctx, docChan)
	}()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigch)

	select {
	case <-sigch:
		s.logger.Info("received shutdown signal, shutting down gracefully")
	case <-ctx.Done():
	}
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("loader service stopped")
	case <-time.After(ShutdownTimeout):
		s.logger.Warn("timeout waiting for goroutines to stop, forcing shutdown")
	}
}

// ProcessFile extracts and embeds each file received on fileChan.
func (s *Service) ProcessFile(ctx context.Context, fileChan <-chan string, docChan chan<- *document) {
	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-fileChan:
			if !ok {
				return
			}
			chunks, err := s.ingester.Prepare(ctx, path, "")
			if ctx.Err() != nil {
				// leave the file in place for the next run
				s.watcher.Release(path)
				return
			}
			select {
			case docChan <- &document{path: path, chunks: chunks, err: err}:
			case <-ctx.Done():
				s.watcher.Release(path)
				return
			}
		}
	}
}

// DocumentSave stores prepared documents and archives their files. Files
// that failed anywhere go to the bad directory.
func (s *Service) DocumentSave(ctx context.Context, docChan <-chan *document) {
	for doc := range docChan {
		state := internal.StateArchived
		err := doc.err
		if err == nil {
			err = s.ingester.Save(ctx, doc.chunks)
		}
		if err != nil {
			if ctx.Err() != nil {
				s.watcher.Release(doc.path)
				continue
			}
			s.logger.Error("failed to ingest file", slog.String("file", doc.path), slog.Any("error", err))
			state = internal.StateBad
		} else {
			s.logger.Info("document saved", slog.String("file", doc.path), slog.Int("chunks", len(doc.chunks)))
		}

		if _, err := s.watcher.MoveToArchive(doc.path, state); err != nil {
			s.logger.Error("failed to archive file", slog.String("file", doc.path), slog.Any("error", err))
			s.watcher.Release(doc.path)
			continue
		}
		s.watcher.Done(doc.path)
	}
}
