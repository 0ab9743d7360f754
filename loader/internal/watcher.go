package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ragsql/types"
)

type FileState int

const (
	StateArchived FileState = iota
	StateBad
)

// Watcher polls the source directory and hands over files that have stayed
// put for the monitoring time.
type Watcher struct {
	cfg    types.Config
	logger *slog.Logger
	tick   time.Duration
	now    func() time.Time

	mu         sync.Mutex
	firstSeen  map[string]time.Time
	processing map[string]bool
}

func NewWatcher(cfg types.Config, logger *slog.Logger) (*Watcher, error) {
	if err := createDirectories(cfg.SourceDir, cfg.ArchiveDir, cfg.BadDir); err != nil {
		return nil, fmt.Errorf("failed to create loader directories: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		cfg:        cfg,
		logger:     logger,
		tick:       time.Second,
		now:        time.Now,
		firstSeen:  make(map[string]time.Time),
		processing: make(map[string]bool),
	}, nil
}

// WatchFile scans once per tick until ctx is done.
func (w *Watcher) WatchFile(ctx context.Context, fileChan chan<- string) {
	w.logger.Info("start monitoring folder", slog.String("dir", w.cfg.SourceDir))
	defer w.logger.Info("file watcher stopped")

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !w.scan(ctx, fileChan) {
				return
			}
		}
	}
}

// scan reports false when ctx ended while handing a file over.
func (w *Watcher) scan(ctx context.Context, fileChan chan<- string) bool {
	entries, err := os.ReadDir(w.cfg.SourceDir)
	if err != nil {
		w.logger.Error("failed to read source directory", slog.Any("error", err))
		return true
	}

	current := make(map[string]bool, len(entries))
	var ready []string

	w.mu.Lock()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.cfg.SourceDir, e.Name())
		current[path] = true

		if w.processing[path] {
			continue
		}
		first, seen := w.firstSeen[path]
		if !seen {
			w.firstSeen[path] = w.now()
			w.logger.Info("new file detected", slog.String("file", path))
			continue
		}
		if w.now().Sub(first) > w.cfg.MonitoringTime {
			w.processing[path] = true
			ready = append(ready, path)
		}
	}
	for path := range w.firstSeen {
		if !current[path] {
			delete(w.firstSeen, path)
			delete(w.processing, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		w.logger.Info("file is stable, start processing", slog.String("file", path))
		select {
		case fileChan <- path:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// Done stops tracking path. A later file with the same name is new.
func (w *Watcher) Done(path string) {
	w.mu.Lock()
	delete(w.processing, path)
	delete(w.firstSeen, path)
	w.mu.Unlock()
}

// Release lets path be picked up again on a later scan.
func (w *Watcher) Release(path string) {
	w.mu.Lock()
	delete(w.processing, path)
	w.mu.Unlock()
}

// MoveToArchive moves the file into a dated folder under the archive or bad
// directory, adding a _N suffix when the name is taken.
func (w *Watcher) MoveToArchive(path string, state FileState) (string, error) {
	root := w.cfg.ArchiveDir
	if state == StateBad {
		root = w.cfg.BadDir
	}

	destDir := filepath.Join(root, w.now().Format("2006-01-02"))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	ext := filepath.Ext(path)
	base := strings.TrimSuffix(filepath.Base(path), ext)
	dest := filepath.Join(destDir, base+ext)
	for n := 1; ; n++ {
		if _, err := os.Stat(dest); os.IsNotExist(err) {
			break
		}
		dest = filepath.Join(destDir, fmt.Sprintf("%s_%d%s", base, n, ext))
	}

	if err := os.Rename(path, dest); err != nil {
		// rename fails across devices
		if err := copyFile(path, dest); err != nil {
			return "", fmt.Errorf("failed to move file to archive: %w", err)
		}
		if err := os.Remove(path); err != nil {
			return "", fmt.Errorf("failed to remove archived file: %w", err)
		}
	}

	w.logger.Info("file moved", slog.String("from", path), slog.String("to", dest))
	return dest, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func createDirectories(dirs ...string) error {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
