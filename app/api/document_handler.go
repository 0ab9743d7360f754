package api

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"ragsql/loader/extract"
	"ragsql/types"

	"github.com/gofiber/fiber/v2"
)

type Ingester interface {
	IngestFile(ctx context.Context, path, source string) (types.IngestResponse, error)
}

// DocumentHandler ingests uploaded documents synchronously.
type DocumentHandler struct {
	ingester Ingester
	logger   *slog.Logger
}

func NewDocumentHandler(ing Ingester, logger *slog.Logger) *DocumentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentHandler{
		ingester: ing,
		logger:   logger,
	}
}

func (h *DocumentHandler) HandleUpload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return ErrMissingFile()
	}
	name := filepath.Base(fileHeader.Filename)
	if !extract.Supported(name) {
		return ErrUnsupportedFile(name)
	}

	dir, err := os.MkdirTemp("", "ragsql-upload-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, name)
	if err := c.SaveFile(fileHeader, path); err != nil {
		return err
	}
	h.logger.Debug("upload saved", slog.String("file", name), slog.Int64("size", fileHeader.Size))

	resp, err := h.ingester.IngestFile(c.UserContext(), path, name)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}
