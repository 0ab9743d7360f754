package api

import (
	"context"
	"log/slog"

	"ragsql/sqlbot"
	"ragsql/types"

	"github.com/gofiber/fiber/v2"
)

// SessionFunc acquires one database session for a request. release must be
// called once the request is done.
type SessionFunc func(ctx context.Context) (sess sqlbot.Session, release func(), err error)

type QuestionHandler interface {
	Handle(ctx context.Context, sess sqlbot.Session, question string) (*sqlbot.Result, error)
}

type SQLHandler struct {
	acquire SessionFunc
	handler QuestionHandler
	logger  *slog.Logger
}

func NewSQLHandler(acquire SessionFunc, h QuestionHandler, logger *slog.Logger) *SQLHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLHandler{
		acquire: acquire,
		handler: h,
		logger:  logger,
	}
}

func (h *SQLHandler) HandleSQL(c *fiber.Ctx) error {
	var params types.SQLParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	ctx := c.UserContext()
	sess, release, err := h.acquire(ctx)
	if err != nil {
		h.logger.Error("failed to acquire database session", slog.Any("error", err))
		return ErrUnavailable("database unavailable")
	}
	defer release()

	res, err := h.handler.Handle(ctx, sess, params.Question)
	if err != nil {
		return err
	}
	return c.JSON(res)
}
