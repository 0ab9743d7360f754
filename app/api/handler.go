package api

import (
	"context"
	"log/slog"

	"ragsql/types"

	"github.com/gofiber/fiber/v2"
)

type Answerer interface {
	Answer(ctx context.Context, question string, k int) (types.Answer, error)
}

// RequestHandler serves grounded answers from the document corpus.
type RequestHandler struct {
	answerer Answerer
	logger   *slog.Logger
}

func NewRequestHandler(a Answerer, logger *slog.Logger) *RequestHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestHandler{
		answerer: a,
		logger:   logger,
	}
}

func (h *RequestHandler) HandleAsk(c *fiber.Ctx) error {
	var params types.AskParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	ans, err := h.answerer.Answer(c.UserContext(), params.Question, params.K)
	if err != nil {
		return err
	}
	if ans.Sources == nil {
		ans.Sources = []types.Source{}
	}

	h.logger.Info("question answered",
		slog.Bool("refused", ans.Refused),
		slog.Int("sources", len(ans.Sources)),
	)
	return c.JSON(ans)
}
