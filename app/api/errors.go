package api

import (
	"errors"
	"log/slog"

	"ragsql/types"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler renders every error returned by a handler. Internal causes
// are logged, never sent.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var (
		apiErr    Error
		valErr    ValidationError
		unsafeErr *types.UnsafeQueryError
		execErr   *types.ExecutionError
		fiberErr  *fiber.Error
	)
	switch {
	case errors.As(err, &apiErr):
		return c.Status(apiErr.Code).JSON(apiErr)
	case errors.As(err, &valErr):
		return c.Status(valErr.Status).JSON(valErr)
	case errors.As(err, &unsafeErr):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(SQLError{
			Code:    fiber.StatusUnprocessableEntity,
			Message: unsafeErr.Error(),
			SQL:     unsafeErr.SQL,
		})
	case errors.As(err, &execErr):
		slog.Error("query execution failed", slog.String("sql", execErr.SQL), slog.Any("error", execErr.Err))
		return c.Status(fiber.StatusInternalServerError).JSON(SQLError{
			Code:    fiber.StatusInternalServerError,
			Message: execErr.Error(),
			SQL:     execErr.SQL,
		})
	case errors.As(err, &fiberErr):
		return c.Status(fiberErr.Code).JSON(NewError(fiberErr.Code, fiberErr.Message))
	}

	slog.Error("request failed", slog.String("path", c.Path()), slog.Any("error", err))
	return c.Status(fiber.StatusInternalServerError).JSON(ErrInternal())
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

func (e Error) Error() string {
	return e.Message
}

func NewError(code int, msg string) Error {
	return Error{
		Code:    code,
		Message: msg,
	}
}

// SQLError is an error about one statement; the statement text is returned
// so the caller can see what was refused.
type SQLError struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
	SQL     string `json:"sql"`
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: fiber.StatusBadRequest,
		Errors: errors,
	}
}

func ErrBadRequest() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid JSON request",
	}
}

func ErrMissingFile() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "multipart field 'file' is required",
	}
}

func ErrUnsupportedFile(name string) Error {
	return Error{
		Code:    fiber.StatusUnsupportedMediaType,
		Message: "unsupported file type: " + name,
	}
}

func ErrUnavailable(msg string) Error {
	return Error{
		Code:    fiber.StatusServiceUnavailable,
		Message: msg,
	}
}

func ErrInternal() Error {
	return Error{
		Code:    fiber.StatusInternalServerError,
		Message: "internal server error",
	}
}
