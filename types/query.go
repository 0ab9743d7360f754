package types

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type Validater interface {
	Validate() map[string]string
}

type AskParams struct {
	Question string `json:"question" validate:"required,max=4000"`
	K        int    `json:"k" validate:"omitempty,min=1,max=50"`
}

type SQLParams struct {
	Question string `json:"question" validate:"required,max=4000"`
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

func (params *AskParams) Validate() map[string]string {
	return validateStruct(params)
}

func (params *SQLParams) Validate() map[string]string {
	return validateStruct(params)
}

func validateStruct(s any) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"request": err.Error()}
	}
	errors := make(map[string]string)
	for _, e := range errs {
		errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
	}
	return errors
}

// Answer is the outcome of the grounded RAG flow. Refused marks the
// no-usable-context terminal state; it is not an error.
type Answer struct {
	Text      string    `json:"answer"`
	Refused   bool      `json:"refused"`
	Sources   []Source  `json:"sources"`
	Timestamp time.Time `json:"timestamp"`
}

type Source struct {
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_index"`
	Distance   float64 `json:"distance"`
}

type IngestResponse struct {
	Source string `json:"source"`
	Chunks int    `json:"chunks"`
}
