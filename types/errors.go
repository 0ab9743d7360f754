package types

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration     = errors.New("configuration error")
	ErrUnsafeQuery       = errors.New("Generated SQL was not a single safe SELECT.")
	ErrIndexMisalignment = errors.New("embedding batch misaligned")
)

// ConfigurationError is fatal and never retried.
type ConfigurationError struct {
	Field  string
	Reason string
}

func NewConfigurationError(field, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// UnsafeQueryError carries SQL rejected by the safety gate. The SQL was not
// executed.
type UnsafeQueryError struct {
	SQL    string
	Reason string
}

func (e *UnsafeQueryError) Error() string {
	return fmt.Sprintf("%s (%s)", ErrUnsafeQuery.Error(), e.Reason)
}

func (e *UnsafeQueryError) Is(target error) bool {
	return target == ErrUnsafeQuery
}

// ExecutionError is a gate-approved statement the database refused, or a
// lost connection while running it.
type ExecutionError struct {
	SQL string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("failed to execute query: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IndexMisalignmentError means a batch result cannot be paired 1:1 with its
// inputs.
type IndexMisalignmentError struct {
	Expected int
	Got      int
	Index    int
	Reason   string
}

func (e *IndexMisalignmentError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("embedding batch misaligned at index %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("embedding batch misaligned: expected %d results, got %d", e.Expected, e.Got)
}

func (e *IndexMisalignmentError) Is(target error) bool {
	return target == ErrIndexMisalignment
}

// EmbeddingError attributes a failed embedding call to its input index.
type EmbeddingError struct {
	Index int
	Err   error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("failed to embed item %d: %v", e.Index, e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}
