package models

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"skald/internal/money"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation error")
	ErrDuplicateProduct    = errors.New("duplicate product")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrEmbeddingProvider   = errors.New("embedding provider error")
	ErrDimensionMismatch   = errors.New("embedding dimension mismatch")
)

// Stable error kinds surfaced to API clients.
const (
	KindValidation          = "validation_failed"
	KindDuplicateProduct    = "duplicate_product"
	KindInsufficientBalance = "insufficient_balance"
	KindEmbeddingProvider   = "embedding_provider_error"
	KindDimensionMismatch   = "dimension_mismatch"
	KindNotFound            = "not_found"
	KindCancelled           = "request_cancelled"
	KindInternal            = "internal_error"
)

// FieldError describes one rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError collects every field that failed validation.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Add(field, code, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Code: code, Message: msg})
}

// OrNil returns nil when no field failed, so callers can return it directly.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type DuplicateProductError struct {
	Name string
}

func (e *DuplicateProductError) Error() string {
	return fmt.Sprintf("a product named %q already exists", e.Name)
}

func (e *DuplicateProductError) Is(target error) bool { return target == ErrDuplicateProduct }

// InsufficientBalanceError is returned before any paid call is made.
type InsufficientBalanceError struct {
	Remaining money.Amount
	Estimated money.Amount
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: remaining $%s, estimated cost $%s", e.Remaining, e.Estimated)
}

func (e *InsufficientBalanceError) Is(target error) bool { return target == ErrInsufficientBalance }

// EmbeddingProviderError wraps a provider failure after retries.
type EmbeddingProviderError struct {
	Provider string
	Err      error
}

func (e *EmbeddingProviderError) Error() string {
	return fmt.Sprintf("embedding provider %s: %v", e.Provider, e.Err)
}

func (e *EmbeddingProviderError) Unwrap() error { return e.Err }

func (e *EmbeddingProviderError) Is(target error) bool { return target == ErrEmbeddingProvider }

type DimensionMismatchError struct {
	ProductID uuid.UUID
	Want      int
	Got       int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("product %s embedding has %d dimensions, query has %d", e.ProductID, e.Got, e.Want)
}

func (e *DimensionMismatchError) Is(target error) bool { return target == ErrDimensionMismatch }

// ErrorKind maps an error onto its stable kind string.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrDuplicateProduct):
		return KindDuplicateProduct
	case errors.Is(err, ErrInsufficientBalance):
		return KindInsufficientBalance
	case errors.Is(err, ErrEmbeddingProvider):
		return KindEmbeddingProvider
	case errors.Is(err, ErrDimensionMismatch):
		return KindDimensionMismatch
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, context.Canceled):
		return KindCancelled
	}
	return KindInternal
}
