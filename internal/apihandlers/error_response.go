package apihandlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"skald/internal/models"
	"skald/internal/money"
	"skald/internal/store"
)

// APIError defines standard error response
// Example: { "error": { "code": "validation_failed", "message": "name must be at least 3 characters" } }
type APIError struct {
	Code         string              `json:"code"`
	Message      string              `json:"message"`
	Fields       []models.FieldError `json:"fields,omitempty"`
	RemainingUSD *money.Amount       `json:"remaining_usd,omitempty"`
	EstimatedUSD *money.Amount       `json:"estimated_usd,omitempty"`
}

type errorResponse struct {
	Error APIError `json:"error"`
}

// JSONError sends a structured error response
func JSONError(ctx *gin.Context, status int, code, msg string) {
	ctx.JSON(status, errorResponse{Error: APIError{Code: code, Message: msg}})
}

// Convenience wrappers
func BadRequest(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusBadRequest, "bad_request", msg)
}

func Unauthorized(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusUnauthorized, "unauthorized", msg)
}

func NotFound(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusNotFound, models.KindNotFound, msg)
}

func Internal(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusInternalServerError, models.KindInternal, msg)
}

func Conflict(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusConflict, "conflict", msg)
}

// StatusClientClosedRequest is the non-standard status logged when the
// client went away before the response was ready.
const StatusClientClosedRequest = 499

// RespondError maps a service error onto its status and error body.
func RespondError(ctx *gin.Context, err error) {
	var (
		verr *models.ValidationError
		ierr *models.InsufficientBalanceError
	)
	switch {
	case errors.As(err, &verr):
		ctx.JSON(http.StatusBadRequest, errorResponse{Error: APIError{
			Code:    models.KindValidation,
			Message: verr.Error(),
			Fields:  verr.Fields,
		}})
	case errors.As(err, &ierr):
		remaining, estimated := ierr.Remaining, ierr.Estimated
		ctx.JSON(http.StatusBadRequest, errorResponse{Error: APIError{
			Code:         models.KindInsufficientBalance,
			Message:      ierr.Error(),
			RemainingUSD: &remaining,
			EstimatedUSD: &estimated,
		}})
	case errors.Is(err, models.ErrDuplicateProduct):
		JSONError(ctx, http.StatusConflict, models.KindDuplicateProduct, err.Error())
	case errors.Is(err, models.ErrNotFound), errors.Is(err, store.ErrNotFound):
		NotFound(ctx, err.Error())
	case errors.Is(err, models.ErrEmbeddingProvider):
		log.WithError(err).WithField("path", ctx.FullPath()).Warn("Embedding provider failure")
		JSONError(ctx, http.StatusBadGateway, models.KindEmbeddingProvider, "embedding provider is unavailable, try again later")
	case errors.Is(err, context.Canceled):
		log.WithError(err).WithField("path", ctx.FullPath()).Debug("Request cancelled by client")
		JSONError(ctx, StatusClientClosedRequest, models.KindCancelled, "request cancelled")
	default:
		log.WithError(err).WithField("path", ctx.FullPath()).Error("Request failed")
		Internal(ctx, "internal server error")
	}
}
