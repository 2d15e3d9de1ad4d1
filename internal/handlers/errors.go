package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-jewelry-orders/internal/apperr"
	"github.com/imrishuroy/go-jewelry-orders/internal/dto"
)

// statusOf maps a service error to its HTTP status and body. Unknown
// errors become a 500 without detail.
func statusOf(err error) (int, dto.BaseError) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest, dto.NewValidationError(err.Error(), nil)
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, dto.NewNotFoundError(err.Error())
	case errors.Is(err, apperr.ErrInvalidTransition):
		return http.StatusConflict, dto.BaseError{Code: dto.CodeInvalidMove, Message: err.Error()}
	case errors.Is(err, apperr.ErrDuplicateRequest):
		return http.StatusConflict, dto.BaseError{Code: dto.CodeDuplicate, Message: err.Error()}
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict, dto.NewConflictError(err.Error())
	case errors.Is(err, apperr.ErrExternalUnavailable):
		return http.StatusServiceUnavailable, dto.BaseError{Code: dto.CodeUnavailable, Message: err.Error()}
	}
	return http.StatusInternalServerError, dto.NewInternalError("")
}

func writeError(c *gin.Context, log *zap.Logger, err error) {
	status, body := statusOf(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, body)
}
