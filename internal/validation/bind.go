package validation

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-jewelry-orders/internal/dto"
)

// BindAndValidate binds the JSON body into out and validates it.
// On failure it writes the 400 and returns the error; handlers just return.
func BindAndValidate(c *gin.Context, out any, v *validatorv10.Validate) error {
	if err := c.ShouldBindJSON(out); err != nil {
		resp := dto.NewValidationError("invalid request body", nil)
		resp.Details = err.Error()
		c.AbortWithStatusJSON(http.StatusBadRequest, resp)
		return err
	}
	return validate(c, out, v)
}

// BindQueryAndValidate is BindAndValidate for query parameters.
func BindQueryAndValidate(c *gin.Context, out any, v *validatorv10.Validate) error {
	if err := c.ShouldBindQuery(out); err != nil {
		resp := dto.NewValidationError("invalid query parameters", nil)
		resp.Details = err.Error()
		c.AbortWithStatusJSON(http.StatusBadRequest, resp)
		return err
	}
	return validate(c, out, v)
}

func validate(c *gin.Context, out any, v *validatorv10.Validate) error {
	if err := v.Struct(out); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewValidationError("validation failed", FieldErrors(err)))
		return err
	}
	return nil
}

// FieldErrors converts validator errors to response fields named by their
// json path, e.g. "items[0].weight".
func FieldErrors(err error) []dto.FieldError {
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		return []dto.FieldError{{Field: "body", Message: err.Error()}}
	}
	out := make([]dto.FieldError, 0, len(ve))
	for _, fe := range ve {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		out = append(out, dto.FieldError{Field: field, Message: fieldMessage(fe), Tag: fe.Tag()})
	}
	return out
}
