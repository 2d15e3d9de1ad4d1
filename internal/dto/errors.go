// Package dto holds the JSON error body shared by every HTTP response.
package dto

// BaseError is the body of every non-2xx response.
// Code is a machine-readable snake_case code; Fields lists validation
// failures per request field.
type BaseError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details string       `json:"details,omitempty"`
	Fields  []FieldError `json:"fields,omitempty"`
}

// FieldError is one rejected request field, e.g. "items[0].weight".
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Tag     string `json:"tag,omitempty"`
}

// Error codes.
const (
	CodeValidation   = "validation_error"
	CodeUnauthorized = "unauthorized"
	CodeForbidden    = "forbidden"
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeInvalidMove  = "invalid_transition"
	CodeDuplicate    = "duplicate_request"
	CodeUnavailable  = "service_unavailable"
	CodeInternal     = "internal_error"
)

func NewValidationError(msg string, fields []FieldError) BaseError {
	return BaseError{Code: CodeValidation, Message: msg, Fields: fields}
}

func NewUnauthorizedError(msg string) BaseError {
	return BaseError{Code: CodeUnauthorized, Message: msg}
}

func NewForbiddenError(msg string) BaseError {
	return BaseError{Code: CodeForbidden, Message: msg}
}

func NewNotFoundError(msg string) BaseError {
	return BaseError{Code: CodeNotFound, Message: msg}
}

func NewConflictError(msg string) BaseError {
	return BaseError{Code: CodeConflict, Message: msg}
}

func NewInternalError(details string) BaseError {
	return BaseError{Code: CodeInternal, Message: "internal server error", Details: details}
}
