// Package apperr holds the error taxonomy shared by the order and rate core.
// Callers match with errors.Is; wrapped messages carry the detail.
package apperr

import "errors"

var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrExternalUnavailable = errors.New("external service unavailable")
	ErrDuplicateRequest    = errors.New("duplicate request")
)
