package api

import (
	"errors"
	"net/http"

	"github.com/dokzlo13/lumina/internal/devicesync"
	"github.com/dokzlo13/lumina/internal/rules"
	"github.com/dokzlo13/lumina/internal/store"
	"github.com/dokzlo13/lumina/internal/wled"
)

// Error codes returned in the error body.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeUnreachable  = "DEVICE_UNREACHABLE"
	CodeNoController = "NO_CONTROLLER"
	CodeUnavailable  = "UNAVAILABLE"
	CodeInternal     = "INTERNAL_ERROR"
)

// Error is an error with an HTTP status.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// BadRequest returns a 400 validation error.
func BadRequest(msg string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: CodeValidation, Message: msg}
}

// asError maps domain errors to HTTP errors.
func asError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var verr *rules.ValidationError
	switch {
	case errors.As(err, &verr):
		return &Error{Status: http.StatusBadRequest, Code: CodeValidation, Message: err.Error(), Field: verr.Field}
	case errors.Is(err, rules.ErrInvalidRule):
		return &Error{Status: http.StatusBadRequest, Code: CodeValidation, Message: err.Error()}
	case errors.Is(err, store.ErrNotFound):
		return &Error{Status: http.StatusNotFound, Code: CodeNotFound, Message: err.Error()}
	case errors.Is(err, store.ErrDuplicateID):
		return &Error{Status: http.StatusConflict, Code: CodeConflict, Message: err.Error()}
	case errors.Is(err, devicesync.ErrNoController):
		return &Error{Status: http.StatusServiceUnavailable, Code: CodeNoController, Message: err.Error()}
	case errors.Is(err, wled.ErrUnreachable):
		return &Error{Status: http.StatusBadGateway, Code: CodeUnreachable, Message: err.Error()}
	case errors.Is(err, store.ErrPersistence):
		return &Error{Status: http.StatusServiceUnavailable, Code: CodeUnavailable, Message: err.Error()}
	}
	return &Error{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "internal error"}
}
