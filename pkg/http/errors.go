package http

import (
	"fmt"
	"net/http"
)

// Error codes surfaced to clients.
const (
	CodeBadRequest         = "ERR_BAD_REQUEST"
	CodeNotFound           = "ERR_NOT_FOUND"
	CodeInsufficientSample = "ERR_INSUFFICIENT_SAMPLE"
	CodeTooManyRequests    = "ERR_TOO_MANY_REQUESTS"
	CodeInternal           = "ERR_INTERNAL"
)

// AppError represents application-level error with HTTP status.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another AppError by code, so errors.Is(err, NotFoundError("")) works.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

func newAppError(code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

// WithError wraps an underlying error.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// WithField names the request field at fault.
func (e *AppError) WithField(field string) *AppError {
	e.Field = field
	return e
}

// NotFoundError creates a 404 error.
func NotFoundError(message string) *AppError {
	return newAppError(CodeNotFound, message, http.StatusNotFound)
}

// BadRequestError creates a 400 error.
func BadRequestError(message string) *AppError {
	return newAppError(CodeBadRequest, message, http.StatusBadRequest)
}

// InsufficientSampleError creates a 422 error for well-formed input that yields too
// few matches to evaluate.
func InsufficientSampleError(message string) *AppError {
	return newAppError(CodeInsufficientSample, message, http.StatusUnprocessableEntity)
}

// TooManyRequestsError creates a 429 error.
func TooManyRequestsError(message string) *AppError {
	return newAppError(CodeTooManyRequests, message, http.StatusTooManyRequests)
}

// InternalError creates a 500 error.
func InternalError(message string) *AppError {
	return newAppError(CodeInternal, message, http.StatusInternalServerError)
}
