package http

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is an error carrying the HTTP status and code it renders with.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error { return e.Err }

// NewAppError builds an AppError; code defaults from status when empty.
func NewAppError(code, field, message string, status int) *AppError {
	if code == "" {
		code = statusCode(status)
	}
	return &AppError{Code: code, Field: field, Message: message, Status: status}
}

func (e *AppError) WithParam(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = map[string]interface{}{}
	}
	e.Params[key] = value
	return e
}

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func NotFoundErrorf(format string, a ...interface{}) *AppError {
	return NewAppError("", "", fmt.Sprintf(format, a...), http.StatusNotFound)
}

func BadRequestErrorf(format string, a ...interface{}) *AppError {
	return NewAppError("", "", fmt.Sprintf(format, a...), http.StatusBadRequest)
}

func InternalErrorf(format string, a ...interface{}) *AppError {
	return NewAppError("", "", fmt.Sprintf(format, a...), http.StatusInternalServerError)
}

// ErrorRule maps errors matching Target (via errors.Is) to Status.
type ErrorRule struct {
	Target error
	Status int
}

// FromError converts err into an AppError. An AppError already in the chain
// is returned unchanged; otherwise the first matching rule picks the status
// and anything unmatched becomes a 500 with message.
func FromError(err error, message string, rules ...ErrorRule) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	status := http.StatusInternalServerError
	for _, r := range rules {
		if errors.Is(err, r.Target) {
			status = r.Status
			break
		}
	}
	return NewAppError("", "", message, status).WithError(err)
}

func statusCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "ERR_BAD_REQUEST"
	case http.StatusNotFound:
		return "ERR_NOT_FOUND"
	case http.StatusConflict:
		return "ERR_CONFLICT"
	case http.StatusServiceUnavailable:
		return "ERR_UNAVAILABLE"
	}
	if status >= 500 {
		return "ERR_INTERNAL"
	}
	return fmt.Sprintf("ERR_%d", status)
}
