package proxy

import (
	"errors"
	"net/http"

	"github.com/router-for-me/promptdock/internal/ratelimit"
)

// Error kinds. Every *Error wraps exactly one of them.
var (
	ErrValidation  = errors.New("proxy: validation failed")
	ErrAuth        = errors.New("proxy: unauthorized")
	ErrRateLimited = errors.New("proxy: rate limited")
	ErrNotFound    = errors.New("proxy: not found")
	ErrInternal    = errors.New("proxy: internal error")
	ErrUpstream    = errors.New("proxy: upstream request failed")
)

// Error is a dispatch failure carrying the HTTP status and body to send back.
type Error struct {
	Status    int
	Message   string
	Details   any
	Err       error
	RateLimit *ratelimit.Result
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Body returns the JSON payload for the caller.
func (e *Error) Body() map[string]any {
	body := map[string]any{"error": e.Message}
	if e.Details != nil {
		body["details"] = e.Details
	}
	return body
}

func validationError(details string) *Error {
	return &Error{Status: http.StatusBadRequest, Message: "invalid request", Details: details, Err: ErrValidation}
}

func authError(message string) *Error {
	return &Error{Status: http.StatusUnauthorized, Message: message, Err: ErrAuth}
}

func internalError() *Error {
	return &Error{Status: http.StatusInternalServerError, Message: "internal error", Err: ErrInternal}
}
