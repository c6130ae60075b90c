package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotConfigured  = errors.New("gateway: credentials not configured")
	ErrInvalidRequest = errors.New("gateway: invalid request")
	ErrTokenNotFound  = errors.New("gateway: token not found")
	ErrRateLimited    = errors.New("gateway: rate limit wait aborted")
)

// APIError is a non-2xx gateway response.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("gateway: http %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway: http %d: %s: %s", e.StatusCode, e.Code, e.Description)
}

// Temporary reports whether the same request may succeed later.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout
}

// errorEnvelope is the gateway error body: {"error": {"code": ..., "description": ...}}.
type errorEnvelope struct {
	Error APIError `json:"error"`
}
