package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrRateLimited matches every RateLimitError via errors.Is.
var ErrRateLimited = errors.New("rate limited")

// TransportError means the request never produced an HTTP response.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: transport: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError is a response with an error status. Code and Message come from the JSON
// error body when the server sent one.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Code       int             `json:"code"`
	Message    string          `json:"message"`
	Errors     json.RawMessage `json:"errors,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d: %s (code %d)", e.Method, e.Path, e.StatusCode, e.Message, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// RateLimitError is returned by endpoint helpers when a request was refused, either
// locally before sending or by the server with a 429.
type RateLimitError struct {
	Bucket     string
	RetryAfter time.Duration
	// Local is true when the request was never sent.
	Local bool
}

func (e *RateLimitError) Error() string {
	if e.Local {
		return fmt.Sprintf("rate limited on bucket %q, retry in %s (not sent)", e.Bucket, e.RetryAfter)
	}
	return fmt.Sprintf("rate limited on bucket %q, retry in %s", e.Bucket, e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// IsRateLimited reports whether err is a rate-limit refusal rather than a failure.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

func newAPIError(method, path string, status int, body []byte) *APIError {
	apiErr := &APIError{}
	if len(body) > 0 {
		// Not every error status carries a JSON body.
		_ = json.Unmarshal(body, apiErr)
	}
	apiErr.Method = method
	apiErr.Path = path
	apiErr.StatusCode = status
	return apiErr
}
