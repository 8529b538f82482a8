package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrQuotaExhausted is returned once rate limiting outlasted the retry budget.
// The generator stops calling the backend for the rest of the run.
var ErrQuotaExhausted = errors.New("generation quota exhausted")

// APIError is a classified failure from a text-generation backend.
// StatusCode is 0 for transport failures.
type APIError struct {
	Provider    string
	StatusCode  int
	RateLimited bool
	Message     string
	Err         error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: transport error: %s", e.Provider, msg)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, msg)
}

func (e *APIError) Unwrap() error { return e.Err }

// Retryable reports whether the same request may succeed later
func (e *APIError) Retryable() bool {
	return e.RateLimited || e.StatusCode == 0 || e.StatusCode >= 500
}

// isRetryable is the retry predicate used for backend calls
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return false
}

func isRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.RateLimited
}

func newStatusError(provider string, status int, msg string, err error) *APIError {
	return &APIError{
		Provider:    provider,
		StatusCode:  status,
		RateLimited: status == http.StatusTooManyRequests,
		Message:     msg,
		Err:         err,
	}
}
