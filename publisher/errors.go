package publisher

import (
	"errors"
	"fmt"
	"net"
	"time"

	"newsbot/retry"
)

var (
	// ErrCeilingReached stops publication once the daily post ceiling is hit
	ErrCeilingReached = errors.New("daily post ceiling reached")

	// ErrQuotaExhausted is returned when posting was rate limited past the
	// retry budget before anything could be published
	ErrQuotaExhausted = errors.New("posting quota exhausted")
)

// PostError is a classified failure from a posting transport
type PostError struct {
	StatusCode  int
	RateLimited bool
	// Transient marks failures worth retrying: rate limits, 5xx, timeouts
	Transient bool
	Message   string
	Wait      time.Duration
	Err       error
}

func (e *PostError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode == 0 {
		return fmt.Sprintf("post failed: %s", msg)
	}
	return fmt.Sprintf("post failed: status %d: %s", e.StatusCode, msg)
}

func (e *PostError) Unwrap() error { return e.Err }

// RetryAfter exposes the server's wait hint to the retry policy
func (e *PostError) RetryAfter() time.Duration { return e.Wait }

func isTransient(err error) bool {
	var pe *PostError
	if errors.As(err, &pe) {
		return pe.Transient || pe.RateLimited
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// quotaExhausted reports a rate limit that outlasted the retry policy
func quotaExhausted(err error) bool {
	var ex *retry.ExhaustedError
	if !errors.As(err, &ex) {
		return false
	}
	var pe *PostError
	return errors.As(ex.Err, &pe) && pe.RateLimited
}

// persistError means a post went out but its ID could not be recorded
type persistError struct {
	err error
}

func (e *persistError) Error() string { return "failed to persist run state: " + e.err.Error() }
func (e *persistError) Unwrap() error { return e.err }
