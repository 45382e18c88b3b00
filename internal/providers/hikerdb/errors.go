package hikerdb

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingAPIKey is returned when the client is used without a
	// configured API key.
	ErrMissingAPIKey = errors.New("hikerdb API key is not configured")

	// ErrInvalidAPIKey is returned when HikerDB rejects the key.
	ErrInvalidAPIKey = errors.New("hikerdb API key is invalid")
)

// RequestError wraps a transport-level failure (DNS, timeout, reset).
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request failed: %v", e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// StatusError wraps a retryable HTTP status (429 or 5xx).
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned status %d", e.StatusCode)
}

// isRetryableError reports whether a failed call is worth retrying:
// transport failures, rate limits, and server errors.
func isRetryableError(err error) bool {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return true
	}
	var statusErr *StatusError
	return errors.As(err, &statusErr)
}
