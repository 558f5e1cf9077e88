package httpclient

import (
	"fmt"
	"time"
)

// RetryableError reports that the retry budget ran out on a status the
// client would otherwise keep retrying. RetryAfter is the wait the next
// attempt would have used, so callers can propagate it upstream.
type RetryableError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *RetryableError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("HTTP %d: %s (retry after %v)", e.StatusCode, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable marks the error for callers that probe with an interface
// instead of errors.As.
func (e *RetryableError) IsRetryable() bool { return true }
