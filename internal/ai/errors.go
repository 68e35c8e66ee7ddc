package ai

import (
	"errors"

	"github.com/sony/gobreaker"
	"google.golang.org/api/googleapi"
)

var (
	// ErrEmbeddingUnavailable means the provider rejected all retries or the
	// circuit breaker is open. Queries surface this instead of silently
	// degrading, unless hybrid-tolerant mode is on.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrDimensionMismatch means the provider returned a vector whose
	// dimensionality differs from the configured store dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimensionality mismatch")
)

// isTransient reports whether an embedding call error is worth retrying:
// rate limits and transient 5xx responses. Breaker-open and context errors
// are not retried.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == 429 || gerr.Code >= 500
	}
	return false
}
