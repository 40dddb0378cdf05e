package catalog

import (
	"errors"
	"fmt"
)

// Sentinel errors for the catalog API status-code contract.
// A 404 is not represented here: not-found is a legitimate outcome
// returned as found=false, nil error.
var (
	// ErrUnauthorized means the API key was rejected (HTTP 401).
	// Retrying cannot succeed until credentials change.
	ErrUnauthorized = errors.New("catalog: invalid API credentials")

	// ErrQuotaExceeded means the daily or overall request quota
	// is exhausted (HTTP 402). Fatal for the current scan cycle.
	ErrQuotaExceeded = errors.New("catalog: request quota exceeded")

	// ErrRateLimited means the per-second request limit was hit
	// (HTTP 429). Callers may back off and retry at a higher layer.
	ErrRateLimited = errors.New("catalog: rate limit exceeded")

	// ErrUnreachable wraps transport failures and unclassified
	// status codes.
	ErrUnreachable = errors.New("catalog: API unreachable")
)

// ShapeError reports a successful response whose body does not match
// the expected structure (wrong JSON type, missing required key).
type ShapeError struct {
	Endpoint string
	Reason   string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("catalog: unexpected response shape from %s: %s", e.Endpoint, e.Reason)
}
