// Package provision creates isolated tenant databases through the
// Turso platform API and mints scoped credentials for them. It never
// touches the registry; persistence is orchestrated by the resolver so
// a partial failure is a single reasoned-about unit.
package provision

import (
	"errors"
	"fmt"
)

// ErrQuotaExceeded: the organization's database quota is exhausted.
// Terminal; retrying will not help.
var ErrQuotaExceeded = errors.New("provision: database quota exceeded")

// APIError wraps a platform API failure. Retryable covers transient
// network and 5xx outcomes; the caller owns any backoff policy.
type APIError struct {
	Op        string
	Status    int
	Body      string
	Retryable bool
	Err       error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provision %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("provision %s: status %d: %s", e.Op, e.Status, e.Body)
}

func (e *APIError) Unwrap() error { return e.Err }
