package collector

import (
	"errors"
	"fmt"
)

// Every condition below is recoverable: it is absorbed into diagnostics and
// result metadata rather than aborting the session. Only dom.ErrPageGone,
// raised when the page handle itself is destroyed, terminates a session.
var (
	// ErrNavigationFailure indicates a sort control could not be found or
	// clicked; the caller proceeds with the page's default order.
	ErrNavigationFailure = errors.New("sort control not found or not clickable")
	// ErrPaginationStall indicates consecutive reveal actions produced no
	// new content; the phase stops early with partial results.
	ErrPaginationStall = errors.New("reveal actions produced no new content")
	// ErrResourceDegraded indicates critical page resources failed to load;
	// extraction continues with lower-confidence tiers.
	ErrResourceDegraded = errors.New("critical page resources failed to load")
	// ErrTimeout indicates a phase or global deadline expired; remaining
	// work is truncated.
	ErrTimeout = errors.New("collection deadline exceeded")
	// ErrExtractionExhausted indicates all extraction strategies failed for
	// one extraction cycle; the cycle yields zero reviews.
	ErrExtractionExhausted = errors.New("all extraction strategies failed")
)

// ValidationError reports bad configuration or targets before a collection
// run starts.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}
