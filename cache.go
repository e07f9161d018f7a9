package bastion

import (
	"context"
	"time"
)

// Cache provides caching for authorization check results. The engine
// consults it only for parameterless checks, since business rules may
// read check params.
type Cache interface {
	// Get returns a cached check result, if available.
	Get(ctx context.Context, userID, itemName string) (*CheckResult, bool)

	// Set stores a check result in the cache.
	Set(ctx context.Context, userID, itemName string, result *CheckResult, ttl time.Duration)

	// InvalidateUser removes all cached results for a user.
	InvalidateUser(ctx context.Context, userID string)

	// Purge removes all cached results.
	Purge(ctx context.Context)
}
