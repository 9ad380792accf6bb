package github

import (
	"fmt"
	"math"
	"time"
)

// RateLimit is the quota snapshot parsed from GitHub's x-ratelimit-* headers.
type RateLimit struct {
	Limit     int
	Remaining int
	Used      int
	Reset     time.Time
	Resource  string
}

// APIError is any non-2xx (or GraphQL-level) failure from the GitHub API.
// RateLimit carries the parsed quota snapshot when the response had one.
type APIError struct {
	Status    int
	Message   string
	RateLimit *RateLimit
}

func (e *APIError) Error() string {
	return e.Message
}

// RateLimitError is the distinguished flavor raised when a 403 coincides
// with zero remaining quota. Callers can report an actionable wait time.
type RateLimitError struct {
	Status    int
	RateLimit RateLimit
}

func (e *RateLimitError) Error() string {
	resetIn := time.Until(e.RateLimit.Reset)
	minutes := int(math.Ceil(resetIn.Minutes()))
	if minutes < 0 {
		minutes = 0
	}
	return fmt.Sprintf("github: rate limit exceeded, resets in %d minutes", minutes)
}
