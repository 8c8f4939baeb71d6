package port

import (
	"context"
	"time"
)

// RateLimitStore records and counts attempts inside a sliding window,
// identified by an arbitrary key (client IP for login throttling).
type RateLimitStore interface {
	RecordAttempt(ctx context.Context, identifier string, at time.Time) error
	CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error)
	TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error
}
