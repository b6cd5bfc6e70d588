package storage

import (
	"context"
	"time"
)

// DefaultQueryTimeout is the maximum time allowed for a database round trip
// or a whole transaction when the caller set no deadline.
const DefaultQueryTimeout = 5 * time.Second

// withQueryTimeout wraps ctx with DefaultQueryTimeout unless it already has a deadline.
func withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, DefaultQueryTimeout)
}
