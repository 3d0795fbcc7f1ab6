package outbox

import (
	"context"
	"time"
)

// Repository is the storage contract for outbox entries.
//
// Enqueue joins the transaction in the caller's context when one is present,
// so an entry commits atomically with the business mutation that produced
// its envelope. Everything else runs on its own connection.
type Repository interface {
	// Enqueue inserts a PENDING entry.
	Enqueue(ctx context.Context, entry *Entry) error

	// ClaimPending returns up to limit PENDING entries whose scheduled_at has
	// passed, oldest first. Implementations lock claimed rows so concurrent
	// dispatcher replicas do not contend on the same entry.
	ClaimPending(ctx context.Context, limit int) ([]*Entry, error)

	// MarkPublished transitions an entry to PUBLISHED and stamps published_at.
	MarkPublished(ctx context.Context, id string) error

	// MarkFailed increments the retry count and records the error. Below the
	// retry cap the entry stays PENDING with scheduled_at pushed out by
	// exponential backoff; at the cap it becomes FAILED.
	MarkFailed(ctx context.Context, id string, cause string) error

	// Requeue resets the retry count and schedules the entry now. Operator
	// action for FAILED rows.
	Requeue(ctx context.Context, id string) error

	// GC deletes PUBLISHED entries older than the cutoff and reports how many
	// were removed.
	GC(ctx context.Context, publishedBefore time.Time) (int64, error)

	// Stats counts entries per status.
	Stats(ctx context.Context) (*Stats, error)
}
