package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/palletline-systems/palletline-stack/internal/database"
)

// PostgresRepository implements Repository on PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a PostgreSQL-backed outbox repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// q returns the caller's transaction when present, otherwise the pool.
func (r *PostgresRepository) q(ctx context.Context) database.Querier {
	if tx, ok := database.TxFrom(ctx); ok {
		return tx
	}
	return r.pool
}

// Enqueue inserts a PENDING entry inside the caller's transaction.
func (r *PostgresRepository) Enqueue(ctx context.Context, entry *Entry) error {
	query := `
		INSERT INTO outbox (id, tenant_id, event_type, routing_key, envelope, status, retry_count, max_retries, scheduled_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.q(ctx).Exec(ctx, query,
		entry.ID, entry.TenantID, entry.EventType, entry.RoutingKey, entry.Envelope,
		entry.Status, entry.RetryCount, entry.MaxRetries,
		entry.ScheduledAt, entry.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrDuplicate, entry.ID)
		}
		return fmt.Errorf("enqueue outbox entry: %w", err)
	}
	return nil
}

// ClaimPending selects due PENDING rows oldest first. SKIP LOCKED only keeps
// replicas from blocking on rows scanned mid-statement; the locks end with
// the statement, so two dispatchers can still publish the same entry.
// Duplicates are tolerated, not prevented: the broker message-ID dedup and
// the consumer idempotency guard absorb them.
func (r *PostgresRepository) ClaimPending(ctx context.Context, limit int) ([]*Entry, error) {
	query := `
		SELECT id, tenant_id, event_type, routing_key, envelope, status, retry_count, max_retries,
		       COALESCE(last_error, ''), scheduled_at, created_at, published_at
		FROM outbox
		WHERE status = $1 AND scheduled_at <= now()
		ORDER BY created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`

	rows, err := r.q(ctx).Query(ctx, query, StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("claim pending outbox entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(
			&e.ID, &e.TenantID, &e.EventType, &e.RoutingKey, &e.Envelope, &e.Status,
			&e.RetryCount, &e.MaxRetries, &e.LastError,
			&e.ScheduledAt, &e.CreatedAt, &e.PublishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return entries, nil
}

// MarkPublished transitions PENDING -> PUBLISHED.
func (r *PostgresRepository) MarkPublished(ctx context.Context, id string) error {
	query := `
		UPDATE outbox
		SET status = $1, published_at = now()
		WHERE id = $2
	`
	tag, err := r.q(ctx).Exec(ctx, query, StatusPublished, id)
	if err != nil {
		return fmt.Errorf("mark outbox entry published: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// MarkFailed increments the retry count; below the cap the entry stays
// PENDING with scheduled_at = now + 2^retry seconds, at the cap it becomes
// terminal FAILED.
func (r *PostgresRepository) MarkFailed(ctx context.Context, id string, cause string) error {
	query := `
		UPDATE outbox
		SET retry_count = retry_count + 1,
		    last_error  = $2,
		    status      = CASE WHEN retry_count + 1 >= max_retries THEN $3 ELSE $4 END,
		    scheduled_at = now() + make_interval(secs => power(2, retry_count + 1))
		WHERE id = $1
	`
	tag, err := r.q(ctx).Exec(ctx, query, id, cause, StatusFailed, StatusPending)
	if err != nil {
		return fmt.Errorf("mark outbox entry failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Requeue resets the retry budget and schedules the entry immediately.
func (r *PostgresRepository) Requeue(ctx context.Context, id string) error {
	query := `
		UPDATE outbox
		SET status = $1, retry_count = 0, last_error = NULL, scheduled_at = now()
		WHERE id = $2
	`
	tag, err := r.q(ctx).Exec(ctx, query, StatusPending, id)
	if err != nil {
		return fmt.Errorf("requeue outbox entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// GC deletes PUBLISHED rows older than the cutoff.
func (r *PostgresRepository) GC(ctx context.Context, publishedBefore time.Time) (int64, error) {
	query := `DELETE FROM outbox WHERE status = $1 AND published_at < $2`
	tag, err := r.q(ctx).Exec(ctx, query, StatusPublished, publishedBefore)
	if err != nil {
		return 0, fmt.Errorf("gc outbox: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Stats counts entries per status.
func (r *PostgresRepository) Stats(ctx context.Context) (*Stats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = $1),
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $3)
		FROM outbox
	`
	s := &Stats{}
	err := r.q(ctx).QueryRow(ctx, query, StatusPending, StatusPublished, StatusFailed).
		Scan(&s.Pending, &s.Published, &s.Failed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &Stats{}, nil
		}
		return nil, fmt.Errorf("outbox stats: %w", err)
	}
	return s, nil
}

var _ Repository = (*PostgresRepository)(nil)
