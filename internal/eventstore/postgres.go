package eventstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/palletline-systems/palletline-stack/internal/database"
)

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed event store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) q(ctx context.Context) database.Querier {
	if tx, ok := database.TxFrom(ctx); ok {
		return tx
	}
	return s.pool
}

const recordColumns = `event_id, event_type, tenant_id, COALESCE(warehouse_id, ''),
       correlation_id, COALESCE(causation_id, ''), actor_type, actor_id,
       envelope, occurred_at, stored_at`

// Append inserts the record, silently skipping event IDs already stored.
func (s *PostgresStore) Append(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO event_store (event_id, event_type, tenant_id, warehouse_id,
		                         correlation_id, causation_id, actor_type, actor_id,
		                         envelope, occurred_at, stored_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), $7, $8, $9, $10, $11)
		ON CONFLICT (event_id) DO NOTHING
	`
	_, err := s.q(ctx).Exec(ctx, query,
		rec.EventID, rec.EventType, rec.TenantID, rec.WarehouseID,
		rec.CorrelationID, rec.CausationID, rec.ActorType, rec.ActorID,
		rec.Envelope, rec.OccurredAt, rec.StoredAt,
	)
	if err != nil {
		return fmt.Errorf("append event %s: %w", rec.EventID, err)
	}
	return nil
}

// Get returns a single event by ID.
func (s *PostgresStore) Get(ctx context.Context, eventID string) (*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM event_store WHERE event_id = $1`

	rec, err := scanRecord(s.q(ctx).QueryRow(ctx, query, eventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, eventID)
		}
		return nil, fmt.Errorf("get event %s: %w", eventID, err)
	}
	return rec, nil
}

// List returns matching events, newest first.
func (s *PostgresStore) List(ctx context.Context, f Filter) ([]*Record, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, cond+"$"+strconv.Itoa(len(args)))
	}
	if f.TenantID != "" {
		add("tenant_id = ", f.TenantID)
	}
	if f.EventType != "" {
		add("event_type = ", f.EventType)
	}
	if f.CorrelationID != "" {
		add("correlation_id = ", f.CorrelationID)
	}
	if !f.Since.IsZero() {
		add("occurred_at >= ", f.Since)
	}
	if !f.Until.IsZero() {
		add("occurred_at < ", f.Until)
	}

	query := `SELECT ` + recordColumns + ` FROM event_store`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY occurred_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := s.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return records, nil
}

// Chain walks causation links from the given event to its root using a
// recursive query, returning the root first.
func (s *PostgresStore) Chain(ctx context.Context, eventID string) ([]*Record, error) {
	query := `
		WITH RECURSIVE chain AS (
			SELECT event_id, event_type, tenant_id, warehouse_id, correlation_id,
			       causation_id, actor_type, actor_id, envelope, occurred_at, stored_at,
			       0 AS depth
			FROM event_store WHERE event_id = $1
			UNION ALL
			SELECT e.event_id, e.event_type, e.tenant_id, e.warehouse_id, e.correlation_id,
			       e.causation_id, e.actor_type, e.actor_id, e.envelope, e.occurred_at, e.stored_at,
			       c.depth + 1
			FROM event_store e
			JOIN chain c ON e.event_id = c.causation_id
		)
		SELECT event_id, event_type, tenant_id, COALESCE(warehouse_id, ''),
		       correlation_id, COALESCE(causation_id, ''), actor_type, actor_id,
		       envelope, occurred_at, stored_at
		FROM chain ORDER BY depth DESC
	`
	rows, err := s.q(ctx).Query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("walk causation chain for %s: %w", eventID, err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chain event: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, eventID)
	}
	return records, nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	rec := &Record{}
	err := row.Scan(
		&rec.EventID, &rec.EventType, &rec.TenantID, &rec.WarehouseID,
		&rec.CorrelationID, &rec.CausationID, &rec.ActorType, &rec.ActorID,
		&rec.Envelope, &rec.OccurredAt, &rec.StoredAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

var _ Store = (*PostgresStore)(nil)
