// Package postgres persists greeting-end decisions to PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/beepwise/internal/audit"
)

var _ audit.Store = (*Store)(nil)

// Store is a PostgreSQL-backed [audit.Store]. It is safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("audit postgres: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("audit postgres: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit postgres: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool}, nil
}

// Ping checks the connection. It lets the store serve as a health check.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Record implements [audit.Store].
func (s *Store) Record(ctx context.Context, e audit.Entry) (audit.Entry, error) {
	e, err := audit.Prepare(e, time.Now())
	if err != nil {
		return audit.Entry{}, fmt.Errorf("audit postgres: record: %w", err)
	}

	const q = `
		INSERT INTO greeting_decisions
		    (id, call_id, source, mode, outcome, reason, start_at, decided_at,
		     silence, gated, transcript, correlation_id, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = s.pool.Exec(ctx, q,
		e.ID, e.CallID, e.Source, e.Mode, string(e.Outcome), e.Reason,
		e.StartAt, e.DecidedAt, e.Silence, e.Gated, e.Transcript,
		e.CorrelationID, e.RecordedAt,
	)
	if err != nil {
		return audit.Entry{}, fmt.Errorf("audit postgres: record: %w", err)
	}
	return e, nil
}

const selectColumns = `id, call_id, source, mode, outcome, reason, start_at,
	decided_at, silence, gated, transcript, correlation_id, recorded_at`

// Get implements [audit.Store].
func (s *Store) Get(ctx context.Context, id string) (audit.Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM greeting_decisions WHERE id = $1`, id)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return audit.Entry{}, audit.ErrNotFound
	}
	if err != nil {
		return audit.Entry{}, fmt.Errorf("audit postgres: get %q: %w", id, err)
	}
	return e, nil
}

// List implements [audit.Store].
func (s *Store) List(ctx context.Context, opts audit.ListOptions) ([]audit.Entry, error) {
	var (
		where []string
		args  []any
	)
	if opts.CallID != "" {
		args = append(args, opts.CallID)
		where = append(where, "call_id = $"+strconv.Itoa(len(args)))
	}
	if opts.Outcome != "" {
		args = append(args, string(opts.Outcome))
		where = append(where, "outcome = $"+strconv.Itoa(len(args)))
	}
	args = append(args, opts.EffectiveLimit())

	var b strings.Builder
	b.WriteString(`SELECT ` + selectColumns + ` FROM greeting_decisions`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY recorded_at DESC LIMIT $" + strconv.Itoa(len(args)))

	rows, err := s.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("audit postgres: list: %w", err)
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("audit postgres: list scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit postgres: list: %w", err)
	}
	return out, nil
}

func scanEntry(row pgx.Row) (audit.Entry, error) {
	var (
		e       audit.Entry
		outcome string
	)
	err := row.Scan(
		&e.ID, &e.CallID, &e.Source, &e.Mode, &outcome, &e.Reason,
		&e.StartAt, &e.DecidedAt, &e.Silence, &e.Gated, &e.Transcript,
		&e.CorrelationID, &e.RecordedAt,
	)
	e.Outcome = audit.Outcome(outcome)
	return e, err
}
