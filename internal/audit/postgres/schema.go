package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddl = `
CREATE TABLE IF NOT EXISTS greeting_decisions (
    id              TEXT        PRIMARY KEY,
    call_id         TEXT        NOT NULL,
    source          TEXT        NOT NULL DEFAULT '',
    mode            TEXT        NOT NULL,
    outcome         TEXT        NOT NULL,
    reason          TEXT        NOT NULL DEFAULT '',
    start_at        DOUBLE PRECISION NOT NULL,
    decided_at      DOUBLE PRECISION NOT NULL,
    silence         DOUBLE PRECISION NOT NULL DEFAULT 0,
    gated           BOOLEAN     NOT NULL DEFAULT FALSE,
    transcript      TEXT        NOT NULL DEFAULT '',
    correlation_id  TEXT        NOT NULL DEFAULT '',
    recorded_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_greeting_decisions_call
    ON greeting_decisions (call_id, recorded_at DESC);

CREATE INDEX IF NOT EXISTS idx_greeting_decisions_recorded
    ON greeting_decisions (recorded_at DESC);
`

// Migrate creates the audit table and its indexes if they do not exist.
// It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("audit postgres: migrate: %w", err)
	}
	return nil
}
