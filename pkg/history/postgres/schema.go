package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlUtterances = `
CREATE TABLE IF NOT EXISTS utterances (
    id          BIGSERIAL    PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    turn        BIGINT       NOT NULL DEFAULT 0,
    speaker     TEXT         NOT NULL,
    text        TEXT         NOT NULL,
    spoken_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_utterances_session_id
    ON utterances (session_id, id);
`

// Migrate creates the utterances table and its index if they do not exist.
// It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlUtterances); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
