// Package postgres provides a PostgreSQL-backed [history.Store].
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//	_ = store.Append(ctx, sessionID, utterance)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/jarvis/pkg/history"
	"github.com/MrWong99/jarvis/pkg/types"
)

// Compile-time interface check.
var _ history.Store = (*Store)(nil)

// Store keeps utterances in a single utterances table. Append order is the
// BIGSERIAL id, so entries written within the same clock tick keep their
// order. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn, verifies the connection, and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("history store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Ping checks that the database is reachable. Used by readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

// Append implements [history.Store].
func (s *Store) Append(ctx context.Context, sessionID string, u types.Utterance) error {
	const q = `
		INSERT INTO utterances (session_id, turn, speaker, text, spoken_at)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := s.pool.Exec(ctx, q, sessionID, int64(u.Turn), u.Speaker.String(), u.Text, u.At); err != nil {
		return fmt.Errorf("history store: append: %w", err)
	}
	return nil
}

// List implements [history.Store].
func (s *Store) List(ctx context.Context, sessionID string, limit int) ([]types.Utterance, error) {
	q := `
		SELECT turn, speaker, text, spoken_at
		FROM   utterances
		WHERE  session_id = $1
		ORDER  BY id`
	args := []any{sessionID}
	if limit > 0 {
		// Newest limit rows, re-sorted oldest first.
		q = `
		SELECT turn, speaker, text, spoken_at FROM (
			SELECT id, turn, speaker, text, spoken_at
			FROM   utterances
			WHERE  session_id = $1
			ORDER  BY id DESC
			LIMIT  $2
		) recent
		ORDER BY id`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history store: list: %w", err)
	}
	return collectUtterances(rows)
}

// collectUtterances scans pgx rows into utterances.
func collectUtterances(rows pgx.Rows) ([]types.Utterance, error) {
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.Utterance, error) {
		var (
			u       types.Utterance
			turn    int64
			speaker string
		)
		if err := row.Scan(&turn, &speaker, &u.Text, &u.At); err != nil {
			return types.Utterance{}, err
		}
		u.Turn = uint64(turn)
		u.Speaker, _ = types.ParseSpeaker(speaker)
		return u, nil
	})
	if err != nil {
		return nil, fmt.Errorf("history store: scan rows: %w", err)
	}
	if out == nil {
		out = []types.Utterance{}
	}
	return out, nil
}
