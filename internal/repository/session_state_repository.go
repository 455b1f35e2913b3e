package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rpattn/colmap/internal/session"
)

// querier is the subset of pgxpool.Pool used by the repository.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type sessionStateRepository struct {
	db querier
}

// NewSessionStateRepository wires a session store backed by the session_state table.
func NewSessionStateRepository(db querier) SessionStateRepository {
	return &sessionStateRepository{db: db}
}

func (r *sessionStateRepository) Get(ctx context.Context, key string) (string, error) {
	if r.db == nil {
		return "", fmt.Errorf("session state repository not initialized")
	}

	var payload string
	err := r.db.QueryRow(ctx, `SELECT payload::text FROM session_state WHERE key = $1`, key).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", session.ErrNotFound
		}
		return "", fmt.Errorf("failed to load session state: %w", err)
	}
	return payload, nil
}

// Set replaces the whole payload in one statement.
func (r *sessionStateRepository) Set(ctx context.Context, key, value string) error {
	if r.db == nil {
		return fmt.Errorf("session state repository not initialized")
	}

	_, err := r.db.Exec(
		ctx,
		`INSERT INTO session_state (key, payload, updated_at)
		 VALUES ($1, $2::jsonb, now())
		 ON CONFLICT (key) DO UPDATE
		 SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
		key,
		value,
	)
	if err != nil {
		return fmt.Errorf("failed to save session state: %w", err)
	}
	return nil
}

func (r *sessionStateRepository) Delete(ctx context.Context, key string) error {
	if r.db == nil {
		return fmt.Errorf("session state repository not initialized")
	}

	if _, err := r.db.Exec(ctx, `DELETE FROM session_state WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete session state: %w", err)
	}
	return nil
}
