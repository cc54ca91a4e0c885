// Package sqlstore implements the storage interfaces on a SQL database.
// PostgreSQL (lib/pq) and SQLite (modernc.org/sqlite) are supported; queries
// are written with '?' placeholders and rebound for the active driver.
package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aisaas/backend/internal/app/domain/creation"
	"github.com/aisaas/backend/internal/app/storage"
)

const creationColumns = `id, user_id, prompt, content, type, publish, created_at, updated_at`

// Store implements storage.CreationStore backed by a SQL database.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ storage.CreationStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// DB exposes the underlying handle for health checks and migrations.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) CreateCreation(ctx context.Context, c creation.Creation) (creation.Creation, error) {
	if err := c.Validate(); err != nil {
		return creation.Creation{}, err
	}

	now := s.now()
	c.CreatedAt = now
	c.UpdatedAt = now

	query := s.db.Rebind(`
		INSERT INTO creations (user_id, prompt, content, type, publish, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)
	if err := s.db.QueryRowxContext(ctx, query,
		c.UserID, c.Prompt, c.Content, string(c.Type), c.Publish, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID); err != nil {
		return creation.Creation{}, fmt.Errorf("insert creation: %w", err)
	}
	return c, nil
}

func (s *Store) ListUserCreations(ctx context.Context, userID string) ([]creation.Creation, error) {
	query := s.db.Rebind(`
		SELECT ` + creationColumns + `
		FROM creations
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
	`)
	return s.list(ctx, query, userID)
}

func (s *Store) ListPublishedCreations(ctx context.Context) ([]creation.Creation, error) {
	query := s.db.Rebind(`
		SELECT ` + creationColumns + `
		FROM creations
		WHERE publish = ?
		ORDER BY created_at DESC, id DESC
	`)
	return s.list(ctx, query, true)
}

func (s *Store) list(ctx context.Context, query string, args ...interface{}) ([]creation.Creation, error) {
	out := make([]creation.Creation, 0)
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list creations: %w", err)
	}
	return out, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
