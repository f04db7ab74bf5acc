package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// IsCallbackProcessed checks if a gateway callback was already
// reported to the server
func (s *Store) IsCallbackProcessed(ctx context.Context, callbackID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_callbacks WHERE callback_id = $1)", callbackID)
	return exists, err
}

// MarkCallbackProcessed records a gateway callback as reported
func (s *Store) MarkCallbackProcessed(ctx context.Context, callbackID, kind string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_callbacks (callback_id, kind) VALUES ($1, $2) ON CONFLICT (callback_id) DO NOTHING",
		callbackID, kind)
	return err
}
