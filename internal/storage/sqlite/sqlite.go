// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/splitsession/internal/models"
	"github.com/mmynk/splitsession/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var (
	_ storage.Store        = (*SQLiteStore)(nil)
	_ storage.ExpiryLister = (*SQLiteStore)(nil)
)

// SQLiteStore implements storage.Store using SQLite.
// Each session is one row holding the JSON document; locked and expires_at are
// copied into columns so open sessions can be found without decoding every row.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens the database at dbPath, creating parent directories, without
// running migrations.
func Open(dbPath string) (*sql.DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	return db, nil
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}

	if err := Migrate(ctx, db, "up"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		"SELECT document FROM sessions WHERE id = ?",
		sessionID,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return decodeSession(doc)
}

// PutSession inserts the session or replaces the stored record in one statement.
func (s *SQLiteStore) PutSession(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		return fmt.Errorf("failed to put session: missing id")
	}
	if session.Created.IsZero() {
		session.Created = time.Now().UTC()
	}

	doc, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, document, locked, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document = excluded.document,
			locked = excluded.locked,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		session.ID, string(doc), session.Locked,
		session.ExpiresAt.Unix(), session.Created.Unix(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to put session: %w", err)
	}
	return nil
}

// ListSessions returns all sessions ordered by creation time.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*models.Session, error) {
	return s.query(ctx, "SELECT document FROM sessions ORDER BY created_at, id")
}

// ListOpenSessions returns sessions that have not been locked, including ones
// whose expiry has passed while the server was down.
func (s *SQLiteStore) ListOpenSessions(ctx context.Context) ([]*models.Session, error) {
	return s.query(ctx, "SELECT document FROM sessions WHERE locked = 0 ORDER BY expires_at, id")
}

// ListExpiredOpen returns unlocked sessions whose expiry is at or before now.
func (s *SQLiteStore) ListExpiredOpen(ctx context.Context, now time.Time) ([]*models.Session, error) {
	return s.query(ctx,
		"SELECT document FROM sessions WHERE locked = 0 AND expires_at <= ? ORDER BY expires_at, id",
		now.Unix(),
	)
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		session, err := decodeSession(doc)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

func decodeSession(doc string) (*models.Session, error) {
	var session models.Session
	if err := json.Unmarshal([]byte(doc), &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}
