// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mmynk/splitsession/internal/models"
)

// ErrNotFound is returned when a session ID does not exist.
var ErrNotFound = errors.New("session not found")

// Store defines the interface for session storage operations.
// A session is stored as one record: every write replaces the whole session, so
// the service never sees a partially updated one.
type Store interface {
	// GetSession retrieves a session by its ID.
	// Returns an error wrapping ErrNotFound if it does not exist.
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)

	// PutSession creates or atomically replaces a session.
	PutSession(ctx context.Context, session *models.Session) error

	// ListSessions returns all sessions, oldest first.
	ListSessions(ctx context.Context) ([]*models.Session, error)

	// Close releases any resources held by the store.
	Close() error
}

// ExpiryLister is implemented by stores that can find open sessions by expiry.
// On start the service locks the ones that expired while it was down and re-arms
// timers for the rest.
type ExpiryLister interface {
	ListOpenSessions(ctx context.Context) ([]*models.Session, error)
	// ListExpiredOpen returns unlocked sessions whose expiry is at or before now.
	ListExpiredOpen(ctx context.Context, now time.Time) ([]*models.Session, error)
}
