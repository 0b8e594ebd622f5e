// Package memory provides an in-process storage.Store for tests and
// single-instance deployments without a database file.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mmynk/splitsession/internal/models"
	"github.com/mmynk/splitsession/internal/storage"
)

var (
	_ storage.Store        = (*Store)(nil)
	_ storage.ExpiryLister = (*Store)(nil)
)

// Store keeps sessions in a map. Reads and writes copy the session so callers
// never share state with the store.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

func New() *Store {
	return &Store{sessions: make(map[string]*models.Session)}
}

func (s *Store) GetSession(_ context.Context, sessionID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, sessionID)
	}
	return session.Clone(), nil
}

func (s *Store) PutSession(_ context.Context, session *models.Session) error {
	if session.ID == "" {
		return fmt.Errorf("failed to put session: missing id")
	}
	if session.Created.IsZero() {
		session.Created = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *Store) ListSessions(_ context.Context) ([]*models.Session, error) {
	return s.list(func(*models.Session) bool { return true }), nil
}

// ListOpenSessions returns sessions that have not been locked.
func (s *Store) ListOpenSessions(_ context.Context) ([]*models.Session, error) {
	return s.list(func(session *models.Session) bool { return !session.Locked }), nil
}

// ListExpiredOpen returns unlocked sessions whose expiry is at or before now.
func (s *Store) ListExpiredOpen(_ context.Context, now time.Time) ([]*models.Session, error) {
	return s.list(func(session *models.Session) bool {
		return !session.Locked && !now.Before(session.ExpiresAt)
	}), nil
}

func (s *Store) list(keep func(*models.Session) bool) []*models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		if keep(session) {
			out = append(out, session.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID < out[j].ID
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out
}

func (s *Store) Close() error {
	return nil
}
