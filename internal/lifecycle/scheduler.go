package lifecycle

import (
	"log/slog"
	"sync"
	"time"
)

// LockFunc is called when a session's expiry timer fires.
type LockFunc func(sessionID string)

// scheduled is one armed timer. Its address identifies the arming, so a timer
// that was replaced or cancelled can tell it is stale.
type scheduled struct {
	timer *time.Timer
}

// Scheduler arms one timer per session and calls LockFunc once when it fires.
// Timers never re-arm themselves.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[string]*scheduled
	onLock  LockFunc
	now     func() time.Time
	stopped bool
}

// NewScheduler creates a scheduler that calls onLock for expired sessions.
func NewScheduler(onLock LockFunc) *Scheduler {
	return &Scheduler{
		timers: make(map[string]*scheduled),
		onLock: onLock,
		now:    time.Now,
	}
}

// Schedule arms (or re-arms) the lock timer for a session. An expiry in the past
// fires immediately.
func (s *Scheduler) Schedule(sessionID string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if prev, ok := s.timers[sessionID]; ok {
		prev.timer.Stop()
	}

	// The entry is in the map before the timer exists; fire blocks on s.mu
	// until the timer field is set.
	entry := &scheduled{}
	s.timers[sessionID] = entry
	entry.timer = time.AfterFunc(expiresAt.Sub(s.now()), func() {
		s.fire(sessionID, entry)
	})

	slog.Debug("lock scheduled", "session_id", sessionID, "expires_at", expiresAt)
}

func (s *Scheduler) fire(sessionID string, entry *scheduled) {
	s.mu.Lock()
	if s.stopped || s.timers[sessionID] != entry {
		// cancelled or replaced after the timer started
		s.mu.Unlock()
		return
	}
	delete(s.timers, sessionID)
	s.mu.Unlock()

	slog.Info("session expired", "session_id", sessionID)
	s.onLock(sessionID)
}

// Cancel disarms a session's timer. It reports whether a timer was pending.
func (s *Scheduler) Cancel(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.timers[sessionID]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(s.timers, sessionID)
	return true
}

// Pending returns the number of armed timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every timer. Later calls to Schedule are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, id)
	}
	s.stopped = true
}
