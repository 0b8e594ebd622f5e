// Package lifecycle holds the session and participant state machines and the
// scheduler that locks sessions when they expire.
//
// A session is OPEN until it is locked, either by its organizer or when its
// expiry passes. Locking is one-way. Participants move from SELECTING to
// SUBMITTED, also one-way.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/mmynk/splitsession/internal/models"
)

// State is the state of a session.
type State string

const (
	StateOpen   State = "OPEN"
	StateLocked State = "LOCKED"
)

// ParticipantState is the state of one participant within a session.
type ParticipantState string

const (
	ParticipantSelecting ParticipantState = "SELECTING"
	ParticipantSubmitted ParticipantState = "SUBMITTED"
)

var (
	ErrSessionLocked    = errors.New("session is locked")
	ErrAlreadySubmitted = errors.New("participant has already submitted")
)

// Expired reports whether the session's expiry has passed.
func Expired(session *models.Session, now time.Time) bool {
	return !now.Before(session.ExpiresAt)
}

// StateOf returns the effective state. An expired session reports LOCKED even if
// the lock has not been persisted yet.
func StateOf(session *models.Session, now time.Time) State {
	if session.Locked || Expired(session, now) {
		return StateLocked
	}
	return StateOpen
}

// Lock moves the session to LOCKED and reports whether anything changed.
func Lock(session *models.Session) bool {
	if session.Locked {
		return false
	}
	session.Locked = true
	return true
}

// CanEdit reports whether selections and the bill may still change.
func CanEdit(session *models.Session, now time.Time) bool {
	return StateOf(session, now) == StateOpen
}

// CheckEditable returns ErrSessionLocked when the session no longer accepts changes.
func CheckEditable(session *models.Session, now time.Time) error {
	if !CanEdit(session, now) {
		return fmt.Errorf("%w: %s", ErrSessionLocked, session.ID)
	}
	return nil
}

// StateOfParticipant returns the participant's sub-state.
func StateOfParticipant(p *models.Participant) ParticipantState {
	if p.Submitted {
		return ParticipantSubmitted
	}
	return ParticipantSelecting
}

// Submit finalizes a participant's selections. It reports whether the state changed;
// submitting twice is a no-op.
func Submit(p *models.Participant) bool {
	if p.Submitted {
		return false
	}
	p.Submitted = true
	return true
}

// Remaining returns the time left before the session locks, formatted MM:SS.
// Minutes are not wrapped into hours. A locked or expired session shows 00:00.
func Remaining(session *models.Session, now time.Time) string {
	if session.Locked {
		return "00:00"
	}
	left := session.ExpiresAt.Sub(now)
	if left <= 0 {
		return "00:00"
	}
	secs := int(left.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
