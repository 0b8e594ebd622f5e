package service

import (
	"github.com/mmynk/splitsession/internal/calculator"
	"github.com/mmynk/splitsession/internal/lifecycle"
	"github.com/mmynk/splitsession/internal/models"
)

// SessionView is a session plus the state derived from the clock.
type SessionView struct {
	Session      *models.Session `json:"session"`
	State        lifecycle.State `json:"state"`
	Remaining    string          `json:"remaining"`
	AllSubmitted bool            `json:"allSubmitted"`
}

type ParticipantInput struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type CreateSessionRequest struct {
	Bill          models.Bill        `json:"bill"`
	Organizer     string             `json:"organizer"`
	Participants  []ParticipantInput `json:"participants"`
	ExpiryMinutes int                `json:"expiryMinutes,omitempty"`
}

type CreateSessionResponse struct {
	Session        SessionView `json:"session"`
	OrganizerToken string      `json:"organizerToken"`
	SharePath      string      `json:"sharePath"`
}

type GetSessionRequest struct {
	SessionID string `json:"sessionId"`
}

type GetSessionResponse struct {
	Session SessionView `json:"session"`
}

type JoinSessionRequest struct {
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
}

type JoinSessionResponse struct {
	Participant      models.Participant `json:"participant"`
	AlreadySubmitted bool               `json:"alreadySubmitted"`
	Session          SessionView        `json:"session"`
}

type AdjustSelectionRequest struct {
	SessionID     string `json:"sessionId"`
	ParticipantID string `json:"participantId"`
	ItemID        string `json:"itemId"`
	Delta         int    `json:"delta"`
}

type AdjustSelectionResponse struct {
	Participant models.Participant `json:"participant"`
}

type SubmitSelectionsRequest struct {
	SessionID     string `json:"sessionId"`
	ParticipantID string `json:"participantId"`
}

type SubmitSelectionsResponse struct {
	Participant  models.Participant `json:"participant"`
	AllSubmitted bool               `json:"allSubmitted"`
}

type EditBillRequest struct {
	SessionID string      `json:"sessionId"`
	Bill      models.Bill `json:"bill"`
}

// BillChange is one field-level difference introduced by an edit.
type BillChange struct {
	Type string `json:"type"`
	Path string `json:"path"`
	From any    `json:"from,omitempty"`
	To   any    `json:"to,omitempty"`
}

type EditBillResponse struct {
	Session SessionView  `json:"session"`
	Changes []BillChange `json:"changes"`
}

type LockSessionRequest struct {
	SessionID string `json:"sessionId"`
}

type LockSessionResponse struct {
	Session SessionView `json:"session"`
	Changed bool        `json:"changed"`
}

type GetSummaryRequest struct {
	SessionID string `json:"sessionId"`
}

type GetSummaryResponse struct {
	Summary    models.SessionSummary `json:"summary"`
	Collection calculator.Collection `json:"collection"`
	// Formatted maps participant ID to the display string of their total.
	Formatted  map[string]string `json:"formatted"`
	Reconciled bool              `json:"reconciled"`
}

type SetPaidRequest struct {
	SessionID     string `json:"sessionId"`
	ParticipantID string `json:"participantId"`
	Paid          bool   `json:"paid"`
}

type SetPaidResponse struct {
	Participant models.Participant `json:"participant"`
}

type PaymentLinkRequest struct {
	SessionID string `json:"sessionId"`
	// ParticipantID, when set, fills in that participant's share as the amount.
	ParticipantID string `json:"participantId,omitempty"`
}

type PaymentLinkResponse struct {
	Link   string  `json:"link"`
	Amount float64 `json:"amount,omitempty"`
}

type AnalyzeReceiptRequest struct {
	Image    []byte `json:"image"`
	MimeType string `json:"mimeType,omitempty"`
}

type AnalyzeReceiptResponse struct {
	Bill models.Bill `json:"bill"`
}

func (r *GetSessionRequest) GetSessionID() string       { return r.SessionID }
func (r *JoinSessionRequest) GetSessionID() string      { return r.SessionID }
func (r *AdjustSelectionRequest) GetSessionID() string  { return r.SessionID }
func (r *SubmitSelectionsRequest) GetSessionID() string { return r.SessionID }
func (r *EditBillRequest) GetSessionID() string         { return r.SessionID }
func (r *LockSessionRequest) GetSessionID() string      { return r.SessionID }
func (r *GetSummaryRequest) GetSessionID() string       { return r.SessionID }
func (r *SetPaidRequest) GetSessionID() string          { return r.SessionID }
func (r *PaymentLinkRequest) GetSessionID() string      { return r.SessionID }

func (r *AdjustSelectionRequest) GetParticipantID() string  { return r.ParticipantID }
func (r *SubmitSelectionsRequest) GetParticipantID() string { return r.ParticipantID }
func (r *SetPaidRequest) GetParticipantID() string          { return r.ParticipantID }
func (r *PaymentLinkRequest) GetParticipantID() string      { return r.ParticipantID }
