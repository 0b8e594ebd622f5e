package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/mmynk/splitsession/internal/auth"
	"github.com/mmynk/splitsession/internal/calculator"
	"github.com/mmynk/splitsession/internal/lifecycle"
	"github.com/mmynk/splitsession/internal/metrics"
	"github.com/mmynk/splitsession/internal/middleware"
	"github.com/mmynk/splitsession/internal/models"
	"github.com/mmynk/splitsession/internal/payment"
	"github.com/mmynk/splitsession/internal/receipt"
	"github.com/mmynk/splitsession/internal/storage"
)

const maxIDAttempts = 5

// Options configures session limits and the payment payee.
type Options struct {
	DefaultExpiry time.Duration
	MaxExpiry     time.Duration
	Payment       payment.Config
}

// SessionService implements the Connect SessionService.
//
// Every read-modify-write of a session runs under one mutex, so two requests
// in this process never interleave on the same record.
type SessionService struct {
	mu        sync.Mutex
	store     storage.Store
	jwt       *auth.JWTManager
	analyzer  receipt.Analyzer
	metrics   *metrics.Metrics
	scheduler *lifecycle.Scheduler
	opts      Options
	now       func() time.Time
	newID     func() (string, error)
}

// NewSessionService creates a SessionService. analyzer may be nil, which disables
// AnalyzeReceipt; m may be nil, which records metrics nowhere.
func NewSessionService(store storage.Store, jwtManager *auth.JWTManager, analyzer receipt.Analyzer, m *metrics.Metrics, opts Options) *SessionService {
	if opts.DefaultExpiry <= 0 {
		opts.DefaultExpiry = 30 * time.Minute
	}
	if opts.MaxExpiry <= 0 {
		opts.MaxExpiry = 24 * time.Hour
	}
	if m == nil {
		m = metrics.Nop()
	}

	s := &SessionService{
		store:    store,
		jwt:      jwtManager,
		analyzer: analyzer,
		metrics:  m,
		opts:     opts,
		now:      time.Now,
		newID:    calculator.NewSessionID,
	}
	s.scheduler = lifecycle.NewScheduler(s.expire)
	return s
}

// RestoreTimers locks sessions that expired while the server was down and re-arms
// lock timers for the rest. It returns the number of timers armed.
func (s *SessionService) RestoreTimers(ctx context.Context) (int, error) {
	now := s.now()

	var (
		open, expired []*models.Session
		err           error
	)
	if lister, ok := s.store.(storage.ExpiryLister); ok {
		expired, err = lister.ListExpiredOpen(ctx, now)
		if err != nil {
			return 0, fmt.Errorf("failed to list expired sessions: %w", err)
		}
		for _, session := range expired {
			// The store compares whole seconds; lock only what has really passed.
			if !lifecycle.Expired(session, now) {
				continue
			}
			if err := s.lockExpired(ctx, session.ID); err != nil {
				return 0, err
			}
		}
		open, err = lister.ListOpenSessions(ctx)
	} else {
		open, err = s.store.ListSessions(ctx)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	n := 0
	for _, session := range open {
		if session.Locked {
			continue
		}
		if lifecycle.Expired(session, now) {
			if err := s.lockExpired(ctx, session.ID); err != nil {
				return n, err
			}
			continue
		}
		s.scheduler.Schedule(session.ID, session.ExpiresAt)
		n++
	}
	s.metrics.PendingLocks.Set(float64(s.scheduler.Pending()))
	return n, nil
}

// Close cancels pending lock timers.
func (s *SessionService) Close() {
	s.scheduler.Stop()
}

// expire is the scheduler callback for a session whose expiry passed.
func (s *SessionService) expire(sessionID string) {
	if err := s.lockExpired(context.Background(), sessionID); err != nil {
		slog.Error("failed to lock expired session", "session_id", sessionID, "error", err)
	}
	s.metrics.PendingLocks.Set(float64(s.scheduler.Pending()))
}

// lockExpired persists the expiry lock. Locking an already locked session is a no-op.
func (s *SessionService) lockExpired(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load expired session: %w", err)
	}
	if !lifecycle.Lock(session) {
		return nil
	}
	if err := s.store.PutSession(ctx, session); err != nil {
		return fmt.Errorf("failed to lock expired session: %w", err)
	}
	s.metrics.SessionsLocked.WithLabelValues("expiry").Inc()
	slog.Info("Session locked", "session_id", sessionID, "reason", "expiry")
	return nil
}

// load fetches a session and persists the lock if its expiry has passed but the
// timer has not run yet. Callers must hold s.mu.
func (s *SessionService) load(ctx context.Context, sessionID string) (*models.Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: session id is required", errInvalidArgument)
	}
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !session.Locked && lifecycle.Expired(session, s.now()) {
		lifecycle.Lock(session)
		if err := s.store.PutSession(ctx, session); err != nil {
			return nil, fmt.Errorf("failed to lock expired session: %w", err)
		}
		if s.scheduler.Cancel(sessionID) {
			s.metrics.PendingLocks.Set(float64(s.scheduler.Pending()))
		}
		s.metrics.SessionsLocked.WithLabelValues("expiry").Inc()
		slog.Info("Session locked", "session_id", sessionID, "reason", "expiry")
	}
	return session, nil
}

func (s *SessionService) view(session *models.Session) SessionView {
	now := s.now()
	return SessionView{
		Session:      session,
		State:        lifecycle.StateOf(session, now),
		Remaining:    lifecycle.Remaining(session, now),
		AllSubmitted: calculator.AllSubmitted(session.Participants),
	}
}

func (s *SessionService) requireOrganizer(ctx context.Context, sessionID string) error {
	return auth.Authorize(middleware.GetClaims(ctx), sessionID)
}

func findParticipant(session *models.Session, participantID string) (*models.Participant, error) {
	p := session.FindParticipant(participantID)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", errParticipantNotFound, participantID)
	}
	return p, nil
}

// prepareBill fills in missing item IDs, restores derived amounts and validates.
func prepareBill(bill models.Bill) (models.Bill, error) {
	bill = bill.Clone()
	if bill.Currency == "" {
		bill.Currency = calculator.DefaultCurrency
	}
	for i := range bill.Items {
		if bill.Items[i].ID == "" {
			bill.Items[i].ID = uuid.NewString()
		}
	}
	calculator.Recalculate(&bill)
	if err := calculator.ValidateBill(bill); err != nil {
		return models.Bill{}, err
	}
	return bill, nil
}

func (s *SessionService) expiry(minutes int) (time.Duration, error) {
	if minutes == 0 {
		return s.opts.DefaultExpiry, nil
	}
	d := time.Duration(minutes) * time.Minute
	if minutes < 1 || d > s.opts.MaxExpiry {
		return 0, fmt.Errorf("%w: expiry must be between 1 and %d minutes", errInvalidArgument, int(s.opts.MaxExpiry/time.Minute))
	}
	return d, nil
}

// allocateID draws session IDs until one is unused.
func (s *SessionService) allocateID(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= maxIDAttempts; attempt++ {
		id, err := s.newID()
		if err != nil {
			return "", err
		}
		_, err = s.store.GetSession(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check session id: %w", err)
		}
		slog.Debug("Session id collision", "session_id", id, "attempt", attempt)
	}
	return "", fmt.Errorf("failed to allocate a session id after %d attempts", maxIDAttempts)
}

// CreateSession validates the bill and participants, persists a new OPEN session,
// arms its lock timer and returns an organizer token.
func (s *SessionService) CreateSession(ctx context.Context, req *connect.Request[CreateSessionRequest]) (*connect.Response[CreateSessionResponse], error) {
	msg := req.Msg
	organizer := strings.TrimSpace(msg.Organizer)
	if organizer == "" {
		return nil, toConnectError(fmt.Errorf("%w: organizer name is required", errInvalidArgument))
	}
	if len(msg.Participants) == 0 {
		return nil, toConnectError(fmt.Errorf("%w: at least one participant is required", errInvalidArgument))
	}

	bill, err := prepareBill(msg.Bill)
	if err != nil {
		return nil, toConnectError(err)
	}
	ttl, err := s.expiry(msg.ExpiryMinutes)
	if err != nil {
		return nil, toConnectError(err)
	}

	participants := make([]models.Participant, 0, len(msg.Participants))
	seen := make(map[string]bool, len(msg.Participants))
	for i, in := range msg.Participants {
		name, email := strings.TrimSpace(in.Name), strings.TrimSpace(in.Email)
		if name == "" {
			return nil, toConnectError(fmt.Errorf("%w: participant %d has no name", errInvalidArgument, i+1))
		}
		key := name + "\x00" + email
		if seen[key] {
			return nil, toConnectError(fmt.Errorf("%w: duplicate participant %q", errInvalidArgument, name))
		}
		seen[key] = true
		participants = append(participants, models.Participant{
			ID:    uuid.NewString(),
			Name:  name,
			Email: email,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.allocateID(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}

	now := s.now().UTC()
	session := &models.Session{
		ID:           id,
		Bill:         bill,
		Organizer:    organizer,
		Participants: participants,
		Created:      now,
		ExpiresAt:    now.Add(ttl),
	}

	token, err := s.jwt.Generate(id, organizer)
	if err != nil {
		return nil, toConnectError(err)
	}
	if err := s.store.PutSession(ctx, session); err != nil {
		slog.Error("Failed to save session", "error", err)
		return nil, toConnectError(fmt.Errorf("failed to save session: %w", err))
	}

	s.scheduler.Schedule(id, session.ExpiresAt)
	s.metrics.PendingLocks.Set(float64(s.scheduler.Pending()))
	s.metrics.SessionsCreated.Inc()

	slog.Info("Session created",
		"session_id", id,
		"participants", len(participants),
		"items", len(bill.Items),
		"total", bill.Charges.Total,
		"expires_at", session.ExpiresAt,
	)

	return connect.NewResponse(&CreateSessionResponse{
		Session:        s.view(session),
		OrganizerToken: token,
		SharePath:      "/session/" + id,
	}), nil
}

// GetSession returns a session with its effective state.
func (s *SessionService) GetSession(ctx context.Context, req *connect.Request[GetSessionRequest]) (*connect.Response[GetSessionResponse], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.load(ctx, req.Msg.SessionID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GetSessionResponse{Session: s.view(session)}), nil
}

// JoinSession identifies a participant by name and email. An empty email only
// matches a participant registered without one.
func (s *SessionService) JoinSession(ctx context.Context, req *connect.Request[JoinSessionRequest]) (*connect.Response[JoinSessionResponse], error) {
	name, email := strings.TrimSpace(req.Msg.Name), strings.TrimSpace(req.Msg.Email)
	if name == "" {
		return nil, toConnectError(fmt.Errorf("%w: name is required", errInvalidArgument))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.load(ctx, req.Msg.SessionID)
	if err != nil {
		return nil, toConnectError(err)
	}

	for _, p := range session.Participants {
		if p.Name == name && p.Email == email {
			slog.Info("Participant joined", "session_id", session.ID, "participant_id", p.ID, "submitted", p.Submitted)
			return connect.NewResponse(&JoinSessionResponse{
				Participant:      p,
				AlreadySubmitted: p.Submitted,
				Session:          s.view(session),
			}), nil
		}
	}
	return nil, toConnectError(fmt.Errorf("%w: %q is not in the participant list", errParticipantNotFound, name))
}

// AdjustSelection changes one item's claimed quantity by ±1.
func (s *SessionService) AdjustSelection(ctx context.Context, req *connect.Request[AdjustSelectionRequest]) (*connect.Response[AdjustSelectionResponse], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.load(ctx, req.Msg.SessionID)
	if err != nil {
		return nil, toConnectError(err)
	}
	if err := lifecycle.CheckEditable(session, s.now()); err != nil {
		return nil, toConnectError(err)
	}
	p, err := findParticipant(session, req.Msg.ParticipantID)
	if err != nil {
		return nil, toConnectError(err)
	}
	if p.Submitted {
		return nil, toConnectError(fmt.Errorf("%w: %s", lifecycle.ErrAlreadySubmitted, p.Name))
	}

	selections, err := calculator.AdjustSelection(session.Bill, p.Selections, req.Msg.ItemID, req.Msg.Delta)
	if err != nil {
		return nil, toConnectError(err)
	}
	p.Selections = selections

	if err := s.store.PutSession(ctx, session); err != nil {
		return nil, toConnectError(fmt.Errorf("failed to save selection: %w", err))
	}

	slog.Debug("Selection adjusted",
		"session_id", session.ID,
		"participant_id", p.ID,
		"item_id", req.Msg.ItemID,
		"quantity", calculator.SelectedQuantity(selections, req.Msg.ItemID),
	)
	return connect.NewResponse(&AdjustSelectionResponse{Participant: *p}), nil
}

// SubmitSelections finalizes a participant's selections. Submitting twice is a no-op.
func (s *SessionService) SubmitSelections(ctx context.Context, req *connect.Request[SubmitSelectionsRequest]) (*connect.Response[SubmitSelectionsResponse], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.load(ctx, req.Msg.SessionID)
	if err != nil {
		return nil, toConnectError(err)
	}
	p, err := findParticipant(session, req.Msg.ParticipantID)
	if err != nil {
		return nil, toConnectError(err)
	}

	if !p.Submitted {
		if err := lifecycle.CheckEditable(session, s.now()); err != nil {
			return nil, toConnectError(err)
		}
		lifecycle.Submit(p)
		if err := s.store.PutSession(ctx, session); err != nil {
			return nil, toConnectError(fmt.Errorf("failed to save submission: %w", err))
		}
		slog.Info("Selections submitted", "session_id", session.ID, "participant_id", p.ID)
	}

	return connect.NewResponse(&SubmitSelectionsResponse{
		Participant:  *p,
		AllSubmitted: calculator.AllSubmitted(session.Participants),
	}), nil
}

// EditBill replaces the bill while the session is OPEN. Selections that refer to
// removed items are dropped and quantities are clamped to the new item counts.
func (s *SessionService) EditBill(ctx context.Context, req *connect.Request[EditBillRequest]) (*connect.Response[EditBillResponse], error) {
	if err := s.requireOrganizer(ctx, req.Msg.SessionID); err != nil {
		return nil, toConnectError(err)
	}
	bill, err := prepareBill(req.Msg.Bill)
	if err != nil {
		return nil, toConnectError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.load(ctx, req.Msg.SessionID)
	if err != nil {
		return nil, toConnectError(err)
	}
	if err := lifecycle.CheckEditable(session, s.now()); err != nil {
		return nil, toConnectError(err)
	}

	changelog, err := calculator.DiffBills(session.Bill, bill)
	if err != nil {
		return nil, toConnectError(err)
	}
	changes := make([]BillChange, 0, len(changelog))
	for _, c := range changelog {
		changes = append(changes, BillChange{
			Type: c.Type,
			Path: strings.Join(c.Path, "."),
			From: c.From,
			To:   c.To,
		})
	}

	session.Bill = bill
	for i := range session.Participants {
		p := &session.Participants[i]
		p.Selections = calculator.PruneSelections(bill, p.Selections)
	}

	if err := s.store.PutSession(ctx, session); err != nil {
		return nil, toConnectError(fmt.Errorf("failed to save bill: %w", err))
	}

	slog.Info("Bill edited", "session_id", session.ID, "changes", len(changes), "total", bill.Charges.Total)
	return connect.NewResponse(&EditBillResponse{Session: s.view(session), Changes: changes}), nil
}

// LockSession closes the session to further changes. Locking twice is a no-op.
func (s *SessionService) LockSession(ctx context.Context, req *connect.Request[LockSessionRequest]) (*connect.Response[LockSessionResponse], error) {
	if err := s.requireOrganizer(ctx, req.Msg.SessionID); err != nil {
		return nil, toConnectError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.load(ctx, req.Msg.SessionID)
	if err != nil {
		return nil, toConnectError(err)
	}

	changed := lifecycle.Lock(session)
	if changed {
		if err := s.store.PutSession(ctx, session); err != nil {
			return nil, toConnectError(fmt.Errorf("failed to lock session: %w", err))
		}
		s.scheduler.Cancel(session.ID)
		s.metrics.PendingLocks.Set(float64(s.scheduler.Pending()))
		s.metrics.SessionsLocked.WithLabelValues("organizer").Inc()
		slog.Info("Session locked", "session_id", session.ID, "reason", "organizer")
	}

	return connect.NewResponse(&LockSessionResponse{Session: s.view(session), Changed: changed}), nil
}

// GetSummary computes every participant's share. It never changes selections or
// payment state.
func (s *SessionService) GetSummary(ctx context.Context, req *connect.Request[GetSummaryRequest]) (*connect.Response[GetSummaryResponse], error) {
	s.mu.Lock()
	session, err := s.load(ctx, req.Msg.SessionID)
	s.mu.Unlock()
	if err != nil {
		return nil, toConnectError(err)
	}

	summary := calculator.SummarizeSession(session)
	reconciled := calculator.Reconciled(summary)
	s.metrics.Allocations.Inc()
	if reconciled {
		s.metrics.Reconciliations.Inc()
		slog.Debug("Rounding drift assigned to largest share", "session_id", session.ID)
	}

	formatted := make(map[string]string, len(summary.Participants))
	for _, p := range summary.Participants {
		formatted[p.ID] = calculator.FormatCurrency(p.Total, session.Bill.Currency)
	}

	return connect.NewResponse(&GetSummaryResponse{
		Summary:    summary,
		Collection: calculator.CollectionStatus(summary),
		Formatted:  formatted,
		Reconciled: reconciled,
	}), nil
}

// SetPaid records whether a participant has paid. It is allowed after locking.
func (s *SessionService) SetPaid(ctx context.Context, req *connect.Request[SetPaidRequest]) (*connect.Response[SetPaidResponse], error) {
	if err := s.requireOrganizer(ctx, req.Msg.SessionID); err != nil {
		return nil, toConnectError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.load(ctx, req.Msg.SessionID)
	if err != nil {
		return nil, toConnectError(err)
	}
	p, err := findParticipant(session, req.Msg.ParticipantID)
	if err != nil {
		return nil, toConnectError(err)
	}

	if p.Paid != req.Msg.Paid {
		p.Paid = req.Msg.Paid
		if err := s.store.PutSession(ctx, session); err != nil {
			return nil, toConnectError(fmt.Errorf("failed to save payment status: %w", err))
		}
		slog.Info("Payment status changed", "session_id", session.ID, "participant_id", p.ID, "paid", p.Paid)
	}
	return connect.NewResponse(&SetPaidResponse{Participant: *p}), nil
}

// PaymentLink returns a payment deep link once every participant has submitted.
func (s *SessionService) PaymentLink(ctx context.Context, req *connect.Request[PaymentLinkRequest]) (*connect.Response[PaymentLinkResponse], error) {
	s.mu.Lock()
	session, err := s.load(ctx, req.Msg.SessionID)
	s.mu.Unlock()
	if err != nil {
		return nil, toConnectError(err)
	}
	if !calculator.AllSubmitted(session.Participants) {
		return nil, toConnectError(fmt.Errorf("%w: %s", errNotAllSubmitted, session.ID))
	}

	amount := 0.0
	if req.Msg.ParticipantID != "" {
		if _, err := findParticipant(session, req.Msg.ParticipantID); err != nil {
			return nil, toConnectError(err)
		}
		summary := calculator.SummarizeSession(session)
		for _, p := range summary.Participants {
			if p.ID == req.Msg.ParticipantID {
				amount = calculator.RoundCents(p.Total)
			}
		}
	}

	link, err := payment.Link(s.opts.Payment, session.Bill.Currency, amount)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&PaymentLinkResponse{Link: link, Amount: amount}), nil
}

// AnalyzeReceipt extracts a bill from an uploaded image. The result is returned
// for review and is not stored.
func (s *SessionService) AnalyzeReceipt(ctx context.Context, req *connect.Request[AnalyzeReceiptRequest]) (*connect.Response[AnalyzeReceiptResponse], error) {
	if s.analyzer == nil {
		return nil, toConnectError(errReceiptDisabled)
	}

	bill, err := s.analyzer.Analyze(ctx, req.Msg.Image, req.Msg.MimeType)
	if err != nil {
		outcome := "error"
		switch {
		case errors.Is(err, receipt.ErrUnsupportedImage):
			outcome = "unsupported"
		case errors.Is(err, receipt.ErrMalformedReceipt):
			outcome = "malformed"
		case errors.Is(err, receipt.ErrUnavailable):
			outcome = "unavailable"
		}
		s.metrics.ReceiptAnalyses.WithLabelValues(outcome).Inc()
		slog.Warn("Receipt analysis failed", "outcome", outcome, "error", err)
		return nil, toConnectError(err)
	}

	s.metrics.ReceiptAnalyses.WithLabelValues("ok").Inc()
	slog.Info("Receipt analyzed", "merchant", bill.Merchant, "items", len(bill.Items), "total", bill.Charges.Total)
	return connect.NewResponse(&AnalyzeReceiptResponse{Bill: *bill}), nil
}
