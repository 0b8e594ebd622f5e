package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/splitsession/internal/auth"
	"github.com/mmynk/splitsession/internal/lifecycle"
	"github.com/mmynk/splitsession/internal/metrics"
	"github.com/mmynk/splitsession/internal/middleware"
	"github.com/mmynk/splitsession/internal/models"
	"github.com/mmynk/splitsession/internal/payment"
	"github.com/mmynk/splitsession/internal/receipt"
	"github.com/mmynk/splitsession/internal/storage"
	"github.com/mmynk/splitsession/internal/storage/memory"
)

// testClock is safe to advance while handlers read it.
type testClock struct {
	offset atomic.Int64
}

func (c *testClock) Now() time.Time {
	return time.Now().Add(time.Duration(c.offset.Load()))
}

func (c *testClock) Advance(d time.Duration) {
	c.offset.Add(int64(d))
}

type fakeAnalyzer struct {
	mu   sync.Mutex
	bill *models.Bill
	err  error
}

func (f *fakeAnalyzer) set(bill *models.Bill, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bill, f.err = bill, err
}

func (f *fakeAnalyzer) Analyze(context.Context, []byte, string) (*models.Bill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bill, f.err
}

type testEnv struct {
	client   *SessionServiceClient
	svc      *SessionService
	store    *memory.Store
	clock    *testClock
	analyzer *fakeAnalyzer
	metrics  *metrics.Metrics
	jwt      *auth.JWTManager
}

// setupTestServer creates a test server backed by an in-memory store.
func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	store := memory.New()
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	analyzer := &fakeAnalyzer{}
	m := metrics.New(prometheus.NewRegistry())
	clock := &testClock{}

	svc := NewSessionService(store, jwtManager, analyzer, m, Options{
		DefaultExpiry: 30 * time.Minute,
		MaxExpiry:     24 * time.Hour,
		Payment:       payment.Config{Handle: "upiaddress@okhdfcbank", Name: "JohnDoe"},
	})
	svc.now = clock.Now

	interceptors := connect.WithInterceptors(
		middleware.OrganizerAuth(jwtManager),
		middleware.LoggingInterceptor(),
		middleware.MetricsInterceptor(m),
	)
	path, handler := NewSessionServiceHandler(svc, interceptors)

	mux := http.NewServeMux()
	mux.Handle(path, handler)
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		server.Close()
		svc.Close()
		store.Close()
	})

	return &testEnv{
		client:   NewSessionServiceClient(http.DefaultClient, server.URL),
		svc:      svc,
		store:    store,
		clock:    clock,
		analyzer: analyzer,
		metrics:  m,
		jwt:      jwtManager,
	}
}

func pizzaBill() models.Bill {
	return models.Bill{
		Merchant: "Pizza Palace",
		Date:     "2024-03-01",
		Currency: "INR",
		Items: []models.BillItem{
			{ID: "item1", Name: "Margherita Pizza", Quantity: 2, UnitPrice: 100},
		},
		Charges: models.BillCharges{Tax: 20, ServiceCharge: 10},
	}
}

func withToken[T any](msg *T, token string) *connect.Request[T] {
	req := connect.NewRequest(msg)
	if token != "" {
		req.Header().Set("Authorization", "Bearer "+token)
	}
	return req
}

func createSession(t *testing.T, env *testEnv) *CreateSessionResponse {
	t.Helper()
	resp, err := env.client.CreateSession(context.Background(), connect.NewRequest(&CreateSessionRequest{
		Bill:      pizzaBill(),
		Organizer: "Alice",
		Participants: []ParticipantInput{
			{Name: "Alice", Email: "alice@example.com"},
			{Name: "Bob"},
		},
	}))
	require.NoError(t, err)
	return resp.Msg
}

func assertCode(t *testing.T, err error, code connect.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, connect.CodeOf(err), "error: %v", err)
}

func TestCreateSession(t *testing.T) {
	env := setupTestServer(t)
	created := createSession(t, env)

	session := created.Session.Session
	assert.Regexp(t, `^[0-9a-z]{6}$`, session.ID)
	assert.Equal(t, "/session/"+session.ID, created.SharePath)
	assert.NotEmpty(t, created.OrganizerToken)
	assert.Equal(t, lifecycle.StateOpen, created.Session.State)
	assert.Equal(t, "30:00", created.Session.Remaining)
	assert.False(t, created.Session.AllSubmitted)

	// Derived amounts are recomputed server-side.
	assert.InDelta(t, 200, session.Bill.Charges.SubTotal, 1e-9)
	assert.InDelta(t, 230, session.Bill.Charges.Total, 1e-9)
	assert.InDelta(t, 200, session.Bill.Items[0].TotalPrice, 1e-9)

	require.Len(t, session.Participants, 2)
	assert.NotEmpty(t, session.Participants[0].ID)
	assert.NotEqual(t, session.Participants[0].ID, session.Participants[1].ID)
	assert.WithinDuration(t, session.Created.Add(30*time.Minute), session.ExpiresAt, time.Second)

	claims, err := env.jwt.Validate(created.OrganizerToken)
	require.NoError(t, err)
	assert.Equal(t, session.ID, claims.SessionID)

	stored, err := env.store.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", stored.Organizer)

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.SessionsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.PendingLocks))
}

func TestCreateSession_Validation(t *testing.T) {
	env := setupTestServer(t)

	negative := pizzaBill()
	negative.Items[0].UnitPrice = -1

	tests := []struct {
		name   string
		mutate func(r *CreateSessionRequest)
	}{
		{"missing organizer", func(r *CreateSessionRequest) { r.Organizer = " " }},
		{"no participants", func(r *CreateSessionRequest) { r.Participants = nil }},
		{"blank participant name", func(r *CreateSessionRequest) { r.Participants[1].Name = "" }},
		{"duplicate participant", func(r *CreateSessionRequest) { r.Participants[1] = r.Participants[0] }},
		{"expiry too long", func(r *CreateSessionRequest) { r.ExpiryMinutes = 1441 }},
		{"negative expiry", func(r *CreateSessionRequest) { r.ExpiryMinutes = -5 }},
		{"invalid bill", func(r *CreateSessionRequest) { r.Bill = negative }},
		{"missing merchant", func(r *CreateSessionRequest) { r.Bill.Merchant = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &CreateSessionRequest{
				Bill:         pizzaBill(),
				Organizer:    "Alice",
				Participants: []ParticipantInput{{Name: "Alice"}, {Name: "Bob"}},
			}
			tt.mutate(req)
			_, err := env.client.CreateSession(context.Background(), connect.NewRequest(req))
			assertCode(t, err, connect.CodeInvalidArgument)
		})
	}

	all, err := env.store.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all, "rejected requests must not persist anything")
}

func TestCreateSession_ExpiryBounds(t *testing.T) {
	env := setupTestServer(t)

	for _, minutes := range []int{1, 1440} {
		resp, err := env.client.CreateSession(context.Background(), connect.NewRequest(&CreateSessionRequest{
			Bill:          pizzaBill(),
			Organizer:     "Alice",
			Participants:  []ParticipantInput{{Name: "Alice"}},
			ExpiryMinutes: minutes,
		}))
		require.NoError(t, err)
		s := resp.Msg.Session.Session
		assert.WithinDuration(t, s.Created.Add(time.Duration(minutes)*time.Minute), s.ExpiresAt, time.Second)
	}
}

func TestCreateSession_RetriesOnIDCollision(t *testing.T) {
	env := setupTestServer(t)
	// The third create never finds a free id.
	var (
		mu   sync.Mutex
		next int
	)
	ids := []string{"aaaaaa", "aaaaaa", "bbbbbb"}
	env.svc.newID = func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		id := "aaaaaa"
		if next < len(ids) {
			id = ids[next]
		}
		next++
		return id, nil
	}

	first := createSession(t, env)
	second := createSession(t, env)
	assert.Equal(t, "aaaaaa", first.Session.Session.ID)
	assert.Equal(t, "bbbbbb", second.Session.Session.ID)

	_, err := env.client.CreateSession(context.Background(), connect.NewRequest(&CreateSessionRequest{
		Bill: pizzaBill(), Organizer: "Alice", Participants: []ParticipantInput{{Name: "Alice"}},
	}))
	assertCode(t, err, connect.CodeInternal)
}

func TestGetSession(t *testing.T) {
	env := setupTestServer(t)
	created := createSession(t, env)
	ctx := context.Background()

	resp, err := env.client.GetSession(ctx, connect.NewRequest(&GetSessionRequest{SessionID: created.Session.Session.ID}))
	require.NoError(t, err)
	assert.Equal(t, created.Session.Session.ID, resp.Msg.Session.Session.ID)

	_, err = env.client.GetSession(ctx, connect.NewRequest(&GetSessionRequest{SessionID: "nope00"}))
	assertCode(t, err, connect.CodeNotFound)

	_, err = env.client.GetSession(ctx, connect.NewRequest(&GetSessionRequest{}))
	assertCode(t, err, connect.CodeInvalidArgument)
}

func TestGetSession_LocksExpiredSession(t *testing.T) {
	env := setupTestServer(t)
	created := createSession(t, env)
	id := created.Session.Session.ID

	env.clock.Advance(31 * time.Minute)

	resp, err := env.client.GetSession(context.Background(), connect.NewRequest(&GetSessionRequest{SessionID: id}))
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateLocked, resp.Msg.Session.State)
	assert.Equal(t, "00:00", resp.Msg.Session.Remaining)
	assert.True(t, resp.Msg.Session.Session.Locked)

	stored, err := env.store.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, stored.Locked, "lazy lock must be persisted")
	assert.Zero(t, env.svc.scheduler.Pending())
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.SessionsLocked.WithLabelValues("expiry")))
}

func TestJoinSession(t *testing.T) {
	env := setupTestServer(t)
	created := createSession(t, env)
	id := created.Session.Session.ID
	ctx := context.Background()

	tests := []struct {
		name     string
		req      JoinSessionRequest
		wantName string
		wantCode connect.Code
	}{
		{name: "name and email", req: JoinSessionRequest{Name: "Alice", Email: "alice@example.com"}, wantName: "Alice"},
		{name: "trims input", req: JoinSessionRequest{Name: " Bob "}, wantName: "Bob"},
		{name: "missing email does not match", req: JoinSessionRequest{Name: "Alice"}, wantCode: connect.CodeNotFound},
		{name: "email given for participant without one", req: JoinSessionRequest{Name: "Bob", Email: "bob@example.com"}, wantCode: connect.CodeNotFound},
		{name: "unknown name", req: JoinSessionRequest{Name: "Charlie"}, wantCode: connect.CodeNotFound},
		{name: "blank name", req: JoinSessionRequest{Name: "  "}, wantCode: connect.CodeInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.SessionID = id
			resp, err := env.client.JoinSession(ctx, connect.NewRequest(&tt.req))
			if tt.wantCode != 0 {
				assertCode(t, err, tt.wantCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, resp.Msg.Participant.Name)
			assert.False(t, resp.Msg.AlreadySubmitted)
		})
	}
}

// TestSessionFlow covers two people sharing a pizza from creation to payment.
func TestSessionFlow(t *testing.T) {
	env := setupTestServer(t)
	created := createSession(t, env)
	id := created.Session.Session.ID
	alice, bob := created.Session.Session.Participants[0], created.Session.Session.Participants[1]
	ctx := context.Background()

	for _, p := range []models.Participant{alice, bob} {
		resp, err := env.client.AdjustSelection(ctx, connect.NewRequest(&AdjustSelectionRequest{
			SessionID: id, ParticipantID: p.ID, ItemID: "item1", Delta: 1,
		}))
		require.NoError(t, err)
		assert.Equal(t, []models.ParticipantSelection{{ItemID: "item1", Quantity: 1}}, resp.Msg.Participant.Selections)
	}

	// Payment link waits for every submission.
	_, err := env.client.PaymentLink(ctx, connect.NewRequest(&PaymentLinkRequest{SessionID: id}))
	assertCode(t, err, connect.CodeFailedPrecondition)

	submit, err := env.client.SubmitSelections(ctx, connect.NewRequest(&SubmitSelectionsRequest{SessionID: id, ParticipantID: alice.ID}))
	require.NoError(t, err)
	assert.True(t, submit.Msg.Participant.Submitted)
	assert.False(t, submit.Msg.AllSubmitted)

	submit, err = env.client.SubmitSelections(ctx, connect.NewRequest(&SubmitSelectionsRequest{SessionID: id, ParticipantID: bob.ID}))
	require.NoError(t, err)
	assert.True(t, submit.Msg.AllSubmitted)

	// Submitting again is a no-op.
	_, err = env.client.SubmitSelections(ctx, connect.NewRequest(&SubmitSelectionsRequest{SessionID: id, ParticipantID: bob.ID}))
	require.NoError(t, err)

	join, err := env.client.JoinSession(ctx, connect.NewRequest(&JoinSessionRequest{SessionID: id, Name: "Bob"}))
	require.NoError(t, err)
	assert.True(t, join.Msg.AlreadySubmitted)

	summary, err := env.client.GetSummary(ctx, connect.NewRequest(&GetSummaryRequest{SessionID: id}))
	require.NoError(t, err)
	require.Len(t, summary.Msg.Summary.Participants, 2)
	for _, p := range summary.Msg.Summary.Participants {
		assert.InDelta(t, 100, p.SubTotal, 0.01)
		assert.InDelta(t, 10, p.Tax, 0.01)
		assert.InDelta(t, 5, p.ServiceCharge, 0.01)
		assert.InDelta(t, 115, p.Total, 0.01)
		assert.Equal(t, "₹115.00", summary.Msg.Formatted[p.ID])
	}
	assert.False(t, summary.Msg.Reconciled)
	assert.Equal(t, 230.0, summary.Msg.Collection.TotalDue)
	assert.True(t, summary.Msg.Collection.AllSubmitted)

	link, err := env.client.PaymentLink(ctx, connect.NewRequest(&PaymentLinkRequest{SessionID: id}))
	require.NoError(t, err)
	assert.Equal(t, "upi://pay?pa=upiaddress@okhdfcbank&pn=JohnDoe&cu=INR", link.Msg.Link)

	link, err = env.client.PaymentLink(ctx, connect.NewRequest(&PaymentLinkRequest{SessionID: id, ParticipantID: bob.ID}))
	require.NoError(t, err)
	assert.Equal(t, 115.0, link.Msg.Amount)
	assert.Equal(t, "upi://pay?pa=upiaddress@okhdfcbank&pn=JohnDoe&cu=INR&am=115.00", link.Msg.Link)

	paid, err := env.client.SetPaid(ctx, withToken(&SetPaidRequest{SessionID: id, ParticipantID: bob.ID, Paid: true}, created.OrganizerToken))
	require.NoError(t, err)
	assert.True(t, paid.Msg.Participant.Paid)

	summary, err = env.client.GetSummary(ctx, connect.NewRequest(&GetSummaryRequest{SessionID: id}))
	require.NoError(t, err)
	assert.Equal(t, 115.0, summary.Msg.Collection.TotalPaid)
	assert.Equal(t, 115.0, summary.Msg.Collection.TotalOutstanding)
	// Payment flags never change the allocation.
	for _, p := range summary.Msg.Summary.Participants {
		assert.InDelta(t, 115, p.Total, 0.01)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(env.metrics.Allocations))
}

func TestAdjustSelection_Errors(t *testing.T) {
	env := setupTestServer(t)
	created := createSession(t, env)
	id := created.Session.Session.ID
	alice := created.Session.Session.Participants[0]
	ctx := context.Background()

	adjust := func(participantID, itemID string, delta int) (*connect.Response[AdjustSelectionResponse], error) {
		return env.client.AdjustSelection(ctx, connect.NewRequest(&AdjustSelectionRequest{
			SessionID: id, ParticipantID: participantID, ItemID: itemID, Delta: delta,
		}))
	}

	_, err := adjust(alice.ID, "missing", 1)
	assertCode(t, err, connect.CodeInvalidArgument)

	_, err = adjust(alice.ID, "item1", 2)
	assertCode(t, err, connect.CodeInvalidArgument)

	_, err = adjust("stranger", "item1", 1)
	assertCode(t, err, connect.CodeNotFound)

	// Clamped at the item's quantity.
	for i := 0; i < 3; i++ {
		_, err = adjust(alice.ID, "item1", 1)
		require.NoError(t, err)
	}
	resp, err := adjust(alice.ID, "item1", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Msg.Participant.Selections[0].Quantity)

	// Back to zero removes the selection.
	_, err = adjust(alice.ID, "item1", -1)
	require.NoError(t, err)
	resp, err = adjust(alice.ID, "item1", -1)
	require.NoError(t, err)
	assert.Empty(t, resp.Msg.Participant.Selections)

	_, err = env.client.SubmitSelections(ctx, connect.NewRequest(&SubmitSelectionsRequest{SessionID: id, ParticipantID: alice.ID}))
	require.NoError(t, err)
	_, err = adjust(alice.ID, "item1", 1)
	assertCode(t, err, connect.CodeFailedPrecondition)
}

func TestLockSession(t *testing.T) {
	env := setupTestServer(t)
	created := createSession(t, env)
	other := createSession(t, env)
	id := created.Session.Session.ID
	bob := created.Session.Session.Participants[1]
	ctx := context.Background()

	_, err := env.client.LockSession(ctx, connect.NewRequest(&LockSessionRequest{SessionID: id}))
	assertCode(t, err, connect.CodeUnauthenticated)

	_, err = env.client.LockSession(ctx, withToken(&LockSessionRequest{SessionID: id}, other.OrganizerToken))
	assertCode(t, err, connect.CodePermissionDenied)

	_, err = env.client.LockSession(ctx, withToken(&LockSessionRequest{SessionID: id}, "garbage"))
	assertCode(t, err, connect.CodeUnauthenticated)

	resp, err := env.client.LockSession(ctx, withToken(&LockSessionRequest{SessionID: id}, created.OrganizerToken))
	require.NoError(t, err)
	assert.True(t, resp.Msg.Changed)
	assert.Equal(t, lifecycle.StateLocked, resp.Msg.Session.State)

	resp, err = env.client.LockSession(ctx, withToken(&LockSessionRequest{SessionID: id}, created.OrganizerToken))
	require.NoError(t, err)
	assert.False(t, resp.Msg.Changed)

	_, err = env.client.AdjustSelection(ctx, connect.NewRequest(&AdjustSelectionRequest{
		SessionID: id, ParticipantID: bob.ID, ItemID: "item1", Delta: 1,
	}))
	assertCode(t, err, connect.CodeFailedPrecondition)

	_, err = env.client.SubmitSelections(ctx, connect.NewRequest(&SubmitSelectionsRequest{SessionID: id, ParticipantID: bob.ID}))
	assertCode(t, err, connect.CodeFailedPrecondition)

	// Summaries stay available after locking.
	_, err = env.client.GetSummary(ctx, connect.NewRequest(&GetSummaryRequest{SessionID: id}))
	require.NoError(t, err)

	assert.Equal(t, 1, env.svc.scheduler.Pending(), "only the other session's timer remains")
}

func TestEditBill(t *testing.T) {
	env := setupTestServer(t)
	created := createSession(t, env)
	id := created.Session.Session.ID
	alice := created.Session.Session.Participants[0]
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := env.client.AdjustSelection(ctx, connect.NewRequest(&AdjustSelectionRequest{
			SessionID: id, ParticipantID: alice.ID, ItemID: "item1", Delta: 1,
		}))
		require.NoError(t, err)
	}

	edited := created.Session.Session.Bill.Clone()
	edited.Items[0].Quantity = 1
	edited.Items = append(edited.Items, models.BillItem{Name: "Coke", Quantity: 2, UnitPrice: 50})

	_, err := env.client.EditBill(ctx, connect.NewRequest(&EditBillRequest{SessionID: id, Bill: edited}))
	assertCode(t, err, connect.CodeUnauthenticated)

	resp, err := env.client.EditBill(ctx, withToken(&EditBillRequest{SessionID: id, Bill: edited}, created.OrganizerToken))
	require.NoError(t, err)

	bill := resp.Msg.Session.Session.Bill
	require.Len(t, bill.Items, 2)
	assert.NotEmpty(t, bill.Items[1].ID)
	assert.InDelta(t, 200, bill.Charges.SubTotal, 1e-9)
	assert.InDelta(t, 230, bill.Charges.Total, 1e-9)
	assert.NotEmpty(t, resp.Msg.Changes)

	// Alice's claim of two pizzas is clamped to the one left on the bill.
	p := resp.Msg.Session.Session.FindParticipant(alice.ID)
	require.NotNil(t, p)
	assert.Equal(t, []models.ParticipantSelection{{ItemID: "item1", Quantity: 1}}, p.Selections)

	invalid := bill.Clone()
	invalid.Items[0].Quantity = 0
	_, err = env.client.EditBill(ctx, withToken(&EditBillRequest{SessionID: id, Bill: invalid}, created.OrganizerToken))
	assertCode(t, err, connect.CodeInvalidArgument)

	_, err = env.client.LockSession(ctx, withToken(&LockSessionRequest{SessionID: id}, created.OrganizerToken))
	require.NoError(t, err)
	_, err = env.client.EditBill(ctx, withToken(&EditBillRequest{SessionID: id, Bill: bill}, created.OrganizerToken))
	assertCode(t, err, connect.CodeFailedPrecondition)
}

func TestSetPaid_Errors(t *testing.T) {
	env := setupTestServer(t)
	created := createSession(t, env)
	id := created.Session.Session.ID
	ctx := context.Background()

	_, err := env.client.SetPaid(ctx, connect.NewRequest(&SetPaidRequest{SessionID: id, ParticipantID: "x", Paid: true}))
	assertCode(t, err, connect.CodeUnauthenticated)

	_, err = env.client.SetPaid(ctx, withToken(&SetPaidRequest{SessionID: id, ParticipantID: "x", Paid: true}, created.OrganizerToken))
	assertCode(t, err, connect.CodeNotFound)
}

func TestAnalyzeReceipt(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	bill := pizzaBill()
	req := &AnalyzeReceiptRequest{Image: []byte("fake"), MimeType: "image/png"}

	env.analyzer.set(&bill, nil)
	resp, err := env.client.AnalyzeReceipt(ctx, connect.NewRequest(req))
	require.NoError(t, err)
	assert.Equal(t, "Pizza Palace", resp.Msg.Bill.Merchant)

	tests := []struct {
		err     error
		code    connect.Code
		outcome string
	}{
		{receipt.ErrMalformedReceipt, connect.CodeInvalidArgument, "malformed"},
		{receipt.ErrUnsupportedImage, connect.CodeInvalidArgument, "unsupported"},
		{receipt.ErrUnavailable, connect.CodeUnavailable, "unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.outcome, func(t *testing.T) {
			env.analyzer.set(nil, tt.err)
			_, err := env.client.AnalyzeReceipt(ctx, connect.NewRequest(req))
			assertCode(t, err, tt.code)
			assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.ReceiptAnalyses.WithLabelValues(tt.outcome)))
		})
	}

	all, err := env.store.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "analysis never persists")
}

func TestAnalyzeReceipt_NotConfigured(t *testing.T) {
	env := setupTestServer(t)
	env.svc.analyzer = nil

	_, err := env.client.AnalyzeReceipt(context.Background(), connect.NewRequest(&AnalyzeReceiptRequest{Image: []byte("x")}))
	assertCode(t, err, connect.CodeUnavailable)
}

func seedRestoreSessions(t *testing.T, store storage.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, store.PutSession(ctx, &models.Session{ID: "past01", Bill: pizzaBill(), Created: now, ExpiresAt: now.Add(-time.Minute)}))
	require.NoError(t, store.PutSession(ctx, &models.Session{ID: "futr01", Bill: pizzaBill(), Created: now, ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, store.PutSession(ctx, &models.Session{ID: "done01", Bill: pizzaBill(), Created: now, ExpiresAt: now.Add(-time.Hour), Locked: true}))
}

func TestExpireAndRestoreTimers(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	seedRestoreSessions(t, env.store)

	n, err := env.svc.RestoreTimers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the future session needs a timer")

	// Sessions that expired during downtime are locked before RestoreTimers returns.
	past, err := env.store.GetSession(ctx, "past01")
	require.NoError(t, err)
	assert.True(t, past.Locked)

	future, err := env.store.GetSession(ctx, "futr01")
	require.NoError(t, err)
	assert.False(t, future.Locked)
	assert.Equal(t, 1, env.svc.scheduler.Pending())
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.PendingLocks))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.SessionsLocked.WithLabelValues("expiry")))

	// Expiring a session twice only locks it once.
	env.svc.expire("futr01")
	env.svc.expire("futr01")
	env.svc.expire("missing")
	assert.Equal(t, 2.0, testutil.ToFloat64(env.metrics.SessionsLocked.WithLabelValues("expiry")))
}

// plainStore hides the optional listing methods of the wrapped store.
type plainStore struct {
	storage.Store
}

func TestRestoreTimers_PlainStore(t *testing.T) {
	store := memory.New()
	seedRestoreSessions(t, store)

	svc := NewSessionService(plainStore{store}, auth.NewJWTManager("test-secret", time.Hour), nil, nil, Options{})
	t.Cleanup(svc.Close)

	n, err := svc.RestoreTimers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	past, err := store.GetSession(context.Background(), "past01")
	require.NoError(t, err)
	assert.True(t, past.Locked)
	assert.Equal(t, 1, svc.scheduler.Pending())
}

func TestGetSummary_ExpiredSessionKeepsSelections(t *testing.T) {
	env := setupTestServer(t)
	created := createSession(t, env)
	id := created.Session.Session.ID
	alice := created.Session.Session.Participants[0]
	ctx := context.Background()

	_, err := env.client.AdjustSelection(ctx, connect.NewRequest(&AdjustSelectionRequest{
		SessionID: id, ParticipantID: alice.ID, ItemID: "item1", Delta: 1,
	}))
	require.NoError(t, err)
	_, err = env.client.SetPaid(ctx, withToken(&SetPaidRequest{SessionID: id, ParticipantID: alice.ID, Paid: true}, created.OrganizerToken))
	require.NoError(t, err)

	env.clock.Advance(time.Hour)

	summary, err := env.client.GetSummary(ctx, connect.NewRequest(&GetSummaryRequest{SessionID: id}))
	require.NoError(t, err)
	assert.True(t, summary.Msg.Summary.Session.Locked)

	// The only write is the expiry lock.
	stored, err := env.store.GetSession(ctx, id)
	require.NoError(t, err)
	assert.True(t, stored.Locked)
	p := stored.FindParticipant(alice.ID)
	require.NotNil(t, p)
	assert.Equal(t, []models.ParticipantSelection{{ItemID: "item1", Quantity: 1}}, p.Selections)
	assert.True(t, p.Paid)
	assert.False(t, p.Submitted)
}
