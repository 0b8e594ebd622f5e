package service

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// SessionServiceName is the fully-qualified name of the session service.
const SessionServiceName = "splitsession.v1.SessionService"

// Procedure paths, one per RPC.
const (
	CreateSessionProcedure    = "/" + SessionServiceName + "/CreateSession"
	GetSessionProcedure       = "/" + SessionServiceName + "/GetSession"
	JoinSessionProcedure      = "/" + SessionServiceName + "/JoinSession"
	AdjustSelectionProcedure  = "/" + SessionServiceName + "/AdjustSelection"
	SubmitSelectionsProcedure = "/" + SessionServiceName + "/SubmitSelections"
	EditBillProcedure         = "/" + SessionServiceName + "/EditBill"
	LockSessionProcedure      = "/" + SessionServiceName + "/LockSession"
	GetSummaryProcedure       = "/" + SessionServiceName + "/GetSummary"
	SetPaidProcedure          = "/" + SessionServiceName + "/SetPaid"
	PaymentLinkProcedure      = "/" + SessionServiceName + "/PaymentLink"
	AnalyzeReceiptProcedure   = "/" + SessionServiceName + "/AnalyzeReceipt"
)

// maxReceiptBytes bounds request bodies; receipt photos are the largest messages.
const maxReceiptBytes = 10 << 20

// NewSessionServiceHandler builds an HTTP handler serving every procedure of svc.
// It returns the path prefix to mount the handler on.
func NewSessionServiceHandler(svc *SessionService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{
		WithJSONCodec(),
		connect.WithReadMaxBytes(maxReceiptBytes),
	}, opts...)

	mux := http.NewServeMux()
	mux.Handle(CreateSessionProcedure, connect.NewUnaryHandler(CreateSessionProcedure, svc.CreateSession, opts...))
	mux.Handle(GetSessionProcedure, connect.NewUnaryHandler(GetSessionProcedure, svc.GetSession, opts...))
	mux.Handle(JoinSessionProcedure, connect.NewUnaryHandler(JoinSessionProcedure, svc.JoinSession, opts...))
	mux.Handle(AdjustSelectionProcedure, connect.NewUnaryHandler(AdjustSelectionProcedure, svc.AdjustSelection, opts...))
	mux.Handle(SubmitSelectionsProcedure, connect.NewUnaryHandler(SubmitSelectionsProcedure, svc.SubmitSelections, opts...))
	mux.Handle(EditBillProcedure, connect.NewUnaryHandler(EditBillProcedure, svc.EditBill, opts...))
	mux.Handle(LockSessionProcedure, connect.NewUnaryHandler(LockSessionProcedure, svc.LockSession, opts...))
	mux.Handle(GetSummaryProcedure, connect.NewUnaryHandler(GetSummaryProcedure, svc.GetSummary, opts...))
	mux.Handle(SetPaidProcedure, connect.NewUnaryHandler(SetPaidProcedure, svc.SetPaid, opts...))
	mux.Handle(PaymentLinkProcedure, connect.NewUnaryHandler(PaymentLinkProcedure, svc.PaymentLink, opts...))
	mux.Handle(AnalyzeReceiptProcedure, connect.NewUnaryHandler(AnalyzeReceiptProcedure, svc.AnalyzeReceipt, opts...))

	return "/" + SessionServiceName + "/", mux
}

// SessionServiceClient calls a remote session service.
type SessionServiceClient struct {
	createSession    *connect.Client[CreateSessionRequest, CreateSessionResponse]
	getSession       *connect.Client[GetSessionRequest, GetSessionResponse]
	joinSession      *connect.Client[JoinSessionRequest, JoinSessionResponse]
	adjustSelection  *connect.Client[AdjustSelectionRequest, AdjustSelectionResponse]
	submitSelections *connect.Client[SubmitSelectionsRequest, SubmitSelectionsResponse]
	editBill         *connect.Client[EditBillRequest, EditBillResponse]
	lockSession      *connect.Client[LockSessionRequest, LockSessionResponse]
	getSummary       *connect.Client[GetSummaryRequest, GetSummaryResponse]
	setPaid          *connect.Client[SetPaidRequest, SetPaidResponse]
	paymentLink      *connect.Client[PaymentLinkRequest, PaymentLinkResponse]
	analyzeReceipt   *connect.Client[AnalyzeReceiptRequest, AnalyzeReceiptResponse]
}

// NewSessionServiceClient constructs a client for the service at baseURL.
func NewSessionServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *SessionServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{WithJSONCodec()}, opts...)
	return &SessionServiceClient{
		createSession:    connect.NewClient[CreateSessionRequest, CreateSessionResponse](httpClient, baseURL+CreateSessionProcedure, opts...),
		getSession:       connect.NewClient[GetSessionRequest, GetSessionResponse](httpClient, baseURL+GetSessionProcedure, opts...),
		joinSession:      connect.NewClient[JoinSessionRequest, JoinSessionResponse](httpClient, baseURL+JoinSessionProcedure, opts...),
		adjustSelection:  connect.NewClient[AdjustSelectionRequest, AdjustSelectionResponse](httpClient, baseURL+AdjustSelectionProcedure, opts...),
		submitSelections: connect.NewClient[SubmitSelectionsRequest, SubmitSelectionsResponse](httpClient, baseURL+SubmitSelectionsProcedure, opts...),
		editBill:         connect.NewClient[EditBillRequest, EditBillResponse](httpClient, baseURL+EditBillProcedure, opts...),
		lockSession:      connect.NewClient[LockSessionRequest, LockSessionResponse](httpClient, baseURL+LockSessionProcedure, opts...),
		getSummary:       connect.NewClient[GetSummaryRequest, GetSummaryResponse](httpClient, baseURL+GetSummaryProcedure, opts...),
		setPaid:          connect.NewClient[SetPaidRequest, SetPaidResponse](httpClient, baseURL+SetPaidProcedure, opts...),
		paymentLink:      connect.NewClient[PaymentLinkRequest, PaymentLinkResponse](httpClient, baseURL+PaymentLinkProcedure, opts...),
		analyzeReceipt:   connect.NewClient[AnalyzeReceiptRequest, AnalyzeReceiptResponse](httpClient, baseURL+AnalyzeReceiptProcedure, opts...),
	}
}

func (c *SessionServiceClient) CreateSession(ctx context.Context, req *connect.Request[CreateSessionRequest]) (*connect.Response[CreateSessionResponse], error) {
	return c.createSession.CallUnary(ctx, req)
}

func (c *SessionServiceClient) GetSession(ctx context.Context, req *connect.Request[GetSessionRequest]) (*connect.Response[GetSessionResponse], error) {
	return c.getSession.CallUnary(ctx, req)
}

func (c *SessionServiceClient) JoinSession(ctx context.Context, req *connect.Request[JoinSessionRequest]) (*connect.Response[JoinSessionResponse], error) {
	return c.joinSession.CallUnary(ctx, req)
}

func (c *SessionServiceClient) AdjustSelection(ctx context.Context, req *connect.Request[AdjustSelectionRequest]) (*connect.Response[AdjustSelectionResponse], error) {
	return c.adjustSelection.CallUnary(ctx, req)
}

func (c *SessionServiceClient) SubmitSelections(ctx context.Context, req *connect.Request[SubmitSelectionsRequest]) (*connect.Response[SubmitSelectionsResponse], error) {
	return c.submitSelections.CallUnary(ctx, req)
}

func (c *SessionServiceClient) EditBill(ctx context.Context, req *connect.Request[EditBillRequest]) (*connect.Response[EditBillResponse], error) {
	return c.editBill.CallUnary(ctx, req)
}

func (c *SessionServiceClient) LockSession(ctx context.Context, req *connect.Request[LockSessionRequest]) (*connect.Response[LockSessionResponse], error) {
	return c.lockSession.CallUnary(ctx, req)
}

func (c *SessionServiceClient) GetSummary(ctx context.Context, req *connect.Request[GetSummaryRequest]) (*connect.Response[GetSummaryResponse], error) {
	return c.getSummary.CallUnary(ctx, req)
}

func (c *SessionServiceClient) SetPaid(ctx context.Context, req *connect.Request[SetPaidRequest]) (*connect.Response[SetPaidResponse], error) {
	return c.setPaid.CallUnary(ctx, req)
}

func (c *SessionServiceClient) PaymentLink(ctx context.Context, req *connect.Request[PaymentLinkRequest]) (*connect.Response[PaymentLinkResponse], error) {
	return c.paymentLink.CallUnary(ctx, req)
}

func (c *SessionServiceClient) AnalyzeReceipt(ctx context.Context, req *connect.Request[AnalyzeReceiptRequest]) (*connect.Response[AnalyzeReceiptResponse], error) {
	return c.analyzeReceipt.CallUnary(ctx, req)
}
