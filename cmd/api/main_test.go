package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dispatchflow/audit"
	"dispatchflow/auth"
	"dispatchflow/cost"
	"dispatchflow/dispatch"
	"dispatchflow/fault"
	"dispatchflow/field"
	"dispatchflow/logger"
	"dispatchflow/quote"
	"dispatchflow/supplier"
)

type stubIdentity struct {
	user       auth.User
	resolveErr error
	registered *auth.User
	loginOut   auth.LoginResult
	loginErr   error
}

func (s *stubIdentity) Register(_ context.Context, _ auth.RegisterRequest) (*auth.User, error) {
	if s.registered == nil {
		return nil, fault.InvalidInput("auth: invalid registration")
	}
	return s.registered, nil
}

func (s *stubIdentity) Login(_ context.Context, _ auth.LoginRequest) (auth.LoginResult, error) {
	return s.loginOut, s.loginErr
}

func (s *stubIdentity) Resolve(_ context.Context, _ string) (auth.User, error) {
	return s.user, s.resolveErr
}

type stubSuppliers struct {
	companies []supplier.Company
	err       error
}

func (s *stubSuppliers) List(_ context.Context, _ int) ([]supplier.Company, error) {
	return s.companies, s.err
}

type stubDispatches struct {
	dispatch   dispatch.Dispatch
	list       []dispatch.Dispatch
	err        error
	lastReject string
}

func (s *stubDispatches) Create(_ context.Context, _ auth.User, _ dispatch.CreateRequest) (dispatch.Dispatch, error) {
	return s.dispatch, s.err
}

func (s *stubDispatches) ApproveQuote(_ context.Context, _ auth.User, _, _ string) (dispatch.Dispatch, error) {
	return s.dispatch, s.err
}

func (s *stubDispatches) Reject(_ context.Context, _ auth.User, _, reason string) (dispatch.Dispatch, error) {
	s.lastReject = reason
	return s.dispatch, s.err
}

func (s *stubDispatches) Get(_ context.Context, _ auth.User, _ string) (dispatch.Dispatch, error) {
	return s.dispatch, s.err
}

func (s *stubDispatches) List(_ context.Context, _ auth.User, _ int) ([]dispatch.Dispatch, error) {
	return s.list, s.err
}

type stubQuotes struct {
	quote quote.Quote
	list  []quote.Quote
	err   error
}

func (s *stubQuotes) Submit(_ context.Context, _ auth.User, _ quote.SubmitRequest) (quote.Quote, error) {
	return s.quote, s.err
}

func (s *stubQuotes) ListByDispatch(_ context.Context, _ auth.User, _ string) ([]quote.Quote, error) {
	return s.list, s.err
}

type stubField struct {
	issued    field.IssuedSession
	event     field.Event
	err       error
	lastToken string
	gpsCount  int
}

func (s *stubField) CreateSession(_ context.Context, _ auth.User, _ field.CreateSessionRequest) (field.IssuedSession, error) {
	return s.issued, s.err
}

func (s *stubField) RecordEvent(_ context.Context, token string, _ field.EventType, _ map[string]any) (field.Event, error) {
	s.lastToken = token
	return s.event, s.err
}

func (s *stubField) IngestGPS(_ context.Context, token string, samples []field.GPSSample) error {
	s.lastToken = token
	s.gpsCount = len(samples)
	return s.err
}

type stubCosts struct {
	breakdown  cost.Breakdown
	err        error
	lastReview cost.ReviewRequest
	fetched    bool
}

func (s *stubCosts) Submit(_ context.Context, _ auth.User, _ cost.SubmitRequest) (cost.Breakdown, error) {
	return s.breakdown, s.err
}

func (s *stubCosts) Review(_ context.Context, _ auth.User, req cost.ReviewRequest) (cost.Breakdown, error) {
	s.lastReview = req
	return s.breakdown, s.err
}

func (s *stubCosts) GetByDispatch(_ context.Context, _ string) (cost.Breakdown, error) {
	s.fetched = true
	return s.breakdown, s.err
}

type stubAudit struct {
	events []audit.Event
	err    error
}

func (s *stubAudit) ListByDispatch(_ context.Context, _ string) ([]audit.Event, error) {
	return s.events, s.err
}

var koviUser = auth.User{ID: "u-kovi", Email: "ops@kovi.example", FullName: "Ops", Role: auth.RoleKovi}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return &Server{
		log:      logger.NopLogger{},
		identity: &stubIdentity{user: koviUser},
	}
}

func doRequest(s *Server, method, target, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		server := newTestServer(t)
		rec := doRequest(server, http.MethodGet, "/api/dispatches", "", "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("resolve failure", func(t *testing.T) {
		server := newTestServer(t)
		server.identity = &stubIdentity{resolveErr: fault.Unauthenticated("auth: invalid token")}
		rec := doRequest(server, http.MethodGet, "/api/dispatches", "bad-token", "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})
}

func TestHandleCreateDispatch(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	server := newTestServer(t)
	server.dispatches = &stubDispatches{dispatch: dispatch.Dispatch{
		ID:        "d1",
		Status:    dispatch.StatusQuoting,
		Plate:     "ABC1234",
		Address:   "Av. Paulista 1000",
		Reason:    dispatch.ReasonBreakdown,
		CreatedAt: now,
	}}

	body := `{"plate":"abc-1234","address":"Av. Paulista 1000","reason":"BREAKDOWN","supplierCompanyIds":["s1"]}`
	rec := doRequest(server, http.MethodPost, "/api/dispatches", "tok", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp dispatchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "d1" || resp.Status != "QUOTING" || resp.Plate != "ABC1234" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
	if resp.CreatedAt != now.Format(time.RFC3339) {
		t.Fatalf("expected createdAt %s, got %s", now.Format(time.RFC3339), resp.CreatedAt)
	}
}

func TestHandleCreateDispatch_InvalidBody(t *testing.T) {
	server := newTestServer(t)
	server.dispatches = &stubDispatches{}

	rec := doRequest(server, http.MethodPost, "/api/dispatches", "tok", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleApproveQuote_Conflict(t *testing.T) {
	server := newTestServer(t)
	server.dispatches = &stubDispatches{err: fault.Conflict("dispatch: not quoting")}

	rec := doRequest(server, http.MethodPost, "/api/dispatches/d1/approve", "tok", `{"quoteId":"q1"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandleSubmitQuote_WindowElapsed(t *testing.T) {
	server := newTestServer(t)
	server.quotes = &stubQuotes{err: quote.ErrWindowElapsed}

	rec := doRequest(server, http.MethodPost, "/api/quotes/q1/submit", "tok", `{"etaMinutes":45}`)
	if rec.Code != http.StatusGone {
		t.Fatalf("expected 410, got %d", rec.Code)
	}
}

func TestHandleFieldEvent(t *testing.T) {
	now := time.Now().UTC()
	stub := &stubField{event: field.Event{ID: "fe1", Type: field.EventStartTrip, OccurredAt: now}}
	server := newTestServer(t)
	server.field = stub

	rec := doRequest(server, http.MethodPost, "/api/field/events", "raw-field-token", `{"type":"START_TRIP"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if stub.lastToken != "raw-field-token" {
		t.Fatalf("expected bearer token forwarded, got %q", stub.lastToken)
	}

	var resp struct {
		FieldEventID string `json:"fieldEventId"`
		Type         string `json:"type"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.FieldEventID != "fe1" || resp.Type != "START_TRIP" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestHandleFieldEvent_ExpiredToken(t *testing.T) {
	server := newTestServer(t)
	server.field = &stubField{err: field.ErrTokenExpired}

	rec := doRequest(server, http.MethodPost, "/api/field/events", "stale", `{"type":"START_TRIP"}`)
	if rec.Code != http.StatusGone {
		t.Fatalf("expected 410, got %d", rec.Code)
	}
}

func TestHandleFieldGPS(t *testing.T) {
	stub := &stubField{}
	server := newTestServer(t)
	server.field = stub

	body := `{"samples":[{"latitude":-23.56,"longitude":-46.65,"recorded_at":"2026-03-14T12:00:00Z"}]}`
	rec := doRequest(server, http.MethodPost, "/api/field/gps", "tok", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if stub.gpsCount != 1 {
		t.Fatalf("expected 1 sample forwarded, got %d", stub.gpsCount)
	}
}

func TestHandleReviewCost_ForwardsForceClose(t *testing.T) {
	stub := &stubCosts{breakdown: cost.Breakdown{ID: "cb1", DispatchID: "d1", ValidationFlag: cost.FlagOK}}
	server := newTestServer(t)
	server.costs = stub

	rec := doRequest(server, http.MethodPost, "/api/dispatches/d1/cost/review", "tok", `{"approve":true,"forceClose":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if stub.lastReview.ForceClose == nil || *stub.lastReview.ForceClose {
		t.Fatalf("expected forceClose=false forwarded, got %+v", stub.lastReview.ForceClose)
	}
	if stub.lastReview.DispatchID != "d1" {
		t.Fatalf("expected dispatch id from path, got %q", stub.lastReview.DispatchID)
	}
}

func TestHandleGetCost_GatedByDispatchVisibility(t *testing.T) {
	costs := &stubCosts{breakdown: cost.Breakdown{ID: "cb1"}}
	server := newTestServer(t)
	server.costs = costs
	server.dispatches = &stubDispatches{err: fault.Forbidden("dispatch: not visible")}

	rec := doRequest(server, http.MethodGet, "/api/dispatches/d1/cost", "tok", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if costs.fetched {
		t.Fatalf("breakdown must not be fetched when dispatch is not visible")
	}
}

func TestHandleListAudit_RequiresKovi(t *testing.T) {
	server := newTestServer(t)
	companyID := "s1"
	server.identity = &stubIdentity{user: auth.User{ID: "u-sup", Role: auth.RoleSupplier, SupplierCompanyID: &companyID}}
	server.auditLog = &stubAudit{}

	rec := doRequest(server, http.MethodGet, "/api/dispatches/d1/audit", "tok", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandleListAudit_Success(t *testing.T) {
	now := time.Now().UTC()
	userID := "u-kovi"
	server := newTestServer(t)
	server.auditLog = &stubAudit{events: []audit.Event{
		{ID: 1, DispatchID: "d1", ActorType: audit.ActorUser, ActorUserID: &userID, EventType: "DISPATCH_CREATED", Payload: []byte(`{"plate":"ABC1234"}`), CreatedAt: now},
		{ID: 2, DispatchID: "d1", ActorType: audit.ActorSystem, EventType: "QUOTES_CREATED", Payload: []byte(`{}`), CreatedAt: now},
	}}

	rec := doRequest(server, http.MethodGet, "/api/dispatches/d1/audit", "tok", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		Items []auditResponse `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Items) != 2 || payload.Items[0].EventType != "DISPATCH_CREATED" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.Items[1].ActorType != "SYSTEM" {
		t.Fatalf("expected SYSTEM actor, got %q", payload.Items[1].ActorType)
	}
}

func TestWriteFault_KindMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fault.InvalidInput("bad"), http.StatusBadRequest},
		{fault.Unauthenticated("who"), http.StatusUnauthorized},
		{fault.Forbidden("no"), http.StatusForbidden},
		{fault.NotFound("gone"), http.StatusNotFound},
		{fault.Conflict("state"), http.StatusConflict},
		{fault.Expired("late"), http.StatusGone},
		{fault.Unavailable("down"), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	server := newTestServer(t)
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		server.writeFault(rec, tc.err)
		if rec.Code != tc.want {
			t.Errorf("error %v: expected %d, got %d", tc.err, tc.want, rec.Code)
		}
	}
}

func TestWriteFault_HidesInternalDetail(t *testing.T) {
	server := newTestServer(t)
	rec := httptest.NewRecorder()
	server.writeFault(rec, errors.New("pq: connection refused at 10.0.0.5"))

	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if strings.Contains(resp.Error, "10.0.0.5") {
		t.Fatalf("internal detail leaked: %q", resp.Error)
	}
}

func TestHandleCreateFieldSession(t *testing.T) {
	expires := time.Date(2026, 3, 14, 16, 0, 0, 0, time.UTC)
	server := newTestServer(t)
	server.field = &stubField{issued: field.IssuedSession{
		Session: field.Session{ID: "fs1", DispatchID: "d1", ExpiresAt: expires},
		Token:   "raw-token",
		Link:    "https://field.example/field/raw-token",
	}}

	rec := doRequest(server, http.MethodPost, "/api/dispatches/d1/field-sessions", "tok", `{}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		FieldSessionID string `json:"fieldSessionId"`
		Link           string `json:"link"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.FieldSessionID != "fs1" || !strings.HasSuffix(resp.Link, "raw-token") {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}
