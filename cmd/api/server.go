package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
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

type identityService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	Resolve(ctx context.Context, token string) (auth.User, error)
}

type supplierService interface {
	List(ctx context.Context, limit int) ([]supplier.Company, error)
}

type dispatchService interface {
	Create(ctx context.Context, actor auth.User, req dispatch.CreateRequest) (dispatch.Dispatch, error)
	ApproveQuote(ctx context.Context, actor auth.User, dispatchID, quoteID string) (dispatch.Dispatch, error)
	Reject(ctx context.Context, actor auth.User, dispatchID, reason string) (dispatch.Dispatch, error)
	Get(ctx context.Context, actor auth.User, dispatchID string) (dispatch.Dispatch, error)
	List(ctx context.Context, actor auth.User, limit int) ([]dispatch.Dispatch, error)
}

type quoteService interface {
	Submit(ctx context.Context, actor auth.User, req quote.SubmitRequest) (quote.Quote, error)
	ListByDispatch(ctx context.Context, actor auth.User, dispatchID string) ([]quote.Quote, error)
}

type fieldService interface {
	CreateSession(ctx context.Context, actor auth.User, req field.CreateSessionRequest) (field.IssuedSession, error)
	RecordEvent(ctx context.Context, token string, eventType field.EventType, meta map[string]any) (field.Event, error)
	IngestGPS(ctx context.Context, token string, samples []field.GPSSample) error
}

type costService interface {
	Submit(ctx context.Context, actor auth.User, req cost.SubmitRequest) (cost.Breakdown, error)
	Review(ctx context.Context, actor auth.User, req cost.ReviewRequest) (cost.Breakdown, error)
	GetByDispatch(ctx context.Context, dispatchID string) (cost.Breakdown, error)
}

type auditService interface {
	ListByDispatch(ctx context.Context, dispatchID string) ([]audit.Event, error)
}

// Server wires the HTTP surface onto the workflow services. Handlers stay
// thin: decode, delegate, map fault kinds to status codes.
type Server struct {
	log        logger.Logger
	identity   identityService
	suppliers  supplierService
	dispatches dispatchService
	quotes     quoteService
	field      fieldService
	costs      costService
	auditLog   auditService
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	mux.HandleFunc("GET /api/suppliers", s.withUser(s.handleListSuppliers))

	mux.HandleFunc("POST /api/dispatches", s.withUser(s.handleCreateDispatch))
	mux.HandleFunc("GET /api/dispatches", s.withUser(s.handleListDispatches))
	mux.HandleFunc("GET /api/dispatches/{id}", s.withUser(s.handleGetDispatch))
	mux.HandleFunc("POST /api/dispatches/{id}/approve", s.withUser(s.handleApproveQuote))
	mux.HandleFunc("POST /api/dispatches/{id}/reject", s.withUser(s.handleRejectDispatch))
	mux.HandleFunc("GET /api/dispatches/{id}/quotes", s.withUser(s.handleListQuotes))
	mux.HandleFunc("POST /api/quotes/{id}/submit", s.withUser(s.handleSubmitQuote))
	mux.HandleFunc("POST /api/dispatches/{id}/field-sessions", s.withUser(s.handleCreateFieldSession))
	mux.HandleFunc("POST /api/dispatches/{id}/cost", s.withUser(s.handleSubmitCost))
	mux.HandleFunc("POST /api/dispatches/{id}/cost/review", s.withUser(s.handleReviewCost))
	mux.HandleFunc("GET /api/dispatches/{id}/cost", s.withUser(s.handleGetCost))
	mux.HandleFunc("GET /api/dispatches/{id}/audit", s.withUser(s.handleListAudit))

	mux.HandleFunc("POST /api/field/events", s.handleFieldEvent)
	mux.HandleFunc("POST /api/field/gps", s.handleFieldGPS)

	return mux
}

// withUser resolves the bearer credential and hands the active user to the
// wrapped handler.
func (s *Server) withUser(next func(http.ResponseWriter, *http.Request, auth.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			s.writeFault(w, fault.Unauthenticated("missing bearer token"))
			return
		}
		user, err := s.identity.Resolve(r.Context(), token)
		if err != nil {
			s.writeFault(w, err)
			return
		}
		next(w, r, user)
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeFault(w, fault.InvalidInput("invalid json body"))
		return
	}
	user, err := s.identity.Register(r.Context(), req)
	if err != nil {
		s.writeFault(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, userResponseFrom(*user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeFault(w, fault.InvalidInput("invalid json body"))
		return
	}
	result, err := s.identity.Login(r.Context(), req)
	if err != nil {
		s.writeFault(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"token": result.Token,
		"user":  userResponseFrom(result.User),
	})
}

func (s *Server) handleListSuppliers(w http.ResponseWriter, r *http.Request, _ auth.User) {
	companies, err := s.suppliers.List(r.Context(), queryLimit(r))
	if err != nil {
		s.writeFault(w, err)
		return
	}
	items := make([]supplierResponse, len(companies))
	for i, c := range companies {
		items[i] = supplierResponse{
			ID:              c.ID,
			LegalName:       c.LegalName,
			IncludedKm:      c.IncludedKm,
			IncludedMinutes: c.IncludedMinutes,
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type createDispatchRequest struct {
	Plate              string   `json:"plate"`
	VehicleModel       *string  `json:"vehicleModel"`
	VehicleColor       *string  `json:"vehicleColor"`
	VehicleYear        *int     `json:"vehicleYear"`
	Address            string   `json:"address"`
	Latitude           *float64 `json:"latitude"`
	Longitude          *float64 `json:"longitude"`
	DriverName         *string  `json:"driverName"`
	Reason             string   `json:"reason"`
	ReasonDetails      *string  `json:"reasonDetails"`
	SupplierCompanyIDs []string `json:"supplierCompanyIds"`
}

func (s *Server) handleCreateDispatch(w http.ResponseWriter, r *http.Request, actor auth.User) {
	var req createDispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeFault(w, fault.InvalidInput("invalid json body"))
		return
	}
	d, err := s.dispatches.Create(r.Context(), actor, dispatch.CreateRequest{
		Plate:              req.Plate,
		VehicleModel:       req.VehicleModel,
		VehicleColor:       req.VehicleColor,
		VehicleYear:        req.VehicleYear,
		Address:            req.Address,
		Latitude:           req.Latitude,
		Longitude:          req.Longitude,
		DriverName:         req.DriverName,
		Reason:             dispatch.Reason(req.Reason),
		ReasonDetails:      req.ReasonDetails,
		SupplierCompanyIDs: req.SupplierCompanyIDs,
	})
	if err != nil {
		s.writeFault(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, dispatchResponseFrom(d))
}

func (s *Server) handleListDispatches(w http.ResponseWriter, r *http.Request, actor auth.User) {
	list, err := s.dispatches.List(r.Context(), actor, queryLimit(r))
	if err != nil {
		s.writeFault(w, err)
		return
	}
	items := make([]dispatchResponse, len(list))
	for i, d := range list {
		items[i] = dispatchResponseFrom(d)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleGetDispatch(w http.ResponseWriter, r *http.Request, actor auth.User) {
	d, err := s.dispatches.Get(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		s.writeFault(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, dispatchResponseFrom(d))
}

func (s *Server) handleApproveQuote(w http.ResponseWriter, r *http.Request, actor auth.User) {
	var req struct {
		QuoteID string `json:"quoteId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeFault(w, fault.InvalidInput("invalid json body"))
		return
	}
	d, err := s.dispatches.ApproveQuote(r.Context(), actor, r.PathValue("id"), req.QuoteID)
	if err != nil {
		s.writeFault(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, dispatchResponseFrom(d))
}

func (s *Server) handleRejectDispatch(w http.ResponseWriter, r *http.Request, actor auth.User) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeFault(w, fault.InvalidInput("invalid json body"))
		return
	}
	d, err := s.dispatches.Reject(r.Context(), actor, r.PathValue("id"), req.Reason)
	if err != nil {
		s.writeFault(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, dispatchResponseFrom(d))
}

func (s *Server) handleListQuotes(w http.ResponseWriter, r *http.Request, actor auth.User) {
	quotes, err := s.quotes.ListByDispatch(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		s.writeFault(w, err)
		return
	}
	items := make([]quoteResponse, len(quotes))
	for i, q := range quotes {
		items[i] = quoteResponseFrom(q)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleSubmitQuote(w http.ResponseWriter, r *http.Request, actor auth.User) {
	var req struct {
		EtaMinutes   int     `json:"etaMinutes"`
		SupplierNote *string `json:"supplierNote"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeFault(w, fault.InvalidInput("invalid json body"))
		return
	}
	q, err := s.quotes.Submit(r.Context(), actor, quote.SubmitRequest{
		QuoteID:      r.PathValue("id"),
		EtaMinutes:   req.EtaMinutes,
		SupplierNote: req.SupplierNote,
	})
	if err != nil {
		s.writeFault(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, quoteResponseFrom(q))
}

func (s *Server) handleCreateFieldSession(w http.ResponseWriter, r *http.Request, actor auth.User) {
	var req struct {
		ExpiresMinutes int  `json:"expiresMinutes"`
		AllowClose     bool `json:"allowClose"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeFault(w, fault.InvalidInput("invalid json body"))
		return
	}
	issued, err := s.field.CreateSession(r.Context(), actor, field.CreateSessionRequest{
		DispatchID:     r.PathValue("id"),
		ExpiresMinutes: req.ExpiresMinutes,
		AllowClose:     req.AllowClose,
	})
	if err != nil {
		s.writeFault(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"fieldSessionId": issued.Session.ID,
		"dispatchId":     issued.Session.DispatchID,
		"expiresAt":      issued.Session.ExpiresAt.Format(time.RFC3339),
		"link":           issued.Link,
	})
}

func (s *Server) handleFieldEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type string         `json:"type"`
		Meta map[string]any `json:"meta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeFault(w, fault.InvalidInput("invalid json body"))
		return
	}
	ev, err := s.field.RecordEvent(r.Context(), bearerToken(r), field.EventType(req.Type), req.Meta)
	if err != nil {
		s.writeFault(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"fieldEventId": ev.ID,
		"type":         string(ev.Type),
		"occurredAt":   ev.OccurredAt.Format(time.RFC3339),
	})
}

func (s *Server) handleFieldGPS(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Samples []field.GPSSample `json:"samples"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeFault(w, fault.InvalidInput("invalid json body"))
		return
	}
	if err := s.field.IngestGPS(r.Context(), bearerToken(r), req.Samples); err != nil {
		s.writeFault(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{"accepted": len(req.Samples)})
}

type submitCostRequest struct {
	ExitValueCents        int                  `json:"exitValueCents"`
	ExtraKm               int                  `json:"extraKm"`
	ExtraHourMinutes      int                  `json:"extraHourMinutes"`
	Reimbursements        []cost.Reimbursement `json:"reimbursements"`
	EvidenceAttachmentIDs []string             `json:"evidenceAttachmentIds"`
}

func (s *Server) handleSubmitCost(w http.ResponseWriter, r *http.Request, actor auth.User) {
	var req submitCostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeFault(w, fault.InvalidInput("invalid json body"))
		return
	}
	b, err := s.costs.Submit(r.Context(), actor, cost.SubmitRequest{
		DispatchID:            r.PathValue("id"),
		ExitValueCents:        req.ExitValueCents,
		ExtraKm:               req.ExtraKm,
		ExtraHourMinutes:      req.ExtraHourMinutes,
		Reimbursements:        req.Reimbursements,
		EvidenceAttachmentIDs: req.EvidenceAttachmentIDs,
	})
	if err != nil {
		s.writeFault(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, breakdownResponseFrom(b))
}

func (s *Server) handleReviewCost(w http.ResponseWriter, r *http.Request, actor auth.User) {
	var req struct {
		Approve    bool   `json:"approve"`
		ReviewNote string `json:"reviewNote"`
		ForceClose *bool  `json:"forceClose"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeFault(w, fault.InvalidInput("invalid json body"))
		return
	}
	b, err := s.costs.Review(r.Context(), actor, cost.ReviewRequest{
		DispatchID: r.PathValue("id"),
		Approve:    req.Approve,
		ReviewNote: req.ReviewNote,
		ForceClose: req.ForceClose,
	})
	if err != nil {
		s.writeFault(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, breakdownResponseFrom(b))
}

func (s *Server) handleGetCost(w http.ResponseWriter, r *http.Request, actor auth.User) {
	// Dispatch-level visibility gates the claim as well.
	if _, err := s.dispatches.Get(r.Context(), actor, r.PathValue("id")); err != nil {
		s.writeFault(w, err)
		return
	}
	b, err := s.costs.GetByDispatch(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFault(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, breakdownResponseFrom(b))
}

func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request, actor auth.User) {
	if err := auth.RequireRole(actor, auth.RoleKovi); err != nil {
		s.writeFault(w, err)
		return
	}
	events, err := s.auditLog.ListByDispatch(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFault(w, err)
		return
	}
	items := make([]auditResponse, len(events))
	for i, ev := range events {
		items[i] = auditResponse{
			ID:         ev.ID,
			ActorType:  string(ev.ActorType),
			EventType:  ev.EventType,
			Payload:    json.RawMessage(ev.Payload),
			CreatedAt:  ev.CreatedAt.Format(time.RFC3339),
			ActorUser:  ev.ActorUserID,
			ActorField: ev.ActorFieldSessionID,
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Errorf("api: encode response: %v", err)
	}
}

// writeFault maps the error taxonomy onto HTTP status codes. Infrastructure
// errors surface as an opaque 500.
func (s *Server) writeFault(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"

	var fe *fault.Error
	if errors.As(err, &fe) {
		msg = fe.Msg
		switch fe.Kind {
		case fault.KindInvalidInput:
			status = http.StatusBadRequest
		case fault.KindUnauthenticated:
			status = http.StatusUnauthorized
		case fault.KindForbidden:
			status = http.StatusForbidden
		case fault.KindNotFound:
			status = http.StatusNotFound
		case fault.KindConflict:
			status = http.StatusConflict
		case fault.KindExpired:
			status = http.StatusGone
		case fault.KindUnavailable:
			status = http.StatusServiceUnavailable
		default:
			status = http.StatusInternalServerError
		}
	} else {
		s.log.Errorf("api: internal error: %v", err)
	}

	s.writeJSON(w, status, map[string]any{
		"error": msg,
		"kind":  fault.KindOf(err).String(),
	})
}

type userResponse struct {
	ID                string  `json:"id"`
	Email             string  `json:"email"`
	FullName          string  `json:"fullName"`
	Role              string  `json:"role"`
	SupplierCompanyID *string `json:"supplierCompanyId,omitempty"`
}

func userResponseFrom(u auth.User) userResponse {
	return userResponse{
		ID:                u.ID,
		Email:             u.Email,
		FullName:          u.FullName,
		Role:              string(u.Role),
		SupplierCompanyID: u.SupplierCompanyID,
	}
}

type supplierResponse struct {
	ID              string `json:"id"`
	LegalName       string `json:"legalName"`
	IncludedKm      int    `json:"includedKm"`
	IncludedMinutes int    `json:"includedMinutes"`
}

type dispatchResponse struct {
	ID                        string   `json:"id"`
	Status                    string   `json:"status"`
	Plate                     string   `json:"plate"`
	Address                   string   `json:"address"`
	Reason                    string   `json:"reason"`
	ReasonDetails             *string  `json:"reasonDetails,omitempty"`
	ApprovedQuoteID           *string  `json:"approvedQuoteId,omitempty"`
	ApprovedSupplierCompanyID *string  `json:"approvedSupplierCompanyId,omitempty"`
	RejectReason              *string  `json:"rejectReason,omitempty"`
	CreatedAt                 string   `json:"createdAt"`
	Timestamps                apiTimes `json:"timestamps"`
}

type apiTimes struct {
	ApprovedAt     *string `json:"approvedAt,omitempty"`
	RejectedAt     *string `json:"rejectedAt,omitempty"`
	FieldStartedAt *string `json:"fieldStartedAt,omitempty"`
	FieldArrivedAt *string `json:"fieldArrivedAt,omitempty"`
	ClosedAt       *string `json:"closedAt,omitempty"`
}

func rfc3339Ptr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func dispatchResponseFrom(d dispatch.Dispatch) dispatchResponse {
	return dispatchResponse{
		ID:                        d.ID,
		Status:                    string(d.Status),
		Plate:                     d.Plate,
		Address:                   d.Address,
		Reason:                    string(d.Reason),
		ReasonDetails:             d.ReasonDetails,
		ApprovedQuoteID:           d.ApprovedQuoteID,
		ApprovedSupplierCompanyID: d.ApprovedSupplierCompanyID,
		RejectReason:              d.RejectReason,
		CreatedAt:                 d.CreatedAt.UTC().Format(time.RFC3339),
		Timestamps: apiTimes{
			ApprovedAt:     rfc3339Ptr(d.ApprovedAt),
			RejectedAt:     rfc3339Ptr(d.RejectedAt),
			FieldStartedAt: rfc3339Ptr(d.FieldStartedAt),
			FieldArrivedAt: rfc3339Ptr(d.FieldArrivedAt),
			ClosedAt:       rfc3339Ptr(d.ClosedAt),
		},
	}
}

type quoteResponse struct {
	ID                string  `json:"id"`
	DispatchID        string  `json:"dispatchId"`
	SupplierCompanyID string  `json:"supplierCompanyId"`
	Status            string  `json:"status"`
	EtaMinutes        *int    `json:"etaMinutes,omitempty"`
	SupplierNote      *string `json:"supplierNote,omitempty"`
	SubmittedAt       *string `json:"submittedAt,omitempty"`
}

func quoteResponseFrom(q quote.Quote) quoteResponse {
	return quoteResponse{
		ID:                q.ID,
		DispatchID:        q.DispatchID,
		SupplierCompanyID: q.SupplierCompanyID,
		Status:            string(q.Status),
		EtaMinutes:        q.EtaMinutes,
		SupplierNote:      q.SupplierNote,
		SubmittedAt:       rfc3339Ptr(q.SubmittedAt),
	}
}

type breakdownResponse struct {
	ID               string               `json:"id"`
	DispatchID       string               `json:"dispatchId"`
	ExitValueCents   int                  `json:"exitValueCents"`
	ExtraKm          int                  `json:"extraKm"`
	ExtraHourMinutes int                  `json:"extraHourMinutes"`
	Reimbursements   []cost.Reimbursement `json:"reimbursements"`
	MeasuredKm       *int                 `json:"measuredKm"`
	MeasuredMinutes  *int                 `json:"measuredMinutes"`
	ValidationFlag   string               `json:"validationFlag"`
	ValidationNotes  *string              `json:"validationNotes,omitempty"`
	ReviewedAt       *string              `json:"reviewedAt,omitempty"`
	ReviewApproved   *bool                `json:"reviewApproved,omitempty"`
	ReviewNote       *string              `json:"reviewNote,omitempty"`
}

func breakdownResponseFrom(b cost.Breakdown) breakdownResponse {
	return breakdownResponse{
		ID:               b.ID,
		DispatchID:       b.DispatchID,
		ExitValueCents:   b.ExitValueCents,
		ExtraKm:          b.ExtraKm,
		ExtraHourMinutes: b.ExtraHourMinutes,
		Reimbursements:   b.Reimbursements,
		MeasuredKm:       b.MeasuredKm,
		MeasuredMinutes:  b.MeasuredMinutes,
		ValidationFlag:   string(b.ValidationFlag),
		ValidationNotes:  b.ValidationNotes,
		ReviewedAt:       rfc3339Ptr(b.ReviewedAt),
		ReviewApproved:   b.ReviewApproved,
		ReviewNote:       b.ReviewNote,
	}
}

type auditResponse struct {
	ID         int64           `json:"id"`
	ActorType  string          `json:"actorType"`
	ActorUser  *string         `json:"actorUserId,omitempty"`
	ActorField *string         `json:"actorFieldSessionId,omitempty"`
	EventType  string          `json:"eventType"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  string          `json:"createdAt"`
}
