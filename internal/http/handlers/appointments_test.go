package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/glowdesk/salon-platform/internal/cancellations"
	"github.com/glowdesk/salon-platform/internal/clock"
	"github.com/glowdesk/salon-platform/internal/history"
	"github.com/glowdesk/salon-platform/internal/scheduling"
)

type bookingServiceStub struct {
	created     *scheduling.Appointment
	createErr   error
	appt        *scheduling.Appointment
	updateRes   *scheduling.UpdateResult
	updateErr   error
	cancelled   *cancellations.CancelledAppointment
	cancelErr   error
	lastPatch   scheduling.Patch
	lastActor   scheduling.Actor
	lastParams  scheduling.CancelParams
	listedFrom  time.Time
	listedTo    time.Time
	listedItems []scheduling.Appointment
}

func (s *bookingServiceStub) Create(ctx context.Context, a *scheduling.Appointment) (*scheduling.Appointment, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.created = a
	out := *a
	out.ID = 42
	return &out, nil
}

func (s *bookingServiceStub) Get(ctx context.Context, id int64) (*scheduling.Appointment, error) {
	if s.appt == nil {
		return nil, scheduling.ErrNotFound
	}
	return s.appt, nil
}

func (s *bookingServiceStub) ListBetween(ctx context.Context, start, end time.Time) ([]scheduling.Appointment, error) {
	s.listedFrom, s.listedTo = start, end
	return s.listedItems, nil
}

func (s *bookingServiceStub) Update(ctx context.Context, id int64, patch scheduling.Patch, actor scheduling.Actor) (*scheduling.UpdateResult, error) {
	s.lastPatch = patch
	s.lastActor = actor
	return s.updateRes, s.updateErr
}

func (s *bookingServiceStub) Cancel(ctx context.Context, id int64, p scheduling.CancelParams) (*cancellations.CancelledAppointment, error) {
	s.lastParams = p
	return s.cancelled, s.cancelErr
}

func (s *bookingServiceStub) Delete(ctx context.Context, id int64, p scheduling.CancelParams) (*cancellations.CancelledAppointment, error) {
	s.lastParams = p
	return s.cancelled, s.cancelErr
}

type historyStoreStub struct {
	byAppointment []history.Entry
	all           []history.Entry
	lastLimit     int
}

func (h *historyStoreStub) ListByAppointment(ctx context.Context, appointmentID int64) ([]history.Entry, error) {
	return h.byAppointment, nil
}

func (h *historyStoreStub) ListAll(ctx context.Context, limit, offset int) ([]history.Entry, error) {
	h.lastLimit = limit
	return h.all, nil
}

func testRouter(h *AppointmentsHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/appointments", h.Create)
	r.Get("/appointments", h.List)
	r.Get("/appointments/{id}", h.Get)
	r.Patch("/appointments/{id}", h.Update)
	r.Delete("/appointments/{id}", h.Delete)
	r.Post("/appointments/{id}/cancel", h.Cancel)
	r.Get("/appointments/{id}/history", h.History)
	r.Get("/admin/history", h.Ledger)
	return r
}

func newHandler(t *testing.T, svc *bookingServiceStub, hist *historyStoreStub) *AppointmentsHandler {
	t.Helper()
	norm, err := clock.NewNormalizer("America/New_York")
	if err != nil {
		t.Fatalf("normalizer: %v", err)
	}
	if hist == nil {
		hist = &historyStoreStub{}
	}
	return NewAppointmentsHandler(svc, hist, norm, nil)
}

func TestCreateNormalizesNaiveTimes(t *testing.T) {
	svc := &bookingServiceStub{}
	h := newHandler(t, svc, nil)

	body, _ := json.Marshal(CreateAppointmentRequest{
		ClientID: 1, ServiceID: 2, StaffID: 3,
		StartAt: "2026-01-10T14:00:00",
		EndAt:   "2026-01-10T15:00:00",
	})
	req := httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	testRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	// 2pm eastern in January is 7pm UTC.
	want := time.Date(2026, 1, 10, 19, 0, 0, 0, time.UTC)
	if !svc.created.StartAt.Equal(want) {
		t.Fatalf("start = %s, want %s", svc.created.StartAt, want)
	}

	var out scheduling.Appointment
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response not json: %v", err)
	}
	if out.ID != 42 {
		t.Fatalf("unexpected response: %+v", out)
	}
}

func TestCreateConflictMapsTo409(t *testing.T) {
	svc := &bookingServiceStub{createErr: &scheduling.ConflictError{Reasons: []scheduling.ConflictReason{
		{Rule: scheduling.ConflictStaffOverlap, AppointmentIDs: []int64{9}},
	}}}
	h := newHandler(t, svc, nil)

	body, _ := json.Marshal(CreateAppointmentRequest{
		ClientID: 1, ServiceID: 2, StaffID: 3,
		StartAt: "2026-01-10T14:00:00", EndAt: "2026-01-10T15:00:00",
	})
	req := httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	testRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	var resp conflictResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not json: %v", err)
	}
	if len(resp.Reasons) != 1 || resp.Reasons[0].Rule != scheduling.ConflictStaffOverlap {
		t.Fatalf("unexpected conflict payload: %+v", resp)
	}
	if resp.Reasons[0].AppointmentIDs[0] != 9 {
		t.Fatalf("offending ids missing: %+v", resp)
	}
}

func TestCreateValidationMapsTo422(t *testing.T) {
	svc := &bookingServiceStub{createErr: &scheduling.ValidationError{Field: "client_id", Msg: "required"}}
	h := newHandler(t, svc, nil)

	body, _ := json.Marshal(CreateAppointmentRequest{
		StartAt: "2026-01-10T14:00:00", EndAt: "2026-01-10T15:00:00",
	})
	req := httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	testRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestCreateRejectsBadTimestamp(t *testing.T) {
	h := newHandler(t, &bookingServiceStub{}, nil)

	body := []byte(`{"client_id":1,"service_id":2,"staff_id":3,"start_at":"next tuesday","end_at":"2026-01-10T15:00:00"}`)
	req := httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	testRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetUnknownAppointmentMapsTo404(t *testing.T) {
	h := newHandler(t, &bookingServiceStub{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/appointments/99", nil)
	rec := httptest.NewRecorder()
	testRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestUpdateIllegalTransitionMapsTo409(t *testing.T) {
	svc := &bookingServiceStub{updateErr: &scheduling.InvalidTransitionError{
		From: scheduling.StatusCompleted, To: scheduling.StatusPending,
	}}
	h := newHandler(t, svc, nil)

	body := []byte(`{"status":"pending"}`)
	req := httptest.NewRequest(http.MethodPatch, "/appointments/7", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	testRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestUpdateCancellationReturnsArchiveRow(t *testing.T) {
	svc := &bookingServiceStub{updateRes: &scheduling.UpdateResult{
		Cancelled: &cancellations.CancelledAppointment{ID: 3, OriginalAppointmentID: 7, Reason: "no-show"},
	}}
	h := newHandler(t, svc, nil)

	body := []byte(`{"status":"cancelled","reason":"no-show","actor_id":55,"actor_role":"staff"}`)
	req := httptest.NewRequest(http.MethodPatch, "/appointments/7", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	testRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Cancelled *cancellations.CancelledAppointment `json:"cancelled"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not json: %v", err)
	}
	if resp.Cancelled == nil || resp.Cancelled.OriginalAppointmentID != 7 {
		t.Fatalf("unexpected response: %s", rec.Body.String())
	}
	if svc.lastPatch.Reason != "no-show" {
		t.Fatalf("reason not forwarded: %+v", svc.lastPatch)
	}
	if svc.lastActor.ID == nil || *svc.lastActor.ID != 55 || svc.lastActor.Role != "staff" {
		t.Fatalf("actor not forwarded: %+v", svc.lastActor)
	}
}

func TestCancelForwardsMetadata(t *testing.T) {
	svc := &bookingServiceStub{cancelled: &cancellations.CancelledAppointment{ID: 3, OriginalAppointmentID: 7}}
	h := newHandler(t, svc, nil)

	body := []byte(`{"reason":"client request","cancelled_by_id":55,"cancelled_by_role":"staff"}`)
	req := httptest.NewRequest(http.MethodPost, "/appointments/7/cancel", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	testRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if svc.lastParams.Reason != "client request" || svc.lastParams.Actor.Role != "staff" {
		t.Fatalf("params not forwarded: %+v", svc.lastParams)
	}
}

func TestCancelAcceptsEmptyBody(t *testing.T) {
	svc := &bookingServiceStub{cancelled: &cancellations.CancelledAppointment{ID: 3, OriginalAppointmentID: 7}}
	h := newHandler(t, svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/appointments/7/cancel", nil)
	rec := httptest.NewRecorder()
	testRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("bodyless cancel: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if svc.lastParams.Reason != "" || svc.lastParams.Actor.ID != nil {
		t.Fatalf("params must default empty: %+v", svc.lastParams)
	}

	req = httptest.NewRequest(http.MethodPost, "/appointments/7/cancel", bytes.NewReader([]byte("{bad")))
	rec = httptest.NewRecorder()
	testRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body must still 400, got %d", rec.Code)
	}
}

func TestListParsesWindow(t *testing.T) {
	svc := &bookingServiceStub{}
	h := newHandler(t, svc, nil)

	req := httptest.NewRequest(http.MethodGet,
		"/appointments?from=2026-01-10T00:00:00&to=2026-01-11T00:00:00", nil)
	rec := httptest.NewRecorder()
	testRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	wantFrom := time.Date(2026, 1, 10, 5, 0, 0, 0, time.UTC) // midnight eastern
	if !svc.listedFrom.Equal(wantFrom) {
		t.Fatalf("from = %s, want %s", svc.listedFrom, wantFrom)
	}
	var resp struct {
		Appointments []scheduling.Appointment `json:"appointments"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not json: %v", err)
	}
	if resp.Appointments == nil {
		t.Fatal("appointments must serialize as an empty array")
	}
}

func TestHistoryEndpoint(t *testing.T) {
	hist := &historyStoreStub{byAppointment: []history.Entry{
		{ID: 2, AppointmentID: 7, Action: history.ActionCancelled},
		{ID: 1, AppointmentID: 7, Action: history.ActionCreated},
	}}
	h := newHandler(t, &bookingServiceStub{}, hist)

	req := httptest.NewRequest(http.MethodGet, "/appointments/7/history", nil)
	rec := httptest.NewRecorder()
	testRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		History []history.Entry `json:"history"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not json: %v", err)
	}
	if len(resp.History) != 2 || resp.History[0].Action != history.ActionCancelled {
		t.Fatalf("unexpected history: %+v", resp.History)
	}
}

func TestLedgerPassesLimit(t *testing.T) {
	hist := &historyStoreStub{}
	h := newHandler(t, &bookingServiceStub{}, hist)

	req := httptest.NewRequest(http.MethodGet, "/admin/history?limit=25", nil)
	rec := httptest.NewRecorder()
	testRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if hist.lastLimit != 25 {
		t.Fatalf("limit = %d, want 25", hist.lastLimit)
	}
}
