package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/glowdesk/salon-platform/internal/cancellations"
	"github.com/glowdesk/salon-platform/internal/clock"
	"github.com/glowdesk/salon-platform/internal/history"
	"github.com/glowdesk/salon-platform/internal/scheduling"
	"github.com/glowdesk/salon-platform/pkg/logging"
)

// BookingService is the lifecycle surface the appointment endpoints call.
type BookingService interface {
	Create(ctx context.Context, a *scheduling.Appointment) (*scheduling.Appointment, error)
	Get(ctx context.Context, id int64) (*scheduling.Appointment, error)
	ListBetween(ctx context.Context, start, end time.Time) ([]scheduling.Appointment, error)
	Update(ctx context.Context, id int64, patch scheduling.Patch, actor scheduling.Actor) (*scheduling.UpdateResult, error)
	Cancel(ctx context.Context, id int64, p scheduling.CancelParams) (*cancellations.CancelledAppointment, error)
	Delete(ctx context.Context, id int64, p scheduling.CancelParams) (*cancellations.CancelledAppointment, error)
}

// HistoryStore is the audit trail read surface.
type HistoryStore interface {
	ListByAppointment(ctx context.Context, appointmentID int64) ([]history.Entry, error)
	ListAll(ctx context.Context, limit, offset int) ([]history.Entry, error)
}

// AppointmentsHandler serves the appointment lifecycle endpoints.
type AppointmentsHandler struct {
	svc     BookingService
	history HistoryStore
	norm    *clock.Normalizer
	logger  *logging.Logger
}

// NewAppointmentsHandler creates the handler.
func NewAppointmentsHandler(svc BookingService, hist HistoryStore, norm *clock.Normalizer, logger *logging.Logger) *AppointmentsHandler {
	if svc == nil {
		panic("handlers: booking service required")
	}
	if norm == nil {
		panic("handlers: clock normalizer required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentsHandler{svc: svc, history: hist, norm: norm, logger: logger}
}

// CreateAppointmentRequest is the booking payload. Times may be naive local
// timestamps or RFC 3339.
type CreateAppointmentRequest struct {
	ClientID         int64   `json:"client_id"`
	ServiceID        int64   `json:"service_id"`
	StaffID          int64   `json:"staff_id"`
	LocationID       *int64  `json:"location_id,omitempty"`
	StartAt          string  `json:"start_at"`
	EndAt            string  `json:"end_at"`
	Status           string  `json:"status,omitempty"`
	TotalAmountCents int64   `json:"total_amount_cents,omitempty"`
	Notes            string  `json:"notes,omitempty"`
	AddOnServiceIDs  []int64 `json:"add_on_service_ids,omitempty"`
}

// Create books a new appointment.
// POST /appointments
func (h *AppointmentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	startAt, err := parseTime(req.StartAt, h.norm)
	if err != nil {
		jsonError(w, "invalid start_at", http.StatusBadRequest)
		return
	}
	endAt, err := parseTime(req.EndAt, h.norm)
	if err != nil {
		jsonError(w, "invalid end_at", http.StatusBadRequest)
		return
	}

	a := &scheduling.Appointment{
		ClientID:         req.ClientID,
		ServiceID:        req.ServiceID,
		StaffID:          req.StaffID,
		LocationID:       req.LocationID,
		StartAt:          startAt,
		EndAt:            endAt,
		Status:           scheduling.Status(req.Status),
		TotalAmountCents: req.TotalAmountCents,
		Notes:            req.Notes,
		AddOnServiceIDs:  req.AddOnServiceIDs,
	}
	created, err := h.svc.Create(r.Context(), a)
	if err != nil {
		serviceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Get returns one active appointment.
// GET /appointments/{id}
func (h *AppointmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, "invalid appointment id", http.StatusBadRequest)
		return
	}
	a, err := h.svc.Get(r.Context(), id)
	if err != nil {
		serviceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// List returns appointments intersecting the requested window.
// GET /appointments?from=...&to=...
func (h *AppointmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	fromRaw := r.URL.Query().Get("from")
	toRaw := r.URL.Query().Get("to")
	if fromRaw == "" || toRaw == "" {
		jsonError(w, "from and to parameters required", http.StatusBadRequest)
		return
	}
	from, err := parseTime(fromRaw, h.norm)
	if err != nil {
		jsonError(w, "invalid from", http.StatusBadRequest)
		return
	}
	to, err := parseTime(toRaw, h.norm)
	if err != nil {
		jsonError(w, "invalid to", http.StatusBadRequest)
		return
	}
	items, err := h.svc.ListBetween(r.Context(), from, to)
	if err != nil {
		serviceError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []scheduling.Appointment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

// UpdateAppointmentRequest is a partial update. Absent fields stay unchanged.
type UpdateAppointmentRequest struct {
	ClientID         *int64  `json:"client_id,omitempty"`
	ServiceID        *int64  `json:"service_id,omitempty"`
	StaffID          *int64  `json:"staff_id,omitempty"`
	LocationID       *int64  `json:"location_id,omitempty"`
	ClearLocation    bool    `json:"clear_location,omitempty"`
	StartAt          *string `json:"start_at,omitempty"`
	EndAt            *string `json:"end_at,omitempty"`
	Status           *string `json:"status,omitempty"`
	PaymentStatus    *string `json:"payment_status,omitempty"`
	TotalAmountCents *int64  `json:"total_amount_cents,omitempty"`
	Notes            *string `json:"notes,omitempty"`
	AddOnServiceIDs  []int64 `json:"add_on_service_ids,omitempty"`
	Reason           string  `json:"reason,omitempty"`
	ActorID          *int64  `json:"actor_id,omitempty"`
	ActorRole        string  `json:"actor_role,omitempty"`
}

// Update applies a partial patch; a status of "cancelled" archives the row
// and returns the archive record instead of the appointment.
// PATCH /appointments/{id}
func (h *AppointmentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, "invalid appointment id", http.StatusBadRequest)
		return
	}
	var req UpdateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	patch := scheduling.Patch{
		ClientID:         req.ClientID,
		ServiceID:        req.ServiceID,
		StaffID:          req.StaffID,
		LocationID:       req.LocationID,
		ClearLocation:    req.ClearLocation,
		PaymentStatus:    req.PaymentStatus,
		TotalAmountCents: req.TotalAmountCents,
		Notes:            req.Notes,
		AddOnServiceIDs:  req.AddOnServiceIDs,
		Reason:           req.Reason,
	}
	if req.StartAt != nil {
		t, err := parseTime(*req.StartAt, h.norm)
		if err != nil {
			jsonError(w, "invalid start_at", http.StatusBadRequest)
			return
		}
		patch.StartAt = &t
	}
	if req.EndAt != nil {
		t, err := parseTime(*req.EndAt, h.norm)
		if err != nil {
			jsonError(w, "invalid end_at", http.StatusBadRequest)
			return
		}
		patch.EndAt = &t
	}
	if req.Status != nil {
		s := scheduling.Status(*req.Status)
		patch.Status = &s
	}

	res, err := h.svc.Update(r.Context(), id, patch, scheduling.Actor{ID: req.ActorID, Role: req.ActorRole})
	if err != nil {
		serviceError(w, h.logger, err)
		return
	}
	if res.Cancelled != nil {
		writeJSON(w, http.StatusOK, map[string]any{"cancelled": res.Cancelled})
		return
	}
	writeJSON(w, http.StatusOK, res.Appointment)
}

// CancelAppointmentRequest carries cancellation metadata.
type CancelAppointmentRequest struct {
	Reason        string `json:"reason"`
	CancelledByID *int64 `json:"cancelled_by_id,omitempty"`
	CancelledBy   string `json:"cancelled_by_role,omitempty"`
}

// Cancel moves an appointment into the cancellation archive.
// POST /appointments/{id}/cancel
func (h *AppointmentsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, "invalid appointment id", http.StatusBadRequest)
		return
	}
	// Reason and actor are optional, so a bodyless cancel is fine.
	var req CancelAppointmentRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			jsonError(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
	}
	archived, err := h.svc.Cancel(r.Context(), id, scheduling.CancelParams{
		Reason: req.Reason,
		Actor:  scheduling.Actor{ID: req.CancelledByID, Role: req.CancelledBy},
	})
	if err != nil {
		serviceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, archived)
}

// Delete archives an appointment through the cancellation path.
// DELETE /appointments/{id}
func (h *AppointmentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, "invalid appointment id", http.StatusBadRequest)
		return
	}
	archived, err := h.svc.Delete(r.Context(), id, scheduling.CancelParams{Reason: r.URL.Query().Get("reason")})
	if err != nil {
		serviceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, archived)
}

// History returns the audit trail for one appointment, newest first. The
// trail outlives the appointment, so this works for archived ids too.
// GET /appointments/{id}/history
func (h *AppointmentsHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, "invalid appointment id", http.StatusBadRequest)
		return
	}
	entries, err := h.history.ListByAppointment(r.Context(), id)
	if err != nil {
		h.logger.Error("history read failed", "error", err, "appointment_id", id)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

// Ledger returns the global audit trail for operational review.
// GET /admin/history
func (h *AppointmentsHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)
	entries, err := h.history.ListAll(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("ledger read failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}
