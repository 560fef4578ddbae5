package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/glowdesk/salon-platform/internal/cancellations"
	"github.com/glowdesk/salon-platform/pkg/logging"
)

// CancellationArchive is the archive surface the endpoints read and correct.
type CancellationArchive interface {
	List(ctx context.Context, limit, offset int) ([]cancellations.CancelledAppointment, error)
	GetByOriginalID(ctx context.Context, originalID int64) (*cancellations.CancelledAppointment, error)
	UpdateRefundAmount(ctx context.Context, originalID int64, refundCents int64) (*cancellations.CancelledAppointment, error)
}

// CancellationsHandler serves the cancellation archive.
type CancellationsHandler struct {
	archive CancellationArchive
	logger  *logging.Logger
}

// NewCancellationsHandler creates the handler.
func NewCancellationsHandler(archive CancellationArchive, logger *logging.Logger) *CancellationsHandler {
	if archive == nil {
		panic("handlers: cancellation archive required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CancellationsHandler{archive: archive, logger: logger}
}

// List returns archived cancellations, newest first.
// GET /cancellations
func (h *CancellationsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)
	items, err := h.archive.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("archive list failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []cancellations.CancelledAppointment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancellations": items})
}

// Get returns one archive row by the original appointment id.
// GET /cancellations/{originalID}
func (h *CancellationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "originalID")
	if !ok {
		jsonError(w, "invalid appointment id", http.StatusBadRequest)
		return
	}
	c, err := h.archive.GetByOriginalID(r.Context(), id)
	if err != nil {
		h.logger.Error("archive read failed", "error", err, "original_id", id)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if c == nil {
		jsonError(w, "cancellation not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// UpdateRefundRequest is the admin refund correction payload.
type UpdateRefundRequest struct {
	RefundAmountCents int64 `json:"refund_amount_cents"`
}

// UpdateRefund corrects the recorded refund on an archived cancellation.
// PUT /admin/cancellations/{originalID}/refund
func (h *CancellationsHandler) UpdateRefund(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "originalID")
	if !ok {
		jsonError(w, "invalid appointment id", http.StatusBadRequest)
		return
	}
	var req UpdateRefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.RefundAmountCents < 0 {
		jsonError(w, "refund_amount_cents must be >= 0", http.StatusUnprocessableEntity)
		return
	}
	c, err := h.archive.UpdateRefundAmount(r.Context(), id, req.RefundAmountCents)
	if err != nil {
		h.logger.Error("refund update failed", "error", err, "original_id", id)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if c == nil {
		jsonError(w, "cancellation not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
