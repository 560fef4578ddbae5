// Package handlers exposes the appointment lifecycle over HTTP: booking,
// rescheduling, cancellation, the audit ledger, the cancellation archive,
// and automation rule management.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/glowdesk/salon-platform/internal/clock"
	"github.com/glowdesk/salon-platform/internal/scheduling"
	"github.com/glowdesk/salon-platform/pkg/logging"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// conflictResponse explains a 409 from the conflict resolver so the caller
// can offer an alternative slot.
type conflictResponse struct {
	Error   string                      `json:"error"`
	Reasons []scheduling.ConflictReason `json:"reasons"`
}

// serviceError translates scheduling errors into HTTP responses. Anything
// unrecognized is a 500 with the detail kept out of the body.
func serviceError(w http.ResponseWriter, logger *logging.Logger, err error) {
	var ve *scheduling.ValidationError
	if errors.As(err, &ve) {
		jsonError(w, ve.Error(), http.StatusUnprocessableEntity)
		return
	}
	if ce, ok := scheduling.AsConflict(err); ok {
		writeJSON(w, http.StatusConflict, conflictResponse{
			Error:   ce.Error(),
			Reasons: ce.Reasons,
		})
		return
	}
	var ite *scheduling.InvalidTransitionError
	if errors.As(err, &ite) {
		jsonError(w, ite.Error(), http.StatusConflict)
		return
	}
	if errors.Is(err, scheduling.ErrNotFound) {
		jsonError(w, "appointment not found", http.StatusNotFound)
		return
	}
	if errors.Is(err, scheduling.ErrConcurrentUpdate) {
		jsonError(w, "appointment was modified concurrently, retry", http.StatusConflict)
		return
	}
	logger.Error("request failed", "error", err)
	jsonError(w, "internal error", http.StatusInternalServerError)
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

// parseTime accepts RFC 3339 timestamps and naive local timestamps. A naive
// value is interpreted in the business timezone; a zoned value is converted.
// Either way the result is a UTC instant.
func parseTime(raw string, norm *clock.Normalizer) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", raw, norm.Location())
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
