// Package cancellations holds the durable archive a cancelled appointment is
// moved into. Archive rows are created only by the cancellation transition,
// never directly by a client request, and are immutable afterwards except for
// administrative refund corrections.
package cancellations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// CancelledAppointment is the archived snapshot of a cancelled booking plus
// cancellation metadata. It outlives the appointment it was copied from.
type CancelledAppointment struct {
	ID                    int64      `json:"id"`
	OriginalAppointmentID int64      `json:"original_appointment_id"`
	ClientID              int64      `json:"client_id"`
	ServiceID             int64      `json:"service_id"`
	StaffID               int64      `json:"staff_id"`
	LocationID            *int64     `json:"location_id,omitempty"`
	StartAt               time.Time  `json:"start_at"`
	EndAt                 time.Time  `json:"end_at"`
	PaymentStatus         string     `json:"payment_status"`
	TotalAmountCents      int64      `json:"total_amount_cents"`
	Notes                 string     `json:"notes,omitempty"`
	AddOnServiceIDs       []int64    `json:"add_on_service_ids,omitempty"`
	Reason                string     `json:"reason,omitempty"`
	CancelledByID         *int64     `json:"cancelled_by_id,omitempty"`
	CancelledByRole       string     `json:"cancelled_by_role"`
	RefundAmountCents     int64      `json:"refund_amount_cents"`
	OriginalCreatedAt     time.Time  `json:"original_created_at"`
	CancelledAt           time.Time  `json:"cancelled_at"`
}

// Store persists the cancellation archive.
type Store struct {
	db *sql.DB
}

// NewStore creates the archive store.
func NewStore(db *sql.DB) *Store {
	if db == nil {
		panic("cancellations: db required")
	}
	return &Store{db: db}
}

const archiveColumns = `id, original_appointment_id, client_id, service_id,
	staff_id, location_id, start_at, end_at, payment_status,
	total_amount_cents, notes, add_on_service_ids, reason, cancelled_by_id,
	cancelled_by_role, refund_amount_cents, original_created_at, cancelled_at`

// Insert archives a snapshot. The unique constraint on
// original_appointment_id makes the call idempotent: a retry after a partial
// cancellation finds the earlier row instead of duplicating it. The persisted
// row is returned either way.
func (s *Store) Insert(ctx context.Context, c *CancelledAppointment) (*CancelledAppointment, error) {
	if c.CancelledByRole == "" {
		c.CancelledByRole = "system"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cancelled_appointments (original_appointment_id, client_id,
			service_id, staff_id, location_id, start_at, end_at, payment_status,
			total_amount_cents, notes, add_on_service_ids, reason,
			cancelled_by_id, cancelled_by_role, refund_amount_cents,
			original_created_at, cancelled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (original_appointment_id) DO NOTHING`,
		c.OriginalAppointmentID, c.ClientID, c.ServiceID, c.StaffID,
		c.LocationID, c.StartAt, c.EndAt, c.PaymentStatus,
		c.TotalAmountCents, c.Notes, pq.Array(c.AddOnServiceIDs), c.Reason,
		c.CancelledByID, c.CancelledByRole, c.RefundAmountCents,
		c.OriginalCreatedAt, c.CancelledAt,
	)
	if err != nil {
		return nil, fmt.Errorf("cancellations: insert archive: %w", err)
	}
	// On conflict the existing row from the prior attempt wins.
	return s.GetByOriginalID(ctx, c.OriginalAppointmentID)
}

// GetByOriginalID returns the archive row for an original appointment id,
// or nil when none exists.
func (s *Store) GetByOriginalID(ctx context.Context, originalID int64) (*CancelledAppointment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+archiveColumns+`
		FROM cancelled_appointments
		WHERE original_appointment_id = $1`, originalID)
	c, err := scanCancelled(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("cancellations: load archive: %w", err)
	}
	return c, nil
}

// List returns archived cancellations, newest first.
func (s *Store) List(ctx context.Context, limit, offset int) ([]CancelledAppointment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+archiveColumns+`
		FROM cancelled_appointments
		ORDER BY cancelled_at DESC, id DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("cancellations: list archive: %w", err)
	}
	defer rows.Close()

	var out []CancelledAppointment
	for rows.Next() {
		c, err := scanCancelled(rows)
		if err != nil {
			return nil, fmt.Errorf("cancellations: scan archive: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// UpdateRefundAmount is the one permitted post-archive mutation, an
// administrative refund correction.
func (s *Store) UpdateRefundAmount(ctx context.Context, originalID int64, refundCents int64) (*CancelledAppointment, error) {
	if refundCents < 0 {
		return nil, fmt.Errorf("cancellations: refund amount must be >= 0")
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE cancelled_appointments
		SET refund_amount_cents = $2
		WHERE original_appointment_id = $1`, originalID, refundCents)
	if err != nil {
		return nil, fmt.Errorf("cancellations: update refund: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, nil
	}
	return s.GetByOriginalID(ctx, originalID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCancelled(row rowScanner) (*CancelledAppointment, error) {
	var c CancelledAppointment
	var notes, reason sql.NullString
	var addOns pq.Int64Array
	err := row.Scan(
		&c.ID, &c.OriginalAppointmentID, &c.ClientID, &c.ServiceID,
		&c.StaffID, &c.LocationID, &c.StartAt, &c.EndAt, &c.PaymentStatus,
		&c.TotalAmountCents, &notes, &addOns, &reason, &c.CancelledByID,
		&c.CancelledByRole, &c.RefundAmountCents, &c.OriginalCreatedAt,
		&c.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	c.Notes = notes.String
	c.Reason = reason.String
	c.AddOnServiceIDs = []int64(addOns)
	return &c, nil
}
