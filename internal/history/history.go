// Package history is the append-only audit trail for appointment mutations.
// One immutable row is written per create/update/cancel/delete, inside the
// same transaction as the state change. There is deliberately no update or
// delete API: the ledger records values that may no longer exist anywhere
// else, such as the final state of a cancelled booking.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Action classifies the mutation a row records.
type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionCancelled Action = "cancelled"
	ActionDeleted   Action = "deleted"
)

// Valid reports whether a is a defined action.
func (a Action) Valid() bool {
	switch a {
	case ActionCreated, ActionUpdated, ActionCancelled, ActionDeleted:
		return true
	}
	return false
}

// Entry is one immutable audit row. PreviousValues is null on create,
// NewValues is null on delete. The client/service/staff/time/status/amount
// columns are denormalized copies for fast querying.
type Entry struct {
	ID              int64           `json:"id"`
	AppointmentID   int64           `json:"appointment_id"`
	Action          Action          `json:"action"`
	ActorID         *int64          `json:"actor_id,omitempty"`
	ActorRole       string          `json:"actor_role"`
	PreviousValues  json.RawMessage `json:"previous_values,omitempty"`
	NewValues       json.RawMessage `json:"new_values,omitempty"`
	ClientID        int64           `json:"client_id"`
	ServiceID       int64           `json:"service_id"`
	StaffID         int64           `json:"staff_id"`
	StartAt         time.Time       `json:"start_at"`
	EndAt           time.Time       `json:"end_at"`
	Status          string          `json:"status"`
	AmountCents     int64           `json:"amount_cents"`
	Reason          string          `json:"reason,omitempty"`
	SystemGenerated bool            `json:"system_generated"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Querier is the pgx surface list queries run against.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists and queries the audit trail.
type Repository struct {
	pool Querier
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool Querier) *Repository {
	if pool == nil {
		panic("history: pgx pool required")
	}
	return &Repository{pool: pool}
}

// Append inserts one audit row inside the caller's transaction. It must not
// be deferred: the enclosing operation fails if the append fails.
func (r *Repository) Append(ctx context.Context, tx pgx.Tx, e *Entry) error {
	if !e.Action.Valid() {
		return fmt.Errorf("history: unknown action %q", e.Action)
	}
	if e.ActorRole == "" {
		e.ActorRole = "system"
	}
	row := tx.QueryRow(ctx, `
		INSERT INTO appointment_history (appointment_id, action, actor_id,
			actor_role, previous_values, new_values, client_id, service_id,
			staff_id, start_at, end_at, status, amount_cents, reason,
			system_generated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at`,
		e.AppointmentID, e.Action, e.ActorID, e.ActorRole,
		e.PreviousValues, e.NewValues, e.ClientID, e.ServiceID, e.StaffID,
		e.StartAt, e.EndAt, e.Status, e.AmountCents, e.Reason,
		e.SystemGenerated,
	)
	if err := row.Scan(&e.ID, &e.CreatedAt); err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	return nil
}

const entryColumns = `id, appointment_id, action, actor_id, actor_role,
	previous_values, new_values, client_id, service_id, staff_id, start_at,
	end_at, status, amount_cents, reason, system_generated, created_at`

// ListByAppointment returns every row for one appointment, newest first.
func (r *Repository) ListByAppointment(ctx context.Context, appointmentID int64) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM appointment_history
		WHERE appointment_id = $1
		ORDER BY created_at DESC, id DESC`, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("history: list by appointment: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// ListAll returns the global ledger, newest first, for operational review.
func (r *Repository) ListAll(ctx context.Context, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM appointment_history
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("history: list all: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.AppointmentID, &e.Action, &e.ActorID, &e.ActorRole,
			&e.PreviousValues, &e.NewValues, &e.ClientID, &e.ServiceID,
			&e.StaffID, &e.StartAt, &e.EndAt, &e.Status, &e.AmountCents,
			&e.Reason, &e.SystemGenerated, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("history: scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
