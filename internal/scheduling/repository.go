package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx used by repository reads and writes. Both
// *pgxpool.Pool and pgx.Tx satisfy it, so every method can run inside or
// outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgxPool is the pool surface the scheduling service needs. The service
// starts every lifecycle transaction at serializable isolation so concurrent
// conflict-check-then-write races surface as retryable errors.
type PgxPool interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Querier
}

const appointmentColumns = `id, client_id, service_id, staff_id, location_id,
	start_at, end_at, status, payment_status, total_amount_cents, notes,
	add_on_service_ids, created_at, updated_at`

// Repository provides persistence for active appointments.
type Repository struct {
	pool PgxPool
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool PgxPool) *Repository {
	if pool == nil {
		panic("scheduling: pgx pool required")
	}
	return &Repository{pool: pool}
}

func (r *Repository) querier(q Querier) Querier {
	if q == nil {
		return r.pool
	}
	return q
}

// Get loads one appointment, returning nil when absent.
func (r *Repository) Get(ctx context.Context, q Querier, id int64) (*Appointment, error) {
	row := r.querier(q).QueryRow(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scheduling: load appointment: %w", err)
	}
	return a, nil
}

// GetForUpdate loads one appointment inside a transaction with a row lock.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*Appointment, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scheduling: lock appointment: %w", err)
	}
	return a, nil
}

// Insert persists a new appointment and fills in id and timestamps.
func (r *Repository) Insert(ctx context.Context, q Querier, a *Appointment) error {
	row := r.querier(q).QueryRow(ctx, `
		INSERT INTO appointments (client_id, service_id, staff_id, location_id,
			start_at, end_at, status, payment_status, total_amount_cents, notes,
			add_on_service_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`,
		a.ClientID, a.ServiceID, a.StaffID, a.LocationID,
		a.StartAt, a.EndAt, a.Status, a.PaymentStatus, a.TotalAmountCents,
		a.Notes, a.AddOnServiceIDs,
	)
	if err := row.Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return fmt.Errorf("scheduling: insert appointment: %w", err)
	}
	return nil
}

// Update rewrites the mutable fields of an appointment.
func (r *Repository) Update(ctx context.Context, q Querier, a *Appointment) error {
	row := r.querier(q).QueryRow(ctx, `
		UPDATE appointments
		SET client_id = $2, service_id = $3, staff_id = $4, location_id = $5,
			start_at = $6, end_at = $7, status = $8, payment_status = $9,
			total_amount_cents = $10, notes = $11, add_on_service_ids = $12,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.ClientID, a.ServiceID, a.StaffID, a.LocationID,
		a.StartAt, a.EndAt, a.Status, a.PaymentStatus, a.TotalAmountCents,
		a.Notes, a.AddOnServiceIDs,
	)
	if err := row.Scan(&a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("scheduling: update appointment: %w", err)
	}
	return nil
}

// Delete removes an appointment from the active table, reporting whether a
// row was removed.
func (r *Repository) Delete(ctx context.Context, q Querier, id int64) (bool, error) {
	ct, err := r.querier(q).Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("scheduling: delete appointment: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// ListActiveBetween returns appointments the conflict resolver must consider
// for a candidate window: not completed, interval intersecting [start, end).
func (r *Repository) ListActiveBetween(ctx context.Context, q Querier, start, end time.Time, excludeID int64) ([]Appointment, error) {
	rows, err := r.querier(q).Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status NOT IN ('cancelled', 'completed')
		  AND start_at < $2 AND end_at > $1
		  AND id <> $3
		ORDER BY start_at`, start, end, excludeID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list active: %w", err)
	}
	defer rows.Close()
	return collectAppointments(rows)
}

// ListBetween returns all appointments whose interval intersects [start, end).
func (r *Repository) ListBetween(ctx context.Context, q Querier, start, end time.Time) ([]Appointment, error) {
	rows, err := r.querier(q).Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE start_at < $2 AND end_at > $1
		ORDER BY start_at`, start, end)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list range: %w", err)
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scheduling: scan appointment: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID, &a.ClientID, &a.ServiceID, &a.StaffID, &a.LocationID,
		&a.StartAt, &a.EndAt, &a.Status, &a.PaymentStatus, &a.TotalAmountCents,
		&a.Notes, &a.AddOnServiceIDs, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
