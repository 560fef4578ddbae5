package cancellations

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
)

var archiveCols = []string{
	"id", "original_appointment_id", "client_id", "service_id", "staff_id",
	"location_id", "start_at", "end_at", "payment_status", "total_amount_cents",
	"notes", "add_on_service_ids", "reason", "cancelled_by_id",
	"cancelled_by_role", "refund_amount_cents", "original_created_at",
	"cancelled_at",
}

func archiveRow(c CancelledAppointment) *sqlmock.Rows {
	return sqlmock.NewRows(archiveCols).AddRow(
		c.ID, c.OriginalAppointmentID, c.ClientID, c.ServiceID, c.StaffID,
		c.LocationID, c.StartAt, c.EndAt, c.PaymentStatus, c.TotalAmountCents,
		c.Notes, pq.Int64Array(c.AddOnServiceIDs), c.Reason, c.CancelledByID,
		c.CancelledByRole, c.RefundAmountCents, c.OriginalCreatedAt,
		c.CancelledAt,
	)
}

func sampleCancelled() CancelledAppointment {
	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return CancelledAppointment{
		ID:                    3,
		OriginalAppointmentID: 7,
		ClientID:              1,
		ServiceID:             2,
		StaffID:               5,
		StartAt:               start,
		EndAt:                 start.Add(time.Hour),
		PaymentStatus:         "unpaid",
		TotalAmountCents:      8500,
		Notes:                 "first visit",
		AddOnServiceIDs:       []int64{11, 12},
		Reason:                "client request",
		CancelledByRole:       "system",
		OriginalCreatedAt:     created,
		CancelledAt:           created.Add(48 * time.Hour),
	}
}

func TestInsertArchivesSnapshot(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()
	store := NewStore(db)

	want := sampleCancelled()
	mock.ExpectExec("INSERT INTO cancelled_appointments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id").WithArgs(int64(7)).
		WillReturnRows(archiveRow(want))

	in := want
	in.ID = 0
	got, err := store.Insert(context.Background(), &in)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if got.ID != 3 || got.OriginalAppointmentID != 7 {
		t.Fatalf("unexpected archive row: %+v", got)
	}
	if len(got.AddOnServiceIDs) != 2 || got.AddOnServiceIDs[0] != 11 {
		t.Fatalf("add-ons not round-tripped: %+v", got.AddOnServiceIDs)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertRetryReturnsExistingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()
	store := NewStore(db)

	want := sampleCancelled()

	// The unique constraint swallows the duplicate insert.
	mock.ExpectExec("INSERT INTO cancelled_appointments").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT id").WithArgs(int64(7)).
		WillReturnRows(archiveRow(want))

	in := want
	in.ID = 0
	in.Reason = "retry with different reason"
	got, err := store.Insert(context.Background(), &in)
	if err != nil {
		t.Fatalf("retry insert failed: %v", err)
	}
	if got.Reason != "client request" {
		t.Fatalf("retry must not overwrite the original row: %+v", got)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetByOriginalIDMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()
	store := NewStore(db)

	mock.ExpectQuery("SELECT id").WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(archiveCols))

	got, err := store.GetByOriginalID(context.Background(), 99)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing row, got %+v", got)
	}
}

func TestUpdateRefundAmount(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()
	store := NewStore(db)

	want := sampleCancelled()
	want.RefundAmountCents = 2500

	mock.ExpectExec("UPDATE cancelled_appointments").
		WithArgs(int64(7), int64(2500)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id").WithArgs(int64(7)).
		WillReturnRows(archiveRow(want))

	got, err := store.UpdateRefundAmount(context.Background(), 7, 2500)
	if err != nil {
		t.Fatalf("refund update failed: %v", err)
	}
	if got.RefundAmountCents != 2500 {
		t.Fatalf("refund not applied: %+v", got)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateRefundAmountMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()
	store := NewStore(db)

	mock.ExpectExec("UPDATE cancelled_appointments").
		WithArgs(int64(99), int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	got, err := store.UpdateRefundAmount(context.Background(), 99, 100)
	if err != nil {
		t.Fatalf("refund update errored: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing row, got %+v", got)
	}
}

func TestUpdateRefundAmountRejectsNegative(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()
	store := NewStore(db)

	if _, err := store.UpdateRefundAmount(context.Background(), 7, -1); err == nil {
		t.Fatal("expected negative refund to be rejected")
	}
}

func TestListOrdersNewestFirst(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()
	store := NewStore(db)

	a := sampleCancelled()
	b := sampleCancelled()
	b.ID = 4
	b.OriginalAppointmentID = 8
	b.CancelledAt = a.CancelledAt.Add(time.Hour)

	rows := sqlmock.NewRows(archiveCols)
	for _, c := range []CancelledAppointment{b, a} {
		rows.AddRow(c.ID, c.OriginalAppointmentID, c.ClientID, c.ServiceID,
			c.StaffID, c.LocationID, c.StartAt, c.EndAt, c.PaymentStatus,
			c.TotalAmountCents, c.Notes, pq.Int64Array(c.AddOnServiceIDs),
			c.Reason, c.CancelledByID, c.CancelledByRole, c.RefundAmountCents,
			c.OriginalCreatedAt, c.CancelledAt)
	}
	mock.ExpectQuery("SELECT id").WithArgs(50, 0).WillReturnRows(rows)

	got, err := store.List(context.Background(), 50, 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != 4 || got[1].ID != 3 {
		t.Fatalf("unexpected rows: %+v", got)
	}
}
