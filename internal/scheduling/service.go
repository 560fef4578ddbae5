package scheduling

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/glowdesk/salon-platform/internal/automation"
	"github.com/glowdesk/salon-platform/internal/cancellations"
	"github.com/glowdesk/salon-platform/internal/clock"
	"github.com/glowdesk/salon-platform/internal/events"
	"github.com/glowdesk/salon-platform/internal/history"
	"github.com/glowdesk/salon-platform/internal/observability/metrics"
	"github.com/glowdesk/salon-platform/pkg/logging"
)

var schedulingTracer = otel.Tracer("glowdesk.internal.scheduling")

// HistoryAppender writes one audit row inside the operation's transaction.
type HistoryAppender interface {
	Append(ctx context.Context, tx pgx.Tx, e *history.Entry) error
}

// OutboxInserter records a lifecycle event inside the operation's transaction.
type OutboxInserter interface {
	Insert(ctx context.Context, tx pgx.Tx, evt events.LifecycleEvent) (uuid.UUID, error)
}

// ArchiveStore is the cancellation archive surface the service needs.
type ArchiveStore interface {
	Insert(ctx context.Context, c *cancellations.CancelledAppointment) (*cancellations.CancelledAppointment, error)
	GetByOriginalID(ctx context.Context, originalID int64) (*cancellations.CancelledAppointment, error)
}

// Actor identifies who performed an operation; the zero value means the
// system itself.
type Actor struct {
	ID   *int64
	Role string
}

// CancelParams carries cancellation metadata.
type CancelParams struct {
	Reason string
	Actor  Actor
}

// UpdateResult is what an update produced: either the patched appointment,
// or - when the patch transitioned status into cancelled - the archive row.
type UpdateResult struct {
	Appointment *Appointment
	Cancelled   *cancellations.CancelledAppointment
}

// Service owns appointment lifecycle transitions. Every mutation runs as one
// transaction: conflict check, row write, audit append, and outbox insert
// commit together or not at all.
type Service struct {
	pool    PgxPool
	repo    *Repository
	history HistoryAppender
	outbox  OutboxInserter
	archive ArchiveStore
	rooms   *RoomDirectory
	clk     clock.Clock
	logger  *logging.Logger
	metrics *metrics.BookingMetrics
}

// NewService constructs the lifecycle service.
func NewService(pool PgxPool, repo *Repository, hist HistoryAppender, outbox OutboxInserter, archive ArchiveStore, rooms *RoomDirectory, clk clock.Clock, logger *logging.Logger, m *metrics.BookingMetrics) *Service {
	if pool == nil {
		panic("scheduling: pgx pool required")
	}
	if repo == nil {
		panic("scheduling: repository required")
	}
	if hist == nil {
		panic("scheduling: history appender required")
	}
	if outbox == nil {
		panic("scheduling: outbox required")
	}
	if archive == nil {
		panic("scheduling: archive store required")
	}
	if rooms == nil {
		rooms = NewRoomDirectory()
	}
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		pool:    pool,
		repo:    repo,
		history: hist,
		outbox:  outbox,
		archive: archive,
		rooms:   rooms,
		clk:     clk,
		logger:  logger,
		metrics: m,
	}
}

// begin opens a serializable transaction. The conflict resolver reads then
// decides, so anything weaker would let two concurrent writers both pass the
// check; serialization failures surface as ErrConcurrentUpdate.
func (s *Service) begin(ctx context.Context) (pgx.Tx, error) {
	return s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
}

// Get loads one active appointment.
func (s *Service) Get(ctx context.Context, id int64) (*Appointment, error) {
	a, err := s.repo.Get(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrNotFound
	}
	return a, nil
}

// ListBetween returns appointments intersecting [start, end).
func (s *Service) ListBetween(ctx context.Context, start, end time.Time) ([]Appointment, error) {
	return s.repo.ListBetween(ctx, nil, start, end)
}

// Create books a new appointment. The conflict check and the insert share a
// transaction so a concurrent colliding writer surfaces as a retryable
// serialization error rather than a double booking.
func (s *Service) Create(ctx context.Context, a *Appointment) (*Appointment, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.create")
	defer span.End()
	started := s.clk.Now()

	if err := s.validateNew(a); err != nil {
		return nil, err
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduling: begin create: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	existing, err := s.repo.ListActiveBetween(ctx, tx, a.StartAt, a.EndAt, 0)
	if err != nil {
		return nil, serializationRetry(err)
	}
	if err := CheckConflict(a, existing, s.rooms); err != nil {
		s.observeConflict(err)
		return nil, err
	}

	if err := s.repo.Insert(ctx, tx, a); err != nil {
		return nil, serializationRetry(err)
	}

	newSnap, err := snapshot(a)
	if err != nil {
		return nil, err
	}
	if err := s.history.Append(ctx, tx, &history.Entry{
		AppointmentID:   a.ID,
		Action:          history.ActionCreated,
		ActorRole:       "system",
		NewValues:       newSnap,
		ClientID:        a.ClientID,
		ServiceID:       a.ServiceID,
		StaffID:         a.StaffID,
		StartAt:         a.StartAt,
		EndAt:           a.EndAt,
		Status:          string(a.Status),
		AmountCents:     a.TotalAmountCents,
		SystemGenerated: true,
	}); err != nil {
		return nil, err
	}

	if _, err := s.outbox.Insert(ctx, tx, s.lifecycleEvent(a, automation.TriggerBookingConfirmation, "")); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, serializationRetry(fmt.Errorf("scheduling: commit create: %w", err))
	}

	span.SetAttributes(attribute.Int64("glowdesk.appointment_id", a.ID))
	s.metrics.ObserveCreated()
	s.metrics.ObserveOperation("create", s.clk.Now().Sub(started).Seconds())
	s.logger.Info("appointment created",
		"appointment_id", a.ID, "staff_id", a.StaffID, "client_id", a.ClientID,
		"start_at", a.StartAt, "status", a.Status)
	return a, nil
}

// Update applies a partial patch. Scheduling-relevant changes re-run the
// conflict resolver against all other active appointments; a patch that
// moves status into cancelled routes through the cancellation archive.
func (s *Service) Update(ctx context.Context, id int64, patch Patch, actor Actor) (*UpdateResult, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.update")
	defer span.End()
	span.SetAttributes(attribute.Int64("glowdesk.appointment_id", id))

	if patch.Status != nil && *patch.Status == StatusCancelled {
		archived, err := s.cancel(ctx, id, CancelParams{Reason: patch.Reason, Actor: actor}, history.ActionCancelled)
		if err != nil {
			return nil, err
		}
		return &UpdateResult{Cancelled: archived}, nil
	}

	started := s.clk.Now()
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduling: begin update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, ErrNotFound
	}

	next := patch.Apply(*cur)
	if err := s.validatePatched(cur, &next, patch); err != nil {
		return nil, err
	}

	if patch.TouchesSchedule() {
		existing, err := s.repo.ListActiveBetween(ctx, tx, next.StartAt, next.EndAt, id)
		if err != nil {
			return nil, serializationRetry(err)
		}
		if err := CheckConflict(&next, existing, s.rooms); err != nil {
			s.observeConflict(err)
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, tx, &next); err != nil {
		return nil, serializationRetry(err)
	}

	prevSnap, err := snapshot(cur)
	if err != nil {
		return nil, err
	}
	newSnap, err := snapshot(&next)
	if err != nil {
		return nil, err
	}
	if err := s.history.Append(ctx, tx, &history.Entry{
		AppointmentID:   next.ID,
		Action:          history.ActionUpdated,
		ActorID:         actor.ID,
		ActorRole:       actor.Role,
		PreviousValues:  prevSnap,
		NewValues:       newSnap,
		ClientID:        next.ClientID,
		ServiceID:       next.ServiceID,
		StaffID:         next.StaffID,
		StartAt:         next.StartAt,
		EndAt:           next.EndAt,
		Status:          string(next.Status),
		AmountCents:     next.TotalAmountCents,
		SystemGenerated: actor.ID == nil,
	}); err != nil {
		return nil, err
	}

	// Payment completion and service completion each feed their own trigger.
	if patch.PaymentStatus != nil && *patch.PaymentStatus == "paid" && cur.PaymentStatus != "paid" {
		if _, err := s.outbox.Insert(ctx, tx, s.lifecycleEvent(&next, automation.TriggerAfterPayment, "")); err != nil {
			return nil, err
		}
	}
	if next.Status == StatusCompleted && cur.Status != StatusCompleted {
		if _, err := s.outbox.Insert(ctx, tx, s.lifecycleEvent(&next, automation.TriggerFollowUp, "")); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, serializationRetry(fmt.Errorf("scheduling: commit update: %w", err))
	}

	s.metrics.ObserveOperation("update", s.clk.Now().Sub(started).Seconds())
	s.logger.Info("appointment updated", "appointment_id", next.ID, "status", next.Status)
	return &UpdateResult{Appointment: &next}, nil
}

// Cancel moves an appointment into the cancellation archive. Retrying a
// partially-completed cancellation is safe: the archive row is keyed on the
// original appointment id, and a retry performs only the missing removal.
func (s *Service) Cancel(ctx context.Context, id int64, p CancelParams) (*cancellations.CancelledAppointment, error) {
	return s.cancel(ctx, id, p, history.ActionCancelled)
}

// Delete is the alternate cancellation path: the row still travels through
// the archive, but the ledger records a delete.
func (s *Service) Delete(ctx context.Context, id int64, p CancelParams) (*cancellations.CancelledAppointment, error) {
	if p.Reason == "" {
		p.Reason = "deleted"
	}
	return s.cancel(ctx, id, p, history.ActionDeleted)
}

func (s *Service) cancel(ctx context.Context, id int64, p CancelParams, action history.Action) (*cancellations.CancelledAppointment, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.cancel")
	defer span.End()
	span.SetAttributes(attribute.Int64("glowdesk.appointment_id", id))
	started := s.clk.Now()

	cur, err := s.repo.Get(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		// Retry of a finished cancellation: the archive row is the answer.
		archived, err := s.archive.GetByOriginalID(ctx, id)
		if err != nil {
			return nil, err
		}
		if archived != nil {
			return archived, nil
		}
		return nil, ErrNotFound
	}

	if !CanTransition(cur.Status, StatusCancelled) {
		return nil, &InvalidTransitionError{From: cur.Status, To: StatusCancelled}
	}

	role := p.Actor.Role
	if role == "" {
		role = "system"
	}
	archived, err := s.archive.Insert(ctx, &cancellations.CancelledAppointment{
		OriginalAppointmentID: cur.ID,
		ClientID:              cur.ClientID,
		ServiceID:             cur.ServiceID,
		StaffID:               cur.StaffID,
		LocationID:            cur.LocationID,
		StartAt:               cur.StartAt,
		EndAt:                 cur.EndAt,
		PaymentStatus:         cur.PaymentStatus,
		TotalAmountCents:      cur.TotalAmountCents,
		Notes:                 cur.Notes,
		AddOnServiceIDs:       cur.AddOnServiceIDs,
		Reason:                p.Reason,
		CancelledByID:         p.Actor.ID,
		CancelledByRole:       role,
		RefundAmountCents:     0,
		OriginalCreatedAt:     cur.CreatedAt,
		CancelledAt:           s.clk.Now(),
	})
	if err != nil {
		return nil, err
	}

	// The archive snapshot exists before the active row goes away, and the
	// ledger entry commits with the removal; a reader can never observe a
	// vanished appointment with no trace.
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduling: begin cancel: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	deleted, err := s.repo.Delete(ctx, tx, cur.ID)
	if err != nil {
		return nil, serializationRetry(err)
	}
	if !deleted {
		// A concurrent cancel removed the row after our read; its ledger
		// entry and event already exist, so this attempt writes nothing.
		_ = tx.Rollback(ctx)
		s.logger.Info("appointment already cancelled", "appointment_id", cur.ID)
		return archived, nil
	}

	prevSnap, err := snapshot(cur)
	if err != nil {
		return nil, err
	}
	newVals, err := json.Marshal(map[string]string{
		"status": string(StatusCancelled),
		"reason": p.Reason,
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling: marshal cancel values: %w", err)
	}
	if err := s.history.Append(ctx, tx, &history.Entry{
		AppointmentID:   cur.ID,
		Action:          action,
		ActorID:         p.Actor.ID,
		ActorRole:       role,
		PreviousValues:  prevSnap,
		NewValues:       newVals,
		ClientID:        cur.ClientID,
		ServiceID:       cur.ServiceID,
		StaffID:         cur.StaffID,
		StartAt:         cur.StartAt,
		EndAt:           cur.EndAt,
		Status:          string(StatusCancelled),
		AmountCents:     cur.TotalAmountCents,
		Reason:          p.Reason,
		SystemGenerated: p.Actor.ID == nil,
	}); err != nil {
		return nil, err
	}

	if _, err := s.outbox.Insert(ctx, tx, s.lifecycleEvent(cur, automation.TriggerCancellation, p.Reason)); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, serializationRetry(fmt.Errorf("scheduling: commit cancel: %w", err))
	}

	s.metrics.ObserveCancellation()
	s.metrics.ObserveOperation("cancel", s.clk.Now().Sub(started).Seconds())
	s.logger.Info("appointment cancelled",
		"appointment_id", cur.ID, "reason", p.Reason, "action", action)
	return archived, nil
}

func (s *Service) validateNew(a *Appointment) error {
	if a.ClientID <= 0 {
		return &ValidationError{Field: "client_id", Msg: "required"}
	}
	if a.ServiceID <= 0 {
		return &ValidationError{Field: "service_id", Msg: "required"}
	}
	if a.StaffID <= 0 {
		return &ValidationError{Field: "staff_id", Msg: "required"}
	}
	if a.StartAt.IsZero() || a.EndAt.IsZero() {
		return &ValidationError{Field: "start_at", Msg: "start and end required"}
	}
	if !a.StartAt.Before(a.EndAt) {
		return &ValidationError{Field: "end_at", Msg: "must be after start_at"}
	}
	switch a.Status {
	case "":
		a.Status = StatusPending
	case StatusPending, StatusConfirmed:
		// Callers may book directly into confirmed.
	default:
		return &ValidationError{Field: "status", Msg: fmt.Sprintf("cannot create with status %q", a.Status)}
	}
	if a.PaymentStatus == "" {
		a.PaymentStatus = "unpaid"
	}
	return nil
}

func (s *Service) validatePatched(cur, next *Appointment, patch Patch) error {
	if !next.StartAt.Before(next.EndAt) {
		return &ValidationError{Field: "end_at", Msg: "must be after start_at"}
	}
	if patch.Status != nil {
		if !next.Status.Valid() {
			return &ValidationError{Field: "status", Msg: fmt.Sprintf("unknown status %q", next.Status)}
		}
		if !CanTransition(cur.Status, next.Status) {
			return &InvalidTransitionError{From: cur.Status, To: next.Status}
		}
	}
	return nil
}

func (s *Service) lifecycleEvent(a *Appointment, trigger automation.Trigger, reason string) events.LifecycleEvent {
	return events.LifecycleEvent{
		Trigger:       string(trigger),
		AppointmentID: a.ID,
		ClientID:      a.ClientID,
		ServiceID:     a.ServiceID,
		StaffID:       a.StaffID,
		StartAt:       a.StartAt,
		EndAt:         a.EndAt,
		Status:        string(a.Status),
		Reason:        reason,
		OccurredAt:    s.clk.Now(),
	}
}

func (s *Service) observeConflict(err error) {
	if ce, ok := AsConflict(err); ok {
		for _, r := range ce.Reasons {
			s.metrics.ObserveConflict(string(r.Rule))
		}
	}
}

func snapshot(a *Appointment) (json.RawMessage, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("scheduling: marshal snapshot: %w", err)
	}
	return data, nil
}
