package scheduling

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when the requested appointment does not exist in
// the active table.
var ErrNotFound = errors.New("scheduling: appointment not found")

// ErrConcurrentUpdate is returned when a serializable transaction loses to a
// concurrent writer. The operation did not take effect and can be retried.
var ErrConcurrentUpdate = errors.New("scheduling: concurrent update, retry")

// serializationRetry maps a PostgreSQL serialization failure (SQLSTATE
// 40001) to ErrConcurrentUpdate and passes every other error through.
func serializationRetry(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "40001" {
		return ErrConcurrentUpdate
	}
	return err
}

// ValidationError rejects malformed input before any store access.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("scheduling: invalid %s: %s", e.Field, e.Msg)
}

// InvalidTransitionError reports an illegal state machine transition.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("scheduling: illegal transition %s -> %s", e.From, e.To)
}

// ConflictRule names which conflict class rejected a booking.
type ConflictRule string

const (
	// ConflictStaffOverlap means the staff member is double-booked at an
	// overlapping location.
	ConflictStaffOverlap ConflictRule = "staff_overlap"
	// ConflictRoomCapacity means the service's room is full for the window.
	ConflictRoomCapacity ConflictRule = "room_capacity"
)

// ConflictReason identifies one triggered rule and the offending bookings,
// letting the caller suggest an alternative slot.
type ConflictReason struct {
	Rule           ConflictRule `json:"rule"`
	AppointmentIDs []int64      `json:"appointment_ids"`
	RoomID         int64        `json:"room_id,omitempty"`
}

// ConflictError is a client-correctable rejection from the conflict resolver.
type ConflictError struct {
	Reasons []ConflictReason
}

func (e *ConflictError) Error() string {
	rules := make([]string, 0, len(e.Reasons))
	for _, r := range e.Reasons {
		rules = append(rules, string(r.Rule))
	}
	return "scheduling: booking conflict: " + strings.Join(rules, ", ")
}

// AsConflict unwraps err into a ConflictError if it is one.
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
