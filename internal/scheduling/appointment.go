// Package scheduling owns the appointment lifecycle: the conflict resolver
// that decides whether a proposed booking may be accepted, the status state
// machine, and the transactional service that keeps every mutation atomic
// with its audit-trail entry.
package scheduling

import "time"

// Status is the canonical appointment state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the defined states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether the state machine permits from → to.
// pending → confirmed → completed, with cancelled reachable from pending or
// confirmed only. A no-op transition is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusPending:
		return to == StatusConfirmed || to == StatusCancelled
	case StatusConfirmed:
		return to == StatusCompleted || to == StatusCancelled
	}
	return false
}

// Appointment is the mutable, currently-active booking record. Cancelled
// appointments do not exist here; they are moved to the cancellation archive.
type Appointment struct {
	ID               int64      `json:"id"`
	ClientID         int64      `json:"client_id"`
	ServiceID        int64      `json:"service_id"`
	StaffID          int64      `json:"staff_id"`
	LocationID       *int64     `json:"location_id,omitempty"`
	StartAt          time.Time  `json:"start_at"`
	EndAt            time.Time  `json:"end_at"`
	Status           Status     `json:"status"`
	PaymentStatus    string     `json:"payment_status"`
	TotalAmountCents int64      `json:"total_amount_cents"`
	Notes            string     `json:"notes,omitempty"`
	AddOnServiceIDs  []int64    `json:"add_on_service_ids,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Patch is a partial update to an appointment. Nil fields are left unchanged.
type Patch struct {
	ClientID         *int64     `json:"client_id,omitempty"`
	ServiceID        *int64     `json:"service_id,omitempty"`
	StaffID          *int64     `json:"staff_id,omitempty"`
	LocationID       *int64     `json:"location_id,omitempty"`
	ClearLocation    bool       `json:"clear_location,omitempty"`
	StartAt          *time.Time `json:"start_at,omitempty"`
	EndAt            *time.Time `json:"end_at,omitempty"`
	Status           *Status    `json:"status,omitempty"`
	PaymentStatus    *string    `json:"payment_status,omitempty"`
	TotalAmountCents *int64     `json:"total_amount_cents,omitempty"`
	Notes            *string    `json:"notes,omitempty"`
	AddOnServiceIDs  []int64    `json:"add_on_service_ids,omitempty"`

	// Reason accompanies a transition into cancelled.
	Reason string `json:"reason,omitempty"`
}

// TouchesSchedule reports whether the patch changes any field the conflict
// resolver cares about.
func (p Patch) TouchesSchedule() bool {
	return p.StartAt != nil || p.EndAt != nil || p.StaffID != nil ||
		p.ServiceID != nil || p.LocationID != nil || p.ClearLocation
}

// Apply returns a copy of a with the patch applied.
func (p Patch) Apply(a Appointment) Appointment {
	if p.ClientID != nil {
		a.ClientID = *p.ClientID
	}
	if p.ServiceID != nil {
		a.ServiceID = *p.ServiceID
	}
	if p.StaffID != nil {
		a.StaffID = *p.StaffID
	}
	if p.ClearLocation {
		a.LocationID = nil
	} else if p.LocationID != nil {
		v := *p.LocationID
		a.LocationID = &v
	}
	if p.StartAt != nil {
		a.StartAt = *p.StartAt
	}
	if p.EndAt != nil {
		a.EndAt = *p.EndAt
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.PaymentStatus != nil {
		a.PaymentStatus = *p.PaymentStatus
	}
	if p.TotalAmountCents != nil {
		a.TotalAmountCents = *p.TotalAmountCents
	}
	if p.Notes != nil {
		a.Notes = *p.Notes
	}
	if p.AddOnServiceIDs != nil {
		a.AddOnServiceIDs = append([]int64(nil), p.AddOnServiceIDs...)
	}
	return a
}

// Overlaps reports half-open interval intersection with [start, end).
// Back-to-back appointments do not overlap.
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return a.StartAt.Before(end) && a.EndAt.After(start)
}

func (a *Appointment) sameLocation(other *Appointment) bool {
	// A missing location on either side matches any location.
	if a.LocationID == nil || other.LocationID == nil {
		return true
	}
	return *a.LocationID == *other.LocationID
}
