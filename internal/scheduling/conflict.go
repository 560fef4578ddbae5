package scheduling

// CheckConflict evaluates a candidate booking against the active appointments
// overlapping its window. Two independent conflict classes are checked and
// every triggered rule is reported, so callers can explain the rejection:
//
//  1. staff/location overlap: same staff member, same (or wildcard-null)
//     location, intervals intersecting as half-open ranges;
//  2. room capacity: the candidate's service maps to a room that is already
//     at capacity for any part of the window.
//
// The candidate itself is excluded by id, which makes the check reusable for
// updates. Appointments in a terminal state never conflict; cancelled rows do
// not exist in the active table at all.
func CheckConflict(candidate *Appointment, existing []Appointment, rooms *RoomDirectory) error {
	var staffIDs []int64
	for i := range existing {
		e := &existing[i]
		if e.ID == candidate.ID {
			continue
		}
		if e.Status == StatusCancelled || e.Status == StatusCompleted {
			continue
		}
		if e.StaffID != candidate.StaffID {
			continue
		}
		if !e.sameLocation(candidate) {
			continue
		}
		if e.Overlaps(candidate.StartAt, candidate.EndAt) {
			staffIDs = append(staffIDs, e.ID)
		}
	}

	var reasons []ConflictReason
	if len(staffIDs) > 0 {
		reasons = append(reasons, ConflictReason{
			Rule:           ConflictStaffOverlap,
			AppointmentIDs: staffIDs,
		})
	}

	if roomID, ok := rooms.RoomFor(candidate.ServiceID); ok {
		var occupants []int64
		for i := range existing {
			e := &existing[i]
			if e.ID == candidate.ID {
				continue
			}
			if e.Status == StatusCancelled || e.Status == StatusCompleted {
				continue
			}
			otherRoom, mapped := rooms.RoomFor(e.ServiceID)
			if !mapped || otherRoom != roomID {
				continue
			}
			if e.Overlaps(candidate.StartAt, candidate.EndAt) {
				occupants = append(occupants, e.ID)
			}
		}
		if len(occupants) >= rooms.Capacity(roomID) {
			reasons = append(reasons, ConflictReason{
				Rule:           ConflictRoomCapacity,
				AppointmentIDs: occupants,
				RoomID:         roomID,
			})
		}
	}

	if len(reasons) > 0 {
		return &ConflictError{Reasons: reasons}
	}
	return nil
}
