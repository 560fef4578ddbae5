package scheduling

import (
	"context"
	"fmt"
	"sync"
)

// RoomSource provides the service→room mapping and room capacities, typically
// backed by the directory store.
type RoomSource interface {
	ServiceRooms(ctx context.Context) (serviceRoom map[int64]int64, capacity map[int64]int, err error)
}

// RoomDirectory is a precomputed service→room lookup used by the conflict
// resolver. It is loaded at startup and refreshed on service mutation rather
// than derived per request, keeping each conflict check O(active bookings).
type RoomDirectory struct {
	mu          sync.RWMutex
	serviceRoom map[int64]int64
	capacity    map[int64]int
}

// NewRoomDirectory returns an empty directory.
func NewRoomDirectory() *RoomDirectory {
	return &RoomDirectory{
		serviceRoom: map[int64]int64{},
		capacity:    map[int64]int{},
	}
}

// Refresh replaces the directory contents from the source.
func (d *RoomDirectory) Refresh(ctx context.Context, src RoomSource) error {
	serviceRoom, capacity, err := src.ServiceRooms(ctx)
	if err != nil {
		return fmt.Errorf("scheduling: refresh room directory: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.serviceRoom = serviceRoom
	d.capacity = capacity
	return nil
}

// RoomFor returns the room a service occupies, if any.
func (d *RoomDirectory) RoomFor(serviceID int64) (int64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	roomID, ok := d.serviceRoom[serviceID]
	return roomID, ok
}

// Capacity returns the concurrent-occupancy limit for a room. Rooms always
// hold at least one appointment.
func (d *RoomDirectory) Capacity(roomID int64) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if c, ok := d.capacity[roomID]; ok && c >= 1 {
		return c
	}
	return 1
}

// SetServiceRoom binds a service to a room with the given capacity. Used by
// tests and by the service-mutation path between full refreshes.
func (d *RoomDirectory) SetServiceRoom(serviceID, roomID int64, capacity int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.serviceRoom[serviceID] = roomID
	if capacity >= 1 {
		d.capacity[roomID] = capacity
	}
}

// ClearServiceRoom removes a service's room binding.
func (d *RoomDirectory) ClearServiceRoom(serviceID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.serviceRoom, serviceID)
}
