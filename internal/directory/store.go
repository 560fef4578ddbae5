// Package directory is the entity store for the collaborators the booking
// engine reads: clients, staff, services, and rooms. Read paths return nil
// for unknown ids rather than an error.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Client is a salon customer, including the per-category notification opt-in
// flags the automation dispatcher consults before sending anything.
type Client struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`

	EmailAppointmentReminders bool `json:"email_appointment_reminders"`
	SMSAppointmentReminders   bool `json:"sms_appointment_reminders"`
	EmailAccountNotices       bool `json:"email_account_notices"`
	SMSAccountNotices         bool `json:"sms_account_notices"`
	EmailPromotions           bool `json:"email_promotions"`
	SMSPromotions             bool `json:"sms_promotions"`

	CreatedAt time.Time `json:"created_at"`
}

// FullName joins the client's name parts.
func (c *Client) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Staff is a service provider.
type Staff struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// Service is a bookable treatment. RoomID is set when the service occupies a
// capacity-bearing room.
type Service struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"`
	PriceCents      int64     `json:"price_cents"`
	RoomID          *int64    `json:"room_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Room is a shared resource with a concurrent-occupancy capacity of at least 1.
type Room struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
}

// Store reads directory entities from the relational store.
type Store struct {
	db *sql.DB
}

// NewStore creates a directory store.
func NewStore(db *sql.DB) *Store {
	if db == nil {
		panic("directory: db required")
	}
	return &Store{db: db}
}

// GetClient returns a client by id, nil when absent.
func (s *Store) GetClient(ctx context.Context, id int64) (*Client, error) {
	var c Client
	err := s.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, email, phone,
		       email_appointment_reminders, sms_appointment_reminders,
		       email_account_notices, sms_account_notices,
		       email_promotions, sms_promotions, created_at
		FROM clients WHERE id = $1`, id).Scan(
		&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone,
		&c.EmailAppointmentReminders, &c.SMSAppointmentReminders,
		&c.EmailAccountNotices, &c.SMSAccountNotices,
		&c.EmailPromotions, &c.SMSPromotions, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("directory: load client: %w", err)
	}
	return &c, nil
}

// GetStaff returns a staff member by id, nil when absent.
func (s *Store) GetStaff(ctx context.Context, id int64) (*Staff, error) {
	var st Staff
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone, created_at
		FROM staff WHERE id = $1`, id).Scan(
		&st.ID, &st.Name, &st.Email, &st.Phone, &st.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("directory: load staff: %w", err)
	}
	return &st, nil
}

// GetService returns a service by id, nil when absent.
func (s *Store) GetService(ctx context.Context, id int64) (*Service, error) {
	var sv Service
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, duration_minutes, price_cents, room_id, created_at
		FROM services WHERE id = $1`, id).Scan(
		&sv.ID, &sv.Name, &sv.DurationMinutes, &sv.PriceCents, &sv.RoomID, &sv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("directory: load service: %w", err)
	}
	return &sv, nil
}

// GetRoom returns a room by id, nil when absent.
func (s *Store) GetRoom(ctx context.Context, id int64) (*Room, error) {
	var r Room
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, capacity FROM rooms WHERE id = $1`, id).Scan(
		&r.ID, &r.Name, &r.Capacity,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("directory: load room: %w", err)
	}
	return &r, nil
}

// ServiceRooms returns the service→room binding plus room capacities, the
// inputs the scheduling room directory precomputes its lookup from.
func (s *Store) ServiceRooms(ctx context.Context) (map[int64]int64, map[int64]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.room_id, r.capacity
		FROM services s
		JOIN rooms r ON r.id = s.room_id
		WHERE s.room_id IS NOT NULL`)
	if err != nil {
		return nil, nil, fmt.Errorf("directory: list service rooms: %w", err)
	}
	defer rows.Close()

	serviceRoom := map[int64]int64{}
	capacity := map[int64]int{}
	for rows.Next() {
		var serviceID, roomID int64
		var roomCap int
		if err := rows.Scan(&serviceID, &roomID, &roomCap); err != nil {
			return nil, nil, fmt.Errorf("directory: scan service room: %w", err)
		}
		serviceRoom[serviceID] = roomID
		capacity[roomID] = roomCap
	}
	return serviceRoom, capacity, rows.Err()
}
