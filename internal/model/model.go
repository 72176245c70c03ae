// Package model defines the core domain types for the event booking system.
package model

import (
	"encoding/json"
	"time"
)

// Role is the coarse authorization class of an authenticated caller.
type Role string

const (
	RoleOrganizer Role = "ORGANIZER"
	RoleCustomer  Role = "CUSTOMER"
)

// Principal is the authenticated caller handed to the service layer by the
// request layer. Credential storage and token issuance live elsewhere.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Event represents a bookable event created by an organizer.
type Event struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description,omitempty"`
	Date             time.Time `json:"date"`
	Location         string    `json:"location"`
	Capacity         int       `json:"capacity"`
	AvailableTickets int       `json:"available_tickets"`
	Price            float64   `json:"price"`
	OrganizerID      string    `json:"organizer_id"`
	IsPublished      bool      `json:"is_published"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Booked returns the number of tickets held by active bookings.
func (e *Event) Booked() int {
	return e.Capacity - e.AvailableTickets
}

// BookingStatus is the lifecycle state of a booking. Bookings move from
// ACTIVE to CANCELLED and never back.
type BookingStatus string

const (
	BookingActive    BookingStatus = "ACTIVE"
	BookingCancelled BookingStatus = "CANCELLED"
)

// Booking represents a customer's reservation of tickets for one event.
type Booking struct {
	ID         string        `json:"id"`
	EventID    string        `json:"event_id"`
	UserID     string        `json:"user_id"`
	UserEmail  string        `json:"user_email,omitempty"`
	Tickets    int           `json:"tickets"`
	TotalPrice float64       `json:"total_price"`
	Status     BookingStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`

	// Event is populated by listing queries only.
	Event *EventSummary `json:"event,omitempty"`
}

// IsActive reports whether the booking still counts against capacity.
func (b *Booking) IsActive() bool {
	return b.Status == BookingActive
}

// Contact returns the address notifications for this booking should go to.
func (b *Booking) Contact() string {
	if b.UserEmail != "" {
		return b.UserEmail
	}
	return b.UserID
}

// EventSummary is the slice of an event shown next to a customer's booking.
type EventSummary struct {
	Title    string    `json:"title"`
	Date     time.Time `json:"date"`
	Location string    `json:"location"`
	Price    float64   `json:"price"`
}

// JobType tags a deferred unit of work so the processor can dispatch it.
type JobType string

const (
	JobBookingConfirmation     JobType = "BOOKING_CONFIRMATION"
	JobEventUpdateNotification JobType = "EVENT_UPDATE_NOTIFICATION"
)

// Job is a unit of best-effort side-effect work carried by the queue.
// Payload is opaque to the queue itself.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"data"`
	Attempts  int             `json:"attempts,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// BookingConfirmationPayload is the payload of a BOOKING_CONFIRMATION job.
type BookingConfirmationPayload struct {
	BookingID  string  `json:"booking_id"`
	EventID    string  `json:"event_id"`
	UserID     string  `json:"user_id"`
	UserEmail  string  `json:"user_email"`
	EventTitle string  `json:"event_title"`
	Tickets    int     `json:"tickets"`
	TotalPrice float64 `json:"total_price"`
}

// EventUpdatePayload is the payload of an EVENT_UPDATE_NOTIFICATION job.
type EventUpdatePayload struct {
	EventID       string   `json:"event_id"`
	EventTitle    string   `json:"event_title"`
	CustomerCount int      `json:"customer_count"`
	Customers     []string `json:"customers"`
	UpdatedFields []string `json:"updated_fields"`
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	Location    string    `json:"location"`
	Capacity    int       `json:"capacity"`
	Price       float64   `json:"price"`
	IsPublished *bool     `json:"is_published,omitempty"`
}

// UpdateEventRequest is a partial update; nil fields are left untouched.
type UpdateEventRequest struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Date        *time.Time `json:"date,omitempty"`
	Location    *string    `json:"location,omitempty"`
	Capacity    *int       `json:"capacity,omitempty"`
	Price       *float64   `json:"price,omitempty"`
	IsPublished *bool      `json:"is_published,omitempty"`
}

// UpdateEventResult is the updated event plus how many customers will hear about it.
type UpdateEventResult struct {
	Event    *Event `json:"event"`
	Notified int    `json:"notified"`
}

// ReserveRequest is the payload for booking tickets.
type ReserveRequest struct {
	EventID string `json:"event_id"`
	Tickets int    `json:"tickets"`
}

// Response is the JSON envelope every API response uses.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Count   *int   `json:"count,omitempty"`
	Message string `json:"message,omitempty"`
}
