// Package repository defines the persistence contract of the event booking
// system. Implementations live in the postgres and sqlite subpackages.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Shivanand-hulikatti/event-booking/internal/model"
)

// ErrEventNotFound is returned when a requested event does not exist.
var ErrEventNotFound = errors.New("event not found")

// ErrBookingNotFound is returned when a requested booking does not exist.
var ErrBookingNotFound = errors.New("booking not found")

// ErrDuplicateBooking is returned when inserting a second active booking for
// the same (user, event) pair trips the unique index.
var ErrDuplicateBooking = errors.New("active booking already exists for this event")

// Store is the durable store. Reads outside InTx are snapshot reads; every
// read-check-write on ticket inventory must go through InTx.
type Store interface {
	CreateEvent(ctx context.Context, event *model.Event) error
	EventByID(ctx context.Context, id string) (*model.Event, error)
	// ListPublishedEvents returns published events dated at or after from,
	// earliest first.
	ListPublishedEvents(ctx context.Context, from time.Time) ([]model.Event, error)

	BookingByID(ctx context.Context, id string) (*model.Booking, error)
	// ListBookingsByUser returns a user's bookings newest first, with the
	// event summary attached.
	ListBookingsByUser(ctx context.Context, userID string) ([]model.Booking, error)

	// InTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise; fn's error is returned as is.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}

// Tx is the set of operations available inside a transaction. Lock* methods
// hold the row until the transaction ends, so two transactions locking the
// same event are serialised.
type Tx interface {
	LockEvent(ctx context.Context, id string) (*model.Event, error)
	// SaveEvent writes every mutable column of the event.
	SaveEvent(ctx context.Context, event *model.Event) error

	LockBooking(ctx context.Context, id string) (*model.Booking, error)
	// ActiveBooking returns the user's ACTIVE booking for the event or
	// ErrBookingNotFound.
	ActiveBooking(ctx context.Context, userID, eventID string) (*model.Booking, error)
	// ActiveBookings returns every ACTIVE booking for the event.
	ActiveBookings(ctx context.Context, eventID string) ([]model.Booking, error)
	InsertBooking(ctx context.Context, booking *model.Booking) error
	SetBookingStatus(ctx context.Context, id string, status model.BookingStatus, at time.Time) error
}
