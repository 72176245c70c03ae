package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Shivanand-hulikatti/event-booking/internal/lib/logger/sl"
	"github.com/Shivanand-hulikatti/event-booking/internal/metrics"
	"github.com/Shivanand-hulikatti/event-booking/internal/model"
	"github.com/Shivanand-hulikatti/event-booking/internal/repository"
	"github.com/google/uuid"
)

// ReserveTickets books req.Tickets tickets of an event for customer.
//
// The event row is locked, every constraint is checked against the freshly
// read value, the booking is inserted and the counter decremented, all in one
// transaction. A BOOKING_CONFIRMATION job is enqueued only after commit.
func (s *EventService) ReserveTickets(ctx context.Context, customer model.Principal, req model.ReserveRequest) (*model.Booking, error) {
	const op = "service.ReserveTickets"
	log := s.log.With(slog.String("op", op), slog.String("event_id", req.EventID), slog.String("user_id", customer.ID))

	switch {
	case req.Tickets <= 0:
		s.metrics.Bookings.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, newError(ErrInvalidArgument, "tickets must be greater than 0")
	case req.EventID == "":
		s.metrics.Bookings.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, newError(ErrInvalidArgument, "event id is required")
	case customer.ID == "":
		s.metrics.Bookings.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, newError(ErrInvalidArgument, "user id is required")
	}

	var (
		booking *model.Booking
		event   *model.Event
	)
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		// Step 1: lock the event row; concurrent reservations queue up here.
		ev, err := tx.LockEvent(ctx, req.EventID)
		if err != nil {
			if errors.Is(err, repository.ErrEventNotFound) {
				return newError(ErrNotFound, "event not found")
			}
			return internal(op, err)
		}
		// Drafts are invisible to customers.
		if !ev.IsPublished {
			return newError(ErrNotFound, "event not found")
		}

		now := s.now().UTC()
		if !isUpcoming(ev, now) {
			return newError(ErrConflict, "event has already started")
		}

		// Step 2: one active booking per customer and event.
		_, err = tx.ActiveBooking(ctx, customer.ID, ev.ID)
		switch {
		case err == nil:
			return newError(ErrConflict, "already booked this event")
		case !errors.Is(err, repository.ErrBookingNotFound):
			return internal(op, err)
		}

		// Step 3: guard against overselling.
		if ev.AvailableTickets < req.Tickets {
			return newError(ErrConflict, "only %d tickets available", ev.AvailableTickets)
		}

		// Step 4: create the booking with its price frozen.
		b := &model.Booking{
			ID:         uuid.NewString(),
			EventID:    ev.ID,
			UserID:     customer.ID,
			UserEmail:  customer.Email,
			Tickets:    req.Tickets,
			TotalPrice: totalPrice(ev.Price, req.Tickets),
			Status:     model.BookingActive,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.InsertBooking(ctx, b); err != nil {
			if errors.Is(err, repository.ErrDuplicateBooking) {
				return newError(ErrConflict, "already booked this event")
			}
			return internal(op, err)
		}

		// Step 5: decrement the counter in the same transaction.
		ev.AvailableTickets -= req.Tickets
		ev.UpdatedAt = now
		if err := tx.SaveEvent(ctx, ev); err != nil {
			return internal(op, err)
		}

		booking, event = b, ev
		return nil
	})
	if err != nil {
		err = classify(op, err)
		s.metrics.Bookings.WithLabelValues(outcome(err)).Inc()
		if errors.Is(err, ErrInternal) {
			log.Error("reservation failed", sl.Err(err))
		}
		return nil, err
	}
	s.metrics.Bookings.WithLabelValues(metrics.OutcomeSuccess).Inc()

	log.Info("tickets reserved",
		slog.String("booking_id", booking.ID),
		slog.Int("tickets", booking.Tickets),
		slog.Int("available", event.AvailableTickets))

	s.enqueue(ctx, model.JobBookingConfirmation, model.BookingConfirmationPayload{
		BookingID:  booking.ID,
		EventID:    event.ID,
		UserID:     booking.UserID,
		UserEmail:  booking.Contact(),
		EventTitle: event.Title,
		Tickets:    booking.Tickets,
		TotalPrice: booking.TotalPrice,
	})

	return booking, nil
}

// CancelBooking cancels requesterID's booking and returns its tickets to the
// event. Cancelling an already cancelled booking is a no-op that succeeds;
// the tickets are returned exactly once.
func (s *EventService) CancelBooking(ctx context.Context, requesterID, bookingID string) (*model.Booking, error) {
	const op = "service.CancelBooking"
	log := s.log.With(slog.String("op", op), slog.String("booking_id", bookingID), slog.String("user_id", requesterID))

	if bookingID == "" {
		s.metrics.Cancellations.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, newError(ErrInvalidArgument, "booking id is required")
	}

	// The snapshot only tells us which event to lock. Locks are taken event
	// first, then booking, the same order ReserveTickets uses.
	snapshot, err := s.store.BookingByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrBookingNotFound) {
			s.metrics.Cancellations.WithLabelValues(metrics.OutcomeRejected).Inc()
			return nil, newError(ErrNotFound, "booking not found")
		}
		s.metrics.Cancellations.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, internal(op, err)
	}
	if snapshot.UserID != requesterID {
		s.metrics.Cancellations.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, newError(ErrForbidden, "not authorized to cancel this booking")
	}

	var (
		booking   *model.Booking
		restored  int
		noop      bool
		truncated bool
	)
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		event, err := tx.LockEvent(ctx, snapshot.EventID)
		if err != nil {
			if errors.Is(err, repository.ErrEventNotFound) {
				return newError(ErrNotFound, "event not found")
			}
			return internal(op, err)
		}

		b, err := tx.LockBooking(ctx, bookingID)
		if err != nil {
			if errors.Is(err, repository.ErrBookingNotFound) {
				return newError(ErrNotFound, "booking not found")
			}
			return internal(op, err)
		}
		if !b.IsActive() {
			booking, noop = b, true
			return nil
		}

		now := s.now().UTC()
		if err := tx.SetBookingStatus(ctx, b.ID, model.BookingCancelled, now); err != nil {
			return internal(op, err)
		}
		b.Status = model.BookingCancelled
		b.UpdatedAt = now

		available := event.AvailableTickets + b.Tickets
		if available > event.Capacity {
			available = event.Capacity
			truncated = true
		}
		event.AvailableTickets = available
		event.UpdatedAt = now
		if err := tx.SaveEvent(ctx, event); err != nil {
			return internal(op, err)
		}

		booking, restored = b, available
		return nil
	})
	if err != nil {
		err = classify(op, err)
		s.metrics.Cancellations.WithLabelValues(outcome(err)).Inc()
		if errors.Is(err, ErrInternal) {
			log.Error("cancellation failed", sl.Err(err))
		}
		return nil, err
	}
	s.metrics.Cancellations.WithLabelValues(metrics.OutcomeSuccess).Inc()

	if noop {
		log.Info("booking already cancelled")
		return booking, nil
	}
	if truncated {
		log.Warn("restored tickets exceeded capacity, capped", slog.String("event_id", booking.EventID))
	}
	log.Info("booking cancelled", slog.Int("tickets", booking.Tickets), slog.Int("available", restored))
	return booking, nil
}

// ListBookings returns a customer's bookings, newest first.
func (s *EventService) ListBookings(ctx context.Context, userID string) ([]model.Booking, error) {
	const op = "service.ListBookings"

	if userID == "" {
		return nil, newError(ErrInvalidArgument, "user id is required")
	}
	bookings, err := s.store.ListBookingsByUser(ctx, userID)
	if err != nil {
		return nil, internal(op, err)
	}
	return bookings, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrConflict):
		return metrics.OutcomeConflict
	case errors.Is(err, ErrInternal):
		return metrics.OutcomeError
	default:
		return metrics.OutcomeRejected
	}
}
