package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/event-booking/internal/model"
	"github.com/Shivanand-hulikatti/event-booking/internal/repository"
	"github.com/google/uuid"
)

// CreateEvent validates the request and stores a new event owned by organizer,
// with every ticket available.
func (s *EventService) CreateEvent(ctx context.Context, organizer model.Principal, req model.CreateEventRequest) (*model.Event, error) {
	const op = "service.CreateEvent"

	req.Title = strings.TrimSpace(req.Title)
	req.Location = strings.TrimSpace(req.Location)
	switch {
	case organizer.ID == "":
		return nil, newError(ErrInvalidArgument, "organizer id is required")
	case req.Title == "":
		return nil, newError(ErrInvalidArgument, "title is required")
	case req.Location == "":
		return nil, newError(ErrInvalidArgument, "location is required")
	case req.Date.IsZero():
		return nil, newError(ErrInvalidArgument, "date is required")
	}
	if err := validateCapacity(req.Capacity); err != nil {
		return nil, err
	}
	if req.Price < 0 {
		return nil, newError(ErrInvalidArgument, "price cannot be negative")
	}

	published := true
	if req.IsPublished != nil {
		published = *req.IsPublished
	}

	now := s.now().UTC()
	event := &model.Event{
		ID:               uuid.NewString(),
		Title:            req.Title,
		Description:      req.Description,
		Date:             req.Date.UTC(),
		Location:         req.Location,
		Capacity:         req.Capacity,
		AvailableTickets: req.Capacity,
		Price:            req.Price,
		OrganizerID:      organizer.ID,
		IsPublished:      published,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreateEvent(ctx, event); err != nil {
		return nil, internal(op, err)
	}

	s.log.Info("event created",
		slog.String("op", op),
		slog.String("event_id", event.ID),
		slog.Int("capacity", event.Capacity))
	return event, nil
}

// GetEvent returns a single event by ID. An unpublished event is only
// visible to the organizer who owns it; anyone else, including anonymous
// callers with an empty viewerID, gets ErrNotFound.
func (s *EventService) GetEvent(ctx context.Context, viewerID, id string) (*model.Event, error) {
	const op = "service.GetEvent"

	if id == "" {
		return nil, newError(ErrInvalidArgument, "event id is required")
	}
	event, err := s.store.EventByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return nil, newError(ErrNotFound, "event not found")
		}
		return nil, internal(op, err)
	}
	if !event.IsPublished && (viewerID == "" || event.OrganizerID != viewerID) {
		return nil, newError(ErrNotFound, "event not found")
	}
	return event, nil
}

// ListEvents returns published events that have not started yet.
func (s *EventService) ListEvents(ctx context.Context) ([]model.Event, error) {
	const op = "service.ListEvents"

	events, err := s.store.ListPublishedEvents(ctx, s.now().UTC())
	if err != nil {
		return nil, internal(op, err)
	}
	return events, nil
}

// UpdateEvent applies a partial update on behalf of the owning organizer.
//
// Capacity may shrink only down to the number of tickets already booked;
// available tickets follow the new capacity so the inventory invariant holds.
// Existing bookings keep their frozen total price. When at least one field
// actually changed and the event has active bookings, one
// EVENT_UPDATE_NOTIFICATION job is enqueued for all affected customers.
func (s *EventService) UpdateEvent(ctx context.Context, organizerID, eventID string, req model.UpdateEventRequest) (*model.UpdateEventResult, error) {
	const op = "service.UpdateEvent"

	if eventID == "" {
		return nil, newError(ErrInvalidArgument, "event id is required")
	}
	if err := validatePatch(req); err != nil {
		return nil, err
	}

	var (
		updated   *model.Event
		changed   []string
		customers []string
	)
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		event, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			if errors.Is(err, repository.ErrEventNotFound) {
				return newError(ErrNotFound, "event not found")
			}
			return internal(op, err)
		}
		if event.OrganizerID != organizerID {
			return newError(ErrForbidden, "not authorized to update this event")
		}

		changed, err = applyPatch(event, req)
		if err != nil {
			return err
		}
		if len(changed) == 0 {
			updated = event
			return nil
		}
		event.UpdatedAt = s.now().UTC()

		active, err := tx.ActiveBookings(ctx, event.ID)
		if err != nil {
			return internal(op, err)
		}
		for i := range active {
			customers = append(customers, active[i].Contact())
		}

		if err := tx.SaveEvent(ctx, event); err != nil {
			return internal(op, err)
		}
		updated = event
		return nil
	})
	if err != nil {
		return nil, classify(op, err)
	}

	log := s.log.With(slog.String("op", op), slog.String("event_id", eventID))
	log.Info("event updated", slog.Any("fields", changed), slog.Int("active_customers", len(customers)))

	if len(changed) > 0 && len(customers) > 0 {
		s.enqueue(ctx, model.JobEventUpdateNotification, model.EventUpdatePayload{
			EventID:       updated.ID,
			EventTitle:    updated.Title,
			CustomerCount: len(customers),
			Customers:     customers,
			UpdatedFields: changed,
		})
	} else {
		customers = nil
	}

	return &model.UpdateEventResult{Event: updated, Notified: len(customers)}, nil
}

func validateCapacity(capacity int) error {
	if capacity <= 0 {
		return newError(ErrInvalidArgument, "capacity must be a positive integer")
	}
	if capacity > MaxCapacity {
		return newError(ErrInvalidArgument, "capacity cannot exceed 100,000")
	}
	return nil
}

func validatePatch(req model.UpdateEventRequest) error {
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		return newError(ErrInvalidArgument, "title cannot be empty")
	}
	if req.Location != nil && strings.TrimSpace(*req.Location) == "" {
		return newError(ErrInvalidArgument, "location cannot be empty")
	}
	if req.Date != nil && req.Date.IsZero() {
		return newError(ErrInvalidArgument, "date cannot be empty")
	}
	if req.Capacity != nil {
		if err := validateCapacity(*req.Capacity); err != nil {
			return err
		}
	}
	if req.Price != nil && *req.Price < 0 {
		return newError(ErrInvalidArgument, "price cannot be negative")
	}
	return nil
}

// applyPatch mutates event in place and returns the names of the fields
// whose value actually changed.
func applyPatch(event *model.Event, req model.UpdateEventRequest) ([]string, error) {
	var changed []string

	if req.Title != nil {
		if v := strings.TrimSpace(*req.Title); v != event.Title {
			event.Title = v
			changed = append(changed, "title")
		}
	}
	if req.Description != nil && *req.Description != event.Description {
		event.Description = *req.Description
		changed = append(changed, "description")
	}
	if req.Date != nil {
		if v := req.Date.UTC(); !v.Equal(event.Date) {
			event.Date = v
			changed = append(changed, "date")
		}
	}
	if req.Location != nil {
		if v := strings.TrimSpace(*req.Location); v != event.Location {
			event.Location = v
			changed = append(changed, "location")
		}
	}
	if req.Capacity != nil && *req.Capacity != event.Capacity {
		booked := event.Booked()
		if *req.Capacity < booked {
			return nil, newError(ErrConflict,
				"capacity cannot be reduced below %d already booked tickets", booked)
		}
		event.Capacity = *req.Capacity
		event.AvailableTickets = *req.Capacity - booked
		changed = append(changed, "capacity")
	}
	if req.Price != nil && *req.Price != event.Price {
		event.Price = *req.Price
		changed = append(changed, "price")
	}
	if req.IsPublished != nil && *req.IsPublished != event.IsPublished {
		event.IsPublished = *req.IsPublished
		changed = append(changed, "is_published")
	}

	return changed, nil
}

// isUpcoming reports whether the event has not started at t.
func isUpcoming(event *model.Event, t time.Time) bool {
	return event.Date.After(t)
}
