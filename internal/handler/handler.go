// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Shivanand-hulikatti/event-booking/internal/lib/logger/sl"
	"github.com/Shivanand-hulikatti/event-booking/internal/model"
	"github.com/Shivanand-hulikatti/event-booking/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// EventHandler holds all HTTP handlers for the event booking API.
type EventHandler struct {
	log *slog.Logger
	svc *service.EventService
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(log *slog.Logger, svc *service.EventService) *EventHandler {
	return &EventHandler{log: log, svc: svc}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any, msg string) {
	writeJSON(w, status, model.Response{Success: true, Data: data, Message: msg})
}

func writeList[T any](w http.ResponseWriter, items []T) {
	// Return an empty array rather than null for better client compatibility.
	if items == nil {
		items = []T{}
	}
	n := len(items)
	writeJSON(w, http.StatusOK, model.Response{Success: true, Data: items, Count: &n})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.Response{Success: false, Message: msg})
}

// writeServiceError maps the service error kinds onto HTTP statuses. Internal
// errors are logged and hidden behind a generic message.
func (h *EventHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		h.log.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			sl.Err(err))
		writeError(w, http.StatusInternalServerError, "server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// ─── Events ───────────────────────────────────────────────────────────────────

// CreateEvent handles POST /api/events
// Creates a new event owned by the calling organizer.
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.svc.CreateEvent(r.Context(), PrincipalFrom(r.Context()), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeData(w, http.StatusCreated, event, "Event created")
}

// ListEvents handles GET /api/events
// Returns published events that have not started yet.
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.ListEvents(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeList(w, events)
}

// GetEvent handles GET /api/events/{id}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.GetEvent(r.Context(), PrincipalFrom(r.Context()).ID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, event, "")
}

// UpdateEvent handles PUT /api/events/{id}
// Applies a partial update and reports how many customers will be notified.
func (h *EventHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := h.svc.UpdateEvent(r.Context(), PrincipalFrom(r.Context()).ID, chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, res, "Event updated")
}

// ─── Bookings ─────────────────────────────────────────────────────────────────

// ReserveTickets handles POST /api/bookings
// Performs a concurrency-safe reservation for the calling customer.
func (h *EventHandler) ReserveTickets(w http.ResponseWriter, r *http.Request) {
	var req model.ReserveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	booking, err := h.svc.ReserveTickets(r.Context(), PrincipalFrom(r.Context()), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeData(w, http.StatusCreated, booking, "Booking successful")
}

// ListBookings handles GET /api/bookings
func (h *EventHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.svc.ListBookings(r.Context(), PrincipalFrom(r.Context()).ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeList(w, bookings)
}

// CancelBooking handles DELETE /api/bookings/{id}
func (h *EventHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := h.svc.CancelBooking(r.Context(), PrincipalFrom(r.Context()).ID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, booking, "Booking cancelled")
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
