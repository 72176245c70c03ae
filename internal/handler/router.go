package handler

import (
	"log/slog"
	"net/http"

	"github.com/Shivanand-hulikatti/event-booking/internal/metrics"
	"github.com/Shivanand-hulikatti/event-booking/internal/model"
	"github.com/Shivanand-hulikatti/event-booking/internal/service"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the full HTTP surface: health, metrics and the JSON API.
func NewRouter(log *slog.Logger, svc *service.EventService, m *metrics.Metrics, jwtSecret string) http.Handler {
	h := NewEventHandler(log, svc)
	auth := Authenticate(jwtSecret)

	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger(log))             // structured access log
	r.Use(CORS)

	r.Get("/health", HealthCheck)
	r.Handle("/metrics", m.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/events", func(r chi.Router) {
			r.Get("/", h.ListEvents)
			r.With(Identify(jwtSecret)).Get("/{id}", h.GetEvent)

			r.Group(func(r chi.Router) {
				r.Use(auth, RequireRole(model.RoleOrganizer))
				r.Post("/", h.CreateEvent)
				r.Put("/{id}", h.UpdateEvent)
			})
		})

		r.Route("/bookings", func(r chi.Router) {
			r.Use(auth, RequireRole(model.RoleCustomer))
			r.Post("/", h.ReserveTickets)
			r.Get("/", h.ListBookings)
			r.Delete("/{id}", h.CancelBooking)
		})
	})

	return r
}
