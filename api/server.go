/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the booking frontend

ROUTE GROUPS:
  /recurring/*          Batch triggers hit by the cron runner
  /payment/callback     Payment provider webhook
  /api/*                Client-facing JSON endpoints

SECURITY NOTE:
  The batch triggers honor the cron bearer token when configured. The
  webhook is guarded by signature validation in the reconciler.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS for the frontend dev server and local deployments
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Batch triggers
	r.Route("/recurring", func(r chi.Router) {
		r.Post("/generate-monthly", h.GenerateMonthly)
		r.Get("/generate-monthly", h.GenerateMonthly)
	})

	// Payment webhook
	r.Post("/payment/callback", h.PaymentCallback)

	// Client API
	r.Route("/api", func(r chi.Router) {
		r.Get("/bookings/{reference}", h.GetBooking)
		r.Post("/quote", h.Quote)
		r.Post("/recurring/sync", h.SyncSchedules)
		r.Post("/vouchers/purchase", h.PurchaseVoucher)
		r.Post("/credits/purchase", h.PurchaseCredits)
	})

	return r
}
