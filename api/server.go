/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend
  5. Actor:      Capability extraction (X-Owner-ID / X-Admin)

ROUTE GROUPS:
  /api/raffles/*   Raffle listing, exchange, draws
  /api/users/*     Wallets, participations, notifications
  /api/shop/*      Catalog and purchases
  /api/coupons/*   Pre-checkout validation
  /api/admin/*     Coupon CRUD, manual draw-due runs
  /api/reset       Database reset + reseed (dev only)

SECURITY NOTE:
  The actor middleware trusts headers. Credential verification belongs
  in a gateway or auth middleware placed in front of this router.

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
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Owner-ID", "X-Admin"},
		AllowCredentials: true,
	}))
	r.Use(ActorMiddleware)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Raffle routes
		r.Route("/raffles", func(r chi.Router) {
			r.Get("/", h.ListRaffles)
			r.Post("/", h.CreateRaffle)
			r.Get("/{id}", h.GetRaffle)
			r.Get("/{id}/participants", h.GetParticipants)
			r.Post("/{id}/join", h.JoinRaffle)
			r.Post("/{id}/draw", h.DrawRaffle)
		})

		// User routes
		r.Route("/users/{id}", func(r chi.Router) {
			r.Get("/wallet", h.GetWallet)
			r.Post("/wallet/credit", h.CreditWallet)
			r.Post("/wallet/debit", h.DebitWallet)
			r.Get("/raffles", h.GetUserRaffles)
			r.Get("/notifications", h.GetNotifications)
			r.Post("/notifications/{nid}/read", h.MarkNotificationRead)
		})

		// Shop routes
		r.Route("/shop", func(r chi.Router) {
			r.Get("/assets", h.ListAssets)
			r.Post("/assets", h.SaveAsset)
			r.Post("/buy", h.Buy)
		})

		// Coupon routes
		r.Post("/coupons/validate", h.ValidateCoupon)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Get("/coupons", h.ListCoupons)
			r.Post("/coupons", h.CreateCoupon)
			r.Delete("/coupons/{id}", h.DeleteCoupon)
			r.Post("/draw-due", h.DrawDue)
		})

		// Dev-only reset
		r.Post("/reset", h.ResetDatabase)
	})

	return r
}
