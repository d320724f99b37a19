/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address for signature capture
  3. Logger:     Request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the portal frontend
  6. RequireActor (per group): Resolves the acting user from headers

ROUTE GROUPS:
  /api/catalog/*             Reference data (no actor needed)
  /api/scenarios/*           Demo scenarios (dev only)
  /api/corrective-actions/*  Record lifecycle
  /api/employees/*           Directory, points, standing
  /api/notifications/*       In-app threshold notifications
  /api/audit                 Audit trail

SECURITY NOTE:
  Authentication happens upstream. This service trusts the X-Actor-*
  headers and must not be exposed directly.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions tunes the router for the environment.
type RouterOptions struct {
	AllowedOrigins []string

	// EnableScenarios mounts the demo scenario routes, which can wipe the database.
	EnableScenarios bool
}

func DefaultRouterOptions() RouterOptions {
	return RouterOptions{
		AllowedOrigins:  []string{"http://localhost:5173", "http://localhost:8080"},
		EnableScenarios: true,
	}
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", HeaderActorID, HeaderActorRole, HeaderActorHouses},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		// Catalog routes
		r.Route("/catalog", func(r chi.Router) {
			r.Get("/categories", h.ListCategories)
			r.Get("/thresholds", h.ListThresholds)
		})

		// Scenario routes
		if opts.EnableScenarios {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
				r.Post("/reset", h.ResetDatabase)
			})
		}

		r.Group(func(r chi.Router) {
			r.Use(RequireActor)

			// Corrective action routes
			r.Route("/corrective-actions", func(r chi.Router) {
				r.Get("/", h.ListCorrectiveActions)
				r.Post("/", h.CreateCorrectiveAction)
				r.Get("/{id}", h.GetCorrectiveAction)
				r.Patch("/{id}", h.UpdateCorrectiveAction)
				r.Post("/{id}/void", h.VoidCorrectiveAction)
				r.Post("/{id}/signatures", h.SignCorrectiveAction)
			})

			// Employee routes
			r.Route("/employees", func(r chi.Router) {
				r.Get("/", h.ListEmployees)
				r.Post("/", h.CreateEmployee)
				r.Get("/{id}/points", h.GetPoints)
				r.Get("/{id}/standing", h.GetStanding)
			})

			// Notification routes
			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", h.ListNotifications)
				r.Post("/{id}/read", h.MarkNotificationRead)
			})

			r.Get("/audit", h.ListAudit)
		})
	})

	return r
}
