package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/example/ec-store-sync/internal/api/middleware"
	"github.com/example/ec-store-sync/internal/auth"
)

// NewRouter wires the operator surface. Everything under /api/etl requires
// an admin bearer token; /healthz stays open for liveness probes.
func NewRouter(handlers *Handlers, jwtService *auth.JWTService) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", handlers.Health)

	r.Route("/api/etl", func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(jwtService))
		r.Use(middleware.RequireRole("admin"))

		r.Post("/sync", handlers.TriggerSync)
		r.Post("/sync/user", handlers.SyncUserCarts)
		r.Get("/status", handlers.Status)
		r.Get("/validate", handlers.Validate)
		r.Get("/stats", handlers.Stats)

		r.Route("/scheduler", func(r chi.Router) {
			r.Get("/status", handlers.SchedulerStatus)
			r.Post("/start", handlers.StartScheduler)
			r.Post("/stop", handlers.StopScheduler)
			r.Post("/trigger", handlers.TriggerTask)
		})
	})

	return r
}
