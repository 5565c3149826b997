package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"watchpost/internal/config"
	"watchpost/internal/store"
	"watchpost/internal/ws"
)

// NewRouter creates the HTTP router.
func NewRouter(cfg *config.Config, st store.Storer, sched Lifecycle, hub *ws.Hub) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Route("/targets", func(r chi.Router) {
			r.Get("/", HandleListTargets(st))
			r.Post("/", HandleCreateTarget(st, sched))
			r.Get("/{id}", HandleGetTarget(st))
			r.Put("/{id}", HandleUpdateTarget(st, sched))
			r.Delete("/{id}", HandleDeleteTarget(st, sched))
			r.Get("/{id}/logs", HandleGetTargetLogs(st))
		})
	})

	if hub != nil {
		r.Get("/ws", hub.Handler)
	}

	return r
}
