package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/outreach-engine/internal/tracking"
)

// SetupRoutes configures all routes.
func SetupRoutes(h *Handlers, th *tracking.Handler, opts Options) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.health.HandleHealth)
	r.Get("/health/live", h.health.HandleLiveness)
	r.Get("/health/ready", h.health.HandleReadiness)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler())
	}

	// Public endpoints hit by mail clients and the provider.
	th.Mount(r)
	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/provider", h.HandleProviderWebhook)
		r.Post("/inbound", h.HandleInboundReply)
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/engine", func(r chi.Router) {
			r.Post("/start", h.StartEngine)
			r.Post("/stop", h.StopEngine)
			r.Get("/stats", h.GetEngineStats)
			r.Get("/sequence", h.GetSequence)
			r.Put("/sequence", h.PutSequence)
			r.Post("/sweep", h.TriggerSweep)
			r.Post("/process-reply", h.HandleInboundReply)
		})

		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", h.CreateCampaign)
			r.Get("/{id}", h.GetCampaign)
			r.Post("/{id}/send", h.SendCampaign)
			r.Post("/{id}/meeting", h.MarkMeetingScheduled)
		})

		r.Get("/analytics/funnel", h.GetFunnel)

		r.Route("/blocklist", func(r chi.Router) {
			r.Get("/", h.ListBlocklist)
			r.Get("/stats", h.GetBlocklistStats)
			r.Post("/", h.AddToBlocklist)
			r.Delete("/{email}", h.RemoveFromBlocklist)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	return r
}
