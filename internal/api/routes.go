package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Post("/insights/weekly", h.IngestWeekly)
		r.Put("/mappings", h.RefreshMappings)
		r.Get("/mappings", h.GetMappings)

		r.Get("/features", h.ListFeatures)

		r.Get("/anomalies", h.ListAnomalies)
		r.Put("/anomalies/{id}/status", h.UpdateAnomalyStatus)

		r.Route("/analysis", func(r chi.Router) {
			r.Get("/pareto", h.GetPareto)
			r.Get("/lifecycle", h.GetLifecycle)
			r.Get("/response-curve", h.GetResponseCurve)
			r.Get("/tracking-health", h.GetTrackingHealth)
			r.Get("/lag-deps", h.GetLagDependencies)
			r.Get("/creative-risk", h.GetCreativeRisk)
		})

		r.Post("/jobs", h.CreateJob)
		r.Get("/jobs", h.ListJobs)
		r.Get("/jobs/{id}", h.GetJob)
	})

	return r
}
