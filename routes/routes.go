package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/almazom/koodo-llm/app"
	appmiddleware "github.com/almazom/koodo-llm/middleware"
	"github.com/almazom/koodo-llm/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appmiddleware.RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)

	if deps.MetricsRegistry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.MetricsRegistry, promhttp.HandlerOpts{}))
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Bounds a whole generation, retries and fallbacks included
		if timeout := deps.Config.Server.RequestTimeout; timeout > 0 {
			r.Use(middleware.Timeout(timeout))
		}
		if deps.AuthMiddleware != nil {
			r.Use(deps.AuthMiddleware.RequireAuth)
		}

		r.Route("/llm", func(r chi.Router) {
			r.Post("/summaries", deps.LLMHandler.HandleGenerateSummary)
			r.Post("/poems", deps.LLMHandler.HandleGenerateThemedPoem)
			r.Get("/providers", deps.LLMHandler.HandleListProviders)
			r.Get("/providers/{name}/credential", deps.LLMHandler.HandleCheckCredential)

			r.Group(func(r chi.Router) {
				if deps.AuthMiddleware != nil {
					r.Use(deps.AuthMiddleware.RequireRole("admin"))
				}
				r.Put("/providers/default", deps.LLMHandler.HandleSetDefaultProvider)
			})
		})

		r.Route("/configs", func(r chi.Router) {
			if deps.AuthMiddleware != nil {
				r.Use(deps.AuthMiddleware.RequireRole("admin"))
			}
			r.Get("/", deps.ConfigsHandler.HandleListConfigs)
			r.Post("/", deps.ConfigsHandler.HandleCreateConfig)
			r.Get("/default", deps.ConfigsHandler.HandleGetDefaultConfig)
			r.Get("/{id}", deps.ConfigsHandler.HandleGetConfig)
			r.Put("/{id}", deps.ConfigsHandler.HandleUpdateConfig)
			r.Delete("/{id}", deps.ConfigsHandler.HandleDeleteConfig)
		})

		r.Route("/books/{bookKey}", func(r chi.Router) {
			r.Post("/summaries", deps.SummariesHandler.HandleSummarizeBook)
			r.Get("/summaries", deps.SummariesHandler.HandleListBookSummaries)
			r.Post("/chapters/{index}/summary", deps.SummariesHandler.HandleSummarizeChapter)
			r.Get("/chapters/{index}/summary", deps.SummariesHandler.HandleGetChapterSummary)
			r.Get("/chapters/{index}/summary/exists", deps.SummariesHandler.HandleChapterSummaryExists)
		})

		r.Delete("/summaries/{id}", deps.SummariesHandler.HandleDeleteSummary)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}
