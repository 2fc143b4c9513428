package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samims/notifier/internal/handler"
	customMiddleware "github.com/samims/notifier/internal/middleware"
)

// Handlers groups the HTTP handlers mounted by NewRouter.
type Handlers struct {
	Notifications *handler.NotificationHandler
	Subscriptions *handler.SubscriptionHandler
	Jobs          *handler.JobHandler
	Health        *handler.HealthHandler
}

func NewRouter(h Handlers, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(customMiddleware.MetricsMiddleware)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Group(func(r chi.Router) {
		r.Use(customMiddleware.AuthMiddleware(jwtSecret))
		adminOnly := customMiddleware.RequireRole(customMiddleware.RoleAdmin)

		r.Route("/notifications", func(r chi.Router) {
			r.Post("/", h.Notifications.Publish)
			r.Post("/drafts", h.Notifications.CreateDraft)
			r.Get("/{id}", h.Notifications.Get)
			r.Delete("/{id}", h.Notifications.Discard)
			r.Post("/{id}/publish", h.Notifications.PublishDraft)
			r.With(adminOnly).Post("/{id}/requeue", h.Notifications.Requeue)
		})

		r.Route("/me", func(r chi.Router) {
			r.Get("/notifications", h.Notifications.ListMine)
			r.Put("/notifications/read-all", h.Notifications.MarkAllRead)
			r.Put("/notifications/{id}/read", h.Notifications.MarkRead)
			r.Get("/subscriptions", h.Subscriptions.ListMine)
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", h.Subscriptions.Register)
			r.Delete("/{id}", h.Subscriptions.Deactivate)
			r.With(adminOnly).Get("/stats", h.Subscriptions.Stats)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Use(customMiddleware.RequireRole(customMiddleware.RoleAdmin, customMiddleware.RoleSystem))
			r.Get("/runs", h.Jobs.Runs)
			r.Post("/{job}", h.Jobs.Run)
		})
	})

	// Health & Readiness Routes
	r.Get("/healthz", h.Health.Liveness)
	r.Get("/readyz", h.Health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
