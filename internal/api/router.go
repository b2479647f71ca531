package api

import (
	"net/http"

	"github.com/davidm/taskflow/internal/activity"
	"github.com/davidm/taskflow/internal/api/handlers"
	"github.com/davidm/taskflow/internal/api/middleware"
	"github.com/davidm/taskflow/internal/config"
	"github.com/davidm/taskflow/internal/logger"
	"github.com/davidm/taskflow/internal/ratelimit"
	"github.com/davidm/taskflow/internal/service"
	"github.com/davidm/taskflow/internal/websocket"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

func NewRouter(services *service.Services, hub *websocket.Hub, activities *activity.Log, limiter *ratelimit.Limiter, db *gorm.DB, rdb *redis.Client, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(logger.RequestLogger)
	r.Use(logger.Recovery)
	r.Use(middleware.CORS)

	// Purpose-specific limiters: authentication endpoints are throttled far
	// tighter than general API traffic.
	authLimit := middleware.RateLimit(limiter, "auth", cfg.AuthRateLimit, cfg.AuthRateWindow)
	apiLimit := middleware.RateLimit(limiter, "api", cfg.APIRateLimit, cfg.APIRateWindow)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(services.Auth)
	projectHandler := handlers.NewProjectHandler(services.Project, activities)
	taskHandler := handlers.NewTaskHandler(services.Task)
	activityHandler := handlers.NewActivityHandler(activities)
	healthHandler := handlers.NewHealthHandler(db, rdb)
	wsHandler := handlers.NewWebSocketHandler(hub, services.Auth)

	// Health check
	r.Get("/health", healthHandler.Check)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Auth routes
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(authLimit)
				r.Post("/register", authHandler.Register)
				r.Post("/login", authHandler.Login)
				r.Post("/refresh", authHandler.Refresh)
			})

			r.Post("/verify", authHandler.Verify)
			r.Post("/logout", authHandler.Logout)

			// Protected auth routes
			r.Group(func(r chi.Router) {
				r.Use(middleware.Auth(services.Auth))
				r.Get("/me", authHandler.Me)
				r.Post("/logout-all", authHandler.LogoutAll)
			})
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(apiLimit)
			r.Use(middleware.Auth(services.Auth))

			r.Route("/projects", func(r chi.Router) {
				r.Post("/", projectHandler.Create)
				r.Get("/", projectHandler.List)
				r.Get("/{projectId}", projectHandler.Get)
				r.Get("/{projectId}/activities", projectHandler.Activities)

				r.Route("/{projectId}/tasks", func(r chi.Router) {
					r.Post("/", taskHandler.Create)
					r.Get("/", taskHandler.ListByProject)
				})
			})

			r.Route("/tasks", func(r chi.Router) {
				r.Get("/{taskId}", taskHandler.Get)
				r.Put("/{taskId}", taskHandler.Update)
				r.Delete("/{taskId}", taskHandler.Delete)
			})

			r.Get("/activities", activityHandler.Global)
		})

		// WebSocket endpoint
		r.Get("/ws", wsHandler.Handle)
	})

	return r
}
