package handlers

import (
	"net/http"

	"piccsync-backend/internal/config"
	"piccsync-backend/internal/metrics"
	"piccsync-backend/internal/middleware"
	"piccsync-backend/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// Deps are the collaborators the router wires into its handlers
type Deps struct {
	Config       *config.Config
	Admins       config.AdminSet
	UserService  *services.UserService
	PhotoService *services.PhotoService
	GroupService *services.GroupService
	Hub          *services.WSHub
	Limiter      middleware.Limiter
	Checks       map[string]Checker
}

// NewRouter builds the HTTP router
func NewRouter(d Deps) http.Handler {
	photoHandler := NewPhotoHandler(d.PhotoService)
	groupHandler := NewGroupHandler(d.GroupService, d.PhotoService)
	adminHandler := NewAdminHandler(d.UserService, d.PhotoService)
	systemHandler := NewSystemHandler(d.Checks)
	wsHandler := NewWebSocketHandler(d.Hub, d.UserService, d.Config.CORS)

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   d.Config.CORS.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition", "Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	r.NotFound(NotFound)

	r.Get("/health", systemHandler.Health)
	r.Get("/ready", systemHandler.Ready)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		if d.Limiter != nil {
			r.Use(middleware.RateLimit(d.Limiter))
		}
		r.NotFound(NotFound)

		// Public routes
		r.Get("/public/photo/{publicLink}", photoHandler.GetPublicPhoto)
		r.Get("/ws", wsHandler.HandleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(d.UserService))

			r.Post("/upload", photoHandler.UploadPhoto)
			r.Get("/storage", photoHandler.GetStorage)
			r.Get("/photos", photoHandler.GetPhotos)
			r.Get("/photos/{id}", photoHandler.GetPhoto)
			r.Patch("/photos/{id}", photoHandler.UpdatePhoto)
			r.Get("/photos/{id}/download", photoHandler.DownloadPhoto)
			r.Delete("/photos/{id}", photoHandler.DeletePhoto)

			r.Post("/groups", groupHandler.CreateGroup)
			r.Get("/groups", groupHandler.GetGroups)
			r.Get("/groups/{id}", groupHandler.GetGroup)
			r.Patch("/groups/{id}", groupHandler.UpdateGroup)
			r.Delete("/groups/{id}", groupHandler.DeleteGroup)
			r.Post("/groups/{id}/icon", groupHandler.UploadIcon)
			r.Get("/groups/{id}/photos", groupHandler.GetGroupPhotos)
			r.Get("/groups/{id}/members", groupHandler.GetMembers)
			r.Post("/groups/{id}/members", groupHandler.AddMembers)
			r.Delete("/groups/{id}/members/{memberId}", groupHandler.RemoveMember)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin(d.Admins))
				r.Get("/users", adminHandler.GetUsers)
				r.Get("/photos", adminHandler.GetPhotos)
			})
		})
	})

	return r
}
