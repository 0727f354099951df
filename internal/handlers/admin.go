package handlers

import (
	"net/http"

	"piccsync-backend/internal/services"
)

// AdminHandler serves the administrator listings
type AdminHandler struct {
	userService  *services.UserService
	photoService *services.PhotoService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(userService *services.UserService, photoService *services.PhotoService) *AdminHandler {
	return &AdminHandler{
		userService:  userService,
		photoService: photoService,
	}
}

// GetUsers handles GET /api/admin/users
func (h *AdminHandler) GetUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.ListUsers(r.Context())
	if err != nil {
		respondServiceError(w, r, err, "Failed to fetch users")
		return
	}
	respondJSON(w, http.StatusOK, toAdminUserViews(users))
}

// GetPhotos handles GET /api/admin/photos
func (h *AdminHandler) GetPhotos(w http.ResponseWriter, r *http.Request) {
	photos, err := h.photoService.ListAll(r.Context())
	if err != nil {
		respondServiceError(w, r, err, "Failed to fetch photos")
		return
	}
	respondJSON(w, http.StatusOK, toPhotoViews(photos))
}
