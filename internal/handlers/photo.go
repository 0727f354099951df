package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"piccsync-backend/internal/metrics"
	"piccsync-backend/internal/middleware"
	"piccsync-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

const (
	multipartMemory = 32 << 20
	maxUploadBody   = services.StorageQuota + 10<<20
)

// PhotoHandler handles photo-related HTTP requests
type PhotoHandler struct {
	photoService *services.PhotoService
}

// NewPhotoHandler creates a new photo handler
func NewPhotoHandler(photoService *services.PhotoService) *PhotoHandler {
	return &PhotoHandler{
		photoService: photoService,
	}
}

// UploadPhoto handles POST /api/upload
func (h *PhotoHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		respondError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	photo, err := h.photoService.Upload(ctx, services.UploadInput{
		UserID:      userID,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Visibility:  r.FormValue("visibility"),
		GroupID:     r.FormValue("groupId"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		metrics.RecordUpload(header.Size, false)
		if errors.Is(err, services.ErrQuotaExceeded) {
			metrics.RecordQuotaExceeded()
		}
		respondServiceError(w, r, err, "Failed to upload photo")
		return
	}
	metrics.RecordUpload(photo.FileSize, true)

	respondJSON(w, http.StatusOK, toSignedPhotoView(photo))
}

// GetPhotos handles GET /api/photos
func (h *PhotoHandler) GetPhotos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	photos, err := h.photoService.ListPersonal(ctx, userID)
	if err != nil {
		respondServiceError(w, r, err, "Failed to fetch photos")
		return
	}
	respondJSON(w, http.StatusOK, toPhotoViews(photos))
}

// GetStorage handles GET /api/storage
func (h *PhotoHandler) GetStorage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	usage, err := h.photoService.StorageUsage(ctx, middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, r, err, "Failed to get storage info")
		return
	}
	respondJSON(w, http.StatusOK, usage)
}

// GetPhoto handles GET /api/photos/{id}
func (h *PhotoHandler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	photo, err := h.photoService.Get(ctx, chi.URLParam(r, "id"), middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, r, err, "Failed to get photo")
		return
	}
	respondJSON(w, http.StatusOK, toSignedPhotoView(photo))
}

// UpdatePhotoRequest is the body of PATCH /api/photos/{id}
type UpdatePhotoRequest struct {
	Visibility *string `json:"visibility"`
	Filename   *string `json:"filename"`
}

// UpdatePhoto handles PATCH /api/photos/{id}
func (h *PhotoHandler) UpdatePhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req UpdatePhotoRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	photo, err := h.photoService.Update(ctx, chi.URLParam(r, "id"), userID, req.Visibility, req.Filename)
	if err != nil {
		respondServiceError(w, r, err, "Failed to update photo")
		return
	}
	respondJSON(w, http.StatusOK, toPhotoView(photo))
}

// DownloadPhoto handles GET /api/photos/{id}/download
func (h *PhotoHandler) DownloadPhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	dl, err := h.photoService.Download(ctx, chi.URLParam(r, "id"), userID)
	if err != nil {
		respondServiceError(w, r, err, "Failed to download photo")
		return
	}
	defer dl.Body.Close()

	contentType := dl.Photo.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", attachment(dl.Photo.Filename))
	if dl.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(dl.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, dl.Body)
	metrics.RecordDownload(n)
	if err != nil {
		log.Error().Err(err).Str("photo_id", dl.Photo.ID).Int64("written", n).Msg("Download stream aborted")
	}
}

// DeletePhoto handles DELETE /api/photos/{id}
func (h *PhotoHandler) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.photoService.Delete(ctx, chi.URLParam(r, "id"), middleware.GetUserID(ctx)); err != nil {
		respondServiceError(w, r, err, "Failed to delete photo")
		return
	}
	respondJSON(w, http.StatusOK, MessageResponse{Message: "Photo deleted successfully"})
}

// GetPublicPhoto handles GET /api/public/photo/{publicLink}
func (h *PhotoHandler) GetPublicPhoto(w http.ResponseWriter, r *http.Request) {
	photo, err := h.photoService.PublicFetch(r.Context(), chi.URLParam(r, "publicLink"))
	if err != nil {
		respondServiceError(w, r, err, "Failed to fetch photo")
		return
	}
	respondJSON(w, http.StatusOK, toPublicPhotoView(photo))
}

func attachment(filename string) string {
	name := strings.NewReplacer(`"`, "'", "\r", "", "\n", "").Replace(filename)
	return fmt.Sprintf(`attachment; filename="%s"`, name)
}
