package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"piccsync-backend/internal/middleware"
	"piccsync-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// GroupHandler handles group-related HTTP requests
type GroupHandler struct {
	groupService *services.GroupService
	photoService *services.PhotoService
}

// NewGroupHandler creates a new group handler
func NewGroupHandler(groupService *services.GroupService, photoService *services.PhotoService) *GroupHandler {
	return &GroupHandler{
		groupService: groupService,
		photoService: photoService,
	}
}

// CreateGroupRequest is the body of POST /api/groups
type CreateGroupRequest struct {
	Name         string   `json:"name"`
	Description  *string  `json:"description"`
	MemberEmails []string `json:"memberEmails"`
}

// UpdateGroupRequest is the body of PATCH /api/groups/{id}
type UpdateGroupRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// AddMembersRequest is the body of POST /api/groups/{id}/members
type AddMembersRequest struct {
	MemberEmails []string `json:"memberEmails"`
	UserID       string   `json:"userId"`
}

// CreateGroup handles POST /api/groups
func (h *GroupHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateGroupRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	group, err := h.groupService.Create(ctx, middleware.GetUserID(ctx), services.CreateGroupInput{
		Name:         req.Name,
		Description:  req.Description,
		MemberEmails: req.MemberEmails,
	})
	if err != nil {
		respondServiceError(w, r, err, "Failed to create group")
		return
	}
	respondJSON(w, http.StatusCreated, toGroupView(group))
}

// GetGroups handles GET /api/groups
func (h *GroupHandler) GetGroups(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	groups, err := h.groupService.ListForCaller(ctx, middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, r, err, "Failed to fetch groups")
		return
	}

	out := make([]GroupView, 0, len(groups))
	for _, g := range groups {
		out = append(out, toGroupSummaryView(g))
	}
	respondJSON(w, http.StatusOK, out)
}

// GetGroup handles GET /api/groups/{id}
func (h *GroupHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	group, err := h.groupService.Get(ctx, chi.URLParam(r, "id"), middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, r, err, "Failed to fetch group")
		return
	}
	respondJSON(w, http.StatusOK, toGroupDetailsView(group))
}

// UpdateGroup handles PATCH /api/groups/{id}
func (h *GroupHandler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req UpdateGroupRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	group, err := h.groupService.Update(ctx, chi.URLParam(r, "id"), middleware.GetUserID(ctx), req.Name, req.Description)
	if err != nil {
		respondServiceError(w, r, err, "Failed to update group")
		return
	}
	respondJSON(w, http.StatusOK, toGroupView(group))
}

// DeleteGroup handles DELETE /api/groups/{id}
func (h *GroupHandler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.groupService.Delete(ctx, chi.URLParam(r, "id"), middleware.GetUserID(ctx)); err != nil {
		respondServiceError(w, r, err, "Failed to delete group")
		return
	}
	respondJSON(w, http.StatusOK, MessageResponse{Message: "Group deleted successfully"})
}

// UploadIcon handles POST /api/groups/{id}/icon
func (h *GroupHandler) UploadIcon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, services.MaxIconSize+1<<20)
	if err := r.ParseMultipartForm(services.MaxIconSize + 1<<20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, "Icon must be 5MB or smaller", http.StatusRequestEntityTooLarge)
			return
		}
		respondError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("icon")
	if err != nil {
		respondError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	group, err := h.groupService.SetIcon(ctx, chi.URLParam(r, "id"), middleware.GetUserID(ctx), file)
	if err != nil {
		respondServiceError(w, r, err, "Failed to upload icon")
		return
	}
	respondJSON(w, http.StatusOK, toGroupDetailsView(group))
}

// GetGroupPhotos handles GET /api/groups/{id}/photos
func (h *GroupHandler) GetGroupPhotos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	photos, err := h.photoService.ListGroup(ctx, chi.URLParam(r, "id"), middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, r, err, "Failed to fetch group photos")
		return
	}
	respondJSON(w, http.StatusOK, toPhotoViews(photos))
}

// GetMembers handles GET /api/groups/{id}/members
func (h *GroupHandler) GetMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	members, err := h.groupService.ListMembers(ctx, chi.URLParam(r, "id"), middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, r, err, "Failed to fetch group members")
		return
	}
	respondJSON(w, http.StatusOK, toMemberViews(members))
}

// AddMembers handles POST /api/groups/{id}/members
func (h *GroupHandler) AddMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AddMembersRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	added, err := h.groupService.AddMembers(ctx, chi.URLParam(r, "id"), middleware.GetUserID(ctx), req.MemberEmails, req.UserID)
	if err != nil {
		respondServiceError(w, r, err, "Failed to add members")
		return
	}

	message := fmt.Sprintf("Added %d members", added)
	if req.UserID != "" {
		message = "Member added successfully"
	}
	respondJSON(w, http.StatusOK, AddMembersResponse{Message: message, Added: added})
}

// RemoveMember handles DELETE /api/groups/{id}/members/{memberId}
func (h *GroupHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	err := h.groupService.RemoveMember(ctx, chi.URLParam(r, "id"), middleware.GetUserID(ctx), chi.URLParam(r, "memberId"))
	if err != nil {
		respondServiceError(w, r, err, "Failed to remove member")
		return
	}
	respondJSON(w, http.StatusOK, MessageResponse{Message: "Member removed successfully"})
}
