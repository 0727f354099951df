package handlers

import (
	"time"

	"piccsync-backend/internal/models"
	"piccsync-backend/internal/services"
)

// PhotoView is a media record as returned to its owner
type PhotoView struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id"`
	Filename     string            `json:"filename"`
	R2Key        string            `json:"r2_key"`
	Visibility   models.Visibility `json:"visibility"`
	GroupID      *string           `json:"group_id"`
	PublicLink   *string           `json:"public_link"`
	FileSize     int64             `json:"file_size"`
	MimeType     string            `json:"mime_type"`
	CreatedAt    time.Time         `json:"created_at"`
	URL          *string           `json:"url"`
	Error        string            `json:"error,omitempty"`
	UploaderName string            `json:"uploader_name,omitempty"`
}

// PublicPhotoView is the anonymous view of a public record
type PublicPhotoView struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	URL       *string   `json:"url"`
	CreatedAt time.Time `json:"created_at"`
	FileSize  int64     `json:"file_size"`
	MimeType  string    `json:"mime_type"`
}

// GroupView is a group as returned to one of its members
type GroupView struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description *string     `json:"description"`
	CreatedBy   string      `json:"created_by"`
	CreatedAt   time.Time   `json:"created_at"`
	UserRole    models.Role `json:"user_role,omitempty"`
	MemberCount int         `json:"member_count"`
	IconURL     *string     `json:"icon_url"`
}

// MemberView is one membership row
type MemberView struct {
	ID        string      `json:"id"`
	GroupID   string      `json:"group_id"`
	UserID    string      `json:"user_id"`
	Role      models.Role `json:"role"`
	InvitedBy *string     `json:"invited_by"`
	JoinedAt  time.Time   `json:"joined_at"`
	Name      string      `json:"name"`
}

// AdminUserView is an account in the admin listing
type AdminUserView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Mobile    string    `json:"mobile"`
	CreatedAt time.Time `json:"created_at"`
}

// AddMembersResponse reports how many members were added
type AddMembersResponse struct {
	Message string `json:"message"`
	Added   int    `json:"added"`
}

func toPhotoView(p *models.Photo) PhotoView {
	return PhotoView{
		ID:         p.ID,
		UserID:     p.UserID,
		Filename:   p.Filename,
		R2Key:      p.R2Key,
		Visibility: p.Visibility,
		GroupID:    p.GroupID,
		PublicLink: p.PublicLink,
		FileSize:   p.FileSize,
		MimeType:   p.MimeType,
		CreatedAt:  p.CreatedAt,
	}
}

func toSignedPhotoView(p *services.PhotoWithURL) PhotoView {
	v := toPhotoView(p.Photo)
	v.URL = p.URL
	v.Error = p.URLError
	v.UploaderName = p.UploaderName
	return v
}

func toPhotoViews(photos []*services.PhotoWithURL) []PhotoView {
	out := make([]PhotoView, 0, len(photos))
	for _, p := range photos {
		out = append(out, toSignedPhotoView(p))
	}
	return out
}

func toPublicPhotoView(p *services.PhotoWithURL) PublicPhotoView {
	return PublicPhotoView{
		ID:        p.ID,
		Filename:  p.Filename,
		URL:       p.URL,
		CreatedAt: p.CreatedAt,
		FileSize:  p.FileSize,
		MimeType:  p.MimeType,
	}
}

func toGroupView(g *models.Group) GroupView {
	return GroupView{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		CreatedBy:   g.CreatedBy,
		CreatedAt:   g.CreatedAt,
	}
}

func toGroupSummaryView(g *models.GroupSummary) GroupView {
	v := toGroupView(&g.Group)
	v.UserRole = g.UserRole
	v.MemberCount = g.MemberCount
	return v
}

func toGroupDetailsView(g *services.GroupDetails) GroupView {
	v := toGroupSummaryView(g.GroupSummary)
	v.IconURL = g.IconURL
	return v
}

func toMemberViews(members []*services.MemberDetails) []MemberView {
	out := make([]MemberView, 0, len(members))
	for _, m := range members {
		out = append(out, MemberView{
			ID:        m.ID,
			GroupID:   m.GroupID,
			UserID:    m.UserID,
			Role:      m.Role,
			InvitedBy: m.InvitedBy,
			JoinedAt:  m.JoinedAt,
			Name:      m.Name,
		})
	}
	return out
}

func toAdminUserViews(users []*services.UserDetails) []AdminUserView {
	out := make([]AdminUserView, 0, len(users))
	for _, u := range users {
		out = append(out, AdminUserView{
			ID:        u.ID,
			Email:     u.Email,
			Name:      u.Name,
			Mobile:    u.Mobile,
			CreatedAt: u.CreatedAt,
		})
	}
	return out
}
