package models

import "time"

// Visibility controls anonymous access to a photo through its public link
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Valid reports whether v is a known visibility value
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// Role is a member's role inside a group
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Photo represents one uploaded media file
type Photo struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Filename   string     `json:"filename"`
	R2Key      string     `json:"r2_key"`
	Visibility Visibility `json:"visibility"`
	GroupID    *string    `json:"group_id"`
	PublicLink *string    `json:"public_link"`
	FileSize   int64      `json:"file_size"`
	MimeType   string     `json:"mime_type"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Group represents a named shared collection
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	IconKey     *string   `json:"-"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// GroupSummary is a group as seen by one of its members
type GroupSummary struct {
	Group
	UserRole    Role `json:"user_role"`
	MemberCount int  `json:"member_count"`
}

// GroupMember represents a user's membership in a group
type GroupMember struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"group_id"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	InvitedBy *string   `json:"invited_by"`
	JoinedAt  time.Time `json:"joined_at"`
}

// Account is a user known to the external auth provider
type Account struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile holds optional personal details kept next to the auth provider's accounts
type Profile struct {
	ID     string  `json:"id"`
	Name   *string `json:"name"`
	Mobile *string `json:"mobile"`
}
