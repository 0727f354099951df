package services

import (
	"context"
	"io"
	"time"

	"piccsync-backend/internal/models"
	"piccsync-backend/internal/storage"
)

// PhotoStore persists media records
type PhotoStore interface {
	Create(ctx context.Context, photo *models.Photo) error
	GetByID(ctx context.Context, id string) (*models.Photo, error)
	GetPublic(ctx context.Context, publicLink string) (*models.Photo, error)
	ListPersonal(ctx context.Context, userID string) ([]*models.Photo, error)
	ListByGroup(ctx context.Context, groupID string) ([]*models.Photo, error)
	ListAll(ctx context.Context) ([]*models.Photo, error)
	Update(ctx context.Context, photo *models.Photo) error
	Delete(ctx context.Context, id string) error
	TotalSize(ctx context.Context, userID string) (int64, error)
}

// GroupStore persists groups
type GroupStore interface {
	CreateWithAdmin(ctx context.Context, group *models.Group, admin *models.GroupMember) error
	GetByID(ctx context.Context, id string) (*models.Group, error)
	ListForUser(ctx context.Context, userID string) ([]*models.GroupSummary, error)
	Update(ctx context.Context, group *models.Group) error
	SetIcon(ctx context.Context, id, key string) error
	Delete(ctx context.Context, id string) error
}

// MemberStore persists group memberships
type MemberStore interface {
	Add(ctx context.Context, member *models.GroupMember) (bool, error)
	Get(ctx context.Context, groupID, userID string) (*models.GroupMember, error)
	List(ctx context.Context, groupID string) ([]*models.GroupMember, error)
	Count(ctx context.Context, groupID string) (int, error)
	CountAdmins(ctx context.Context, groupID string) (int, error)
	Remove(ctx context.Context, groupID, memberID string) error
}

// ProfileStore reads user profiles
type ProfileStore interface {
	ListAll(ctx context.Context) (map[string]*models.Profile, error)
}

// ObjectStore holds media payloads
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) error
	Get(ctx context.Context, key string) (*storage.Object, error)
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	CreateBucket(ctx context.Context) error
}

// Directory is the auth provider's account directory
type Directory interface {
	LookupUser(ctx context.Context, token string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]*models.Account, error)
}

// Notifier pushes realtime events to connected users
type Notifier interface {
	NotifyUsers(userIDs []string, message WSMessage)
}
