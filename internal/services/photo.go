package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"piccsync-backend/internal/config"
	"piccsync-backend/internal/models"
	"piccsync-backend/internal/repository"
	"piccsync-backend/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	// StorageQuota is the per-user storage ceiling in bytes
	StorageQuota int64 = 1 << 30
	// SignedURLTTL is the lifetime of signed read URLs
	SignedURLTTL = time.Hour

	presignConcurrency = 8
)

// PhotoService handles photo-related business logic
type PhotoService struct {
	photos   PhotoStore
	members  MemberStore
	objects  ObjectStore
	notifier Notifier
	admins   config.AdminSet
	now      func() time.Time
}

// NewPhotoService creates a new photo service. notifier may be nil.
func NewPhotoService(
	photos PhotoStore,
	members MemberStore,
	objects ObjectStore,
	admins config.AdminSet,
	notifier Notifier,
) *PhotoService {
	return &PhotoService{
		photos:   photos,
		members:  members,
		objects:  objects,
		notifier: notifier,
		admins:   admins,
		now:      time.Now,
	}
}

// UploadInput describes one uploaded file
type UploadInput struct {
	UserID      string
	Filename    string
	ContentType string
	Visibility  string
	GroupID     string
	Size        int64
	Body        io.ReadSeeker
}

// PhotoWithURL is a record with a freshly signed read URL
type PhotoWithURL struct {
	*models.Photo
	URL          *string
	URLError     string
	UploaderName string
}

// StorageUsage reports a user's consumption against the quota
type StorageUsage struct {
	Used       int64 `json:"used"`
	Limit      int64 `json:"limit"`
	Remaining  int64 `json:"remaining"`
	Percentage int   `json:"percentage"`
}

// Download is an open object stream with its record
type Download struct {
	Photo         *models.Photo
	Body          io.ReadCloser
	ContentLength int64
}

// Upload stores a file and records its metadata
func (s *PhotoService) Upload(ctx context.Context, in UploadInput) (*PhotoWithURL, error) {
	if in.Body == nil || in.Size <= 0 {
		return nil, invalid("No file provided")
	}

	visibility := models.Visibility(in.Visibility)
	if visibility == "" {
		visibility = models.VisibilityPrivate
	}
	if !visibility.Valid() {
		return nil, invalid("Invalid visibility value")
	}

	filename := in.Filename
	if strings.TrimSpace(filename) == "" {
		return nil, invalid("No file provided")
	}
	mimeType := NormalizeMIME(filename, in.ContentType)
	if !AllowedMIME(mimeType) {
		return nil, invalid("Invalid file type. Only images and videos are allowed.")
	}

	var groupID *string
	if in.GroupID != "" {
		ok, err := s.isMember(ctx, in.GroupID, in.UserID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, forbidden("Not a member of this group")
		}
		groupID = &in.GroupID
	}

	used, err := s.photos.TotalSize(ctx, in.UserID)
	if err != nil {
		return nil, upstream("Failed to check storage usage", err)
	}
	if used+in.Size > StorageQuota {
		remaining := StorageQuota - used
		if remaining < 0 {
			remaining = 0
		}
		return nil, &Error{
			Kind:    ErrQuotaExceeded,
			Message: fmt.Sprintf("Storage quota exceeded. You have %dMB remaining.", int64(math.Round(float64(remaining)/1024/1024))),
		}
	}

	now := s.now()
	key := fmt.Sprintf("uploads/%s/%d-%s", in.UserID, now.UnixMilli(), filename)
	if err := s.putObject(ctx, key, mimeType, in.Body); err != nil {
		return nil, upstream("Failed to upload file", err)
	}

	photo := &models.Photo{
		ID:         uuid.New().String(),
		UserID:     in.UserID,
		Filename:   filename,
		R2Key:      key,
		Visibility: visibility,
		GroupID:    groupID,
		FileSize:   in.Size,
		MimeType:   mimeType,
		CreatedAt:  now,
	}
	if visibility == models.VisibilityPublic {
		link, err := newPublicLink()
		if err != nil {
			return nil, upstream("Failed to save photo metadata", err)
		}
		photo.PublicLink = &link
	}

	if err := s.photos.Create(ctx, photo); err != nil {
		log.Error().Err(err).Str("r2_key", key).Str("user_id", in.UserID).Msg("Metadata insert failed, object left orphaned")
		return nil, upstream("Failed to save photo metadata", err)
	}

	log.Info().Str("photo_id", photo.ID).Str("user_id", in.UserID).Int64("file_size", in.Size).Msg("Photo uploaded")

	if groupID != nil {
		s.notifyGroup(ctx, *groupID, in.UserID, WSMessage{Type: EventPhotoUploaded, GroupID: *groupID, PhotoID: photo.ID})
	}

	return s.withURL(ctx, photo), nil
}

// putObject writes the payload, provisioning the bucket once if it is missing
func (s *PhotoService) putObject(ctx context.Context, key, contentType string, body io.ReadSeeker) error {
	err := s.objects.Put(ctx, key, contentType, body)
	if err == nil || !errors.Is(err, storage.ErrNoSuchBucket) {
		return err
	}

	log.Warn().Str("r2_key", key).Msg("Bucket missing, creating it and retrying upload")
	if err := s.objects.CreateBucket(ctx); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind upload: %w", err)
	}
	return s.objects.Put(ctx, key, contentType, body)
}

// ListPersonal returns the caller's records that are not in a group
func (s *PhotoService) ListPersonal(ctx context.Context, userID string) ([]*PhotoWithURL, error) {
	photos, err := s.photos.ListPersonal(ctx, userID)
	if err != nil {
		return nil, upstream("Failed to fetch photos", err)
	}
	return s.signAll(ctx, photos)
}

// ListGroup returns a group's records for one of its members
func (s *PhotoService) ListGroup(ctx context.Context, groupID, userID string) ([]*PhotoWithURL, error) {
	ok, err := s.isMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, forbidden("Not a member of this group")
	}
	photos, err := s.photos.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, upstream("Failed to fetch group photos", err)
	}

	out, err := s.signAll(ctx, photos)
	if err != nil {
		return nil, err
	}
	for _, p := range out {
		p.UploaderName = DisplayName(p.UserID)
	}
	return out, nil
}

// ListAll returns every record
func (s *PhotoService) ListAll(ctx context.Context) ([]*PhotoWithURL, error) {
	photos, err := s.photos.ListAll(ctx)
	if err != nil {
		return nil, upstream("Failed to fetch photos", err)
	}
	return s.signAll(ctx, photos)
}

// Get returns a record the caller may read
func (s *PhotoService) Get(ctx context.Context, id, userID string) (*PhotoWithURL, error) {
	photo, err := s.authorized(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	url, err := s.objects.PresignGet(ctx, photo.R2Key, SignedURLTTL)
	if err != nil {
		return nil, upstream("Failed to generate image URL", err)
	}
	return &PhotoWithURL{Photo: photo, URL: &url}, nil
}

// Update changes a record's visibility and/or filename
func (s *PhotoService) Update(ctx context.Context, id, userID string, visibility, filename *string) (*models.Photo, error) {
	if visibility != nil && !models.Visibility(*visibility).Valid() {
		return nil, invalid("Invalid visibility value")
	}
	if filename != nil && strings.TrimSpace(*filename) == "" {
		return nil, invalid("Filename cannot be empty")
	}

	photo, err := s.authorized(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if visibility != nil {
		photo.Visibility = models.Visibility(*visibility)
		switch photo.Visibility {
		case models.VisibilityPublic:
			if photo.PublicLink == nil {
				link, err := newPublicLink()
				if err != nil {
					return nil, upstream("Failed to update photo", err)
				}
				photo.PublicLink = &link
			}
		case models.VisibilityPrivate:
			photo.PublicLink = nil
		}
	}
	if filename != nil {
		photo.Filename = strings.TrimSpace(*filename)
	}

	if err := s.photos.Update(ctx, photo); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("Photo not found")
		}
		return nil, upstream("Failed to update photo", err)
	}
	return photo, nil
}

// Download opens a record's payload for streaming. The caller closes Body.
func (s *PhotoService) Download(ctx context.Context, id, userID string) (*Download, error) {
	photo, err := s.authorized(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	obj, err := s.objects.Get(ctx, photo.R2Key)
	if err != nil {
		if errors.Is(err, storage.ErrNoSuchKey) {
			log.Error().Str("photo_id", photo.ID).Str("r2_key", photo.R2Key).Msg("Record points at a missing object")
			return nil, notFound("File not found in storage")
		}
		return nil, upstream("Failed to download photo", err)
	}

	length := obj.ContentLength
	if length <= 0 {
		length = photo.FileSize
	}
	return &Download{Photo: photo, Body: obj.Body, ContentLength: length}, nil
}

// Delete removes a record and its payload
func (s *PhotoService) Delete(ctx context.Context, id, userID string) error {
	photo, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	allowed, err := s.canDelete(ctx, photo, userID)
	if err != nil {
		return err
	}
	if !allowed {
		return forbidden("Not authorized to delete this photo")
	}

	if err := s.objects.Delete(ctx, photo.R2Key); err != nil && !errors.Is(err, storage.ErrNoSuchKey) {
		return upstream("Failed to delete photo", err)
	}
	if err := s.photos.Delete(ctx, photo.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound("Photo not found")
		}
		log.Error().Err(err).Str("photo_id", photo.ID).Str("r2_key", photo.R2Key).Msg("Object deleted but record remains")
		return upstream("Failed to delete photo", err)
	}

	log.Info().Str("photo_id", photo.ID).Str("user_id", userID).Msg("Photo deleted")
	return nil
}

// PublicFetch returns a public record by its link
func (s *PhotoService) PublicFetch(ctx context.Context, publicLink string) (*PhotoWithURL, error) {
	if publicLink == "" {
		return nil, notFound("Photo not found or not public")
	}
	photo, err := s.photos.GetPublic(ctx, publicLink)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("Photo not found or not public")
		}
		return nil, upstream("Failed to fetch photo", err)
	}

	url, err := s.objects.PresignGet(ctx, photo.R2Key, SignedURLTTL)
	if err != nil {
		return nil, upstream("Failed to generate image URL", err)
	}
	return &PhotoWithURL{Photo: photo, URL: &url}, nil
}

// StorageUsage reports the caller's consumption against the quota
func (s *PhotoService) StorageUsage(ctx context.Context, userID string) (*StorageUsage, error) {
	used, err := s.photos.TotalSize(ctx, userID)
	if err != nil {
		return nil, upstream("Failed to fetch storage usage", err)
	}
	remaining := StorageQuota - used
	if remaining < 0 {
		remaining = 0
	}
	return &StorageUsage{
		Used:       used,
		Limit:      StorageQuota,
		Remaining:  remaining,
		Percentage: int(math.Round(float64(used) / float64(StorageQuota) * 100)),
	}, nil
}

func (s *PhotoService) load(ctx context.Context, id string) (*models.Photo, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, notFound("Photo not found")
	}
	photo, err := s.photos.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("Photo not found")
		}
		return nil, upstream("Failed to fetch photo", err)
	}
	return photo, nil
}

// authorized loads a record the caller owns or may administer
func (s *PhotoService) authorized(ctx context.Context, id, userID string) (*models.Photo, error) {
	photo, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if photo.UserID != userID && !s.admins.Contains(userID) {
		return nil, forbidden("Not authorized to access this photo")
	}
	return photo, nil
}

func (s *PhotoService) canDelete(ctx context.Context, photo *models.Photo, userID string) (bool, error) {
	if photo.UserID == userID || s.admins.Contains(userID) {
		return true, nil
	}
	if photo.GroupID == nil {
		return false, nil
	}
	m, err := s.membership(ctx, *photo.GroupID, userID)
	if err != nil || m == nil {
		return false, err
	}
	return m.Role == models.RoleAdmin, nil
}

func (s *PhotoService) isMember(ctx context.Context, groupID, userID string) (bool, error) {
	m, err := s.membership(ctx, groupID, userID)
	return m != nil, err
}

// membership returns nil without error when the user is not in the group
func (s *PhotoService) membership(ctx context.Context, groupID, userID string) (*models.GroupMember, error) {
	if _, err := uuid.Parse(groupID); err != nil {
		return nil, nil
	}
	m, err := s.members.Get(ctx, groupID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, upstream("Failed to check membership", err)
	}
	return m, nil
}

func (s *PhotoService) notifyGroup(ctx context.Context, groupID, senderID string, msg WSMessage) {
	if s.notifier == nil {
		return
	}
	members, err := s.members.List(ctx, groupID)
	if err != nil {
		log.Error().Err(err).Str("group_id", groupID).Msg("Failed to list members for notification")
		return
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		if m.UserID != senderID {
			ids = append(ids, m.UserID)
		}
	}
	s.notifier.NotifyUsers(ids, msg)
}

func (s *PhotoService) withURL(ctx context.Context, photo *models.Photo) *PhotoWithURL {
	out := &PhotoWithURL{Photo: photo}
	url, err := s.objects.PresignGet(ctx, photo.R2Key, SignedURLTTL)
	if err != nil {
		log.Error().Err(err).Str("photo_id", photo.ID).Msg("Failed to sign URL")
		out.URLError = "Failed to load image"
		return out
	}
	out.URL = &url
	return out
}

// signAll signs every record concurrently. Per-item failures are reported on the item.
func (s *PhotoService) signAll(ctx context.Context, photos []*models.Photo) ([]*PhotoWithURL, error) {
	out := make([]*PhotoWithURL, len(photos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(presignConcurrency)
	for i, p := range photos {
		i, p := i, p
		g.Go(func() error {
			out[i] = s.withURL(gctx, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, upstream("Failed to generate image URLs", err)
	}
	return out, nil
}

// DisplayName is the placeholder name shown for a user
func DisplayName(userID string) string {
	short := userID
	if len(short) > 8 {
		short = short[:8]
	}
	return "User " + short
}

// newPublicLink returns a random unguessable public slug
func newPublicLink() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate public link: %w", err)
	}
	return "photo-" + base64.RawURLEncoding.EncodeToString(b), nil
}
