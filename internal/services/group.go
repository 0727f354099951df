package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"
	"time"

	"piccsync-backend/internal/directory"
	"piccsync-backend/internal/models"
	"piccsync-backend/internal/repository"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp"
)

const (
	// MaxIconSize is the largest accepted group icon upload in bytes
	MaxIconSize = 5 << 20
	iconEdge    = 256
)

// GroupService handles group-related business logic
type GroupService struct {
	groups    GroupStore
	members   MemberStore
	objects   ObjectStore
	directory Directory
	notifier  Notifier
	now       func() time.Time
}

// NewGroupService creates a new group service. notifier may be nil.
func NewGroupService(
	groups GroupStore,
	members MemberStore,
	objects ObjectStore,
	dir Directory,
	notifier Notifier,
) *GroupService {
	return &GroupService{
		groups:    groups,
		members:   members,
		objects:   objects,
		directory: dir,
		notifier:  notifier,
		now:       time.Now,
	}
}

// CreateGroupInput is the payload for creating a group
type CreateGroupInput struct {
	Name         string
	Description  *string
	MemberEmails []string
}

// GroupDetails is a group as seen by a member, with a signed icon URL
type GroupDetails struct {
	*models.GroupSummary
	IconURL *string
}

// MemberDetails is a membership with a display name
type MemberDetails struct {
	*models.GroupMember
	Name string
}

// Create creates a group with the caller as its admin and adds any resolvable invitees
func (s *GroupService) Create(ctx context.Context, userID string, in CreateGroupInput) (*models.Group, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("Group name is required")
	}

	now := s.now()
	group := &models.Group{
		ID:          uuid.New().String(),
		Name:        name,
		Description: trimmedOrNil(in.Description),
		CreatedBy:   userID,
		CreatedAt:   now,
	}
	admin := &models.GroupMember{
		ID:       uuid.New().String(),
		GroupID:  group.ID,
		UserID:   userID,
		Role:     models.RoleAdmin,
		JoinedAt: now,
	}
	if err := s.groups.CreateWithAdmin(ctx, group, admin); err != nil {
		return nil, upstream("Failed to create group", err)
	}

	if len(in.MemberEmails) > 0 {
		ids, err := s.resolveEmails(ctx, in.MemberEmails)
		if err != nil {
			log.Error().Err(err).Str("group_id", group.ID).Msg("Failed to resolve invitee emails")
		} else if _, err := s.addAll(ctx, group.ID, userID, ids); err != nil {
			log.Error().Err(err).Str("group_id", group.ID).Msg("Failed to add invitees")
		}
	}

	log.Info().Str("group_id", group.ID).Str("user_id", userID).Msg("Group created")
	return group, nil
}

// ListForCaller returns the caller's groups with role and member count
func (s *GroupService) ListForCaller(ctx context.Context, userID string) ([]*models.GroupSummary, error) {
	groups, err := s.groups.ListForUser(ctx, userID)
	if err != nil {
		return nil, upstream("Failed to fetch groups", err)
	}
	return groups, nil
}

// Get returns a group's details for one of its members
func (s *GroupService) Get(ctx context.Context, groupID, userID string) (*GroupDetails, error) {
	m, err := s.requireMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}

	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("Group not found")
		}
		return nil, upstream("Failed to fetch group", err)
	}
	count, err := s.members.Count(ctx, groupID)
	if err != nil {
		return nil, upstream("Failed to fetch group", err)
	}

	out := &GroupDetails{GroupSummary: &models.GroupSummary{Group: *group, UserRole: m.Role, MemberCount: count}}
	if group.IconKey != nil {
		url, err := s.objects.PresignGet(ctx, *group.IconKey, SignedURLTTL)
		if err != nil {
			log.Error().Err(err).Str("group_id", groupID).Msg("Failed to sign group icon URL")
		} else {
			out.IconURL = &url
		}
	}
	return out, nil
}

// Update changes a group's name and/or description
func (s *GroupService) Update(ctx context.Context, groupID, userID string, name, description *string) (*models.Group, error) {
	if err := s.requireAdmin(ctx, groupID, userID, "Only group admins can update group details"); err != nil {
		return nil, err
	}
	if name != nil && strings.TrimSpace(*name) == "" {
		return nil, invalid("Group name is required")
	}

	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("Group not found")
		}
		return nil, upstream("Failed to update group", err)
	}
	if name != nil {
		group.Name = strings.TrimSpace(*name)
	}
	if description != nil {
		group.Description = trimmedOrNil(description)
	}

	if err := s.groups.Update(ctx, group); err != nil {
		return nil, upstream("Failed to update group", err)
	}
	return group, nil
}

// Delete removes a group. Memberships go with it and its photos become personal.
func (s *GroupService) Delete(ctx context.Context, groupID, userID string) error {
	if err := s.requireAdmin(ctx, groupID, userID, "Only group admins can delete groups"); err != nil {
		return err
	}

	members, err := s.members.List(ctx, groupID)
	if err != nil {
		log.Warn().Err(err).Str("group_id", groupID).Msg("Failed to list members before delete")
	}

	group, err := s.groups.GetByID(ctx, groupID)
	if err == nil && group.IconKey != nil {
		if err := s.objects.Delete(ctx, *group.IconKey); err != nil {
			log.Warn().Err(err).Str("group_id", groupID).Msg("Failed to delete group icon")
		}
	}

	if err := s.groups.Delete(ctx, groupID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound("Group not found")
		}
		return upstream("Failed to delete group", err)
	}

	log.Info().Str("group_id", groupID).Str("user_id", userID).Msg("Group deleted")

	if s.notifier != nil && len(members) > 0 {
		ids := make([]string, 0, len(members))
		for _, m := range members {
			if m.UserID != userID {
				ids = append(ids, m.UserID)
			}
		}
		s.notifier.NotifyUsers(ids, WSMessage{Type: EventGroupDeleted, GroupID: groupID})
	}
	return nil
}

// AddMembers adds users by email or by account ID and returns how many were newly added
func (s *GroupService) AddMembers(ctx context.Context, groupID, userID string, emails []string, targetUserID string) (int, error) {
	if err := s.requireAdmin(ctx, groupID, userID, "Only group admins can add members"); err != nil {
		return 0, err
	}

	var ids []string
	switch {
	case targetUserID != "":
		if _, err := uuid.Parse(targetUserID); err != nil {
			return 0, invalid("Invalid user id")
		}
		ids = []string{targetUserID}
	case len(emails) > 0:
		resolved, err := s.resolveEmails(ctx, emails)
		if err != nil {
			return 0, upstream("Failed to add members", err)
		}
		if len(resolved) == 0 {
			return 0, invalid("No valid users found with provided emails")
		}
		ids = resolved
	default:
		return 0, invalid("memberEmails or userId is required")
	}

	added, err := s.addAll(ctx, groupID, userID, ids)
	if err != nil {
		return 0, upstream("Failed to add members", err)
	}
	return added, nil
}

// RemoveMember removes a membership from a group
func (s *GroupService) RemoveMember(ctx context.Context, groupID, userID, memberID string) error {
	if err := s.requireAdmin(ctx, groupID, userID, "Only group admins can remove members"); err != nil {
		return err
	}
	if _, err := uuid.Parse(memberID); err != nil {
		return notFound("Member not found")
	}

	if err := s.members.Remove(ctx, groupID, memberID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound("Member not found")
		}
		return upstream("Failed to remove member", err)
	}

	if admins, err := s.members.CountAdmins(ctx, groupID); err == nil && admins == 0 {
		log.Warn().Str("group_id", groupID).Msg("Group has no admins left")
	}
	return nil
}

// ListMembers returns a group's members for one of its members
func (s *GroupService) ListMembers(ctx context.Context, groupID, userID string) ([]*MemberDetails, error) {
	if _, err := s.requireMember(ctx, groupID, userID); err != nil {
		return nil, err
	}

	members, err := s.members.List(ctx, groupID)
	if err != nil {
		return nil, upstream("Failed to fetch group members", err)
	}

	out := make([]*MemberDetails, 0, len(members))
	for _, m := range members {
		out = append(out, &MemberDetails{GroupMember: m, Name: DisplayName(m.UserID)})
	}
	return out, nil
}

// SetIcon replaces a group's icon with a square thumbnail of the uploaded image
func (s *GroupService) SetIcon(ctx context.Context, groupID, userID string, r io.Reader) (*GroupDetails, error) {
	if err := s.requireAdmin(ctx, groupID, userID, "Only group admins can update group details"); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxIconSize+1))
	if err != nil {
		return nil, invalid("Failed to read icon")
	}
	if len(data) == 0 {
		return nil, invalid("No file provided")
	}
	if len(data) > MaxIconSize {
		return nil, invalid("Icon must be 5MB or smaller")
	}

	thumb, err := iconThumbnail(data)
	if err != nil {
		return nil, invalid("Invalid file type. Only images are allowed for group icons.")
	}

	key := fmt.Sprintf("groups/%s/icon.jpg", groupID)
	if err := s.objects.Put(ctx, key, "image/jpeg", bytes.NewReader(thumb)); err != nil {
		return nil, upstream("Failed to upload icon", err)
	}
	if err := s.groups.SetIcon(ctx, groupID, key); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("Group not found")
		}
		return nil, upstream("Failed to update group", err)
	}

	return s.Get(ctx, groupID, userID)
}

func iconThumbnail(data []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if format != "jpeg" && format != "png" && format != "gif" && format != "webp" {
		return nil, fmt.Errorf("unsupported icon format %q", format)
	}

	thumb := imaging.Fill(img, iconEdge, iconEdge, imaging.Center, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *GroupService) requireMember(ctx context.Context, groupID, userID string) (*models.GroupMember, error) {
	if _, err := uuid.Parse(groupID); err != nil {
		return nil, notFound("Group not found")
	}
	m, err := s.members.Get(ctx, groupID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, forbidden("Not a member of this group")
		}
		return nil, upstream("Failed to check membership", err)
	}
	return m, nil
}

func (s *GroupService) requireAdmin(ctx context.Context, groupID, userID, msg string) error {
	m, err := s.requireMember(ctx, groupID, userID)
	if err != nil {
		if errors.Is(err, ErrForbidden) {
			return forbidden(msg)
		}
		return err
	}
	if m.Role != models.RoleAdmin {
		return forbidden(msg)
	}
	return nil
}

func (s *GroupService) resolveEmails(ctx context.Context, emails []string) ([]string, error) {
	if s.directory == nil {
		return nil, errors.New("account directory not configured")
	}
	accounts, err := s.directory.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	resolved := directory.MatchEmails(accounts, emails)
	ids := make([]string, 0, len(resolved))
	seen := make(map[string]struct{}, len(resolved))
	for _, e := range emails {
		id, ok := resolved[strings.ToLower(strings.TrimSpace(e))]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *GroupService) addAll(ctx context.Context, groupID, inviterID string, userIDs []string) (int, error) {
	added := 0
	for _, id := range userIDs {
		inviter := inviterID
		ok, err := s.members.Add(ctx, &models.GroupMember{
			ID:        uuid.New().String(),
			GroupID:   groupID,
			UserID:    id,
			Role:      models.RoleMember,
			InvitedBy: &inviter,
			JoinedAt:  s.now(),
		})
		if err != nil {
			return added, err
		}
		if !ok {
			continue
		}
		added++
		if s.notifier != nil {
			s.notifier.NotifyUsers([]string{id}, WSMessage{Type: EventMemberAdded, GroupID: groupID})
		}
	}
	return added, nil
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
