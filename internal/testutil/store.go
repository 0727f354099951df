// Package testutil provides in-memory implementations of the service ports for tests.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"piccsync-backend/internal/models"
	"piccsync-backend/internal/repository"
)

// DB is an in-memory metadata store shared by the Photos, Groups and Members views
type DB struct {
	mu       sync.Mutex
	photos   map[string]*models.Photo
	groups   map[string]*models.Group
	members  map[string]*models.GroupMember
	profiles map[string]*models.Profile
}

// NewDB creates an empty store
func NewDB() *DB {
	return &DB{
		photos:   make(map[string]*models.Photo),
		groups:   make(map[string]*models.Group),
		members:  make(map[string]*models.GroupMember),
		profiles: make(map[string]*models.Profile),
	}
}

// Photos returns the photo table
func (db *DB) Photos() *Photos { return &Photos{db: db} }

// Groups returns the group table
func (db *DB) Groups() *Groups { return &Groups{db: db} }

// Members returns the membership table
func (db *DB) Members() *Members { return &Members{db: db} }

// Profiles returns the profile table
func (db *DB) Profiles() *Profiles { return &Profiles{db: db} }

// Photos implements services.PhotoStore
type Photos struct{ db *DB }

func copyPhoto(p *models.Photo) *models.Photo {
	c := *p
	return &c
}

func (s *Photos) Create(_ context.Context, photo *models.Photo) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.photos[photo.ID]; ok {
		return fmt.Errorf("duplicate photo %s", photo.ID)
	}
	s.db.photos[photo.ID] = copyPhoto(photo)
	return nil
}

func (s *Photos) GetByID(_ context.Context, id string) (*models.Photo, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.photos[id]
	if !ok {
		return nil, fmt.Errorf("photo %s: %w", id, repository.ErrNotFound)
	}
	return copyPhoto(p), nil
}

func (s *Photos) GetPublic(_ context.Context, publicLink string) (*models.Photo, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, p := range s.db.photos {
		if p.Visibility == models.VisibilityPublic && p.PublicLink != nil && *p.PublicLink == publicLink {
			return copyPhoto(p), nil
		}
	}
	return nil, fmt.Errorf("public photo: %w", repository.ErrNotFound)
}

func (s *Photos) ListPersonal(_ context.Context, userID string) ([]*models.Photo, error) {
	return s.filter(func(p *models.Photo) bool { return p.UserID == userID && p.GroupID == nil }), nil
}

func (s *Photos) ListByGroup(_ context.Context, groupID string) ([]*models.Photo, error) {
	return s.filter(func(p *models.Photo) bool { return p.GroupID != nil && *p.GroupID == groupID }), nil
}

func (s *Photos) ListAll(_ context.Context) ([]*models.Photo, error) {
	return s.filter(func(*models.Photo) bool { return true }), nil
}

func (s *Photos) filter(keep func(*models.Photo) bool) []*models.Photo {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([]*models.Photo, 0)
	for _, p := range s.db.photos {
		if keep(p) {
			out = append(out, copyPhoto(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *Photos) Update(_ context.Context, photo *models.Photo) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.photos[photo.ID]
	if !ok {
		return fmt.Errorf("photo %s: %w", photo.ID, repository.ErrNotFound)
	}
	p.Filename = photo.Filename
	p.Visibility = photo.Visibility
	p.PublicLink = photo.PublicLink
	return nil
}

func (s *Photos) Delete(_ context.Context, id string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.photos[id]; !ok {
		return fmt.Errorf("photo %s: %w", id, repository.ErrNotFound)
	}
	delete(s.db.photos, id)
	return nil
}

func (s *Photos) TotalSize(_ context.Context, userID string) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var total int64
	for _, p := range s.db.photos {
		if p.UserID == userID {
			total += p.FileSize
		}
	}
	return total, nil
}

// Count returns the number of stored photos
func (s *Photos) Count() int {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return len(s.db.photos)
}

// Groups implements services.GroupStore
type Groups struct{ db *DB }

func (s *Groups) CreateWithAdmin(_ context.Context, group *models.Group, admin *models.GroupMember) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	g := *group
	m := *admin
	s.db.groups[g.ID] = &g
	s.db.members[m.ID] = &m
	return nil
}

func (s *Groups) GetByID(_ context.Context, id string) (*models.Group, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	g, ok := s.db.groups[id]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", id, repository.ErrNotFound)
	}
	c := *g
	return &c, nil
}

func (s *Groups) ListForUser(_ context.Context, userID string) ([]*models.GroupSummary, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([]*models.GroupSummary, 0)
	for _, m := range s.db.members {
		if m.UserID != userID {
			continue
		}
		g, ok := s.db.groups[m.GroupID]
		if !ok {
			continue
		}
		count := 0
		for _, o := range s.db.members {
			if o.GroupID == g.ID {
				count++
			}
		}
		out = append(out, &models.GroupSummary{Group: *g, UserRole: m.Role, MemberCount: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Groups) Update(_ context.Context, group *models.Group) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	g, ok := s.db.groups[group.ID]
	if !ok {
		return fmt.Errorf("group %s: %w", group.ID, repository.ErrNotFound)
	}
	g.Name = group.Name
	g.Description = group.Description
	return nil
}

func (s *Groups) SetIcon(_ context.Context, id, key string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	g, ok := s.db.groups[id]
	if !ok {
		return fmt.Errorf("group %s: %w", id, repository.ErrNotFound)
	}
	g.IconKey = &key
	return nil
}

// Delete removes the group, cascades memberships and detaches photos
func (s *Groups) Delete(_ context.Context, id string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.groups[id]; !ok {
		return fmt.Errorf("group %s: %w", id, repository.ErrNotFound)
	}
	delete(s.db.groups, id)
	for mid, m := range s.db.members {
		if m.GroupID == id {
			delete(s.db.members, mid)
		}
	}
	for _, p := range s.db.photos {
		if p.GroupID != nil && *p.GroupID == id {
			p.GroupID = nil
		}
	}
	return nil
}

// Members implements services.MemberStore
type Members struct{ db *DB }

func (s *Members) Add(_ context.Context, member *models.GroupMember) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, m := range s.db.members {
		if m.GroupID == member.GroupID && m.UserID == member.UserID {
			return false, nil
		}
	}
	c := *member
	s.db.members[c.ID] = &c
	return true, nil
}

func (s *Members) Get(_ context.Context, groupID, userID string) (*models.GroupMember, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, m := range s.db.members {
		if m.GroupID == groupID && m.UserID == userID {
			c := *m
			return &c, nil
		}
	}
	return nil, fmt.Errorf("membership: %w", repository.ErrNotFound)
}

func (s *Members) List(_ context.Context, groupID string) ([]*models.GroupMember, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([]*models.GroupMember, 0)
	for _, m := range s.db.members {
		if m.GroupID == groupID {
			c := *m
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (s *Members) Count(ctx context.Context, groupID string) (int, error) {
	list, _ := s.List(ctx, groupID)
	return len(list), nil
}

func (s *Members) CountAdmins(ctx context.Context, groupID string) (int, error) {
	list, _ := s.List(ctx, groupID)
	n := 0
	for _, m := range list {
		if m.Role == models.RoleAdmin {
			n++
		}
	}
	return n, nil
}

func (s *Members) Remove(_ context.Context, groupID, memberID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	m, ok := s.db.members[memberID]
	if !ok || m.GroupID != groupID {
		return fmt.Errorf("membership %s: %w", memberID, repository.ErrNotFound)
	}
	delete(s.db.members, memberID)
	return nil
}

// Profiles implements services.ProfileStore
type Profiles struct{ db *DB }

// Put stores a profile
func (s *Profiles) Put(p *models.Profile) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c := *p
	s.db.profiles[c.ID] = &c
}

func (s *Profiles) ListAll(_ context.Context) (map[string]*models.Profile, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make(map[string]*models.Profile, len(s.db.profiles))
	for id, p := range s.db.profiles {
		c := *p
		out[id] = &c
	}
	return out, nil
}
