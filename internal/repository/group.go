package repository

import (
	"context"
	"errors"
	"fmt"

	"piccsync-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// GroupRepository handles database operations for groups
type GroupRepository struct {
	db *pgxpool.Pool
}

// NewGroupRepository creates a new group repository
func NewGroupRepository(db *pgxpool.Pool) *GroupRepository {
	return &GroupRepository{db: db}
}

// CreateWithAdmin creates a group and its creator's admin membership in one transaction
func (r *GroupRepository) CreateWithAdmin(ctx context.Context, group *models.Group, admin *models.GroupMember) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin group transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO groups (id, name, description, icon_url, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, group.ID, group.Name, group.Description, group.IconKey, group.CreatedBy, group.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO group_members (id, group_id, user_id, role, invited_by, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, admin.ID, admin.GroupID, admin.UserID, admin.Role, admin.InvitedBy, admin.JoinedAt)
	if err != nil {
		return fmt.Errorf("failed to create admin membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit group: %w", err)
	}
	return nil
}

// GetByID retrieves a group by ID
func (r *GroupRepository) GetByID(ctx context.Context, id string) (*models.Group, error) {
	query := `
		SELECT id, name, description, icon_url, created_by, created_at
		FROM groups
		WHERE id = $1
	`
	var group models.Group
	err := r.db.QueryRow(ctx, query, id).Scan(
		&group.ID, &group.Name, &group.Description, &group.IconKey, &group.CreatedBy, &group.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("group %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return &group, nil
}

// ListForUser retrieves every group a user belongs to with the user's role and the member count
func (r *GroupRepository) ListForUser(ctx context.Context, userID string) ([]*models.GroupSummary, error) {
	query := `
		SELECT g.id, g.name, g.description, g.icon_url, g.created_by, g.created_at, gm.role,
		       (SELECT COUNT(*) FROM group_members c WHERE c.group_id = g.id) AS member_count
		FROM group_members gm
		JOIN groups g ON g.id = gm.group_id
		WHERE gm.user_id = $1
		ORDER BY g.created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	groups := make([]*models.GroupSummary, 0)
	for rows.Next() {
		var g models.GroupSummary
		err := rows.Scan(
			&g.ID, &g.Name, &g.Description, &g.IconKey, &g.CreatedBy, &g.CreatedAt,
			&g.UserRole, &g.MemberCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, &g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating groups: %w", err)
	}
	return groups, nil
}

// Update persists a group's name and description
func (r *GroupRepository) Update(ctx context.Context, group *models.Group) error {
	query := `UPDATE groups SET name = $1, description = $2 WHERE id = $3`
	result, err := r.db.Exec(ctx, query, group.Name, group.Description, group.ID)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("group %s: %w", group.ID, ErrNotFound)
	}
	return nil
}

// SetIcon stores the object key of a group's icon
func (r *GroupRepository) SetIcon(ctx context.Context, id, key string) error {
	result, err := r.db.Exec(ctx, `UPDATE groups SET icon_url = $1 WHERE id = $2`, key, id)
	if err != nil {
		return fmt.Errorf("failed to set group icon: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("group %s: %w", id, ErrNotFound)
	}
	return nil
}

// Delete deletes a group; memberships cascade and photos are detached by the schema
func (r *GroupRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("group %s: %w", id, ErrNotFound)
	}
	return nil
}
