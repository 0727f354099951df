package repository

import (
	"context"
	"errors"
	"fmt"

	"piccsync-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const memberColumns = `id, group_id, user_id, role, invited_by, joined_at`

// MemberRepository handles database operations for group memberships
type MemberRepository struct {
	db *pgxpool.Pool
}

// NewMemberRepository creates a new membership repository
func NewMemberRepository(db *pgxpool.Pool) *MemberRepository {
	return &MemberRepository{db: db}
}

// Add inserts a membership. It reports false when the user already belongs to the group.
func (r *MemberRepository) Add(ctx context.Context, member *models.GroupMember) (bool, error) {
	query := `
		INSERT INTO group_members (` + memberColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (group_id, user_id) DO NOTHING
	`
	result, err := r.db.Exec(ctx, query,
		member.ID, member.GroupID, member.UserID, member.Role, member.InvitedBy, member.JoinedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to add member: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// Get retrieves a user's membership in a group
func (r *MemberRepository) Get(ctx context.Context, groupID, userID string) (*models.GroupMember, error) {
	query := `SELECT ` + memberColumns + ` FROM group_members WHERE group_id = $1 AND user_id = $2`
	member, err := scanMember(r.db.QueryRow(ctx, query, groupID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("membership: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return member, nil
}

// List retrieves every membership of a group, oldest first
func (r *MemberRepository) List(ctx context.Context, groupID string) ([]*models.GroupMember, error) {
	query := `SELECT ` + memberColumns + ` FROM group_members WHERE group_id = $1 ORDER BY joined_at`
	rows, err := r.db.Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := make([]*models.GroupMember, 0)
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating members: %w", err)
	}
	return members, nil
}

// Count returns the number of members in a group
func (r *MemberRepository) Count(ctx context.Context, groupID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM group_members WHERE group_id = $1`, groupID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count members: %w", err)
	}
	return n, nil
}

// CountAdmins returns the number of admins in a group
func (r *MemberRepository) CountAdmins(ctx context.Context, groupID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM group_members WHERE group_id = $1 AND role = 'admin'`, groupID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count admins: %w", err)
	}
	return n, nil
}

// Remove deletes a membership by its ID within a group
func (r *MemberRepository) Remove(ctx context.Context, groupID, memberID string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM group_members WHERE id = $1 AND group_id = $2`, memberID, groupID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("membership %s: %w", memberID, ErrNotFound)
	}
	return nil
}

func scanMember(row pgx.Row) (*models.GroupMember, error) {
	var m models.GroupMember
	if err := row.Scan(&m.ID, &m.GroupID, &m.UserID, &m.Role, &m.InvitedBy, &m.JoinedAt); err != nil {
		return nil, err
	}
	return &m, nil
}
