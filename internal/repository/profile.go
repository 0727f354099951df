package repository

import (
	"context"
	"fmt"

	"piccsync-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ProfileRepository reads user profiles
type ProfileRepository struct {
	db *pgxpool.Pool
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// ListAll returns every profile keyed by account ID
func (r *ProfileRepository) ListAll(ctx context.Context) (map[string]*models.Profile, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, mobile FROM profiles`)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	profiles := make(map[string]*models.Profile)
	for rows.Next() {
		var p models.Profile
		if err := rows.Scan(&p.ID, &p.Name, &p.Mobile); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles[p.ID] = &p
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profiles: %w", err)
	}
	return profiles, nil
}
