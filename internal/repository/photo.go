package repository

import (
	"context"
	"errors"
	"fmt"

	"piccsync-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("not found")

const photoColumns = `id, user_id, filename, r2_key, visibility, group_id, public_link, file_size, mime_type, created_at`

// PhotoRepository handles database operations for photos
type PhotoRepository struct {
	db *pgxpool.Pool
}

// NewPhotoRepository creates a new photo repository
func NewPhotoRepository(db *pgxpool.Pool) *PhotoRepository {
	return &PhotoRepository{db: db}
}

// Create creates a new photo
func (r *PhotoRepository) Create(ctx context.Context, photo *models.Photo) error {
	query := `
		INSERT INTO photos (` + photoColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		photo.ID, photo.UserID, photo.Filename, photo.R2Key, photo.Visibility,
		photo.GroupID, photo.PublicLink, photo.FileSize, photo.MimeType, photo.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create photo: %w", err)
	}
	return nil
}

// GetByID retrieves a photo by ID
func (r *PhotoRepository) GetByID(ctx context.Context, id string) (*models.Photo, error) {
	query := `SELECT ` + photoColumns + ` FROM photos WHERE id = $1`
	photo, err := scanPhoto(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("photo %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get photo: %w", err)
	}
	return photo, nil
}

// GetPublic retrieves a public photo by its public link
func (r *PhotoRepository) GetPublic(ctx context.Context, publicLink string) (*models.Photo, error) {
	query := `SELECT ` + photoColumns + ` FROM photos WHERE public_link = $1 AND visibility = 'public'`
	photo, err := scanPhoto(r.db.QueryRow(ctx, query, publicLink))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("public photo: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get public photo: %w", err)
	}
	return photo, nil
}

// ListPersonal retrieves a user's photos that are not attached to a group, newest first
func (r *PhotoRepository) ListPersonal(ctx context.Context, userID string) ([]*models.Photo, error) {
	query := `
		SELECT ` + photoColumns + `
		FROM photos
		WHERE user_id = $1 AND group_id IS NULL
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, userID)
}

// ListByGroup retrieves a group's photos, newest first
func (r *PhotoRepository) ListByGroup(ctx context.Context, groupID string) ([]*models.Photo, error) {
	query := `
		SELECT ` + photoColumns + `
		FROM photos
		WHERE group_id = $1
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, groupID)
}

// ListAll retrieves every photo, newest first
func (r *PhotoRepository) ListAll(ctx context.Context) ([]*models.Photo, error) {
	query := `SELECT ` + photoColumns + ` FROM photos ORDER BY created_at DESC`
	return r.list(ctx, query)
}

func (r *PhotoRepository) list(ctx context.Context, query string, args ...any) ([]*models.Photo, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get photos: %w", err)
	}
	defer rows.Close()

	photos := make([]*models.Photo, 0)
	for rows.Next() {
		photo, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		photos = append(photos, photo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating photos: %w", err)
	}

	return photos, nil
}

// Update persists the mutable fields of a photo
func (r *PhotoRepository) Update(ctx context.Context, photo *models.Photo) error {
	query := `UPDATE photos SET filename = $1, visibility = $2, public_link = $3 WHERE id = $4`
	result, err := r.db.Exec(ctx, query, photo.Filename, photo.Visibility, photo.PublicLink, photo.ID)
	if err != nil {
		return fmt.Errorf("failed to update photo: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("photo %s: %w", photo.ID, ErrNotFound)
	}
	return nil
}

// Delete deletes a photo by ID
func (r *PhotoRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM photos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete photo: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("photo %s: %w", id, ErrNotFound)
	}
	return nil
}

// TotalSize returns the sum of file sizes owned by a user
func (r *PhotoRepository) TotalSize(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(file_size), 0)::bigint FROM photos WHERE user_id = $1`, userID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum photo sizes: %w", err)
	}
	return total, nil
}

func scanPhoto(row pgx.Row) (*models.Photo, error) {
	var photo models.Photo
	err := row.Scan(
		&photo.ID, &photo.UserID, &photo.Filename, &photo.R2Key, &photo.Visibility,
		&photo.GroupID, &photo.PublicLink, &photo.FileSize, &photo.MimeType, &photo.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &photo, nil
}
