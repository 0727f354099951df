package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
	`CREATE TABLE IF NOT EXISTS profiles (
		id     UUID PRIMARY KEY,
		name   TEXT,
		mobile TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS groups (
		id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name        TEXT NOT NULL,
		description TEXT,
		icon_url    TEXT,
		created_by  UUID NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS group_members (
		id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		group_id   UUID NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
		user_id    UUID NOT NULL,
		role       TEXT NOT NULL CHECK (role IN ('admin', 'member')),
		invited_by UUID,
		joined_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (group_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS photos (
		id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id     UUID NOT NULL,
		filename    TEXT NOT NULL,
		r2_key      TEXT NOT NULL UNIQUE,
		visibility  TEXT NOT NULL DEFAULT 'private' CHECK (visibility IN ('public', 'private')),
		group_id    UUID REFERENCES groups(id) ON DELETE SET NULL,
		public_link TEXT UNIQUE,
		file_size   BIGINT NOT NULL DEFAULT 0,
		mime_type   TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS photos_user_created_idx ON photos (user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS photos_group_created_idx ON photos (group_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS group_members_user_idx ON group_members (user_id)`,
}

// Migrate creates the tables the service needs if they do not exist yet
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
