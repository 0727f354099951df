package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"piccsync-backend/internal/models"
	"piccsync-backend/internal/services"
	"piccsync-backend/internal/testutil"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateJWT(t *testing.T) {
	svc := services.NewUserService("secret", nil, nil)

	token, err := svc.GenerateJWT("user-1", "a@example.com", time.Hour)
	require.NoError(t, err)

	id, err := svc.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.ID)
	assert.Equal(t, "a@example.com", id.Email)

	expired, err := svc.GenerateJWT("user-1", "", -time.Minute)
	require.NoError(t, err)
	_, err = svc.Authenticate(context.Background(), expired)
	assert.ErrorIs(t, err, services.ErrUnauthorized)

	other := services.NewUserService("other-secret", nil, nil)
	forged, err := other.GenerateJWT("user-1", "", time.Hour)
	require.NoError(t, err)
	_, err = svc.Authenticate(context.Background(), forged)
	assert.ErrorIs(t, err, services.ErrUnauthorized)

	_, err = svc.Authenticate(context.Background(), "")
	assert.ErrorIs(t, err, services.ErrUnauthorized)
}

func TestValidateJWTRejectsOtherAlgorithms(t *testing.T) {
	svc := services.NewUserService("secret", nil, nil)
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	s, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), s)
	assert.ErrorIs(t, err, services.ErrUnauthorized)
}

func TestAuthenticateRemotely(t *testing.T) {
	dir := testutil.NewDirectory()
	dir.Tokens["opaque"] = &models.Account{ID: "user-2", Email: "b@example.com"}
	svc := services.NewUserService("", dir, nil)

	id, err := svc.Authenticate(context.Background(), "opaque")
	require.NoError(t, err)
	assert.Equal(t, "user-2", id.ID)

	_, err = svc.Authenticate(context.Background(), "unknown")
	assert.ErrorIs(t, err, services.ErrUnauthorized)

	dir.Err = errors.New("provider down")
	_, err = svc.Authenticate(context.Background(), "opaque")
	assert.ErrorIs(t, err, services.ErrUpstream)
}

func TestListUsersJoinsProfiles(t *testing.T) {
	now := time.Now()
	dir := testutil.NewDirectory(
		&models.Account{ID: "old", Email: "old@example.com", CreatedAt: now.Add(-time.Hour)},
		&models.Account{ID: "new", Email: "new@example.com", CreatedAt: now},
	)
	db := testutil.NewDB()
	name := "Ada"
	db.Profiles().Put(&models.Profile{ID: "old", Name: &name})

	svc := services.NewUserService("secret", dir, db.Profiles())
	users, err := svc.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)

	assert.Equal(t, "new", users[0].ID)
	assert.Equal(t, "N/A", users[0].Name)
	assert.Equal(t, "N/A", users[0].Mobile)
	assert.Equal(t, "Ada", users[1].Name)
	assert.Equal(t, "N/A", users[1].Mobile)

	dir.Err = errors.New("provider down")
	_, err = svc.ListUsers(context.Background())
	assert.ErrorIs(t, err, services.ErrUpstream)
}
