package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"piccsync-backend/internal/directory"
	"piccsync-backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// Identity is the authenticated caller
type Identity struct {
	ID    string
	Email string
}

// Claims are the fields read from provider-issued access tokens
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// UserDetails is an account joined with its profile
type UserDetails struct {
	ID        string
	Email     string
	Name      string
	Mobile    string
	CreatedAt time.Time
}

// UserService resolves access tokens and reads the account directory
type UserService struct {
	jwtSecret string
	directory Directory
	profiles  ProfileStore
}

// NewUserService creates a new user service. With an empty secret tokens are checked remotely.
func NewUserService(jwtSecret string, dir Directory, profiles ProfileStore) *UserService {
	return &UserService{
		jwtSecret: jwtSecret,
		directory: dir,
		profiles:  profiles,
	}
}

// Authenticate resolves a bearer token to the caller's identity
func (s *UserService) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, &Error{Kind: ErrUnauthorized, Message: "No token provided"}
	}

	if s.jwtSecret != "" {
		return s.ValidateJWT(token)
	}

	if s.directory == nil {
		return nil, upstream("Authentication failed", errors.New("no token verifier configured"))
	}
	acct, err := s.directory.LookupUser(ctx, token)
	if err != nil {
		if errors.Is(err, directory.ErrInvalidToken) {
			return nil, &Error{Kind: ErrUnauthorized, Message: "Invalid token"}
		}
		return nil, upstream("Authentication failed", err)
	}
	return &Identity{ID: acct.ID, Email: acct.Email}, nil
}

// ValidateJWT verifies an HS256 token locally and returns the identity in its subject
func (s *UserService) ValidateJWT(tokenString string) (*Identity, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, &Error{Kind: ErrUnauthorized, Message: "Invalid token", Cause: err}
	}
	if !token.Valid || claims.Subject == "" {
		return nil, &Error{Kind: ErrUnauthorized, Message: "Invalid token"}
	}
	return &Identity{ID: claims.Subject, Email: claims.Email}, nil
}

// GenerateJWT signs a token the same way the auth provider does. Used by tooling and tests.
func (s *UserService) GenerateJWT(userID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{"authenticated"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ListUsers returns every account with its profile details, newest first
func (s *UserService) ListUsers(ctx context.Context) ([]*UserDetails, error) {
	if s.directory == nil {
		return nil, upstream("Failed to fetch users", errors.New("account directory not configured"))
	}
	accounts, err := s.directory.ListAccounts(ctx)
	if err != nil {
		return nil, upstream("Failed to fetch users", err)
	}

	profiles := map[string]*models.Profile{}
	if s.profiles != nil {
		profiles, err = s.profiles.ListAll(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load profiles, continuing without them")
			profiles = map[string]*models.Profile{}
		}
	}

	users := make([]*UserDetails, 0, len(accounts))
	for _, a := range accounts {
		u := &UserDetails{ID: a.ID, Email: a.Email, Name: "N/A", Mobile: "N/A", CreatedAt: a.CreatedAt}
		if p, ok := profiles[a.ID]; ok {
			if p.Name != nil && *p.Name != "" {
				u.Name = *p.Name
			}
			if p.Mobile != nil && *p.Mobile != "" {
				u.Mobile = *p.Mobile
			}
		}
		users = append(users, u)
	}

	sort.SliceStable(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}
