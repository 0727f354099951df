package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"piccsync-backend/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

const (
	defaultPerPage = 1000
	maxPages       = 50
)

var (
	// ErrInvalidToken is returned when the provider rejects an access token
	ErrInvalidToken = errors.New("invalid access token")
	// ErrUnavailable is returned while the circuit breaker is open
	ErrUnavailable = errors.New("account directory unavailable")
)

// Client talks to the auth provider's user endpoints
type Client struct {
	baseURL    string
	serviceKey string
	http       *http.Client
	cb         *gobreaker.CircuitBreaker
	perPage    int
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient overrides the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithPageSize overrides the page size used when listing accounts
func WithPageSize(n int) Option {
	return func(c *Client) { c.perPage = n }
}

// NewClient creates a directory client for the provider at baseURL
func NewClient(baseURL, serviceKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		http:       &http.Client{Timeout: 10 * time.Second},
		perPage:    defaultPerPage,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "directory",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrInvalidToken)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	})
	return c
}

type userPayload struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type usersPage struct {
	Users []userPayload `json:"users"`
}

// LookupUser resolves an access token to the account it belongs to
func (c *Client) LookupUser(ctx context.Context, token string) (*models.Account, error) {
	var u userPayload
	err := c.call(ctx, "/auth/v1/user", nil, "Bearer "+token, &u)
	if err != nil {
		return nil, err
	}
	if u.ID == "" {
		return nil, ErrInvalidToken
	}
	return &models.Account{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt}, nil
}

// ListAccounts returns every account known to the provider
func (c *Client) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	accounts := make([]*models.Account, 0)
	for page := 1; page <= maxPages; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(c.perPage))

		var p usersPage
		if err := c.call(ctx, "/auth/v1/admin/users", q, "Bearer "+c.serviceKey, &p); err != nil {
			return nil, fmt.Errorf("failed to list accounts: %w", err)
		}
		for _, u := range p.Users {
			accounts = append(accounts, &models.Account{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt})
		}
		if len(p.Users) < c.perPage {
			break
		}
	}
	return accounts, nil
}

// MatchEmails maps each requested email that belongs to an account onto that account's ID
func MatchEmails(accounts []*models.Account, emails []string) map[string]string {
	byEmail := make(map[string]string, len(accounts))
	for _, a := range accounts {
		byEmail[strings.ToLower(strings.TrimSpace(a.Email))] = a.ID
	}

	resolved := make(map[string]string)
	for _, e := range emails {
		key := strings.ToLower(strings.TrimSpace(e))
		if id, ok := byEmail[key]; ok && key != "" {
			resolved[key] = id
		}
	}
	return resolved
}

func (c *Client) call(ctx context.Context, path string, query url.Values, auth string, out any) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, path, query, auth, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func (c *Client) do(ctx context.Context, path string, query url.Values, auth string, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", auth)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		io.Copy(io.Discard, resp.Body)
		if path == "/auth/v1/user" {
			return ErrInvalidToken
		}
		return fmt.Errorf("%s rejected service key: status %d", path, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
