package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/ports"
)

// identityUser est le DTO JSON de l'identity-service
type identityUser struct {
	ID          string  `json:"id"`
	Username    string  `json:"username"`
	DisplayName *string `json:"displayName"`
	AvatarURL   *string `json:"avatarUrl"`
	Verified    bool    `json:"verified"`
}

type userResponse struct {
	Data *identityUser `json:"data"`
}

type userListResponse struct {
	Data struct {
		Users []identityUser `json:"users"`
	} `json:"data"`
}

// IdentityClient appelle l'API REST interne de l'identity-service
type IdentityClient struct {
	baseURL string
	token   string
	http    *http.Client
}

var _ ports.IdentityClient = (*IdentityClient)(nil)

// NewIdentityClient: le transport est instrumenté (propagation du trace context)
func NewIdentityClient(baseURL, token string, timeout time.Duration) *IdentityClient {
	return &IdentityClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *IdentityClient) GetUser(ctx context.Context, userID string) (*domain.Profile, error) {
	var resp userResponse
	if err := c.get(ctx, "/api/v1/users/"+url.PathEscape(userID), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil || resp.Data.ID == "" {
		return nil, domain.ErrUserNotFound
	}
	return resp.Data.toDomain(), nil
}

func (c *IdentityClient) ListUsers(ctx context.Context, limit int) ([]*domain.Profile, error) {
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	return c.list(ctx, "/api/v1/users", q)
}

func (c *IdentityClient) ListAllUsers(ctx context.Context, page, limit int) ([]*domain.Profile, error) {
	q := url.Values{"page": {strconv.Itoa(page)}, "limit": {strconv.Itoa(limit)}}
	return c.list(ctx, "/api/v1/admin/users", q)
}

func (c *IdentityClient) list(ctx context.Context, path string, q url.Values) ([]*domain.Profile, error) {
	var resp userListResponse
	if err := c.get(ctx, path, q, &resp); err != nil {
		return nil, err
	}
	out := make([]*domain.Profile, 0, len(resp.Data.Users))
	for i := range resp.Data.Users {
		if resp.Data.Users[i].ID == "" {
			continue
		}
		out = append(out, resp.Data.Users[i].toDomain())
	}
	return out, nil
}

// get traduit les échecs HTTP: 404 -> ErrUserNotFound, le reste -> ErrUpstreamUnavailable
func (c *IdentityClient) get(ctx context.Context, path string, q url.Values, dest any) error {
	target := c.baseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, res.Body)
		return domain.ErrUserNotFound
	case res.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, res.Body)
		slog.WarnContext(ctx, "Identity service returned an error", "path", path, "status", res.StatusCode)
		return fmt.Errorf("%w: identity service status %d", domain.ErrUpstreamUnavailable, res.StatusCode)
	}

	if err := json.NewDecoder(res.Body).Decode(dest); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrUpstreamUnavailable, err)
	}
	return nil
}

func (u *identityUser) toDomain() *domain.Profile {
	return &domain.Profile{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Verified:    u.Verified,
	}
}
