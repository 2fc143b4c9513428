// Package directory looks up users by role, branch and admin flag in the
// identity service that owns them.
package directory

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/samims/notifier/pkg/httpclient"
)

// Directory is the user/role directory consulted by the recipient resolver.
type Directory interface {
	UsersByRoles(ctx context.Context, roles []string) ([]string, error)
	UsersByBranches(ctx context.Context, branches []string) ([]string, error)
	Admins(ctx context.Context) ([]string, error)
}

type usersResponse struct {
	UserIDs []string `json:"user_ids"`
}

// HTTPDirectory queries GET /users on the identity service.
type HTTPDirectory struct {
	client *httpclient.Client
	logger *slog.Logger
}

func NewHTTPDirectory(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPDirectory {
	return &HTTPDirectory{
		client: httpclient.New(baseURL, timeout),
		logger: logger.With("layer", "directory", "component", "http"),
	}
}

func (d *HTTPDirectory) UsersByRoles(ctx context.Context, roles []string) ([]string, error) {
	return d.users(ctx, url.Values{"role": roles})
}

func (d *HTTPDirectory) UsersByBranches(ctx context.Context, branches []string) ([]string, error) {
	return d.users(ctx, url.Values{"branch": branches})
}

func (d *HTTPDirectory) Admins(ctx context.Context) ([]string, error) {
	return d.users(ctx, url.Values{"admin": {"true"}})
}

func (d *HTTPDirectory) users(ctx context.Context, query url.Values) ([]string, error) {
	var resp usersResponse
	if err := d.client.GetJSON(ctx, "/users", query, &resp); err != nil {
		d.logger.Error("directory lookup failed", "query", query.Encode(), "error", err)
		return nil, fmt.Errorf("directory lookup: %w", err)
	}
	return resp.UserIDs, nil
}
