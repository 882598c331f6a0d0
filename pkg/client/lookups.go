package client

import (
	"context"
	"fmt"
	"net/url"
)

// ListApplications retrieves the names of all applications known to the server.
func (c *Client) ListApplications(ctx context.Context) ([]string, error) {
	var resp struct {
		Apps []string `json:"apps"`
	}
	if err := c.get(ctx, "/applications", nil, &resp); err != nil {
		return nil, fmt.Errorf("listing applications: %w", err)
	}
	return resp.Apps, nil
}

// ListSessions retrieves session identifiers, optionally scoped to one
// application. An empty appName returns sessions across all applications.
func (c *Client) ListSessions(ctx context.Context, appName string) ([]string, error) {
	var query url.Values
	if appName != "" {
		query = make(url.Values)
		query.Set("appName", appName)
	}

	var resp struct {
		Sessions []string `json:"sessions"`
	}
	if err := c.get(ctx, "/sessions", query, &resp); err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return resp.Sessions, nil
}

// GetStats retrieves aggregate counts for one resource
// ("logs", "traces" or "errors").
func (c *Client) GetStats(ctx context.Context, resource string) (*Stats, error) {
	var stats Stats
	if err := c.get(ctx, "/"+url.PathEscape(resource)+"/stats", nil, &stats); err != nil {
		return nil, fmt.Errorf("getting %s stats: %w", resource, err)
	}
	return &stats, nil
}

// UpdateErrorGroupStatus changes the triage status of one error group.
// Status must be one of StatusOpen, StatusResolved or StatusIgnored.
func (c *Client) UpdateErrorGroupStatus(ctx context.Context, id, status string) error {
	body := map[string]string{"status": status}
	if err := c.patch(ctx, "/errors/"+url.PathEscape(id), body, nil); err != nil {
		return fmt.Errorf("updating status of error group %q: %w", id, err)
	}
	return nil
}
