package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// ListLogsOptions contains optional toggles for listing logs.
type ListLogsOptions struct {
	// IncludeAttributes asks the server to inline structured attributes
	// on each record instead of returning bare lines.
	IncludeAttributes bool
}

// ListLogs retrieves one page of log records matching the given filters.
// Filters are an open key→value mapping; unset values are skipped.
func (c *Client) ListLogs(ctx context.Context, filters map[string]any, limit, offset int, opts *ListLogsOptions) ([]LogRecord, int, error) {
	query := filterQuery(filters, limit, offset)
	if opts != nil && opts.IncludeAttributes {
		query.Set("attributes", "")
	}

	var page logPage
	if err := c.get(ctx, "/logs", query, &page); err != nil {
		return nil, 0, fmt.Errorf("listing logs: %w", err)
	}
	return page.Items, page.Total, nil
}

// ListTraces retrieves one page of trace summaries matching the given filters.
func (c *Client) ListTraces(ctx context.Context, filters map[string]any, limit, offset int) ([]TraceRecord, int, error) {
	var page tracePage
	if err := c.get(ctx, "/traces", filterQuery(filters, limit, offset), &page); err != nil {
		return nil, 0, fmt.Errorf("listing traces: %w", err)
	}
	return page.Items, page.Total, nil
}

// ListErrorGroupsOptions contains optional toggles for listing error groups.
type ListErrorGroupsOptions struct {
	// HideIgnored excludes groups whose status is "ignored".
	HideIgnored bool
}

// ListErrorGroups retrieves one page of error groups matching the given filters.
func (c *Client) ListErrorGroups(ctx context.Context, filters map[string]any, limit, offset int, opts *ListErrorGroupsOptions) ([]ErrorGroup, int, error) {
	query := filterQuery(filters, limit, offset)
	if opts != nil && opts.HideIgnored {
		query.Set("hideIgnored", "")
	}

	var page errorGroupPage
	if err := c.get(ctx, "/errors", query, &page); err != nil {
		return nil, 0, fmt.Errorf("listing error groups: %w", err)
	}
	return page.Items, page.Total, nil
}

// filterQuery builds query parameters from a filter mapping plus the
// page window. Unset filter values (nil, empty string) are skipped.
func filterQuery(filters map[string]any, limit, offset int) url.Values {
	query := make(url.Values)
	for key, value := range filters {
		switch v := value.(type) {
		case nil:
			continue
		case string:
			if v == "" {
				continue
			}
			query.Set(key, v)
		case int:
			query.Set(key, strconv.Itoa(v))
		case int64:
			query.Set(key, strconv.FormatInt(v, 10))
		case float64:
			query.Set(key, strconv.FormatFloat(v, 'f', -1, 64))
		case bool:
			query.Set(key, strconv.FormatBool(v))
		default:
			query.Set(key, fmt.Sprint(v))
		}
	}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))
	return query
}
