// Package client provides a Go SDK for the dashboard Data API.
//
// The Data API exposes paginated listings of logs, traces and error
// groups plus a handful of lookup endpoints (applications, sessions,
// aggregate stats). This package only executes requests and decodes
// typed responses; pagination, caching and live merging live in
// pkg/pagestore and pkg/views.
//
// # Quick Start
//
// Create a client and list the first page of logs:
//
//	c := client.New()
//	items, total, err := c.ListLogs(ctx, map[string]any{"level": "error"}, 50, 0, nil)
//
// Use custom configuration:
//
//	c := client.New(
//	    client.WithBaseURL("https://dash.example.com/api"),
//	    client.WithHTTPClient(customHTTPClient),
//	)
package client
