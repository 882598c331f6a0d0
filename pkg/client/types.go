package client

import (
	"fmt"
	"time"
)

// Log severity levels as reported by the server.
const (
	LevelTrace = "trace"
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
	LevelFatal = "fatal"
)

// Error group statuses accepted by UpdateErrorGroupStatus.
const (
	StatusOpen     = "open"
	StatusResolved = "resolved"
	StatusIgnored  = "ignored"
)

// LogRecord is one server-held log line.
type LogRecord struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	AppName    string         `json:"appName"`
	SessionID  string         `json:"sessionId,omitempty"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// TraceRecord is one server-held trace summary.
type TraceRecord struct {
	TraceID    string    `json:"traceId"`
	AppName    string    `json:"appName"`
	SessionID  string    `json:"sessionId,omitempty"`
	Name       string    `json:"name"`
	StartedAt  time.Time `json:"startedAt"`
	DurationMs float64   `json:"durationMs"`
	SpanCount  int       `json:"spanCount"`
	HasError   bool      `json:"hasError"`
}

// ErrorGroup is a cluster of similar errors with an aggregate count
// and a triage status.
type ErrorGroup struct {
	ID        string    `json:"id"`
	AppName   string    `json:"appName"`
	Message   string    `json:"message"`
	Kind      string    `json:"kind,omitempty"`
	Count     int       `json:"count"`
	Status    string    `json:"status"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
}

// logPage is the wire shape of a paginated log listing.
type logPage struct {
	Items []LogRecord `json:"items"`
	Total int         `json:"total"`
}

// tracePage is the wire shape of a paginated trace listing.
type tracePage struct {
	Items []TraceRecord `json:"items"`
	Total int           `json:"total"`
}

// errorGroupPage is the wire shape of a paginated error-group listing.
type errorGroupPage struct {
	Items []ErrorGroup `json:"items"`
	Total int          `json:"total"`
}

// Stats holds aggregate counts for one resource.
type Stats struct {
	Total    int            `json:"total"`
	ByLevel  map[string]int `json:"byLevel,omitempty"`
	ByStatus map[string]int `json:"byStatus,omitempty"`
	ByApp    map[string]int `json:"byApp,omitempty"`
}

// APIError represents an error response from the dashboard API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dashboard API error %d: %s", e.StatusCode, e.Message)
}

// errorResponse is the JSON structure for API errors.
type errorResponse struct {
	Error string `json:"error"`
}
