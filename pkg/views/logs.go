package views

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/glasswing/obsync/internal/cache"
	"github.com/glasswing/obsync/internal/index"
	"github.com/glasswing/obsync/internal/query"
	"github.com/glasswing/obsync/pkg/client"
	"github.com/glasswing/obsync/pkg/filterurl"
	"github.com/glasswing/obsync/pkg/pagestore"
	"github.com/glasswing/obsync/pkg/stream"
)

// logDefaults is the filter state "clear filters" restores for logs.
func logDefaults() map[string]any {
	return map[string]any{"sortBy": "timestamp", "sortDir": "desc"}
}

// LogsURLConfig declares how log filters map onto the URL query.
func LogsURLConfig() filterurl.Config {
	return filterurl.Config{
		Defaults: logDefaults(),
	}
}

// LogsView is the logs resource composition: one paginated store, the
// applications/sessions/stats lookups, and a live stream client that
// prepends incoming records while the view shows the freshest page.
type LogsView struct {
	deps   Deps
	store  *pagestore.Store[client.LogRecord]
	stream *stream.Client
	idx    *index.Index

	apps     auxQuery[[]string]
	sessions auxQuery[[]string]
	stats    auxQuery[*client.Stats]

	mu          sync.Mutex
	lastApp     string
	pendingLive int

	cancelSnap   func()
	cancelFilter func()
}

// NewLogsView wires a logs view from shared deps.
func NewLogsView(deps Deps) (*LogsView, error) {
	cfg := deps.Config

	qc, err := cache.New[pagestore.Page[client.LogRecord]](cfg.QueryCacheItems, cfg.QueryCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("creating query cache: %w", err)
	}

	v := &LogsView{deps: deps, idx: index.New()}

	fetch := func(ctx context.Context, filters map[string]any, limit, offset int) (pagestore.Page[client.LogRecord], error) {
		items, total, err := deps.Client.ListLogs(ctx, filters, limit, offset, &client.ListLogsOptions{IncludeAttributes: true})
		if err != nil {
			return pagestore.Page[client.LogRecord]{}, err
		}
		return pagestore.Page[client.LogRecord]{Items: items, Total: total}, nil
	}

	v.store = pagestore.New("logs", fetch,
		pagestore.WithLimit[client.LogRecord](cfg.PageSize),
		pagestore.WithDefaults[client.LogRecord](logDefaults()),
		pagestore.WithClock[client.LogRecord](deps.clock()),
		pagestore.WithCache[client.LogRecord](qc),
		pagestore.WithPollInterval[client.LogRecord](cfg.PollInterval),
	)

	endpoint, err := stream.EndpointURL(cfg.BaseURL, cfg.PageHost, cfg.LivePath)
	if err != nil {
		return nil, fmt.Errorf("deriving live endpoint: %w", err)
	}
	v.stream = stream.New(endpoint, v.handleLiveFrame,
		stream.WithClock(deps.clock()),
		stream.WithMaxAttempts(cfg.StreamMaxRetries),
	)

	v.apps = auxQuery[[]string]{fetch: deps.Client.ListApplications}
	v.sessions = auxQuery[[]string]{fetch: func(ctx context.Context) ([]string, error) {
		return deps.Client.ListSessions(ctx, asString(v.store.Filters()["appName"]))
	}}
	v.stats = auxQuery[*client.Stats]{fetch: func(ctx context.Context) (*client.Stats, error) {
		return deps.Client.GetStats(ctx, "logs")
	}}

	v.cancelSnap = v.store.Subscribe(v.rebuildIndex)
	v.cancelFilter = v.store.OnFilterChange(v.onFilterChange)
	return v, nil
}

// Activate issues the initial fetch, opens the live stream and warms
// the auxiliary lookups in parallel.
func (v *LogsView) Activate(ctx context.Context) error {
	v.store.Activate(ctx)
	v.stream.Connect(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := v.Applications(gctx)
		return err
	})
	g.Go(func() error {
		_, err := v.Stats(gctx)
		return err
	})
	return g.Wait()
}

// Close tears the view down: polling stopped, stream disconnected, no
// timers or sockets outlive it.
func (v *LogsView) Close() {
	v.cancelSnap()
	v.cancelFilter()
	v.stream.Disconnect()
	v.store.Close()
}

// Store exposes the underlying paginated store, which also serves as
// the filterurl.FilterSource for URL binding.
func (v *LogsView) Store() *pagestore.Store[client.LogRecord] { return v.store }

// Snapshot returns the current derived list state.
func (v *LogsView) Snapshot() pagestore.Snapshot[client.LogRecord] { return v.store.Snapshot() }

// Subscribe registers an observer of list state changes.
func (v *LogsView) Subscribe(fn func(pagestore.Snapshot[client.LogRecord])) (cancel func()) {
	return v.store.Subscribe(fn)
}

// SetFilters, UpdateFilter, ClearFilters, LoadMore, Refetch and the
// polling commands delegate to the store.

func (v *LogsView) SetFilters(ctx context.Context, filters map[string]any) {
	v.store.SetFilters(ctx, filters)
}

func (v *LogsView) UpdateFilter(ctx context.Context, key string, value any) {
	v.store.UpdateFilter(ctx, key, value)
}

func (v *LogsView) ClearFilters(ctx context.Context) { v.store.ClearFilters(ctx) }

func (v *LogsView) LoadMore(ctx context.Context) bool { return v.store.LoadMore(ctx) }

func (v *LogsView) Refetch(ctx context.Context) { v.store.Refetch(ctx) }

func (v *LogsView) TogglePolling(ctx context.Context) bool { return v.store.TogglePolling(ctx) }

func (v *LogsView) SetPollingInterval(d time.Duration) { v.store.SetPollingInterval(d) }

// ToggleLiveMode flips live-event forwarding without touching the
// connection.
func (v *LogsView) ToggleLiveMode() bool { return v.stream.ToggleLiveMode() }

// SetLiveMode sets live-event forwarding directly.
func (v *LogsView) SetLiveMode(on bool) { v.stream.SetLiveMode(on) }

// ConnectionState reports the stream client's state.
func (v *LogsView) ConnectionState() stream.State { return v.stream.State() }

// PendingLive returns how many live events arrived while the view was
// scrolled into history and were withheld from insertion.
func (v *LogsView) PendingLive() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pendingLive
}

// Applications returns the cached application list.
func (v *LogsView) Applications(ctx context.Context) ([]string, error) {
	return v.apps.get(ctx)
}

// Sessions returns the session list scoped to the current application
// filter. Changing the application filter invalidates it.
func (v *LogsView) Sessions(ctx context.Context) ([]string, error) {
	return v.sessions.get(ctx)
}

// Stats returns the cached aggregate log stats.
func (v *LogsView) Stats(ctx context.Context) (*client.Stats, error) {
	return v.stats.get(ctx)
}

// Facets returns per-severity and per-application counts over the
// records currently accumulated in the view.
func (v *LogsView) Facets() index.Facets { return v.idx.Facets() }

// Extract runs a jq expression over the accumulated records.
func (v *LogsView) Extract(expression string, maxResults int) (*query.Result, error) {
	return query.Extract(v.store.Snapshot().Items, expression, maxResults)
}

// handleLiveFrame merges one live record into the view. At offset 0
// the record is prepended (deduplicated, capped); while scrolled the
// event is counted but withheld so pagination offsets stay intact.
func (v *LogsView) handleLiveFrame(frame stream.Frame) {
	var rec client.LogRecord
	if err := json.Unmarshal(frame.Data, &rec); err != nil {
		slog.Debug("dropping undecodable live record", slog.String("error", err.Error()))
		return
	}
	if rec.ID != "" && v.idx.Has(rec.ID) {
		slog.Debug("dropping duplicate live record", slog.String("id", rec.ID))
		return
	}

	if v.store.Prepend(rec, v.deps.Config.LiveBufferMax) {
		return
	}
	v.mu.Lock()
	v.pendingLive++
	v.mu.Unlock()
}

// rebuildIndex keeps the facet index aligned with the accumulated list.
func (v *LogsView) rebuildIndex(snap pagestore.Snapshot[client.LogRecord]) {
	entries := make([]index.Entry, 0, len(snap.Items))
	for _, rec := range snap.Items {
		entries = append(entries, index.Entry{ID: rec.ID, Severity: rec.Level, AppName: rec.AppName})
	}
	v.idx.Rebuild(entries)

	// An offset-0 refresh picked up any withheld live rows.
	if snap.Offset == 0 {
		v.mu.Lock()
		v.pendingLive = 0
		v.mu.Unlock()
	}
}

// onFilterChange invalidates the dependent sessions lookup when the
// application filter changes. Applications and stats are unaffected.
func (v *LogsView) onFilterChange(filters map[string]any) {
	app := asString(filters["appName"])
	v.mu.Lock()
	changed := app != v.lastApp
	v.lastApp = app
	v.mu.Unlock()
	if changed {
		v.sessions.invalidate()
	}
}
