package views

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/glasswing/obsync/internal/cache"
	"github.com/glasswing/obsync/pkg/client"
	"github.com/glasswing/obsync/pkg/filterurl"
	"github.com/glasswing/obsync/pkg/pagestore"
)

func errorGroupDefaults() map[string]any {
	return map[string]any{
		"sortBy":      "last_seen",
		"sortDir":     "desc",
		"hideIgnored": false,
	}
}

// ErrorGroupsURLConfig declares how error-group filters map onto the
// URL query. The hideIgnored toggle is a local display preference and
// stays out of shared URLs.
func ErrorGroupsURLConfig() filterurl.Config {
	return filterurl.Config{
		Defaults: errorGroupDefaults(),
		Exclude:  []string{"hideIgnored"},
	}
}

// ErrorGroupsView is the error-groups resource composition. Besides
// the usual paginated window it owns the status mutation, which always
// round-trips through the server before the list updates.
type ErrorGroupsView struct {
	deps  Deps
	store *pagestore.Store[client.ErrorGroup]
	apps  auxQuery[[]string]
	stats auxQuery[*client.Stats]
}

// NewErrorGroupsView wires an error-groups view from shared deps.
func NewErrorGroupsView(deps Deps) (*ErrorGroupsView, error) {
	cfg := deps.Config

	qc, err := cache.New[pagestore.Page[client.ErrorGroup]](cfg.QueryCacheItems, cfg.QueryCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("creating query cache: %w", err)
	}

	// hideIgnored rides in the filter map so it participates in the
	// fetch fingerprint, but the server sees it as a request option
	// rather than a query filter.
	fetch := func(ctx context.Context, filters map[string]any, limit, offset int) (pagestore.Page[client.ErrorGroup], error) {
		opts := &client.ListErrorGroupsOptions{HideIgnored: asBool(filters["hideIgnored"])}
		params := make(map[string]any, len(filters))
		for k, val := range filters {
			if k == "hideIgnored" {
				continue
			}
			params[k] = val
		}
		items, total, err := deps.Client.ListErrorGroups(ctx, params, limit, offset, opts)
		if err != nil {
			return pagestore.Page[client.ErrorGroup]{}, err
		}
		return pagestore.Page[client.ErrorGroup]{Items: items, Total: total}, nil
	}

	v := &ErrorGroupsView{
		deps: deps,
		store: pagestore.New("errors", fetch,
			pagestore.WithLimit[client.ErrorGroup](cfg.PageSize),
			pagestore.WithDefaults[client.ErrorGroup](errorGroupDefaults()),
			pagestore.WithClock[client.ErrorGroup](deps.clock()),
			pagestore.WithCache[client.ErrorGroup](qc),
			pagestore.WithPollInterval[client.ErrorGroup](cfg.PollInterval),
		),
	}
	v.apps = auxQuery[[]string]{fetch: deps.Client.ListApplications}
	v.stats = auxQuery[*client.Stats]{fetch: func(ctx context.Context) (*client.Stats, error) {
		return deps.Client.GetStats(ctx, "errors")
	}}
	return v, nil
}

// Activate issues the initial fetch and warms the lookups in parallel.
func (v *ErrorGroupsView) Activate(ctx context.Context) error {
	v.store.Activate(ctx)

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

// Close stops polling and drops observers.
func (v *ErrorGroupsView) Close() { v.store.Close() }

// Store exposes the underlying paginated store for URL binding.
func (v *ErrorGroupsView) Store() *pagestore.Store[client.ErrorGroup] { return v.store }

func (v *ErrorGroupsView) Snapshot() pagestore.Snapshot[client.ErrorGroup] { return v.store.Snapshot() }

func (v *ErrorGroupsView) Subscribe(fn func(pagestore.Snapshot[client.ErrorGroup])) (cancel func()) {
	return v.store.Subscribe(fn)
}

func (v *ErrorGroupsView) SetFilters(ctx context.Context, filters map[string]any) {
	v.store.SetFilters(ctx, filters)
}

func (v *ErrorGroupsView) UpdateFilter(ctx context.Context, key string, value any) {
	v.store.UpdateFilter(ctx, key, value)
}

func (v *ErrorGroupsView) ClearFilters(ctx context.Context) { v.store.ClearFilters(ctx) }

func (v *ErrorGroupsView) LoadMore(ctx context.Context) bool { return v.store.LoadMore(ctx) }

func (v *ErrorGroupsView) Refetch(ctx context.Context) { v.store.Refetch(ctx) }

func (v *ErrorGroupsView) TogglePolling(ctx context.Context) bool { return v.store.TogglePolling(ctx) }

func (v *ErrorGroupsView) SetPollingInterval(d time.Duration) { v.store.SetPollingInterval(d) }

// SetHideIgnored flips the ignored-groups toggle. It is a filter like
// any other, so the window resets and refetches.
func (v *ErrorGroupsView) SetHideIgnored(ctx context.Context, hide bool) {
	v.store.UpdateFilter(ctx, "hideIgnored", hide)
}

// UpdateStatus changes a group's triage status on the server. The
// local window never updates optimistically; on success the cached
// pages are invalidated and the current window refetched so the list
// reflects what the server actually stored.
func (v *ErrorGroupsView) UpdateStatus(ctx context.Context, id, status string) error {
	if err := v.deps.Client.UpdateErrorGroupStatus(ctx, id, status); err != nil {
		return fmt.Errorf("updating error group status: %w", err)
	}
	v.store.Invalidate()
	v.store.Refetch(ctx)
	v.stats.invalidate()
	return nil
}

// Applications returns the cached application list.
func (v *ErrorGroupsView) Applications(ctx context.Context) ([]string, error) {
	return v.apps.get(ctx)
}

// Stats returns the cached aggregate error stats.
func (v *ErrorGroupsView) Stats(ctx context.Context) (*client.Stats, error) {
	return v.stats.get(ctx)
}
