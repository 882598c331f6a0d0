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

func traceDefaults() map[string]any {
	return map[string]any{"sortBy": "started_at", "sortDir": "desc"}
}

// TracesURLConfig declares how trace filters map onto the URL query.
func TracesURLConfig() filterurl.Config {
	return filterurl.Config{
		Defaults: traceDefaults(),
	}
}

// TracesView is the traces resource composition. Traces have no live
// stream; freshness comes from polling and explicit refresh.
type TracesView struct {
	store *pagestore.Store[client.TraceRecord]
	apps  auxQuery[[]string]
	stats auxQuery[*client.Stats]
}

// NewTracesView wires a traces view from shared deps.
func NewTracesView(deps Deps) (*TracesView, error) {
	cfg := deps.Config

	qc, err := cache.New[pagestore.Page[client.TraceRecord]](cfg.QueryCacheItems, cfg.QueryCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("creating query cache: %w", err)
	}

	fetch := func(ctx context.Context, filters map[string]any, limit, offset int) (pagestore.Page[client.TraceRecord], error) {
		items, total, err := deps.Client.ListTraces(ctx, filters, limit, offset)
		if err != nil {
			return pagestore.Page[client.TraceRecord]{}, err
		}
		return pagestore.Page[client.TraceRecord]{Items: items, Total: total}, nil
	}

	v := &TracesView{
		store: pagestore.New("traces", fetch,
			pagestore.WithLimit[client.TraceRecord](cfg.PageSize),
			pagestore.WithDefaults[client.TraceRecord](traceDefaults()),
			pagestore.WithClock[client.TraceRecord](deps.clock()),
			pagestore.WithCache[client.TraceRecord](qc),
			pagestore.WithPollInterval[client.TraceRecord](cfg.PollInterval),
		),
	}
	v.apps = auxQuery[[]string]{fetch: deps.Client.ListApplications}
	v.stats = auxQuery[*client.Stats]{fetch: func(ctx context.Context) (*client.Stats, error) {
		return deps.Client.GetStats(ctx, "traces")
	}}
	return v, nil
}

// Activate issues the initial fetch and warms the lookups in parallel.
func (v *TracesView) Activate(ctx context.Context) error {
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
func (v *TracesView) Close() { v.store.Close() }

// Store exposes the underlying paginated store for URL binding.
func (v *TracesView) Store() *pagestore.Store[client.TraceRecord] { return v.store }

func (v *TracesView) Snapshot() pagestore.Snapshot[client.TraceRecord] { return v.store.Snapshot() }

func (v *TracesView) Subscribe(fn func(pagestore.Snapshot[client.TraceRecord])) (cancel func()) {
	return v.store.Subscribe(fn)
}

func (v *TracesView) SetFilters(ctx context.Context, filters map[string]any) {
	v.store.SetFilters(ctx, filters)
}

func (v *TracesView) UpdateFilter(ctx context.Context, key string, value any) {
	v.store.UpdateFilter(ctx, key, value)
}

func (v *TracesView) ClearFilters(ctx context.Context) { v.store.ClearFilters(ctx) }

func (v *TracesView) LoadMore(ctx context.Context) bool { return v.store.LoadMore(ctx) }

func (v *TracesView) Refetch(ctx context.Context) { v.store.Refetch(ctx) }

func (v *TracesView) TogglePolling(ctx context.Context) bool { return v.store.TogglePolling(ctx) }

func (v *TracesView) SetPollingInterval(d time.Duration) { v.store.SetPollingInterval(d) }

// Applications returns the cached application list.
func (v *TracesView) Applications(ctx context.Context) ([]string, error) {
	return v.apps.get(ctx)
}

// Stats returns the cached aggregate trace stats.
func (v *TracesView) Stats(ctx context.Context) (*client.Stats, error) {
	return v.stats.get(ctx)
}
