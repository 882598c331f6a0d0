package filterurl

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Location abstracts the browser-style location the codec reads from
// and writes to. Replace must overwrite the current query without
// creating a new history entry.
type Location interface {
	Query() url.Values
	Replace(url.Values) error
}

// FilterSource is the store-side surface the binding observes. A
// paginated query store satisfies it.
type FilterSource interface {
	Filters() map[string]any
	SetFilters(ctx context.Context, filters map[string]any)
	OnFilterChange(fn func(filters map[string]any)) (cancel func())
}

// Binding keeps a Location's query in sync with a FilterSource. The
// write is driven by observing the filter state, never by polling the
// location, so it cannot race with the store's own mutations.
type Binding struct {
	loc    Location
	src    FilterSource
	cfg    Config
	cancel func()
}

// Bind subscribes to the source and starts propagating filter changes
// to the location. Call Close to stop.
func Bind(loc Location, src FilterSource, cfg Config) *Binding {
	b := &Binding{loc: loc, src: src, cfg: cfg}
	b.cancel = src.OnFilterChange(b.push)
	return b
}

// Hydrate applies the location's current query on top of the source's
// filters. Intended to run once, at mount, before any fetch.
func (b *Binding) Hydrate(ctx context.Context) {
	fromURL := Deserialize(b.loc.Query(), b.cfg)
	if len(fromURL) == 0 {
		return
	}
	merged := make(map[string]any)
	for key, value := range b.src.Filters() {
		merged[key] = value
	}
	for key, value := range fromURL {
		merged[key] = value
	}
	b.src.SetFilters(ctx, merged)
}

// push writes the serialized filters to the location, skipping the
// write when the query already matches to avoid redundant history
// churn.
func (b *Binding) push(filters map[string]any) {
	target := Serialize(filters, b.cfg)
	current := b.loc.Query()
	if cmp.Equal(map[string][]string(target), map[string][]string(current), cmpopts.EquateEmpty()) {
		return
	}
	if err := b.loc.Replace(target); err != nil {
		slog.Debug("replacing location query failed", slog.String("error", err.Error()))
	}
}

// Close stops propagation. The location keeps its last written query.
func (b *Binding) Close() {
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
}
