// Package pagestore implements the incremental paginated query store:
// given a filter state, a page size and a fetch capability it maintains
// an accumulated list of records plus total count, offset and
// loading/error flags, and keeps that state consistent under filter
// edits, load-more, polling and out-of-order fetch completions.
package pagestore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/juju/clock"
	"golang.org/x/sync/singleflight"

	"github.com/glasswing/obsync/internal/cache"
)

// Page is one fetched server page.
type Page[T any] struct {
	Items []T
	Total int
	// Extras carries resource-specific response fields the store does
	// not interpret.
	Extras map[string]any
}

// FetchFunc executes one page fetch. Auxiliary toggles (for example
// "hide ignored") travel inside filters so they take part in the fetch
// fingerprint.
type FetchFunc[T any] func(ctx context.Context, filters map[string]any, limit, offset int) (Page[T], error)

// Snapshot is the derived state handed to observers. Items must be
// treated as read-only.
type Snapshot[T any] struct {
	Items      []T
	Total      int
	Offset     int
	HasMore    bool
	IsLoading  bool
	IsFetching bool
	Err        error

	// version orders snapshots by the mutation that produced them, so
	// a delivery overtaken by a newer one can be recognized and dropped.
	version uint64
}

// Store accumulates server pages for one resource. All methods are
// safe for concurrent use; completions of superseded fetches are
// discarded rather than applied.
type Store[T any] struct {
	resource string
	fetch    FetchFunc[T]
	limit    int
	defaults map[string]any
	clk      clock.Clock
	cache    *cache.QueryCache[Page[T]]

	// pollCurrentWindow preserves the scrolled window across polls
	// instead of re-anchoring to offset 0.
	pollCurrentWindow bool

	sf singleflight.Group

	mu           sync.Mutex
	filters      map[string]any
	items        []T
	total        int
	offset       int
	hasMore      bool
	loaded       bool
	inflight     int
	err          error
	gen          uint64
	reqSeq       uint64
	snapVer      uint64
	pollInterval time.Duration
	pollStop     chan struct{}
	subs         map[int]func(Snapshot[T])
	filterSubs   map[int]func(map[string]any)
	nextSub      int

	// deliverMu serializes observer deliveries; delivered is the
	// version of the last snapshot handed out.
	deliverMu sync.Mutex
	delivered uint64
}

// Option configures a Store.
type Option[T any] func(*Store[T])

// WithLimit sets the fixed page size. Default 50.
func WithLimit[T any](limit int) Option[T] {
	return func(s *Store[T]) { s.limit = limit }
}

// WithDefaults declares the filter state ClearFilters resets to.
func WithDefaults[T any](defaults map[string]any) Option[T] {
	return func(s *Store[T]) { s.defaults = defaults }
}

// WithClock injects the clock used for polling timers. Default wall clock.
func WithClock[T any](clk clock.Clock) Option[T] {
	return func(s *Store[T]) { s.clk = clk }
}

// WithCache attaches a query-result cache consulted before the network.
func WithCache[T any](c *cache.QueryCache[Page[T]]) Option[T] {
	return func(s *Store[T]) { s.cache = c }
}

// WithPollInterval sets the initial polling interval. Default 10s.
func WithPollInterval[T any](d time.Duration) Option[T] {
	return func(s *Store[T]) { s.pollInterval = d }
}

// WithPollCurrentWindow makes polling re-issue the window the user has
// scrolled to instead of re-anchoring to the head of the list.
func WithPollCurrentWindow[T any]() Option[T] {
	return func(s *Store[T]) { s.pollCurrentWindow = true }
}

// New creates a store for one resource. Filters start at the declared
// defaults; no fetch is issued until the first command or Activate.
func New[T any](resource string, fetch FetchFunc[T], opts ...Option[T]) *Store[T] {
	s := &Store[T]{
		resource:     resource,
		fetch:        fetch,
		limit:        50,
		clk:          clock.WallClock,
		pollInterval: 10 * time.Second,
		subs:         make(map[int]func(Snapshot[T])),
		filterSubs:   make(map[int]func(map[string]any)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.filters = copyFilters(s.defaults)
	return s
}

// Activate issues the initial fetch for the current filters.
func (s *Store[T]) Activate(ctx context.Context) {
	s.mu.Lock()
	gen, seq, filters := s.beginRequestLocked()
	s.mu.Unlock()
	go s.runFetch(ctx, gen, seq, filters, 0, false)
}

// Filters returns a copy of the current filter state.
func (s *Store[T]) Filters() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyFilters(s.filters)
}

// Snapshot returns the current derived state.
func (s *Store[T]) Snapshot() Snapshot[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers an observer invoked after every state change.
// Callbacks run synchronously on the mutating goroutine and must not
// invoke store commands. The returned function cancels the
// subscription.
func (s *Store[T]) Subscribe(fn func(Snapshot[T])) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// OnFilterChange registers an observer of filter mutations. Used by
// the URL binding.
func (s *Store[T]) OnFilterChange(fn func(filters map[string]any)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.filterSubs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.filterSubs, id)
		s.mu.Unlock()
	}
}

// SetFilters replaces the filter state wholesale, resets the window to
// offset 0, clears the accumulated list and triggers a fresh fetch.
func (s *Store[T]) SetFilters(ctx context.Context, filters map[string]any) {
	s.mu.Lock()
	s.filters = copyFilters(filters)
	s.resetWindowLocked()
	gen, seq, snap := s.gen, s.reqSeq, s.snapshotLocked()
	fcopy := copyFilters(s.filters)
	s.mu.Unlock()

	s.notifyFilters(fcopy)
	s.notify(snap)
	go s.runFetch(ctx, gen, seq, fcopy, 0, false)
}

// UpdateFilter merges one key into the filter state with the same
// reset semantics as SetFilters.
func (s *Store[T]) UpdateFilter(ctx context.Context, key string, value any) {
	s.mu.Lock()
	merged := copyFilters(s.filters)
	merged[key] = value
	s.mu.Unlock()
	s.SetFilters(ctx, merged)
}

// ClearFilters resets the filter state to the declared defaults and
// unsets every other key currently present, with the same reset
// semantics as SetFilters. The URL binding observes the change and
// replaces the location query with an empty one.
func (s *Store[T]) ClearFilters(ctx context.Context) {
	s.mu.Lock()
	cleared := copyFilters(s.defaults)
	for key := range s.filters {
		if _, known := cleared[key]; !known {
			cleared[key] = nil
		}
	}
	s.mu.Unlock()
	s.SetFilters(ctx, cleared)
}

// LoadMore advances the window to the current accumulated length and
// fetches the next page, which appends. Calls made while a fetch is in
// flight, or when no more rows exist, are no-ops.
func (s *Store[T]) LoadMore(ctx context.Context) bool {
	s.mu.Lock()
	if s.inflight > 0 || !s.loaded || !s.hasMore {
		s.mu.Unlock()
		return false
	}
	s.offset = len(s.items)
	offset := s.offset
	gen, seq, filters := s.beginRequestLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	go s.runFetch(ctx, gen, seq, filters, offset, false)
	return true
}

// Refetch forces an immediate re-fetch of the current window without
// altering the offset, bypassing the cache.
func (s *Store[T]) Refetch(ctx context.Context) {
	s.mu.Lock()
	offset := s.offset
	gen, seq, filters := s.beginRequestLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	go s.runFetch(ctx, gen, seq, filters, offset, true)
}

// Invalidate drops every cached page for this resource so the next
// read refetches instead of serving a cached value.
func (s *Store[T]) Invalidate() {
	if s.cache == nil {
		return
	}
	dropped := s.cache.InvalidatePrefix(s.resource + "|")
	slog.Debug("query cache invalidated",
		slog.String("resource", s.resource),
		slog.Int("dropped", dropped),
	)
}

// TogglePolling flips background polling and returns the new state.
// Repeated toggles never accumulate duplicate timers.
func (s *Store[T]) TogglePolling(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pollStop != nil {
		close(s.pollStop)
		s.pollStop = nil
		return false
	}
	stop := make(chan struct{})
	s.pollStop = stop
	go s.pollLoop(ctx, stop)
	return true
}

// SetPollingInterval changes the polling interval. Takes effect on the
// next timer round.
func (s *Store[T]) SetPollingInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d > 0 {
		s.pollInterval = d
	}
}

// Polling reports whether background polling is enabled.
func (s *Store[T]) Polling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pollStop != nil
}

// Prepend inserts a live record at the head of the accumulated list
// when the view is showing the freshest page, capping the list at
// maxLen. Returns false, leaving all state untouched, when the view is
// scrolled into history (offset > 0).
func (s *Store[T]) Prepend(item T, maxLen int) bool {
	s.mu.Lock()
	if s.offset != 0 {
		s.mu.Unlock()
		return false
	}
	s.items = append([]T{item}, s.items...)
	if maxLen > 0 && len(s.items) > maxLen {
		s.items = s.items[:maxLen]
	}
	s.total++
	s.hasMore = len(s.items) < s.total
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return true
}

// Close stops polling and drops all observers.
func (s *Store[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pollStop != nil {
		close(s.pollStop)
		s.pollStop = nil
	}
	s.subs = make(map[int]func(Snapshot[T]))
	s.filterSubs = make(map[int]func(map[string]any))
}

// beginRequestLocked marks a new in-flight request and returns the
// identity it must match on completion.
func (s *Store[T]) beginRequestLocked() (gen, seq uint64, filters map[string]any) {
	s.reqSeq++
	s.inflight++
	return s.gen, s.reqSeq, copyFilters(s.filters)
}

// resetWindowLocked implements the shared reset semantics of the
// filter commands: offset 0, empty list, new generation. Any in-flight
// request for the previous filter set is thereby superseded.
func (s *Store[T]) resetWindowLocked() {
	s.gen++
	s.reqSeq++
	s.inflight++
	s.items = nil
	s.total = 0
	s.offset = 0
	s.hasMore = false
	s.loaded = false
	s.err = nil
}

// runFetch executes one page fetch and applies its result if it is
// still the latest request of the current filter generation.
func (s *Store[T]) runFetch(ctx context.Context, gen, seq uint64, filters map[string]any, offset int, force bool) {
	fp := Fingerprint(s.resource, filters, s.limit, offset)

	var page Page[T]
	var err error
	served := false

	if !force && s.cache != nil {
		if cached, ok := s.cache.Get(fp); ok {
			page, served = cached, true
		}
	}

	switch {
	case served:
	case force:
		// Forced refreshes never join an already in-flight call; the
		// point is to supersede it.
		page, err = s.fetch(ctx, filters, s.limit, offset)
	default:
		result, fetchErr, _ := s.sf.Do(fp, func() (any, error) {
			p, e := s.fetch(ctx, filters, s.limit, offset)
			return p, e
		})
		if fetchErr != nil {
			err = fetchErr
		} else {
			page = result.(Page[T])
		}
	}
	if !served && err == nil && s.cache != nil {
		s.cache.Put(fp, page)
	}

	s.mu.Lock()
	s.inflight--
	if gen != s.gen || seq != s.reqSeq {
		// Superseded by a filter change or a newer request: the
		// result is discarded, never applied.
		snap := s.snapshotLocked()
		s.mu.Unlock()
		slog.Debug("discarding stale fetch result",
			slog.String("resource", s.resource),
			slog.Int("offset", offset),
		)
		s.notify(snap)
		return
	}

	if err != nil {
		// Keep the accumulated list visible alongside the error.
		s.err = err
		snap := s.snapshotLocked()
		s.mu.Unlock()
		slog.Warn("page fetch failed",
			slog.String("resource", s.resource),
			slog.Int("offset", offset),
			slog.String("error", err.Error()),
		)
		s.notify(snap)
		return
	}

	// Single merge rule keyed on offset: truncate to the issued offset,
	// then append. Offset 0 replaces (first load, filter change, manual
	// refresh), offset == len appends (load more), and a tail refetch
	// refreshes its own page in place.
	cut := min(offset, len(s.items))
	s.items = append(s.items[:cut:cut], page.Items...)
	s.total = page.Total
	s.offset = offset
	s.hasMore = offset+len(page.Items) < page.Total
	s.loaded = true
	s.err = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

func (s *Store[T]) pollLoop(ctx context.Context, stop chan struct{}) {
	for {
		s.mu.Lock()
		interval := s.pollInterval
		s.mu.Unlock()

		timer := s.clk.NewTimer(interval)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
			// The stop channel may have closed in the same instant the
			// timer fired; prefer stopping.
			select {
			case <-stop:
				return
			default:
			}
			s.pollOnce(ctx)
		}
	}
}

// pollOnce refreshes the head of the list. Unless configured with
// WithPollCurrentWindow it re-anchors a scrolled view to offset 0, so
// the freshest rows are what polling keeps up to date.
func (s *Store[T]) pollOnce(ctx context.Context) {
	s.mu.Lock()
	offset := 0
	if s.pollCurrentWindow {
		offset = s.offset
	} else {
		s.offset = 0
	}
	gen, seq, filters := s.beginRequestLocked()
	s.mu.Unlock()
	s.runFetch(ctx, gen, seq, filters, offset, true)
}

func (s *Store[T]) snapshotLocked() Snapshot[T] {
	s.snapVer++
	return Snapshot[T]{
		version:    s.snapVer,
		Items:      s.items,
		Total:      s.total,
		Offset:     s.offset,
		HasMore:    s.hasMore,
		IsLoading:  !s.loaded && s.inflight > 0,
		IsFetching: s.inflight > 0,
		Err:        s.err,
	}
}

// notify delivers a snapshot to every subscriber. Completions of
// concurrent fetches compute their snapshots under mu but reach this
// point in arbitrary order; the version check drops any delivery
// already overtaken by a newer one, so subscribers never regress to a
// stale snapshot. Deliveries run under deliverMu, so callbacks must
// not invoke store commands.
func (s *Store[T]) notify(snap Snapshot[T]) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if snap.version <= s.delivered {
		return
	}
	s.delivered = snap.version

	s.mu.Lock()
	observers := make([]func(Snapshot[T]), 0, len(s.subs))
	for _, fn := range s.subs {
		observers = append(observers, fn)
	}
	s.mu.Unlock()
	for _, fn := range observers {
		fn(snap)
	}
}

func (s *Store[T]) notifyFilters(filters map[string]any) {
	s.mu.Lock()
	observers := make([]func(map[string]any), 0, len(s.filterSubs))
	for _, fn := range s.filterSubs {
		observers = append(observers, fn)
	}
	s.mu.Unlock()
	for _, fn := range observers {
		fn(filters)
	}
}

func copyFilters(filters map[string]any) map[string]any {
	copied := make(map[string]any, len(filters))
	for key, value := range filters {
		copied[key] = value
	}
	return copied
}
