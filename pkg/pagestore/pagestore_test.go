package pagestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glasswing/obsync/internal/cache"
)

const waitTimeout = 5 * time.Second

// fetchCall is one pending fetch the test controls.
type fetchCall struct {
	filters map[string]any
	limit   int
	offset  int
	respond chan fetchResult
}

type fetchResult struct {
	page Page[string]
	err  error
}

// fetcher hands every fetch to the test for explicit resolution, so
// completion order is fully controlled.
type fetcher struct {
	calls chan *fetchCall
}

func newFetcher() *fetcher {
	return &fetcher{calls: make(chan *fetchCall, 16)}
}

func (f *fetcher) fetch(_ context.Context, filters map[string]any, limit, offset int) (Page[string], error) {
	call := &fetchCall{filters: filters, limit: limit, offset: offset, respond: make(chan fetchResult)}
	f.calls <- call
	result := <-call.respond
	return result.page, result.err
}

func (f *fetcher) next(t *testing.T) *fetchCall {
	t.Helper()
	select {
	case call := <-f.calls:
		return call
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a fetch")
		return nil
	}
}

func (f *fetcher) expectNone(t *testing.T) {
	t.Helper()
	select {
	case call := <-f.calls:
		t.Fatalf("unexpected fetch at offset %d", call.offset)
	case <-time.After(50 * time.Millisecond):
	}
}

func items(prefix string, from, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, from+i)
	}
	return out
}

func eventually(t *testing.T, s *Store[string], cond func(Snapshot[string]) bool) Snapshot[string] {
	t.Helper()
	var snap Snapshot[string]
	require.Eventually(t, func() bool {
		snap = s.Snapshot()
		return cond(snap)
	}, waitTimeout, 5*time.Millisecond)
	return snap
}

func TestReplaceVsAppend(t *testing.T) {
	f := newFetcher()
	s := New("logs", f.fetch, WithLimit[string](20))
	defer s.Close()

	s.Activate(context.Background())
	call := f.next(t)
	assert.Equal(t, 0, call.offset)
	call.respond <- fetchResult{page: Page[string]{Items: items("a", 0, 20), Total: 45}}

	snap := eventually(t, s, func(sn Snapshot[string]) bool { return len(sn.Items) == 20 })
	assert.Equal(t, items("a", 0, 20), snap.Items)
	assert.True(t, snap.HasMore)
	assert.Equal(t, 45, snap.Total)

	require.True(t, s.LoadMore(context.Background()))
	call = f.next(t)
	assert.Equal(t, 20, call.offset)
	call.respond <- fetchResult{page: Page[string]{Items: items("a", 20, 20), Total: 45}}

	snap = eventually(t, s, func(sn Snapshot[string]) bool { return len(sn.Items) == 40 })
	assert.Equal(t, items("a", 0, 40), snap.Items)
	assert.True(t, snap.HasMore)

	require.True(t, s.LoadMore(context.Background()))
	call = f.next(t)
	assert.Equal(t, 40, call.offset)
	call.respond <- fetchResult{page: Page[string]{Items: items("a", 40, 5), Total: 45}}

	snap = eventually(t, s, func(sn Snapshot[string]) bool { return len(sn.Items) == 45 })
	assert.False(t, snap.HasMore)

	// After the final page, LoadMore is a no-op that does not move the offset.
	assert.False(t, s.LoadMore(context.Background()))
	f.expectNone(t)
	assert.Equal(t, 40, s.Snapshot().Offset)
}

func TestLoadMoreWhileFetchingIsNoOp(t *testing.T) {
	f := newFetcher()
	s := New("logs", f.fetch, WithLimit[string](20))
	defer s.Close()

	s.Activate(context.Background())
	call := f.next(t)
	call.respond <- fetchResult{page: Page[string]{Items: items("a", 0, 20), Total: 100}}
	eventually(t, s, func(sn Snapshot[string]) bool { return len(sn.Items) == 20 })

	require.True(t, s.LoadMore(context.Background()))
	call = f.next(t)

	// Rapid scroll: further calls are rejected, not queued.
	assert.False(t, s.LoadMore(context.Background()))
	assert.False(t, s.LoadMore(context.Background()))

	call.respond <- fetchResult{page: Page[string]{Items: items("a", 20, 20), Total: 100}}
	eventually(t, s, func(sn Snapshot[string]) bool { return len(sn.Items) == 40 })
	f.expectNone(t)
}

func TestFilterChangeResetsWindow(t *testing.T) {
	f := newFetcher()
	s := New("logs", f.fetch, WithLimit[string](20))
	defer s.Close()

	s.Activate(context.Background())
	call := f.next(t)
	call.respond <- fetchResult{page: Page[string]{Items: items("a", 0, 20), Total: 45}}
	eventually(t, s, func(sn Snapshot[string]) bool { return len(sn.Items) == 20 })

	require.True(t, s.LoadMore(context.Background()))
	call = f.next(t)
	call.respond <- fetchResult{page: Page[string]{Items: items("a", 20, 20), Total: 45}}
	eventually(t, s, func(sn Snapshot[string]) bool { return len(sn.Items) == 40 })

	s.UpdateFilter(context.Background(), "level", "error")

	// List and offset reset before the next fetch resolves.
	snap := s.Snapshot()
	assert.Empty(t, snap.Items)
	assert.Equal(t, 0, snap.Offset)
	assert.False(t, snap.HasMore)

	call = f.next(t)
	assert.Equal(t, 0, call.offset)
	assert.Equal(t, "error", call.filters["level"])
	call.respond <- fetchResult{page: Page[string]{Items: items("e", 0, 3), Total: 3}}

	snap = eventually(t, s, func(sn Snapshot[string]) bool { return len(sn.Items) == 3 })
	assert.Equal(t, items("e", 0, 3), snap.Items)
}

func TestStaleResponseRejection(t *testing.T) {
	f := newFetcher()
	s := New("logs", f.fetch, WithLimit[string](20))
	defer s.Close()

	s.Activate(context.Background())
	callX := f.next(t)

	// Filters change to Y while X is still in flight.
	s.SetFilters(context.Background(), map[string]any{"appName": "api"})
	callY := f.next(t)
	assert.Equal(t, "api", callY.filters["appName"])

	// Y resolves first and is applied.
	callY.respond <- fetchResult{page: Page[string]{Items: items("y", 0, 2), Total: 2}}
	eventually(t, s, func(sn Snapshot[string]) bool { return len(sn.Items) == 2 })

	// X resolves late: its result must not overwrite Y's state.
	callX.respond <- fetchResult{page: Page[string]{Items: items("x", 0, 20), Total: 99}}
	eventually(t, s, func(sn Snapshot[string]) bool { return !sn.IsFetching })

	snap := s.Snapshot()
	assert.Equal(t, items("y", 0, 2), snap.Items)
	assert.Equal(t, 2, snap.Total)
	assert.Equal(t, "api", s.Filters()["appName"])
}

func TestLastRequestWinsWithinFilterSet(t *testing.T) {
	f := newFetcher()
	s := New("logs", f.fetch, WithLimit[string](20))
	defer s.Close()

	s.Activate(context.Background())
	first := f.next(t)

	// A refetch supersedes the initial request for the same window.
	s.Refetch(context.Background())
	second := f.next(t)

	second.respond <- fetchResult{page: Page[string]{Items: items("b", 0, 2), Total: 2}}
	eventually(t, s, func(sn Snapshot[string]) bool { return len(sn.Items) == 2 })

	first.respond <- fetchResult{page: Page[string]{Items: items("a", 0, 20), Total: 45}}
	eventually(t, s, func(sn Snapshot[string]) bool { return !sn.IsFetching })

	assert.Equal(t, items("b", 0, 2), s.Snapshot().Items)
}

func TestFetchErrorKeepsAccumulatedList(t *testing.T) {
	f := newFetcher()
	s := New("logs", f.fetch, WithLimit[string](20))
	defer s.Close()

	s.Activate(context.Background())
	call := f.next(t)
	call.respond <- fetchResult{page: Page[string]{Items: items("a", 0, 20), Total: 45}}
	eventually(t, s, func(sn Snapshot[string]) bool { return len(sn.Items) == 20 })

	boom := errors.New("upstream unavailable")
	s.Refetch(context.Background())
	call = f.next(t)
	call.respond <- fetchResult{err: boom}

	snap := eventually(t, s, func(sn Snapshot[string]) bool { return sn.Err != nil })
	assert.Equal(t, items("a", 0, 20), snap.Items, "stale-but-present list stays visible")
	assert.ErrorIs(t, snap.Err, boom)

	// A later success clears the error.
	s.Refetch(context.Background())
	call = f.next(t)
	call.respond <- fetchResult{page: Page[string]{Items: items("a", 0, 20), Total: 45}}
	snap = eventually(t, s, func(sn Snapshot[string]) bool { return sn.Err == nil && !sn.IsFetching })
	assert.Equal(t, 45, snap.Total)
}

func TestClearFiltersRestoresDefaults(t *testing.T) {
	f := newFetcher()
	s := New("logs", f.fetch,
		WithLimit[string](20),
		WithDefaults[string](map[string]any{"sortBy": "last_seen"}),
	)
	defer s.Close()

	s.SetFilters(context.Background(), map[string]any{"sortBy": "count", "appName": "api"})
	call := f.next(t)
	call.respond <- fetchResult{page: Page[string]{Items: items("a", 0, 1), Total: 1}}
	eventually(t, s, func(sn Snapshot[string]) bool { return len(sn.Items) == 1 })

	s.ClearFilters(context.Background())
	call = f.next(t)
	assert.Equal(t, "last_seen", call.filters["sortBy"])
	assert.Nil(t, call.filters["appName"])

	filters := s.Filters()
	assert.Equal(t, "last_seen", filters["sortBy"])
	assert.Nil(t, filters["appName"])
	call.respond <- fetchResult{page: Page[string]{Items: nil, Total: 0}}
}

func TestPollingReAnchorsToHead(t *testing.T) {
	f := newFetcher()
	clk := testclock.NewClock(time.Unix(1000, 0))
	s := New("logs", f.fetch,
		WithLimit[string](20),
		WithClock[string](clk),
		WithPollInterval[string](5*time.Second),
	)
	defer s.Close()

	s.Activate(context.Background())
	call := f.next(t)
	call.respond <- fetchResult{page: Page[string]{Items: items("a", 0, 20), Total: 45}}
	eventually(t, s, func(sn Snapshot[string]) bool { return len(sn.Items) == 20 })

	require.True(t, s.LoadMore(context.Background()))
	call = f.next(t)
	call.respond <- fetchResult{page: Page[string]{Items: items("a", 20, 20), Total: 45}}
	eventually(t, s, func(sn Snapshot[string]) bool { return len(sn.Items) == 40 })

	require.True(t, s.TogglePolling(context.Background()))
	require.NoError(t, clk.WaitAdvance(5*time.Second, waitTimeout, 1))

	call = f.next(t)
	assert.Equal(t, 0, call.offset, "polling refreshes the head of the list")
	call.respond <- fetchResult{page: Page[string]{Items: items("b", 0, 20), Total: 46}}

	snap := eventually(t, s, func(sn Snapshot[string]) bool { return sn.Total == 46 })
	assert.Equal(t, items("b", 0, 20), snap.Items)
	assert.Equal(t, 0, snap.Offset)
}

func TestPollingCurrentWindow(t *testing.T) {
	f := newFetcher()
	clk := testclock.NewClock(time.Unix(1000, 0))
	s := New("logs", f.fetch,
		WithLimit[string](20),
		WithClock[string](clk),
		WithPollInterval[string](5*time.Second),
		WithPollCurrentWindow[string](),
	)
	defer s.Close()

	s.Activate(context.Background())
	call := f.next(t)
	call.respond <- fetchResult{page: Page[string]{Items: items("a", 0, 20), Total: 45}}
	eventually(t, s, func(sn Snapshot[string]) bool { return len(sn.Items) == 20 })

	require.True(t, s.LoadMore(context.Background()))
	call = f.next(t)
	call.respond <- fetchResult{page: Page[string]{Items: items("a", 20, 20), Total: 45}}
	eventually(t, s, func(sn Snapshot[string]) bool { return len(sn.Items) == 40 })

	require.True(t, s.TogglePolling(context.Background()))
	require.NoError(t, clk.WaitAdvance(5*time.Second, waitTimeout, 1))

	call = f.next(t)
	assert.Equal(t, 20, call.offset, "poll re-issues the scrolled window")
	call.respond <- fetchResult{page: Page[string]{Items: items("c", 20, 20), Total: 45}}

	// The refetched page refreshes the tail in place, no duplication.
	snap := eventually(t, s, func(sn Snapshot[string]) bool { return sn.Items[20] == "c20" })
	assert.Len(t, snap.Items, 40)
	assert.Equal(t, items("a", 0, 20), snap.Items[:20])
}

func TestTogglePollingNeverDuplicatesTimers(t *testing.T) {
	f := newFetcher()
	clk := testclock.NewClock(time.Unix(1000, 0))
	s := New("logs", f.fetch,
		WithClock[string](clk),
		WithPollInterval[string](5*time.Second),
	)
	defer s.Close()

	require.True(t, s.TogglePolling(context.Background()))
	assert.False(t, s.TogglePolling(context.Background()))
	require.True(t, s.TogglePolling(context.Background()))
	assert.False(t, s.TogglePolling(context.Background()))
	assert.False(t, s.Polling())

	// With polling off, time passing issues no fetches.
	clk.Advance(time.Minute)
	f.expectNone(t)
}

func TestSetPollingInterval(t *testing.T) {
	f := newFetcher()
	clk := testclock.NewClock(time.Unix(1000, 0))
	s := New("logs", f.fetch,
		WithClock[string](clk),
		WithPollInterval[string](time.Hour),
	)
	defer s.Close()

	require.True(t, s.TogglePolling(context.Background()))
	s.SetPollingInterval(2 * time.Second)

	// The first round still uses the old interval.
	require.NoError(t, clk.WaitAdvance(time.Hour, waitTimeout, 1))
	call := f.next(t)
	call.respond <- fetchResult{page: Page[string]{}}

	require.NoError(t, clk.WaitAdvance(2*time.Second, waitTimeout, 1))
	call = f.next(t)
	call.respond <- fetchResult{page: Page[string]{}}
}

func TestPrepend(t *testing.T) {
	f := newFetcher()
	s := New("logs", f.fetch, WithLimit[string](3))
	defer s.Close()

	s.Activate(context.Background())
	call := f.next(t)
	call.respond <- fetchResult{page: Page[string]{Items: []string{"a", "b", "c"}, Total: 3}}
	eventually(t, s, func(sn Snapshot[string]) bool { return len(sn.Items) == 3 })

	require.True(t, s.Prepend("live1", 3))
	snap := s.Snapshot()
	assert.Equal(t, []string{"live1", "a", "b"}, snap.Items, "capped at maxLen")
	assert.Equal(t, 4, snap.Total)
	assert.True(t, snap.HasMore)
}

func TestPrependWhileScrolledIsWithheld(t *testing.T) {
	f := newFetcher()
	s := New("logs", f.fetch, WithLimit[string](2))
	defer s.Close()

	s.Activate(context.Background())
	call := f.next(t)
	call.respond <- fetchResult{page: Page[string]{Items: []string{"a", "b"}, Total: 10}}
	eventually(t, s, func(sn Snapshot[string]) bool { return len(sn.Items) == 2 })

	require.True(t, s.LoadMore(context.Background()))
	call = f.next(t)
	call.respond <- fetchResult{page: Page[string]{Items: []string{"c", "d"}, Total: 10}}
	eventually(t, s, func(sn Snapshot[string]) bool { return len(sn.Items) == 4 })

	assert.False(t, s.Prepend("live1", 100))
	snap := s.Snapshot()
	assert.Equal(t, []string{"a", "b", "c", "d"}, snap.Items)
	assert.Equal(t, 2, snap.Offset, "pagination offsets stay intact")
	assert.Equal(t, 10, snap.Total)
}

func TestCacheServesRepeatQueryUntilInvalidated(t *testing.T) {
	f := newFetcher()
	qc, err := cache.New[Page[string]](16, 0)
	require.NoError(t, err)
	s := New("logs", f.fetch, WithLimit[string](20), WithCache[string](qc))
	defer s.Close()

	filters := map[string]any{"level": "error"}

	s.SetFilters(context.Background(), filters)
	call := f.next(t)
	call.respond <- fetchResult{page: Page[string]{Items: items("a", 0, 2), Total: 2}}
	eventually(t, s, func(sn Snapshot[string]) bool { return len(sn.Items) == 2 })

	// Same logical query again: served from cache, no network.
	s.SetFilters(context.Background(), filters)
	eventually(t, s, func(sn Snapshot[string]) bool { return len(sn.Items) == 2 && !sn.IsFetching })
	f.expectNone(t)

	// Invalidate forces the next read back to the network.
	s.Invalidate()
	s.SetFilters(context.Background(), filters)
	call = f.next(t)
	call.respond <- fetchResult{page: Page[string]{Items: items("a", 0, 2), Total: 2}}
	eventually(t, s, func(sn Snapshot[string]) bool { return !sn.IsFetching })
}

func TestRefetchBypassesCache(t *testing.T) {
	f := newFetcher()
	qc, err := cache.New[Page[string]](16, 0)
	require.NoError(t, err)
	s := New("logs", f.fetch, WithLimit[string](20), WithCache[string](qc))
	defer s.Close()

	s.Activate(context.Background())
	call := f.next(t)
	call.respond <- fetchResult{page: Page[string]{Items: items("a", 0, 2), Total: 2}}
	eventually(t, s, func(sn Snapshot[string]) bool { return len(sn.Items) == 2 })

	s.Refetch(context.Background())
	call = f.next(t)
	call.respond <- fetchResult{page: Page[string]{Items: items("b", 0, 2), Total: 2}}
	snap := eventually(t, s, func(sn Snapshot[string]) bool { return sn.Items[0] == "b0" })
	assert.Equal(t, items("b", 0, 2), snap.Items)
}

func TestSubscribeNotifiesOnChange(t *testing.T) {
	f := newFetcher()
	s := New("logs", f.fetch, WithLimit[string](20))
	defer s.Close()

	got := make(chan Snapshot[string], 16)
	cancel := s.Subscribe(func(sn Snapshot[string]) { got <- sn })

	s.Activate(context.Background())
	call := f.next(t)
	call.respond <- fetchResult{page: Page[string]{Items: items("a", 0, 2), Total: 2}}

	select {
	case snap := <-got:
		assert.Equal(t, 2, snap.Total)
	case <-time.After(waitTimeout):
		t.Fatal("observer was not notified")
	}

	cancel()
	s.Refetch(context.Background())
	call = f.next(t)
	call.respond <- fetchResult{page: Page[string]{Items: items("a", 0, 2), Total: 2}}
	eventually(t, s, func(sn Snapshot[string]) bool { return !sn.IsFetching })

	select {
	case <-got:
		t.Fatal("cancelled observer must not be notified")
	default:
	}
}

func TestFingerprintCanonicalOrder(t *testing.T) {
	a := Fingerprint("logs", map[string]any{"b": 2, "a": "x"}, 20, 0)
	b := Fingerprint("logs", map[string]any{"a": "x", "b": 2}, 20, 0)
	assert.Equal(t, a, b)

	c := Fingerprint("logs", map[string]any{"a": "x", "b": 2}, 20, 20)
	assert.NotEqual(t, a, c, "offset is part of the identity")

	d := Fingerprint("logs", map[string]any{"a": "x", "b": 2, "unset": ""}, 20, 0)
	assert.Equal(t, a, d, "unset values do not change the identity")
}

func TestOvertakenSnapshotDeliveryDropped(t *testing.T) {
	f := newFetcher()
	s := New("logs", f.fetch)
	defer s.Close()

	var mu sync.Mutex
	var got []Snapshot[string]
	s.Subscribe(func(sn Snapshot[string]) {
		mu.Lock()
		got = append(got, sn)
		mu.Unlock()
	})

	// Two snapshots taken across a mutation, with the older one arriving
	// last, as when a superseded fetch is descheduled between computing
	// its snapshot and delivering it.
	s.mu.Lock()
	stale := s.snapshotLocked()
	s.mu.Unlock()

	s.mu.Lock()
	s.items = items("a", 0, 3)
	s.total = 3
	s.loaded = true
	fresh := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(fresh)
	s.notify(stale)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1, "the overtaken delivery must be dropped")
	assert.Equal(t, items("a", 0, 3), got[0].Items)
	assert.Equal(t, 3, got[0].Total)
}

func TestLateDeliveriesNeverRegressSnapshot(t *testing.T) {
	f := newFetcher()
	s := New("logs", f.fetch, WithLimit[string](10))
	defer s.Close()

	var mu sync.Mutex
	var last Snapshot[string]
	s.Subscribe(func(sn Snapshot[string]) {
		mu.Lock()
		last = sn
		mu.Unlock()
	})

	ctx := context.Background()
	s.Activate(ctx)
	f.next(t).respond <- fetchResult{page: Page[string]{Items: items("a", 0, 3), Total: 3}}
	eventually(t, s, func(sn Snapshot[string]) bool { return len(sn.Items) == 3 })

	// Pairs of superseding refetches resolved out of order, with live
	// prepends interleaved. Whatever the completion order, subscribers
	// must end on the store's own final state.
	for i := 0; i < 25; i++ {
		s.Refetch(ctx)
		s.Refetch(ctx)
		c1 := f.next(t)
		c2 := f.next(t)
		c2.respond <- fetchResult{page: Page[string]{Items: items(fmt.Sprintf("r%d-", i), 0, 4), Total: 5}}
		c1.respond <- fetchResult{page: Page[string]{Items: items("old", 0, 2), Total: 2}}
		s.Prepend(fmt.Sprintf("p%d", i), 0)
	}

	final := eventually(t, s, func(sn Snapshot[string]) bool { return !sn.IsFetching })
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		if last.Total != final.Total || last.IsFetching || len(last.Items) != len(final.Items) {
			return false
		}
		for i := range last.Items {
			if last.Items[i] != final.Items[i] {
				return false
			}
		}
		return true
	}, waitTimeout, 5*time.Millisecond)
}
