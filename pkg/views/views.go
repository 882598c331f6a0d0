// Package views composes the synchronization layer per resource: each
// view owns one paginated query store, its auxiliary lookup queries
// and, for logs, a resilient stream client, and exposes one cohesive
// state/command surface to presentation code.
package views

import (
	"context"
	"sync"

	"github.com/juju/clock"

	"github.com/glasswing/obsync/internal/config"
	"github.com/glasswing/obsync/pkg/client"
)

// Deps carries the collaborators shared by all views. Client and
// Config are required; Clock defaults to the wall clock.
type Deps struct {
	Client *client.Client
	Config *config.Config
	Clock  clock.Clock
}

func (d Deps) clock() clock.Clock {
	if d.Clock == nil {
		return clock.WallClock
	}
	return d.Clock
}

// auxQuery is one cached read-only lookup with explicit invalidation.
// The cached value is served until invalidated; a fetch failure leaves
// the query unloaded so the next read retries.
type auxQuery[T any] struct {
	mu     sync.Mutex
	fetch  func(ctx context.Context) (T, error)
	value  T
	loaded bool
}

func (q *auxQuery[T]) get(ctx context.Context) (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.loaded {
		return q.value, nil
	}
	value, err := q.fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	q.value = value
	q.loaded = true
	return value, nil
}

func (q *auxQuery[T]) invalidate() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.loaded = false
}

// asString extracts a string filter value; any other type is "".
func asString(value any) string {
	s, _ := value.(string)
	return s
}

// asBool extracts a bool filter value; any other type is false.
func asBool(value any) bool {
	b, _ := value.(bool)
	return b
}
