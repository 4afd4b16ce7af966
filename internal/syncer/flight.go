package syncer

import (
	"context"
	"sync"

	"github.com/i474232898/weather-sync/internal/weather"
)

// flight is one shared in-flight fetch. Waiters attach by joining the
// group and detach by leaving; the fetch itself runs detached from any
// single waiter's context and is aborted only when the last waiter
// leaves before completion.
type flight struct {
	done   chan struct{}
	set    weather.ForecastSet
	err    error
	refs   int
	cancel context.CancelFunc
}

// wait blocks until the shared fetch completes or ctx is done. The
// second return value is false when the waiter gave up.
func (f *flight) wait(ctx context.Context) (weather.ForecastSet, error, bool) {
	select {
	case <-f.done:
		return f.set, f.err, true
	case <-ctx.Done():
		return weather.ForecastSet{}, ctx.Err(), false
	}
}

// flightGroup enforces the per-key singleflight invariant: at most one
// fetch in flight per location key, shared by all concurrent callers.
type flightGroup struct {
	mu      sync.Mutex
	flights map[string]*flight
}

func newFlightGroup() *flightGroup {
	return &flightGroup{flights: make(map[string]*flight)}
}

// join attaches to the in-flight call for key, starting fn in its own
// goroutine if no call is outstanding. Every join must be paired with a
// leave.
func (g *flightGroup) join(key string, fn func(ctx context.Context) (weather.ForecastSet, error)) *flight {
	g.mu.Lock()
	defer g.mu.Unlock()

	if f, ok := g.flights[key]; ok {
		f.refs++
		return f
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &flight{
		done:   make(chan struct{}),
		refs:   1,
		cancel: cancel,
	}
	g.flights[key] = f

	go func() {
		set, err := fn(ctx)

		g.mu.Lock()
		f.set = set
		f.err = err
		if g.flights[key] == f {
			delete(g.flights, key)
		}
		g.mu.Unlock()

		close(f.done)
	}()

	return f
}

// leave detaches one waiter. When the last waiter leaves an unfinished
// call, the shared fetch is cancelled and the key released so a later
// caller starts fresh.
func (g *flightGroup) leave(key string, f *flight) {
	g.mu.Lock()
	defer g.mu.Unlock()

	f.refs--
	if f.refs > 0 {
		return
	}

	select {
	case <-f.done:
		// Completed normally; cancel only to release the context.
		f.cancel()
	default:
		f.cancel()
		if g.flights[key] == f {
			delete(g.flights, key)
		}
	}
}

// inFlight reports whether a fetch is outstanding for key.
func (g *flightGroup) inFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.flights[key]
	return ok
}
