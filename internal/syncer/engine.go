package syncer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/weather-sync/internal/cache"
	"github.com/i474232898/weather-sync/internal/weather"
)

const (
	defaultFetchTimeout = 10 * time.Second
	defaultCacheExpiry  = 24 * time.Hour

	// Per-subscription result buffer. Large enough that the initial
	// cache+network pair plus scheduled refresh bursts never block the
	// engine; a consumer that falls further behind misses updates.
	subscriptionBuffer = 16
)

// Config bundles the engine's construction-time settings.
type Config struct {
	FetchTimeout time.Duration
	CacheExpiry  time.Duration
}

// Engine reconciles the local cache with the remote source: cache-first
// reads, singleflight network fetches, emit-on-change, and error
// suppression while cached data exists.
type Engine struct {
	store   cache.Store
	source  weather.Source
	flights *flightGroup

	timeout time.Duration
	expiry  time.Duration

	mu   sync.Mutex
	subs map[string]map[string]*Subscription // location key -> sub id -> sub
}

// New creates an Engine over the given cache store and remote source.
func New(store cache.Store, source weather.Source, cfg Config) *Engine {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.CacheExpiry <= 0 {
		cfg.CacheExpiry = defaultCacheExpiry
	}
	return &Engine{
		store:   store,
		source:  source,
		flights: newFlightGroup(),
		timeout: cfg.FetchTimeout,
		expiry:  cfg.CacheExpiry,
		subs:    make(map[string]map[string]*Subscription),
	}
}

// Subscription is one observer's handle on a location's result stream.
type Subscription struct {
	id      string
	key     string
	engine  *Engine
	results chan weather.SyncResult
	ctx     context.Context
	cancel  context.CancelFunc

	// Guarded by engine.mu.
	closed  bool
	last    weather.ForecastSet // last successfully delivered set
	hasLast bool
}

// Results returns the ordered result stream. The channel stays open
// until the subscription is cancelled.
func (s *Subscription) Results() <-chan weather.SyncResult {
	return s.results
}

// Cancel detaches the subscription. Safe to call any number of times,
// including on an already-completed subscription. Cancelling does not
// abort an in-flight fetch shared with other waiters.
func (s *Subscription) Cancel() {
	s.cancel()
	s.engine.removeSub(s)
}

// Observe starts a long-lived observation of loc following the
// cache-first protocol: an immediate cache emission when an entry
// exists (stale or not), then a singleflight network fetch whose result
// is emitted only when it differs from the cached data. While the
// subscription stays open, later refreshes of the same key that change
// the data are delivered too.
func (e *Engine) Observe(ctx context.Context, loc weather.Location) *Subscription {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		id:      uuid.NewString(),
		key:     loc.Key(),
		engine:  e,
		results: make(chan weather.SyncResult, subscriptionBuffer),
		ctx:     subCtx,
		cancel:  cancel,
	}
	go e.run(sub, loc)
	go func() {
		// Parent-context cancellation detaches the subscription even
		// when Cancel is never called.
		<-subCtx.Done()
		e.removeSub(sub)
	}()
	return sub
}

// run drives one subscription's initial protocol. The cache emission
// happens before the subscription is registered for broadcasts, so the
// cache result always precedes any network result on the stream.
func (e *Engine) run(sub *Subscription, loc weather.Location) {
	entry, hadCache := e.store.Read(loc)
	if hadCache {
		e.send(sub, weather.SyncSuccess{Set: entry.Set, Origin: weather.OriginCache})
	}

	e.addSub(sub)

	if sub.ctx.Err() != nil {
		return
	}

	set, err := e.await(sub.ctx, loc)
	if err != nil {
		if sub.ctx.Err() != nil {
			return
		}
		// Stale cache outranks a hard error on the ambient stream; the
		// failure stays visible to explicit Refresh callers.
		if !hadCache {
			e.send(sub, weather.SyncFailure{Kind: weather.KindOf(err)})
		}
		return
	}
	// Deliver the fetched set directly: a flight that completed between
	// the cache read and registration has already broadcast, and this
	// observer missed it. Per-subscription dedup in deliverLocked keeps
	// this from double-emitting when the broadcast did land.
	e.send(sub, weather.SyncSuccess{Set: set, Origin: weather.OriginNetwork})
}

// Refresh performs a single-shot fetch for loc, joining any in-flight
// one, and always surfaces the outcome — success and failure alike.
// Cancelling ctx releases this caller's wait without aborting a fetch
// that still has other waiters.
func (e *Engine) Refresh(ctx context.Context, loc weather.Location) weather.SyncResult {
	set, err := e.await(ctx, loc)
	if err != nil {
		failure := weather.SyncFailure{Kind: weather.KindOf(err)}
		if entry, ok := e.store.Read(loc); ok {
			lastGood := entry.Set
			failure.LastKnownGood = &lastGood
		}
		return failure
	}
	return weather.SyncSuccess{Set: set, Origin: weather.OriginNetwork}
}

// CacheValid reports whether loc's cached entry is younger than the
// configured expiry.
func (e *Engine) CacheValid(loc weather.Location) bool {
	return e.store.IsValid(loc, e.expiry)
}

// await joins (or starts) the singleflight fetch for loc and waits for
// it, honoring ctx for the wait only.
func (e *Engine) await(ctx context.Context, loc weather.Location) (weather.ForecastSet, error) {
	key := loc.Key()
	f := e.flights.join(key, func(fctx context.Context) (weather.ForecastSet, error) {
		return e.doFetch(fctx, loc)
	})
	defer e.flights.leave(key, f)

	set, err, completed := f.wait(ctx)
	if !completed {
		return weather.ForecastSet{}, weather.NewSyncError(weather.KindOf(err), err)
	}
	return set, err
}

// doFetch is the body of the shared fetch: call the source with the
// configured timeout, persist on success, and broadcast changed data to
// open subscriptions. Runs exactly once per flight.
func (e *Engine) doFetch(ctx context.Context, loc weather.Location) (set weather.ForecastSet, err error) {
	defer func() {
		if r := recover(); r != nil {
			set = weather.ForecastSet{}
			err = weather.NewSyncError(weather.ErrUnknown, fmt.Errorf("forecast source panic: %v", r))
			log.Printf("ERROR: %v", err)
		}
	}()

	fctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	prev, hadPrev := e.store.Read(loc)

	set, err = e.source.Fetch(fctx, loc)
	if err != nil {
		return weather.ForecastSet{}, weather.NewSyncError(weather.KindOf(err), err)
	}

	e.store.Write(loc, set)

	if !hadPrev || !set.Equal(prev.Set) {
		e.broadcast(loc.Key(), set)
	}
	return set, nil
}

// broadcast delivers a changed network result to every open
// subscription for key.
func (e *Engine) broadcast(key string, set weather.ForecastSet) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, sub := range e.subs[key] {
		e.deliverLocked(sub, weather.SyncSuccess{Set: set, Origin: weather.OriginNetwork})
	}
}

func (e *Engine) send(sub *Subscription, r weather.SyncResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deliverLocked(sub, r)
}

// deliverLocked sends r to sub unless an equal set was already
// delivered on this subscription: emit-on-change is enforced per
// subscriber, relative to what that subscriber has actually seen.
func (e *Engine) deliverLocked(sub *Subscription, r weather.SyncResult) {
	if sub.closed {
		return
	}
	success, isSuccess := r.(weather.SyncSuccess)
	if isSuccess && sub.hasLast && sub.last.Equal(success.Set) {
		return
	}
	select {
	case sub.results <- r:
		if isSuccess {
			sub.last = success.Set
			sub.hasLast = true
		}
	default:
		log.Printf("WARN: dropping sync result for %s: slow subscriber", sub.key)
	}
}

func (e *Engine) addSub(sub *Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if sub.closed || sub.ctx.Err() != nil {
		return
	}
	byKey, ok := e.subs[sub.key]
	if !ok {
		byKey = make(map[string]*Subscription)
		e.subs[sub.key] = byKey
	}
	byKey[sub.id] = sub
}

func (e *Engine) removeSub(sub *Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.results)

	if byKey, ok := e.subs[sub.key]; ok {
		delete(byKey, sub.id)
		if len(byKey) == 0 {
			delete(e.subs, sub.key)
		}
	}
}
