package state

import (
	"context"
	"log"

	"github.com/i474232898/weather-sync/internal/syncer"
	"github.com/i474232898/weather-sync/internal/weather"
)

const eventQueueSize = 64

// refreshOutcome carries a Refresh result back into the event loop,
// tagged with the key it was requested for so results of an abandoned
// location are dropped.
type refreshOutcome struct {
	key    string
	result weather.SyncResult
}

// Container is the single-writer UI state machine. One goroutine
// consumes the merged event/result streams, so no two UiState
// transitions ever race. Collaborator faults are converted into error
// states; the loop itself never terminates on them.
type Container struct {
	engine *syncer.Engine
	obs    *Observable

	events    chan UiEvent
	refreshes chan refreshOutcome

	// Loop-owned; touched only from Run's goroutine.
	ctx     context.Context
	current weather.Location
	sub     *syncer.Subscription
}

// NewContainer creates a container for the given default location. The
// state machine is inert until Run is called.
func NewContainer(engine *syncer.Engine, defaultLoc weather.Location) *Container {
	return &Container{
		engine: engine,
		obs: NewObservable(UiState{
			Location:   defaultLoc,
			Connection: ConnectionOnline,
		}),
		events:    make(chan UiEvent, eventQueueSize),
		refreshes: make(chan refreshOutcome, 1),
		current:   defaultLoc,
	}
}

// Dispatch submits a user event, fire-and-forget. Events are processed
// strictly in submission order.
func (c *Container) Dispatch(ev UiEvent) {
	c.events <- ev
}

// State returns the current snapshot.
func (c *Container) State() UiState {
	return c.obs.Value()
}

// Observe registers a state-change listener primed with the current
// value; the returned func cancels it.
func (c *Container) Observe() (<-chan UiState, func()) {
	return c.obs.Subscribe()
}

// Run processes events and sync results until ctx is done. It must be
// called exactly once.
func (c *Container) Run(ctx context.Context) {
	c.ctx = ctx
	defer c.cancelSub()

	for {
		var results <-chan weather.SyncResult
		if c.sub != nil {
			results = c.sub.Results()
		}

		select {
		case <-ctx.Done():
			return
		case ev := <-c.events:
			c.step(func() { c.handleEvent(ev) })
		case r, ok := <-results:
			if !ok {
				c.sub = nil
				continue
			}
			c.step(func() { c.handleResult(r) })
		case out := <-c.refreshes:
			c.step(func() { c.handleRefreshOutcome(out) })
		}
	}
}

// step runs one transition with a panic guard: an unexpected fault
// becomes an unknown-error state instead of killing the loop.
func (c *Container) step(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: state transition panic: %v", r)
			s := c.obs.Value()
			s.IsLoading = false
			s.IsRefreshing = false
			kind := weather.ErrUnknown
			s.Err = &kind
			c.obs.Set(s)
		}
	}()
	fn()
}

func (c *Container) handleEvent(ev UiEvent) {
	switch ev := ev.(type) {
	case LoadWeather:
		c.startLoad()
	case RefreshWeather:
		c.startRefresh()
	case RetryLoad:
		if c.obs.Value().Forecast != nil {
			c.startRefresh()
		} else {
			c.restartLoad()
		}
	case ClearError:
		s := c.obs.Value()
		s.Err = nil
		c.obs.Set(s)
	case SelectLocation:
		c.selectLocation(ev.Location)
	}
}

// startLoad begins observing the current location. A second LoadWeather
// while a subscription is open is a no-op.
func (c *Container) startLoad() {
	if c.sub != nil {
		return
	}
	s := c.obs.Value()
	s.IsLoading = true
	s.Err = nil
	c.obs.Set(s)
	c.sub = c.engine.Observe(c.ctx, c.current)
}

// restartLoad drops any existing subscription and observes afresh; used
// by RetryLoad when there is no data to fall back on.
func (c *Container) restartLoad() {
	c.cancelSub()
	c.startLoad()
}

// startRefresh kicks off an explicit network refresh. The engine call
// runs off-loop; its outcome re-enters through the refreshes channel so
// the single-writer discipline holds. A refresh already in flight is
// not duplicated.
func (c *Container) startRefresh() {
	s := c.obs.Value()
	if s.IsRefreshing {
		return
	}
	if s.Forecast == nil {
		c.restartLoad()
		return
	}
	s.IsRefreshing = true
	s.Err = nil
	c.obs.Set(s)

	loc := c.current
	go func() {
		result := c.engine.Refresh(c.ctx, loc)
		select {
		case c.refreshes <- refreshOutcome{key: loc.Key(), result: result}:
		case <-c.ctx.Done():
		}
	}()
}

// selectLocation switches the active key: the old subscription is
// cancelled and its pending results discarded, so no state leaks across
// keys.
func (c *Container) selectLocation(loc weather.Location) {
	c.cancelSub()
	c.current = loc

	s := c.obs.Value()
	s.Location = loc
	s.Forecast = nil
	s.Err = nil
	s.IsRefreshing = false
	s.IsLoading = true
	c.obs.Set(s)

	c.sub = c.engine.Observe(c.ctx, loc)
}

func (c *Container) handleResult(r weather.SyncResult) {
	s := c.obs.Value()

	switch r := r.(type) {
	case weather.SyncSuccess:
		set := r.Set
		s.Forecast = &set
		s.IsLoading = false
		s.Err = nil
		if r.Origin == weather.OriginNetwork {
			s.Connection = ConnectionOnline
		}
	case weather.SyncFailure:
		s.IsLoading = false
		kind := r.Kind
		s.Err = &kind
		if s.Forecast == nil && r.LastKnownGood != nil {
			s.Forecast = r.LastKnownGood
		}
		if r.Kind == weather.ErrNetworkUnavailable {
			s.Connection = ConnectionOffline
		}
	}

	c.obs.Set(s)
}

func (c *Container) handleRefreshOutcome(out refreshOutcome) {
	if out.key != c.current.Key() {
		// Location changed while the refresh was in flight.
		return
	}

	s := c.obs.Value()
	s.IsRefreshing = false

	switch r := out.result.(type) {
	case weather.SyncSuccess:
		set := r.Set
		s.Forecast = &set
		s.Err = nil
		s.Connection = ConnectionOnline
	case weather.SyncFailure:
		// Stale forecast is retained; the error rides on top of it.
		kind := r.Kind
		s.Err = &kind
		if r.Kind == weather.ErrNetworkUnavailable {
			s.Connection = ConnectionOffline
		}
	}

	c.obs.Set(s)
}

func (c *Container) cancelSub() {
	if c.sub != nil {
		c.sub.Cancel()
		c.sub = nil
	}
}
