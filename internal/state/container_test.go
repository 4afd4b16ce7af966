package state

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-sync/internal/cache"
	"github.com/i474232898/weather-sync/internal/syncer"
	"github.com/i474232898/weather-sync/internal/weather"
)

var (
	london = weather.Location{City: "London", Country: "GB"}
	nyc    = weather.Location{City: "NYC", Country: "US"}
)

func forecastFor(loc weather.Location, high float64) weather.ForecastSet {
	return weather.ForecastSet{
		Location: loc,
		Days: []weather.ForecastDay{
			{
				Date:        time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC),
				Condition:   weather.ConditionClear,
				TempHighC:   high,
				TempLowC:    high - 8,
				HumidityPct: 50,
			},
		},
		CapturedAt: time.Now().UTC(),
	}
}

// scriptedSource returns per-location responses, optionally blocking.
type scriptedSource struct {
	mu        sync.Mutex
	responses map[string]weather.ForecastSet
	failures  map[string]error
	block     chan struct{}
	calls     int32
}

func newScriptedSource() *scriptedSource {
	return &scriptedSource{
		responses: make(map[string]weather.ForecastSet),
		failures:  make(map[string]error),
	}
}

func (s *scriptedSource) succeed(loc weather.Location, set weather.ForecastSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[loc.Key()] = set
	delete(s.failures, loc.Key())
}

func (s *scriptedSource) fail(loc weather.Location, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[loc.Key()] = err
	delete(s.responses, loc.Key())
}

func (s *scriptedSource) Fetch(ctx context.Context, loc weather.Location) (weather.ForecastSet, error) {
	atomic.AddInt32(&s.calls, 1)

	s.mu.Lock()
	block := s.block
	s.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return weather.ForecastSet{}, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failures[loc.Key()]; ok {
		return weather.ForecastSet{}, err
	}
	if set, ok := s.responses[loc.Key()]; ok {
		return set, nil
	}
	return weather.ForecastSet{}, weather.NewSyncError(weather.ErrUnknown, nil)
}

func startContainer(t *testing.T, src weather.Source, defaultLoc weather.Location) (*Container, *cache.MemoryStore) {
	t.Helper()
	store := cache.NewMemoryStore(nil)
	engine := syncer.New(store, src, syncer.Config{FetchTimeout: time.Second, CacheExpiry: 24 * time.Hour})
	c := NewContainer(engine, defaultLoc)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go c.Run(ctx)
	return c, store
}

func waitForState(t *testing.T, c *Container, cond func(UiState) bool) UiState {
	t.Helper()
	var last UiState
	require.Eventually(t, func() bool {
		last = c.State()
		return cond(last)
	}, 2*time.Second, 5*time.Millisecond)
	return last
}

func TestColdStartLoad(t *testing.T) {
	src := newScriptedSource()
	fresh := forecastFor(london, 21)
	src.succeed(london, fresh)

	c, _ := startContainer(t, src, london)

	initial := c.State()
	assert.False(t, initial.IsLoading)
	assert.Nil(t, initial.Forecast)

	c.Dispatch(LoadWeather{})

	loaded := waitForState(t, c, func(s UiState) bool { return s.Forecast != nil })
	assert.False(t, loaded.IsLoading)
	assert.Nil(t, loaded.Err)
	assert.True(t, loaded.Forecast.Equal(fresh))
	assert.Equal(t, ConnectionOnline, loaded.Connection)
}

func TestLoadFailureWithoutDataShowsError(t *testing.T) {
	src := newScriptedSource()
	src.fail(london, weather.NewSyncError(weather.ErrNetworkUnavailable, nil))

	c, _ := startContainer(t, src, london)
	c.Dispatch(LoadWeather{})

	errored := waitForState(t, c, func(s UiState) bool { return s.Err != nil })
	assert.Nil(t, errored.Forecast)
	assert.Equal(t, weather.ErrNetworkUnavailable, *errored.Err)
	assert.Equal(t, ConnectionOffline, errored.Connection)
	assert.False(t, errored.IsLoading)
}

func TestRetryAfterErrorRecovers(t *testing.T) {
	src := newScriptedSource()
	src.fail(london, weather.NewSyncError(weather.ErrNetworkUnavailable, nil))

	c, _ := startContainer(t, src, london)
	c.Dispatch(LoadWeather{})
	waitForState(t, c, func(s UiState) bool { return s.Err != nil })

	fresh := forecastFor(london, 19)
	src.succeed(london, fresh)
	c.Dispatch(RetryLoad{})

	loaded := waitForState(t, c, func(s UiState) bool { return s.Forecast != nil })
	assert.Nil(t, loaded.Err)
	assert.True(t, loaded.Forecast.Equal(fresh))
}

func TestRefreshFailureKeepsStaleData(t *testing.T) {
	src := newScriptedSource()
	stale := forecastFor(london, 15)
	src.succeed(london, stale)

	c, _ := startContainer(t, src, london)
	c.Dispatch(LoadWeather{})
	waitForState(t, c, func(s UiState) bool { return s.Forecast != nil })

	src.fail(london, weather.NewSyncError(weather.ErrNetworkUnavailable, nil))
	c.Dispatch(RefreshWeather{})

	errored := waitForState(t, c, func(s UiState) bool { return s.Err != nil })
	assert.False(t, errored.IsRefreshing)
	assert.Equal(t, weather.ErrNetworkUnavailable, *errored.Err)
	require.NotNil(t, errored.Forecast, "stale forecast must be retained")
	assert.True(t, errored.Forecast.Equal(stale))
	assert.Equal(t, ConnectionOffline, errored.Connection)
}

func TestRefreshSuccessUpdatesForecast(t *testing.T) {
	src := newScriptedSource()
	src.succeed(london, forecastFor(london, 15))

	c, _ := startContainer(t, src, london)
	c.Dispatch(LoadWeather{})
	waitForState(t, c, func(s UiState) bool { return s.Forecast != nil })

	updated := forecastFor(london, 23)
	src.succeed(london, updated)
	c.Dispatch(RefreshWeather{})

	refreshed := waitForState(t, c, func(s UiState) bool {
		return s.Forecast != nil && s.Forecast.Equal(updated)
	})
	assert.False(t, refreshed.IsRefreshing)
	assert.Nil(t, refreshed.Err)
}

func TestClearErrorKeepsRestOfState(t *testing.T) {
	src := newScriptedSource()
	stale := forecastFor(london, 15)
	src.succeed(london, stale)

	c, _ := startContainer(t, src, london)
	c.Dispatch(LoadWeather{})
	waitForState(t, c, func(s UiState) bool { return s.Forecast != nil })

	src.fail(london, weather.NewSyncError(weather.ErrRateLimited, nil))
	c.Dispatch(RefreshWeather{})
	waitForState(t, c, func(s UiState) bool { return s.Err != nil })

	c.Dispatch(ClearError{})
	cleared := waitForState(t, c, func(s UiState) bool { return s.Err == nil })
	require.NotNil(t, cleared.Forecast)
	assert.True(t, cleared.Forecast.Equal(stale))
}

func TestSelectLocationCancelsOldSubscription(t *testing.T) {
	src := newScriptedSource()
	src.succeed(london, forecastFor(london, 15))
	nycForecast := forecastFor(nyc, 28)
	src.succeed(nyc, nycForecast)

	c, _ := startContainer(t, src, london)
	c.Dispatch(LoadWeather{})
	waitForState(t, c, func(s UiState) bool { return s.Forecast != nil })

	// Switch mid-refresh; the old key's outcome must not leak through.
	src.mu.Lock()
	src.block = make(chan struct{})
	src.mu.Unlock()

	c.Dispatch(RefreshWeather{})
	waitForState(t, c, func(s UiState) bool { return s.IsRefreshing })

	c.Dispatch(SelectLocation{Location: nyc})
	switched := waitForState(t, c, func(s UiState) bool { return s.Location.Key() == nyc.Key() })
	assert.Nil(t, switched.Forecast, "no cross-key forecast leakage")
	assert.False(t, switched.IsRefreshing)

	src.mu.Lock()
	close(src.block)
	src.block = nil
	src.mu.Unlock()

	loaded := waitForState(t, c, func(s UiState) bool { return s.Forecast != nil })
	assert.True(t, loaded.Forecast.Equal(nycForecast), "forecast must belong to the new key")
	assert.False(t, loaded.IsRefreshing)
}

func TestEveryEventHasADefinedEffectInEveryState(t *testing.T) {
	events := []UiEvent{
		LoadWeather{},
		RefreshWeather{},
		RetryLoad{},
		ClearError{},
		SelectLocation{Location: nyc},
		SelectLocation{Location: london},
	}

	t.Run("from idle", func(t *testing.T) {
		src := newScriptedSource()
		src.succeed(london, forecastFor(london, 15))
		src.succeed(nyc, forecastFor(nyc, 28))
		c, _ := startContainer(t, src, london)

		for _, ev := range events {
			c.Dispatch(ev)
		}
		waitForState(t, c, func(s UiState) bool { return s.Forecast != nil })
	})

	t.Run("from error state", func(t *testing.T) {
		src := newScriptedSource()
		src.fail(london, weather.NewSyncError(weather.ErrUnknown, nil))
		src.fail(nyc, weather.NewSyncError(weather.ErrUnknown, nil))
		c, _ := startContainer(t, src, london)

		c.Dispatch(LoadWeather{})
		waitForState(t, c, func(s UiState) bool { return s.Err != nil })

		for _, ev := range events {
			c.Dispatch(ev)
		}
		// The loop must still be responsive afterwards.
		c.Dispatch(ClearError{})
		waitForState(t, c, func(s UiState) bool { return s.Err == nil })
	})
}

func TestCollaboratorPanicBecomesUnknownError(t *testing.T) {
	c, _ := startContainer(t, panicOnFetch{}, london)

	c.Dispatch(LoadWeather{})

	errored := waitForState(t, c, func(s UiState) bool { return s.Err != nil })
	assert.Equal(t, weather.ErrUnknown, *errored.Err)

	// The container survives and keeps processing events.
	c.Dispatch(ClearError{})
	waitForState(t, c, func(s UiState) bool { return s.Err == nil })
}

type panicOnFetch struct{}

func (panicOnFetch) Fetch(ctx context.Context, loc weather.Location) (weather.ForecastSet, error) {
	panic("collaborator fault")
}

func TestObservableDeduplicatesEqualStates(t *testing.T) {
	obs := NewObservable(UiState{Location: london, Connection: ConnectionOnline})
	ch, cancel := obs.Subscribe()
	defer cancel()

	// Primed with the current value.
	first := <-ch
	assert.Equal(t, london.Key(), first.Location.Key())

	// Publishing an equal snapshot must not notify.
	obs.Set(UiState{Location: london, Connection: ConnectionOnline})
	select {
	case s := <-ch:
		t.Fatalf("unexpected notification for unchanged state: %#v", s)
	case <-time.After(50 * time.Millisecond):
	}

	next := UiState{Location: london, Connection: ConnectionOnline, IsLoading: true}
	obs.Set(next)
	select {
	case s := <-ch:
		assert.True(t, s.IsLoading)
	case <-time.After(time.Second):
		t.Fatal("expected notification for changed state")
	}

	assert.NotPanics(t, func() {
		cancel()
		cancel()
	})
}
