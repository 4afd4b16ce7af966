package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-sync/internal/weather"
)

func TestFlightGroupSharesOneCall(t *testing.T) {
	t.Run("concurrent joiners share a single fetch", func(t *testing.T) {
		g := newFlightGroup()
		var calls int32
		release := make(chan struct{})

		fn := func(ctx context.Context) (weather.ForecastSet, error) {
			atomic.AddInt32(&calls, 1)
			<-release
			return weather.ForecastSet{CapturedAt: time.Unix(42, 0)}, nil
		}

		const waiters = 5
		var wg sync.WaitGroup
		results := make([]weather.ForecastSet, waiters)

		for i := 0; i < waiters; i++ {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				f := g.join("Berlin:DE", fn)
				defer g.leave("Berlin:DE", f)
				set, err, ok := f.wait(context.Background())
				require.True(t, ok)
				require.NoError(t, err)
				results[i] = set
			}()
		}

		require.Eventually(t, func() bool { return g.inFlight("Berlin:DE") }, time.Second, time.Millisecond)
		close(release)
		wg.Wait()

		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		for _, set := range results {
			assert.Equal(t, time.Unix(42, 0), set.CapturedAt)
		}
	})

	t.Run("a completed call is not reused", func(t *testing.T) {
		g := newFlightGroup()
		var calls int32

		fn := func(ctx context.Context) (weather.ForecastSet, error) {
			atomic.AddInt32(&calls, 1)
			return weather.ForecastSet{}, nil
		}

		f := g.join("k", fn)
		_, _, ok := f.wait(context.Background())
		require.True(t, ok)
		g.leave("k", f)

		f2 := g.join("k", fn)
		_, _, ok = f2.wait(context.Background())
		require.True(t, ok)
		g.leave("k", f2)

		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})
}

func TestFlightGroupWaiterDetach(t *testing.T) {
	t.Run("one waiter leaving does not abort the others", func(t *testing.T) {
		g := newFlightGroup()
		release := make(chan struct{})
		aborted := make(chan struct{}, 1)

		fn := func(ctx context.Context) (weather.ForecastSet, error) {
			select {
			case <-ctx.Done():
				aborted <- struct{}{}
				return weather.ForecastSet{}, ctx.Err()
			case <-release:
				return weather.ForecastSet{CapturedAt: time.Unix(7, 0)}, nil
			}
		}

		f1 := g.join("k", fn)
		f2 := g.join("k", fn)
		require.Same(t, f1, f2)

		// First waiter gives up.
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()
		_, _, ok := f1.wait(cancelled)
		require.False(t, ok)
		g.leave("k", f1)

		close(release)
		set, err, ok := f2.wait(context.Background())
		require.True(t, ok)
		require.NoError(t, err)
		assert.Equal(t, time.Unix(7, 0), set.CapturedAt)
		g.leave("k", f2)

		select {
		case <-aborted:
			t.Fatal("fetch was aborted while a waiter remained")
		default:
		}
	})

	t.Run("last waiter leaving aborts the fetch", func(t *testing.T) {
		g := newFlightGroup()
		aborted := make(chan struct{})

		fn := func(ctx context.Context) (weather.ForecastSet, error) {
			<-ctx.Done()
			close(aborted)
			return weather.ForecastSet{}, ctx.Err()
		}

		f := g.join("k", fn)
		g.leave("k", f)

		select {
		case <-aborted:
		case <-time.After(time.Second):
			t.Fatal("abandoned fetch was not cancelled")
		}

		assert.False(t, g.inFlight("k"))
	})
}

func TestFlightGroupPropagatesErrors(t *testing.T) {
	g := newFlightGroup()
	boom := errors.New("boom")

	f := g.join("k", func(ctx context.Context) (weather.ForecastSet, error) {
		return weather.ForecastSet{}, boom
	})
	defer g.leave("k", f)

	_, err, ok := f.wait(context.Background())
	require.True(t, ok)
	assert.ErrorIs(t, err, boom)
}
