package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-sync/internal/cache"
	"github.com/i474232898/weather-sync/internal/state"
	"github.com/i474232898/weather-sync/internal/syncer"
	"github.com/i474232898/weather-sync/internal/weather"
)

type stubSource struct{}

func (stubSource) Fetch(ctx context.Context, loc weather.Location) (weather.ForecastSet, error) {
	return weather.ForecastSet{}, weather.NewSyncError(weather.ErrNetworkUnavailable, nil)
}

func newTestApp(t *testing.T) (*fiber.App, *state.Container) {
	t.Helper()

	store := cache.NewMemoryStore(nil)
	engine := syncer.New(store, stubSource{}, syncer.Config{
		FetchTimeout: time.Second,
		CacheExpiry:  24 * time.Hour,
	})
	container := state.NewContainer(engine, weather.Location{City: "London", Country: "GB"})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go container.Run(ctx)

	app := fiber.New()
	RegisterRoutes(app, container, engine)
	return app, container
}

// TestStateEndpoint verifies the observable state is served as JSON.
func TestStateEndpoint(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/weather/state", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
}

// TestForecastEndpointWithoutData verifies 404 before any data loads.
func TestForecastEndpointWithoutData(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/weather/forecast", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}
}

// TestLocationValidation verifies the location body is validated.
func TestLocationValidation(t *testing.T) {
	app, _ := newTestApp(t)

	// Missing country should return 400.
	req := httptest.NewRequest(http.MethodPut, "/api/v1/weather/location", strings.NewReader(`{"city":"Paris"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}

	// A complete body is accepted.
	req = httptest.NewRequest(http.MethodPut, "/api/v1/weather/location", strings.NewReader(`{"city":"Paris","country":"FR"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, resp.StatusCode)
	}
}

// TestEventDispatchEndpoints verifies the fire-and-forget event routes.
func TestEventDispatchEndpoints(t *testing.T) {
	app, _ := newTestApp(t)

	for _, route := range []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/weather/load"},
		{http.MethodPost, "/api/v1/weather/refresh"},
		{http.MethodPost, "/api/v1/weather/retry"},
		{http.MethodDelete, "/api/v1/weather/error"},
	} {
		req := httptest.NewRequest(route.method, route.path, nil)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", route.path, err)
		}
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("expected status %d for %s, got %d", http.StatusAccepted, route.path, resp.StatusCode)
		}
	}
}
