package state

import (
	"github.com/i474232898/weather-sync/internal/weather"
)

// ConnectionStatus is the container's view of upstream reachability.
type ConnectionStatus string

const (
	ConnectionOnline  ConnectionStatus = "online"
	ConnectionOffline ConnectionStatus = "offline"
)

// UiState is the single authoritative snapshot exposed to the UI layer.
// It is replaced wholesale on every transition — never field-mutated —
// so observers can rely on plain equality for change detection.
type UiState struct {
	Location     weather.Location     `json:"location"`
	IsLoading    bool                 `json:"isLoading"`
	IsRefreshing bool                 `json:"isRefreshing"`
	Forecast     *weather.ForecastSet `json:"forecast,omitempty"`
	Err          *weather.ErrorKind   `json:"error,omitempty"`
	Connection   ConnectionStatus     `json:"connectionStatus"`
}

// Equal reports whether two snapshots are observably identical.
func (s UiState) Equal(o UiState) bool {
	if s.IsLoading != o.IsLoading ||
		s.IsRefreshing != o.IsRefreshing ||
		s.Connection != o.Connection ||
		s.Location.Key() != o.Location.Key() {
		return false
	}
	if (s.Err == nil) != (o.Err == nil) {
		return false
	}
	if s.Err != nil && *s.Err != *o.Err {
		return false
	}
	if (s.Forecast == nil) != (o.Forecast == nil) {
		return false
	}
	if s.Forecast != nil && !s.Forecast.Equal(*o.Forecast) {
		return false
	}
	return true
}

// UiEvent is the closed set of user intents the container consumes, in
// strict arrival order.
type UiEvent interface {
	uiEvent()
}

// LoadWeather starts observing the current location.
type LoadWeather struct{}

// RefreshWeather forces a network fetch for the current location.
type RefreshWeather struct{}

// RetryLoad retries after an error: a reload when no data is shown, a
// refresh when stale data is on screen.
type RetryLoad struct{}

// ClearError dismisses the error indicator, leaving the rest of the
// state untouched.
type ClearError struct{}

// SelectLocation switches the active location.
type SelectLocation struct {
	Location weather.Location
}

func (LoadWeather) uiEvent()    {}
func (RefreshWeather) uiEvent() {}
func (RetryLoad) uiEvent()      {}
func (ClearError) uiEvent()     {}
func (SelectLocation) uiEvent() {}
