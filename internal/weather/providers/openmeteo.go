package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/kelvins/geocoder"
	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-sync/internal/weather"
)

// OpenMeteoProvider fetches daily forecasts from Open-Meteo. The API is
// keyless but coordinate-only, so city locations are resolved through
// the Google geocoding API first; resolved coordinates are memoized per
// location key.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker

	geoKey string
	mu     sync.Mutex
	coords map[string]geocoder.Location
}

func NewOpenMeteoProvider(client *http.Client, geocoderAPIKey string) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		name:    "openmeteo",
		baseURL: "https://api.open-meteo.com/v1/forecast",
		httpCfg: defaultHTTPConfig(client),
		circuit: newBreaker("openmeteo"),
		geoKey:  geocoderAPIKey,
		coords:  make(map[string]geocoder.Location),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

func (p *OpenMeteoProvider) resolve(loc weather.Location) (geocoder.Location, error) {
	if loc.Lat != nil && loc.Lon != nil {
		return geocoder.Location{Latitude: *loc.Lat, Longitude: *loc.Lon}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.coords[loc.Key()]; ok {
		return c, nil
	}
	if p.geoKey == "" {
		return geocoder.Location{}, weather.NewSyncError(weather.ErrUnauthorized, fmt.Errorf("geocoder api key is not configured"))
	}

	geocoder.ApiKey = p.geoKey
	c, err := geocoder.Geocoding(geocoder.Address{City: loc.City, Country: loc.Country})
	if err != nil {
		return geocoder.Location{}, weather.NewSyncError(weather.ErrNetworkUnavailable, fmt.Errorf("geocoding %s: %w", loc.Key(), err))
	}

	p.coords[loc.Key()] = c
	return c, nil
}

func (p *OpenMeteoProvider) FetchForecast(ctx context.Context, loc weather.Location, days int) (weather.ForecastSet, error) {
	coords, err := p.resolve(loc)
	if err != nil {
		return weather.ForecastSet{}, err
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", coords.Latitude))
		values.Set("longitude", fmt.Sprintf("%f", coords.Longitude))
		values.Set("daily", "weather_code,temperature_2m_max,temperature_2m_min,"+
			"relative_humidity_2m_mean,precipitation_sum,precipitation_probability_max,"+
			"wind_speed_10m_max,uv_index_max,sunrise,sunset")
		values.Set("forecast_days", fmt.Sprintf("%d", days))
		values.Set("timezone", "UTC")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.ForecastSet{}, classify(err)
	}
	defer resp.Body.Close()

	var payload struct {
		Daily struct {
			Time          []string  `json:"time"`
			WeatherCode   []int     `json:"weather_code"`
			TempMax       []float64 `json:"temperature_2m_max"`
			TempMin       []float64 `json:"temperature_2m_min"`
			HumidityMean  []float64 `json:"relative_humidity_2m_mean"`
			PrecipSum     []float64 `json:"precipitation_sum"`
			PrecipProbMax []float64 `json:"precipitation_probability_max"`
			WindMaxKmh    []float64 `json:"wind_speed_10m_max"`
			UVIndexMax    []float64 `json:"uv_index_max"`
			Sunrise       []string  `json:"sunrise"`
			Sunset        []string  `json:"sunset"`
		} `json:"daily"`
	}

	if err := decodeJSON(resp, &payload); err != nil {
		return weather.ForecastSet{}, err
	}

	forecastDays := make([]weather.ForecastDay, 0, len(payload.Daily.Time))
	for i, dateStr := range payload.Daily.Time {
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return weather.ForecastSet{}, weather.NewSyncError(weather.ErrParse, err)
		}

		day := weather.ForecastDay{
			Date:      date,
			Condition: weather.ConditionUnknown,
		}
		if i < len(payload.Daily.WeatherCode) {
			day.Condition = mapOpenMeteoCondition(payload.Daily.WeatherCode[i])
		}
		if i < len(payload.Daily.TempMax) {
			day.TempHighC = payload.Daily.TempMax[i]
		}
		if i < len(payload.Daily.TempMin) {
			day.TempLowC = payload.Daily.TempMin[i]
		}
		if i < len(payload.Daily.HumidityMean) {
			day.HumidityPct = payload.Daily.HumidityMean[i]
		}
		if i < len(payload.Daily.PrecipSum) {
			day.PrecipMM = payload.Daily.PrecipSum[i]
		}
		if i < len(payload.Daily.PrecipProbMax) {
			day.PrecipChancePct = payload.Daily.PrecipProbMax[i]
		}
		if i < len(payload.Daily.WindMaxKmh) {
			day.WindSpeedMS = payload.Daily.WindMaxKmh[i] / 3.6
		}
		if i < len(payload.Daily.UVIndexMax) {
			day.UVIndex = payload.Daily.UVIndexMax[i]
		}
		if i < len(payload.Daily.Sunrise) {
			day.Sunrise = parseISOMinute(payload.Daily.Sunrise[i])
		}
		if i < len(payload.Daily.Sunset) {
			day.Sunset = parseISOMinute(payload.Daily.Sunset[i])
		}
		day.Description = string(day.Condition)

		forecastDays = append(forecastDays, day)
	}

	return weather.ForecastSet{
		Location:   loc,
		Days:       forecastDays,
		CapturedAt: time.Now().UTC(),
	}, nil
}

// parseISOMinute parses Open-Meteo's "2026-08-25T05:12" timestamps.
func parseISOMinute(s string) time.Time {
	ts, err := time.Parse("2006-01-02T15:04", s)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

// mapOpenMeteoCondition maps WMO weather codes (simplified).
func mapOpenMeteoCondition(code int) weather.Condition {
	switch {
	case code == 0:
		return weather.ConditionClear
	case code >= 1 && code <= 3:
		return weather.ConditionClouds
	case code == 45 || code == 48:
		return weather.ConditionFog
	case code >= 51 && code <= 57:
		return weather.ConditionDrizzle
	case (code >= 61 && code <= 67) || (code >= 80 && code <= 82):
		return weather.ConditionRain
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		return weather.ConditionSnow
	case code >= 95:
		return weather.ConditionStorm
	default:
		return weather.ConditionUnknown
	}
}
