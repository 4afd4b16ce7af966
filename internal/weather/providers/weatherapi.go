package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-sync/internal/common"
	"github.com/i474232898/weather-sync/internal/weather"
)

// WeatherAPIProvider fetches daily forecasts from WeatherAPI.com.
type WeatherAPIProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewWeatherAPIProvider(client *http.Client, apiKey string) *WeatherAPIProvider {
	return &WeatherAPIProvider{
		name:    "weatherapi",
		apiKey:  apiKey,
		baseURL: "https://api.weatherapi.com/v1/forecast.json",
		httpCfg: defaultHTTPConfig(client),
		circuit: newBreaker("weatherapi"),
	}
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

func (p *WeatherAPIProvider) FetchForecast(ctx context.Context, loc weather.Location, days int) (weather.ForecastSet, error) {
	if p.apiKey == "" {
		return weather.ForecastSet{}, weather.NewSyncError(weather.ErrUnauthorized, fmt.Errorf("weatherapi api key is not configured"))
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("key", p.apiKey)
		values.Set("days", fmt.Sprintf("%d", days))
		// WeatherAPI uses "q" for location; it accepts "city,country" or "lat,lon".
		if loc.Lat != nil && loc.Lon != nil {
			values.Set("q", fmt.Sprintf("%f,%f", *loc.Lat, *loc.Lon))
		} else {
			q := loc.City
			if loc.Country != "" {
				q = fmt.Sprintf("%s,%s", loc.City, loc.Country)
			}
			values.Set("q", q)
		}

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.ForecastSet{}, classify(err)
	}
	defer resp.Body.Close()

	var payload struct {
		Forecast struct {
			ForecastDay []struct {
				Date string `json:"date"`
				Day  struct {
					MaxTempC      float64 `json:"maxtemp_c"`
					MinTempC      float64 `json:"mintemp_c"`
					AvgHumidity   float64 `json:"avghumidity"`
					MaxWindKph    float64 `json:"maxwind_kph"`
					TotalPrecipMM float64 `json:"totalprecip_mm"`
					AvgVisKM      float64 `json:"avgvis_km"`
					UV            float64 `json:"uv"`
					ChanceOfRain  float64 `json:"daily_chance_of_rain"`
					Condition     struct {
						Text string `json:"text"`
					} `json:"condition"`
				} `json:"day"`
				Astro struct {
					Sunrise   string `json:"sunrise"`
					Sunset    string `json:"sunset"`
					MoonPhase string `json:"moon_phase"`
				} `json:"astro"`
			} `json:"forecastday"`
		} `json:"forecast"`
	}

	if err := decodeJSON(resp, &payload); err != nil {
		return weather.ForecastSet{}, err
	}

	forecastDays := make([]weather.ForecastDay, 0, len(payload.Forecast.ForecastDay))
	for _, fd := range payload.Forecast.ForecastDay {
		date, err := time.Parse("2006-01-02", fd.Date)
		if err != nil {
			return weather.ForecastSet{}, weather.NewSyncError(weather.ErrParse, err)
		}

		forecastDays = append(forecastDays, weather.ForecastDay{
			Date:            date,
			Condition:       mapWeatherAPICondition(fd.Day.Condition.Text),
			TempHighC:       fd.Day.MaxTempC,
			TempLowC:        fd.Day.MinTempC,
			HumidityPct:     fd.Day.AvgHumidity,
			Description:     fd.Day.Condition.Text,
			WindSpeedMS:     fd.Day.MaxWindKph / 3.6, // kph to m/s
			VisibilityKM:    fd.Day.AvgVisKM,
			UVIndex:         fd.Day.UV,
			PrecipChancePct: fd.Day.ChanceOfRain,
			PrecipMM:        fd.Day.TotalPrecipMM,
			Sunrise:         parseAstroTime(date, fd.Astro.Sunrise),
			Sunset:          parseAstroTime(date, fd.Astro.Sunset),
			MoonPhase:       fd.Astro.MoonPhase,
		})
	}

	if len(forecastDays) > days {
		forecastDays = forecastDays[:days]
	}

	return weather.ForecastSet{
		Location:   loc,
		Days:       forecastDays,
		CapturedAt: time.Now().UTC(),
	}, nil
}

// parseAstroTime combines a forecast date with WeatherAPI's "06:45 AM"
// style astro field. A zero time means the field was absent or garbled.
func parseAstroTime(date time.Time, s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ts, err := time.Parse("2006-01-02 03:04 PM", date.Format("2006-01-02")+" "+strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

func mapWeatherAPICondition(text string) weather.Condition {
	lower := strings.ToLower(text)
	switch {
	case text == "":
		return weather.ConditionUnknown
	case common.HasAny(lower, "drizzle"):
		return weather.ConditionDrizzle
	case common.HasAny(lower, "rain", "shower"):
		return weather.ConditionRain
	case common.HasAny(lower, "snow", "sleet", "blizzard"):
		return weather.ConditionSnow
	case common.HasAny(lower, "thunder", "storm"):
		return weather.ConditionStorm
	case common.HasAny(lower, "fog", "mist"):
		return weather.ConditionFog
	case common.HasAny(lower, "cloud", "overcast"):
		return weather.ConditionClouds
	case common.HasAny(lower, "sunny", "clear"):
		return weather.ConditionClear
	default:
		return weather.ConditionUnknown
	}
}
