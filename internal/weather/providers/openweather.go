package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-sync/internal/weather"
)

// OpenWeatherProvider fetches multi-day forecasts from the OpenWeatherMap
// 5-day/3-hour endpoint and folds the 3-hourly steps into daily values.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenWeatherProvider(client *http.Client, apiKey string) *OpenWeatherProvider {
	return &OpenWeatherProvider{
		name:    "openweathermap",
		apiKey:  apiKey,
		baseURL: "https://api.openweathermap.org/data/2.5/forecast",
		httpCfg: defaultHTTPConfig(client),
		circuit: newBreaker("openweather"),
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

func (p *OpenWeatherProvider) FetchForecast(ctx context.Context, loc weather.Location, days int) (weather.ForecastSet, error) {
	if p.apiKey == "" {
		return weather.ForecastSet{}, weather.NewSyncError(weather.ErrUnauthorized, fmt.Errorf("openweather api key is not configured"))
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("appid", p.apiKey)
		values.Set("units", "metric")

		if loc.Lat != nil && loc.Lon != nil {
			values.Set("lat", fmt.Sprintf("%f", *loc.Lat))
			values.Set("lon", fmt.Sprintf("%f", *loc.Lon))
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
		List []struct {
			Dt   int64 `json:"dt"`
			Main struct {
				Temp      float64 `json:"temp"`
				FeelsLike float64 `json:"feels_like"`
				Humidity  float64 `json:"humidity"`
				Pressure  float64 `json:"pressure"`
			} `json:"main"`
			Weather []struct {
				Main        string `json:"main"`
				Description string `json:"description"`
			} `json:"weather"`
			Clouds struct {
				All float64 `json:"all"`
			} `json:"clouds"`
			Wind struct {
				Speed float64 `json:"speed"`
				Deg   float64 `json:"deg"`
			} `json:"wind"`
			Visibility float64 `json:"visibility"` // meters
			Pop        float64 `json:"pop"`        // 0..1
			Rain       struct {
				ThreeH float64 `json:"3h"`
			} `json:"rain"`
			Snow struct {
				ThreeH float64 `json:"3h"`
			} `json:"snow"`
		} `json:"list"`
	}

	if err := decodeJSON(resp, &payload); err != nil {
		return weather.ForecastSet{}, err
	}

	samples := make([]weather.HourlySample, 0, len(payload.List))
	for _, item := range payload.List {
		cond := weather.ConditionUnknown
		desc := ""
		if len(item.Weather) > 0 {
			cond = mapOpenWeatherCondition(item.Weather[0].Main)
			desc = item.Weather[0].Description
		}

		samples = append(samples, weather.HourlySample{
			Timestamp:    time.Unix(item.Dt, 0).UTC(),
			TempC:        item.Main.Temp,
			FeelsLikeC:   item.Main.FeelsLike,
			HumidityPct:  item.Main.Humidity,
			PressureHpa:  item.Main.Pressure,
			WindSpeedMS:  item.Wind.Speed,
			WindDirDeg:   item.Wind.Deg,
			CloudPct:     item.Clouds.All,
			VisibilityKM: item.Visibility / 1000,
			PrecipMM:     item.Rain.ThreeH + item.Snow.ThreeH,
			PrecipProb:   item.Pop * 100,
			Condition:    cond,
			Description:  desc,
		})
	}

	set := weather.AggregateHourly(loc, samples, time.Now().UTC())
	if len(set.Days) > days {
		set.Days = set.Days[:days]
	}
	return set, nil
}

func mapOpenWeatherCondition(main string) weather.Condition {
	switch main {
	case "Clear":
		return weather.ConditionClear
	case "Clouds":
		return weather.ConditionClouds
	case "Rain":
		return weather.ConditionRain
	case "Drizzle":
		return weather.ConditionDrizzle
	case "Snow":
		return weather.ConditionSnow
	case "Thunderstorm":
		return weather.ConditionStorm
	case "Mist", "Fog", "Haze":
		return weather.ConditionFog
	default:
		return weather.ConditionUnknown
	}
}
