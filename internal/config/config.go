package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/i474232898/weather-sync/internal/weather"
)

type AppConfig struct {
	OpenWeatherAPIKey string
	WeatherAPIKey     string
	GeocoderAPIKey    string

	// CacheExpiry is how long a cached forecast counts as fresh.
	CacheExpiry time.Duration

	// FetchTimeout bounds a single network fetch.
	FetchTimeout time.Duration

	// RefreshInterval controls the background refresh cadence.
	RefreshInterval time.Duration

	// ForecastDays is how many days to request from providers.
	ForecastDays int

	// Locations to keep refreshed in the background. The first one is
	// the default location shown on startup.
	Locations []weather.Location

	Port string
}

// DefaultLocation returns the location shown before the user picks one.
func (c *AppConfig) DefaultLocation() weather.Location {
	return c.Locations[0]
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	cfg.WeatherAPIKey = os.Getenv("WEATHERAPI_API_KEY")
	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")

	var err error
	if cfg.CacheExpiry, err = getenvDuration("CACHE_EXPIRY", "24h"); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = getenvDuration("FETCH_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.RefreshInterval, err = getenvDuration("REFRESH_INTERVAL", "15m"); err != nil {
		return nil, err
	}

	cfg.ForecastDays = getenvInt("FORECAST_DAYS", 5)
	if cfg.ForecastDays < 1 || cfg.ForecastDays > 7 {
		return nil, fmt.Errorf("FORECAST_DAYS must be between 1 and 7")
	}

	cfg.Port = getenvDefault("PORT", "8080")

	locs, err := loadLocations()
	if err != nil {
		return nil, err
	}
	cfg.Locations = locs

	return cfg, nil
}

func loadLocations() ([]weather.Location, error) {
	city := getenvDefault("WEATHER_LOCATION_CITY", "London")
	country := getenvDefault("WEATHER_LOCATION_COUNTRY", "GB")
	cities := strings.Split(city, ",")
	countries := strings.Split(country, ",")
	if len(cities) != len(countries) {
		return nil, fmt.Errorf("number of cities and countries must be the same")
	}
	var locs []weather.Location
	for i := range cities {
		locs = append(locs, weather.Location{
			City:    strings.TrimSpace(cities[i]),
			Country: strings.TrimSpace(countries[i]),
		})
	}

	return locs, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
