package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/i474232898/weather-sync/internal/api/http"
	"github.com/i474232898/weather-sync/internal/cache"
	"github.com/i474232898/weather-sync/internal/config"
	"github.com/i474232898/weather-sync/internal/scheduler"
	"github.com/i474232898/weather-sync/internal/state"
	"github.com/i474232898/weather-sync/internal/syncer"
	"github.com/i474232898/weather-sync/internal/weather"
	"github.com/i474232898/weather-sync/internal/weather/providers"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.FetchTimeout,
	}

	// Providers with resilience (backoff + circuit breaker), tried in
	// order; later ones are fallbacks.
	source := weather.NewChain(cfg.ForecastDays,
		providers.NewOpenWeatherProvider(httpClient, cfg.OpenWeatherAPIKey),
		providers.NewWeatherAPIProvider(httpClient, cfg.WeatherAPIKey),
		providers.NewOpenMeteoProvider(httpClient, cfg.GeocoderAPIKey),
	)

	// Cache store and the sync engine on top of it.
	store := cache.NewMemoryStore(time.Now)
	engine := syncer.New(store, source, syncer.Config{
		FetchTimeout: cfg.FetchTimeout,
		CacheExpiry:  cfg.CacheExpiry,
	})

	// UI state container; the initial load starts immediately.
	container := state.NewContainer(engine, cfg.DefaultLocation())
	go container.Run(ctx)
	container.Dispatch(state.LoadWeather{})

	// Background refresh keeps tracked locations warm.
	sched := scheduler.New(cfg.Locations, cfg.RefreshInterval, engine)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "weather-sync",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-sync",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, container, engine)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
