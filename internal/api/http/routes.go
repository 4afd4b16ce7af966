package httpapi

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-sync/internal/state"
	"github.com/i474232898/weather-sync/internal/syncer"
	"github.com/i474232898/weather-sync/internal/weather"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app. The API is
// a thin UI stand-in: reads go through the container's observable state,
// writes are dispatched as UiEvents.
func RegisterRoutes(app *fiber.App, container *state.Container, engine *syncer.Engine) {
	v1 := app.Group("/api/v1")

	v1.Get("/weather/state", func(c *fiber.Ctx) error {
		return c.JSON(container.State())
	})

	v1.Get("/weather/forecast", func(c *fiber.Ctx) error {
		s := container.State()
		if s.Forecast == nil {
			return fiber.NewError(fiber.StatusNotFound, "no forecast available yet")
		}
		return c.JSON(fiber.Map{
			"forecast": s.Forecast,
			"stale":    !engine.CacheValid(s.Location),
		})
	})

	v1.Post("/weather/load", dispatchHandler(container, state.LoadWeather{}))
	v1.Post("/weather/refresh", dispatchHandler(container, state.RefreshWeather{}))
	v1.Post("/weather/retry", dispatchHandler(container, state.RetryLoad{}))
	v1.Delete("/weather/error", dispatchHandler(container, state.ClearError{}))

	v1.Put("/weather/location", func(c *fiber.Ctx) error {
		var req locationRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		container.Dispatch(state.SelectLocation{Location: req.toLocation()})
		return c.SendStatus(fiber.StatusAccepted)
	})
}

func dispatchHandler(container *state.Container, ev state.UiEvent) fiber.Handler {
	return func(c *fiber.Ctx) error {
		container.Dispatch(ev)
		return c.SendStatus(fiber.StatusAccepted)
	}
}

// locationRequest is the body of PUT /weather/location.
type locationRequest struct {
	City    string `json:"city" validate:"required"`
	Country string `json:"country" validate:"required"`
}

func (l locationRequest) toLocation() weather.Location {
	return weather.Location{
		City:    l.City,
		Country: l.Country,
	}
}
