package weather

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionClouds  Condition = "clouds"
	ConditionRain    Condition = "rain"
	ConditionDrizzle Condition = "drizzle"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
	ConditionFog     Condition = "fog"
)

// Location represents a logical place for which we track weather.
// City/Country must be provided; coordinates are optional and filled
// in by providers that need them.
type Location struct {
	City    string   `json:"city"`
	Country string   `json:"country"`
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
}

// Key returns a canonical string key for indexing this location in the
// cache and the in-flight fetch registry.
func (l Location) Key() string {
	return l.City + ":" + l.Country
}

// ForecastDay is one calendar day's normalized weather.
type ForecastDay struct {
	Date        time.Time `json:"date"` // midnight UTC
	Condition   Condition `json:"condition"`
	TempHighC   float64   `json:"tempHighC" validate:"gtefield=TempLowC"`
	TempLowC    float64   `json:"tempLowC"`
	HumidityPct float64   `json:"humidityPercent" validate:"gte=0,lte=100"`
	Description string    `json:"description"`

	// Extended fields; zero values mean "not reported".
	PressureHpa     float64   `json:"pressureHpa,omitempty"`
	WindSpeedMS     float64   `json:"windSpeedMs,omitempty"`
	WindDirDeg      float64   `json:"windDirDeg,omitempty"`
	VisibilityKM    float64   `json:"visibilityKm,omitempty"`
	UVIndex         float64   `json:"uvIndex,omitempty"`
	PrecipChancePct float64   `json:"precipChancePct,omitempty" validate:"gte=0,lte=100"`
	PrecipMM        float64   `json:"precipMm,omitempty"`
	CloudCoverPct   float64   `json:"cloudCoverPct,omitempty" validate:"gte=0,lte=100"`
	FeelsLikeC      float64   `json:"feelsLikeC,omitempty"`
	DewPointC       float64   `json:"dewPointC,omitempty"`
	Sunrise         time.Time `json:"sunrise,omitzero"`
	Sunset          time.Time `json:"sunset,omitzero"`
	MoonPhase       string    `json:"moonPhase,omitempty"`
	AirQualityIndex float64   `json:"airQualityIndex,omitempty"`
}

var validate = validator.New()

// Validate checks the day-level invariants: high >= low and percentage
// fields within [0,100].
func (d ForecastDay) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("invalid forecast day %s: %w", d.Date.Format("2006-01-02"), err)
	}
	return nil
}

// Equal compares the weather content of two days. Time fields are
// compared by instant, not by wall-clock representation.
func (d ForecastDay) Equal(o ForecastDay) bool {
	return d.Date.Equal(o.Date) &&
		d.Condition == o.Condition &&
		d.TempHighC == o.TempHighC &&
		d.TempLowC == o.TempLowC &&
		d.HumidityPct == o.HumidityPct &&
		d.Description == o.Description &&
		d.PressureHpa == o.PressureHpa &&
		d.WindSpeedMS == o.WindSpeedMS &&
		d.WindDirDeg == o.WindDirDeg &&
		d.VisibilityKM == o.VisibilityKM &&
		d.UVIndex == o.UVIndex &&
		d.PrecipChancePct == o.PrecipChancePct &&
		d.PrecipMM == o.PrecipMM &&
		d.CloudCoverPct == o.CloudCoverPct &&
		d.FeelsLikeC == o.FeelsLikeC &&
		d.DewPointC == o.DewPointC &&
		d.Sunrise.Equal(o.Sunrise) &&
		d.Sunset.Equal(o.Sunset) &&
		d.MoonPhase == o.MoonPhase &&
		d.AirQualityIndex == o.AirQualityIndex
}

// ForecastSet is an immutable ordered multi-day forecast for one location.
// A new fetch produces a new ForecastSet; sets are never mutated in place.
type ForecastSet struct {
	Location   Location      `json:"location"`
	Days       []ForecastDay `json:"days"`
	CapturedAt time.Time     `json:"capturedAt"` // always UTC
}

// Equal reports whether two sets carry the same forecast data.
// CapturedAt and other fetch metadata are ignored so an unchanged
// upstream forecast does not look new on every fetch.
func (s ForecastSet) Equal(o ForecastSet) bool {
	if len(s.Days) != len(o.Days) {
		return false
	}
	for i := range s.Days {
		if !s.Days[i].Equal(o.Days[i]) {
			return false
		}
	}
	return true
}

// Validate checks every day in the set.
func (s ForecastSet) Validate() error {
	for _, d := range s.Days {
		if err := d.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clock abstracts time for staleness computation; injectable in tests.
type Clock func() time.Time
