package weather

import (
	"context"
	"errors"
	"log"
)

// Source is the single contract the sync engine consumes: fetch a fresh
// forecast set for a location. Calls are independent and never touch the
// cache; the engine persists results itself.
type Source interface {
	Fetch(ctx context.Context, loc Location) (ForecastSet, error)
}

// Provider abstracts one upstream forecast API (OpenWeatherMap,
// WeatherAPI, Open-Meteo).
type Provider interface {
	Name() string
	FetchForecast(ctx context.Context, loc Location, days int) (ForecastSet, error)
}

// Chain implements Source over an ordered provider list: the first
// provider to return a usable forecast wins, later ones are fallbacks.
type Chain struct {
	providers []Provider
	days      int
}

// NewChain builds a fallback chain requesting the given number of
// forecast days from each provider.
func NewChain(days int, providers ...Provider) *Chain {
	if days <= 0 {
		days = 5
	}
	return &Chain{providers: providers, days: days}
}

// Fetch tries providers in order. When all fail, the most significant
// classified error is returned so the caller sees an actionable kind
// (an expired key over a transient network blip).
func (c *Chain) Fetch(ctx context.Context, loc Location) (ForecastSet, error) {
	if len(c.providers) == 0 {
		return ForecastSet{}, NewSyncError(ErrUnknown, errors.New("no forecast providers configured"))
	}

	var worst error
	for _, p := range c.providers {
		if ctx.Err() != nil {
			return ForecastSet{}, NewSyncError(ErrNetworkUnavailable, ctx.Err())
		}

		set, err := p.FetchForecast(ctx, loc, c.days)
		if err != nil {
			log.Printf("provider %s forecast failed for %s: %v", p.Name(), loc.Key(), err)
			worst = moreSignificant(worst, err)
			continue
		}
		if len(set.Days) == 0 {
			log.Printf("provider %s returned empty forecast for %s", p.Name(), loc.Key())
			worst = moreSignificant(worst, NewSyncError(ErrParse, errors.New("empty forecast")))
			continue
		}
		if err := set.Validate(); err != nil {
			log.Printf("provider %s returned invalid forecast for %s: %v", p.Name(), loc.Key(), err)
			worst = moreSignificant(worst, NewSyncError(ErrParse, err))
			continue
		}
		return set, nil
	}

	return ForecastSet{}, worst
}

var kindSignificance = map[ErrorKind]int{
	ErrUnknown:            0,
	ErrNetworkUnavailable: 1,
	ErrParse:              2,
	ErrRateLimited:        3,
	ErrUnauthorized:       4,
}

func moreSignificant(a, b error) error {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if kindSignificance[KindOf(b)] > kindSignificance[KindOf(a)] {
		return b
	}
	return a
}
