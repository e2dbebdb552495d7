package weather

import (
	"context"
)

// Provider answers per-location observation queries. Temperature is
// optional in the upstream feed, so it is a pointer; the report layer
// synthesizes a value when it is absent.
type Provider interface {
	Observe(ctx context.Context, location string) (*Observation, error)
}

type Observation struct {
	Temperature   *float64 `json:"temperature,omitempty"`
	Humidity      float64  `json:"humidity"`
	WindSpeed     float64  `json:"wind_speed"`
	Precipitation float64  `json:"precipitation"`
	Conditions    string   `json:"conditions"`
}

// Static serves a fixed observation for every location. It stands in for
// the AEMET client when no API key is configured.
type Static struct{}

func (Static) Observe(_ context.Context, _ string) (*Observation, error) {
	temperature := 22.5
	return &Observation{
		Temperature:   &temperature,
		Humidity:      65.0,
		WindSpeed:     15.0,
		Precipitation: 0.0,
		Conditions:    "Clear",
	}, nil
}
