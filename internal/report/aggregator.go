package report

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/ivalenzuelan/GridIncidentAgent/internal/narrative"
	"github.com/ivalenzuelan/GridIncidentAgent/internal/outage"
	"github.com/ivalenzuelan/GridIncidentAgent/internal/simulator"
	"github.com/ivalenzuelan/GridIncidentAgent/internal/weather"

	"golang.org/x/sync/errgroup"
)

// tickInterval spaces the measurement ticks of the report series.
const tickInterval = 5 * time.Minute

type Config struct {
	Simulator *simulator.Simulator
	Outages   outage.Provider
	Weather   weather.Provider

	Thresholds Thresholds
	// Locations to include in the weather section, in output order.
	Locations []string

	Narrative narrative.Config
	// NarrativeTimeout bounds the advisory call independently of the
	// data-fetch deadlines.
	NarrativeTimeout time.Duration

	// Now and Rand are injectable for tests.
	Now  func() time.Time
	Rand *rand.Rand
}

// Aggregator orchestrates the simulator and the outage/weather providers
// into a classified grid report. The HTTP client used for narrative calls
// is owned by the aggregator: acquired at construction, released by Close.
type Aggregator struct {
	sim     *simulator.Simulator
	outages outage.Provider
	weather weather.Provider
	advisor *narrative.Advisor

	thresholds       Thresholds
	locations        []string
	narrativeTimeout time.Duration

	httpClient *http.Client
	now        func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewAggregator(cfg Config) *Aggregator {
	thresholds := cfg.Thresholds
	if thresholds == (Thresholds{}) {
		thresholds = DefaultThresholds()
	}
	locations := cfg.Locations
	if len(locations) == 0 {
		locations = []string{"Madrid", "Barcelona"}
	}
	narrativeTimeout := cfg.NarrativeTimeout
	if narrativeTimeout <= 0 {
		narrativeTimeout = 20 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	httpClient := &http.Client{Timeout: narrativeTimeout}

	return &Aggregator{
		sim:              cfg.Simulator,
		outages:          cfg.Outages,
		weather:          cfg.Weather,
		advisor:          narrative.NewAdvisor(cfg.Narrative, httpClient),
		thresholds:       thresholds,
		locations:        locations,
		narrativeTimeout: narrativeTimeout,
		httpClient:       httpClient,
		now:              now,
		rng:              rng,
	}
}

// Close releases the network resources held for narrative calls.
func (a *Aggregator) Close() {
	a.httpClient.CloseIdleConnections()
}

// FetchGridData samples the measurement series for the window: one tick
// every 5 minutes, inclusive of both start and end (at least one tick even
// when start == end), one measurement per bus per tick. The result is
// tick-major, bus-minor.
func (a *Aggregator) FetchGridData(start, end time.Time) []Measurement {
	var measurements []Measurement
	for tick := start; !tick.After(end); tick = tick.Add(tickInterval) {
		for _, reading := range a.sim.VoltageMeasurements() {
			measurements = append(measurements, Measurement{
				Timestamp:        tick,
				BusID:            reading.BusID,
				VoltageMagnitude: reading.Magnitude,
				VoltageAngle:     reading.Angle,
			})
		}
	}
	return measurements
}

// FetchOutages returns the window's active and resolved outages, untouched;
// deduplication happens only during classification.
func (a *Aggregator) FetchOutages(ctx context.Context, start, end time.Time) (active, resolved []outage.Outage, err error) {
	active, err = a.outages.ActiveOutages(ctx, end)
	if err != nil {
		return nil, nil, fmt.Errorf("active outages: %w", err)
	}
	resolved, err = a.outages.ResolvedOutages(ctx, start, end)
	if err != nil {
		return nil, nil, fmt.Errorf("resolved outages: %w", err)
	}
	return active, resolved, nil
}

// FetchWeather observes every location concurrently but emits samples in
// the input order regardless of completion order. A missing temperature is
// synthesized around a location-specific base (Madrid 21.0, others 23.0).
func (a *Aggregator) FetchWeather(ctx context.Context, locations []string) ([]WeatherSample, error) {
	observations := make([]*weather.Observation, len(locations))

	g, gctx := errgroup.WithContext(ctx)
	for i, location := range locations {
		i, location := i, location
		g.Go(func() error {
			obs, err := a.weather.Observe(gctx, location)
			if err != nil {
				return fmt.Errorf("observe %s: %w", location, err)
			}
			observations[i] = obs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	samples := make([]WeatherSample, 0, len(locations))
	for i, location := range locations {
		obs := observations[i]
		var temperature float64
		if obs.Temperature != nil {
			temperature = *obs.Temperature
		} else {
			base := 23.0
			if location == "Madrid" {
				base = 21.0
			}
			temperature = base + a.gauss()
		}
		samples = append(samples, WeatherSample{
			Location:      location,
			Timestamp:     a.now(),
			Temperature:   temperature,
			Humidity:      obs.Humidity,
			WindSpeed:     obs.WindSpeed,
			Precipitation: obs.Precipitation,
			Conditions:    obs.Conditions,
		})
	}
	return samples, nil
}

func (a *Aggregator) gauss() float64 {
	a.rngMu.Lock()
	defer a.rngMu.Unlock()
	return a.rng.NormFloat64()
}

// AnalyzeGridStatus classifies the measurement series and derives alerts
// and recommendations. Outage-related entries come first, then the
// status-related ones.
func (a *Aggregator) AnalyzeGridStatus(measurements []Measurement, active []outage.Outage) (Status, []string, []string) {
	stats := voltageStats(measurements)

	status := StatusNormal
	switch {
	case len(measurements) == 0:
	case stats.Min < a.thresholds.CriticalLow || stats.Max > a.thresholds.CriticalHigh:
		status = StatusCritical
	case stats.Min < a.thresholds.DegradedLow || stats.Max > a.thresholds.DegradedHigh:
		status = StatusDegraded
	}

	var alerts, recommendations []string

	if numActive := distinctActive(active); numActive > 0 {
		alerts = append(alerts, fmt.Sprintf("%d active outages", numActive))
		recommendations = append(recommendations, "Prioritise restoration for affected substations")
	}

	switch status {
	case StatusCritical:
		alerts = append(alerts, "Critical voltage levels detected")
		recommendations = append(recommendations, "Immediate action required to stabilise voltage levels")
	case StatusDegraded:
		alerts = append(alerts, "Voltage levels outside normal range")
		recommendations = append(recommendations, "Monitor voltage levels and prepare for potential corrective action")
	}

	return status, alerts, recommendations
}

// GenerateReport builds a report for the window ending now. The three data
// fetches fan out concurrently and join before statistics; the first fetch
// failure cancels the others and aborts the call with no partial report.
// The narrative step runs last under its own timeout and can only degrade
// to an absent narrative, never fail the report.
func (a *Aggregator) GenerateReport(ctx context.Context, window time.Duration) (*Report, error) {
	end := a.now()
	start := end.Add(-window)

	var (
		measurements     []Measurement
		active, resolved []outage.Outage
		weatherData      []WeatherSample
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		measurements = a.FetchGridData(start, end)
		return nil
	})
	g.Go(func() error {
		var err error
		active, resolved, err = a.FetchOutages(gctx, start, end)
		if err != nil {
			return fmt.Errorf("fetch outages: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		weatherData, err = a.FetchWeather(gctx, a.locations)
		if err != nil {
			return fmt.Errorf("fetch weather: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	status, alerts, recommendations := a.AnalyzeGridStatus(measurements, active)

	rep := &Report{
		ReportTime:      a.now(),
		WindowStart:     start,
		WindowEnd:       end,
		Measurements:    measurements,
		VoltageStats:    voltageStats(measurements),
		ActiveOutages:   active,
		ResolvedOutages: resolved,
		WeatherData:     weatherData,
		GridStatus:      status,
		Alerts:          alerts,
		Recommendations: recommendations,
	}

	if a.advisor.Enabled() {
		nctx, cancel := context.WithTimeout(ctx, a.narrativeTimeout)
		defer cancel()
		if summary, ok := a.advisor.Summarize(nctx, a.narrativePayload(rep)); ok {
			rep.Narrative = summary
		}
	}

	return rep, nil
}

func (a *Aggregator) narrativePayload(rep *Report) narrative.Payload {
	weatherLines := make([]string, 0, len(rep.WeatherData))
	for _, sample := range rep.WeatherData {
		weatherLines = append(weatherLines, fmt.Sprintf("%s: %s", sample.Location, sample.Conditions))
	}

	return narrative.Payload{
		Status: string(rep.GridStatus),
		Voltage: narrative.VoltageFigures{
			Min: fmt.Sprintf("%.3f", rep.VoltageStats.Min),
			Max: fmt.Sprintf("%.3f", rep.VoltageStats.Max),
			Avg: fmt.Sprintf("%.3f", rep.VoltageStats.Avg),
		},
		Outages: narrative.OutageCounts{
			Active:   distinctActive(rep.ActiveOutages),
			Resolved: len(rep.ResolvedOutages),
		},
		Weather: weatherLines,
		Alerts:  rep.Alerts,
		Actions: rep.Recommendations,
	}
}
