package report

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ivalenzuelan/GridIncidentAgent/internal/narrative"
	"github.com/ivalenzuelan/GridIncidentAgent/internal/outage"
	"github.com/ivalenzuelan/GridIncidentAgent/internal/simulator"
	"github.com/ivalenzuelan/GridIncidentAgent/internal/weather"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reportNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeOutages struct {
	active   []outage.Outage
	resolved []outage.Outage
	err      error
}

func (f *fakeOutages) ActiveOutages(_ context.Context, _ time.Time) ([]outage.Outage, error) {
	return f.active, f.err
}

func (f *fakeOutages) ResolvedOutages(_ context.Context, _, _ time.Time) ([]outage.Outage, error) {
	return f.resolved, f.err
}

type fakeWeather struct {
	observations map[string]*weather.Observation
	delays       map[string]time.Duration
	err          error
}

func (f *fakeWeather) Observe(_ context.Context, location string) (*weather.Observation, error) {
	if delay, ok := f.delays[location]; ok {
		time.Sleep(delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	if obs, ok := f.observations[location]; ok {
		return obs, nil
	}
	return &weather.Observation{Conditions: "Clear"}, nil
}

func floatPtr(v float64) *float64 { return &v }

func threeBusSolution() *simulator.Solution {
	return &simulator.Solution{
		Magnitudes: []float64{1.0, 1.0, 1.0},
		Angles:     []float64{0, 0, 0},
	}
}

func newTestAggregator(t *testing.T, cfg Config) *Aggregator {
	t.Helper()
	if cfg.Simulator == nil {
		cfg.Simulator = simulator.New(simulator.Config{
			Solution:         threeBusSolution(),
			FaultProbability: -1,
			Start:            reportNow,
			Rand:             rand.New(rand.NewSource(11)),
		})
	}
	if cfg.Outages == nil {
		cfg.Outages = &fakeOutages{}
	}
	if cfg.Weather == nil {
		cfg.Weather = &fakeWeather{}
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return reportNow }
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(13))
	}
	agg := NewAggregator(cfg)
	t.Cleanup(agg.Close)
	return agg
}

func measurementsFromMagnitudes(magnitudes []float64) []Measurement {
	measurements := make([]Measurement, len(magnitudes))
	for i, magnitude := range magnitudes {
		measurements[i] = Measurement{
			Timestamp:        reportNow,
			BusID:            i,
			VoltageMagnitude: magnitude,
		}
	}
	return measurements
}

func TestFetchGridDataTickCounts(t *testing.T) {
	agg := newTestAggregator(t, Config{})

	t.Run("five minute window yields two ticks", func(t *testing.T) {
		start := reportNow
		end := start.Add(5 * time.Minute)

		measurements := agg.FetchGridData(start, end)
		require.Len(t, measurements, 2*3)

		// Tick-major, bus-minor ordering.
		for i := 0; i < 3; i++ {
			assert.Equal(t, start, measurements[i].Timestamp)
			assert.Equal(t, i, measurements[i].BusID)
		}
		for i := 3; i < 6; i++ {
			assert.Equal(t, end, measurements[i].Timestamp)
			assert.Equal(t, i-3, measurements[i].BusID)
		}
	})

	t.Run("degenerate window yields one tick", func(t *testing.T) {
		measurements := agg.FetchGridData(reportNow, reportNow)
		assert.Len(t, measurements, 3)
	})

	t.Run("thirty minute window yields seven ticks", func(t *testing.T) {
		measurements := agg.FetchGridData(reportNow, reportNow.Add(30*time.Minute))
		assert.Len(t, measurements, 7*3)
	})
}

func TestAnalyzeGridStatusClassification(t *testing.T) {
	agg := newTestAggregator(t, Config{})

	cases := []struct {
		name       string
		magnitudes []float64
		want       Status
	}{
		{"critical on low minimum", []float64{0.93, 0.96, 1.04}, StatusCritical},
		{"degraded on low minimum", []float64{0.96, 0.99, 1.00}, StatusDegraded},
		{"normal inside band", []float64{0.98, 1.00, 1.02}, StatusNormal},
		{"critical on high maximum", []float64{1.00, 1.06, 1.01}, StatusCritical},
		{"degraded on high maximum", []float64{1.00, 1.04, 1.01}, StatusDegraded},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, _, _ := agg.AnalyzeGridStatus(measurementsFromMagnitudes(tc.magnitudes), nil)
			assert.Equal(t, tc.want, status)
		})
	}
}

func TestAnalyzeGridStatusDeduplicatesOutages(t *testing.T) {
	agg := newTestAggregator(t, Config{})

	active := []outage.Outage{
		{StationID: "STN1", Type: "line"},
		{StationID: "STN1", Type: "line"},
		{StationID: "STN2", Type: "transformer"},
	}

	status, alerts, recommendations := agg.AnalyzeGridStatus(
		measurementsFromMagnitudes([]float64{0.98, 1.00, 1.02}), active)

	assert.Equal(t, StatusNormal, status)
	require.Len(t, alerts, 1)
	assert.Equal(t, "2 active outages", alerts[0])
	require.Len(t, recommendations, 1)
	assert.Equal(t, "Prioritise restoration for affected substations", recommendations[0])
}

func TestAnalyzeGridStatusOrdersAlerts(t *testing.T) {
	agg := newTestAggregator(t, Config{})

	active := []outage.Outage{{StationID: "STN1", Type: "line"}}
	_, alerts, recommendations := agg.AnalyzeGridStatus(
		measurementsFromMagnitudes([]float64{0.93, 1.00}), active)

	// Outage entries first, then status entries; wording is literal,
	// including the uncorrected plural.
	require.Equal(t, []string{
		"1 active outages",
		"Critical voltage levels detected",
	}, alerts)
	require.Equal(t, []string{
		"Prioritise restoration for affected substations",
		"Immediate action required to stabilise voltage levels",
	}, recommendations)
}

func TestAnalyzeGridStatusDegradedAlerts(t *testing.T) {
	agg := newTestAggregator(t, Config{})

	_, alerts, recommendations := agg.AnalyzeGridStatus(
		measurementsFromMagnitudes([]float64{0.96, 1.00}), nil)

	assert.Equal(t, []string{"Voltage levels outside normal range"}, alerts)
	assert.Equal(t, []string{"Monitor voltage levels and prepare for potential corrective action"}, recommendations)
}

func TestFetchWeatherSynthesizesMissingTemperature(t *testing.T) {
	agg := newTestAggregator(t, Config{
		Weather: &fakeWeather{
			observations: map[string]*weather.Observation{
				"Madrid":    {Humidity: 60, WindSpeed: 10, Conditions: "Clear"},
				"Barcelona": {Humidity: 70, WindSpeed: 20, Conditions: "Clouds"},
			},
		},
	})

	samples, err := agg.FetchWeather(context.Background(), []string{"Madrid", "Barcelona"})
	require.NoError(t, err)
	require.Len(t, samples, 2)

	// Bases are 21.0 for Madrid and 23.0 elsewhere, with sigma=1 noise;
	// 6 sigma keeps the assertion safe for any seed.
	assert.Equal(t, "Madrid", samples[0].Location)
	assert.InDelta(t, 21.0, samples[0].Temperature, 6.0)
	assert.Equal(t, "Barcelona", samples[1].Location)
	assert.InDelta(t, 23.0, samples[1].Temperature, 6.0)

	assert.Equal(t, 60.0, samples[0].Humidity)
	assert.Equal(t, "Clouds", samples[1].Conditions)
}

func TestFetchWeatherPreservesInputOrder(t *testing.T) {
	agg := newTestAggregator(t, Config{
		Weather: &fakeWeather{
			observations: map[string]*weather.Observation{
				"Madrid":    {Temperature: floatPtr(21.5), Conditions: "Clear"},
				"Barcelona": {Temperature: floatPtr(24.5), Conditions: "Rain"},
			},
			delays: map[string]time.Duration{
				// Madrid completes last; output order must not change.
				"Madrid": 30 * time.Millisecond,
			},
		},
	})

	samples, err := agg.FetchWeather(context.Background(), []string{"Madrid", "Barcelona"})
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, "Madrid", samples[0].Location)
	assert.Equal(t, 21.5, samples[0].Temperature)
	assert.Equal(t, "Barcelona", samples[1].Location)
	assert.Equal(t, 24.5, samples[1].Temperature)
}

func TestGenerateReportEndToEnd(t *testing.T) {
	agg := newTestAggregator(t, Config{
		Weather: &fakeWeather{
			observations: map[string]*weather.Observation{
				"Madrid":    {Temperature: floatPtr(21.0), Conditions: "Clear"},
				"Barcelona": {Temperature: floatPtr(23.0), Conditions: "Clouds"},
			},
		},
		Locations: []string{"Madrid", "Barcelona"},
	})

	rep, err := agg.GenerateReport(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, rep)

	assert.Equal(t, reportNow, rep.WindowEnd)
	assert.Equal(t, reportNow.Add(-30*time.Minute), rep.WindowStart)
	assert.Len(t, rep.Measurements, 7*3)
	assert.Len(t, rep.WeatherData, 2)
	assert.Empty(t, rep.ActiveOutages)
	assert.Empty(t, rep.Narrative)

	// Status must be consistent with the recomputed stats.
	stats := rep.VoltageStats
	assert.LessOrEqual(t, stats.Min, stats.Avg)
	assert.GreaterOrEqual(t, stats.Max, stats.Avg)
	switch {
	case stats.Min < 0.95 || stats.Max > 1.05:
		assert.Equal(t, StatusCritical, rep.GridStatus)
	case stats.Min < 0.97 || stats.Max > 1.03:
		assert.Equal(t, StatusDegraded, rep.GridStatus)
	default:
		assert.Equal(t, StatusNormal, rep.GridStatus)
	}

	// Alert rules hold exactly: zero outages means no outage alert.
	for _, alert := range rep.Alerts {
		assert.NotContains(t, alert, "active outages")
	}
}

func TestGenerateReportAbortsOnOutageFailure(t *testing.T) {
	agg := newTestAggregator(t, Config{
		Outages: &fakeOutages{err: errors.New("connection refused")},
	})

	rep, err := agg.GenerateReport(context.Background(), 30*time.Minute)
	require.Error(t, err)
	assert.Nil(t, rep)
	assert.Contains(t, err.Error(), "fetch outages")
}

func TestGenerateReportAbortsOnWeatherFailure(t *testing.T) {
	agg := newTestAggregator(t, Config{
		Weather: &fakeWeather{err: errors.New("gateway timeout")},
	})

	rep, err := agg.GenerateReport(context.Background(), 30*time.Minute)
	require.Error(t, err)
	assert.Nil(t, rep)
	assert.Contains(t, err.Error(), "fetch weather")
}

func TestGenerateReportSurvivesNarrativeFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	agg := newTestAggregator(t, Config{
		Narrative: narrative.Config{
			AccountID: "acct",
			APIToken:  "token",
			BaseURL:   server.URL,
		},
	})

	rep, err := agg.GenerateReport(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, rep)
	assert.Empty(t, rep.Narrative)
}

func TestGenerateReportAttachesNarrative(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":{"response":"  - all clear\n"}}`))
	}))
	defer server.Close()

	agg := newTestAggregator(t, Config{
		Narrative: narrative.Config{
			AccountID: "acct",
			APIToken:  "token",
			BaseURL:   server.URL,
		},
	})

	rep, err := agg.GenerateReport(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "- all clear", rep.Narrative)
}

func TestVoltageStatsComputation(t *testing.T) {
	stats := voltageStats(measurementsFromMagnitudes([]float64{0.98, 1.00, 1.02}))

	assert.InDelta(t, 0.98, stats.Min, 1e-12)
	assert.InDelta(t, 1.02, stats.Max, 1e-12)
	assert.InDelta(t, 1.00, stats.Avg, 1e-12)
	// Population standard deviation of {0.98, 1.00, 1.02}.
	assert.InDelta(t, 0.016329931618554522, stats.Std, 1e-9)
}
