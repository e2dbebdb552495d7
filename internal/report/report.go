package report

import (
	"math"
	"time"

	"github.com/ivalenzuelan/GridIncidentAgent/internal/outage"
)

// Status classifies overall grid health for a report window.
type Status string

const (
	StatusNormal   Status = "normal"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
)

// Thresholds are the per-unit voltage limits used for classification.
// Critical takes precedence over degraded.
type Thresholds struct {
	CriticalLow  float64
	CriticalHigh float64
	DegradedLow  float64
	DegradedHigh float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		CriticalLow:  0.95,
		CriticalHigh: 1.05,
		DegradedLow:  0.97,
		DegradedHigh: 1.03,
	}
}

// Measurement is one per-bus voltage reading at a tick of the report
// series. Immutable once created.
type Measurement struct {
	Timestamp        time.Time `json:"timestamp"`
	BusID            int       `json:"bus_id"`
	VoltageMagnitude float64   `json:"voltage_magnitude"`
	VoltageAngle     float64   `json:"voltage_angle"`
}

type WeatherSample struct {
	Location      string    `json:"location"`
	Timestamp     time.Time `json:"timestamp"`
	Temperature   float64   `json:"temperature"`
	Humidity      float64   `json:"humidity"`
	WindSpeed     float64   `json:"wind_speed"`
	Precipitation float64   `json:"precipitation"`
	Conditions    string    `json:"conditions"`
}

type VoltageStats struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	Std float64 `json:"std"`
}

// Report is the aggregate produced once per GenerateReport call. It is
// immutable after assembly except for Narrative, which is populated last
// and may remain empty.
type Report struct {
	ReportTime      time.Time       `json:"report_time"`
	WindowStart     time.Time       `json:"window_start"`
	WindowEnd       time.Time       `json:"window_end"`
	Measurements    []Measurement   `json:"measurements"`
	VoltageStats    VoltageStats    `json:"voltage_stats"`
	ActiveOutages   []outage.Outage `json:"active_outages"`
	ResolvedOutages []outage.Outage `json:"resolved_outages"`
	WeatherData     []WeatherSample `json:"weather_data"`
	GridStatus      Status          `json:"grid_status"`
	Alerts          []string        `json:"alerts"`
	Recommendations []string        `json:"recommendations"`
	Narrative       string          `json:"narrative,omitempty"`
}

// voltageStats computes report-period statistics over the full measurement
// series. Std is the population standard deviation.
func voltageStats(measurements []Measurement) VoltageStats {
	if len(measurements) == 0 {
		return VoltageStats{}
	}

	stats := VoltageStats{
		Min: measurements[0].VoltageMagnitude,
		Max: measurements[0].VoltageMagnitude,
	}
	sum := 0.0
	for _, m := range measurements {
		v := m.VoltageMagnitude
		if v < stats.Min {
			stats.Min = v
		}
		if v > stats.Max {
			stats.Max = v
		}
		sum += v
	}
	stats.Avg = sum / float64(len(measurements))

	variance := 0.0
	for _, m := range measurements {
		d := m.VoltageMagnitude - stats.Avg
		variance += d * d
	}
	stats.Std = math.Sqrt(variance / float64(len(measurements)))

	return stats
}

// distinctActive counts active outages deduplicated on (station_id, type).
func distinctActive(outages []outage.Outage) int {
	seen := make(map[outage.Key]struct{}, len(outages))
	for _, o := range outages {
		seen[o.Key()] = struct{}{}
	}
	return len(seen)
}
