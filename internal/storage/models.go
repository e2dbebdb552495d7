package storage

import (
	"time"

	"gorm.io/gorm"
)

// ReportRecord is a flattened snapshot of a generated grid report.
type ReportRecord struct {
	gorm.Model
	ReportTime  time.Time `gorm:"index" json:"report_time"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`

	GridStatus string `json:"grid_status"`

	// Voltage statistics (per-unit)
	VoltageMin float64 `json:"voltage_min"`
	VoltageMax float64 `json:"voltage_max"`
	VoltageAvg float64 `json:"voltage_avg"`
	VoltageStd float64 `json:"voltage_std"`

	MeasurementCount int `json:"measurement_count"`
	ActiveOutages    int `json:"active_outages"`
	ResolvedOutages  int `json:"resolved_outages"`

	// Alerts and recommendations, newline-joined
	Alerts          string `json:"alerts"`
	Recommendations string `json:"recommendations"`

	Narrative string `json:"narrative,omitempty"`
}
