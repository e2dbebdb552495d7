package outage

import (
	"context"
	"time"
)

// Outage is a substation incident record. The surrogate ID only exists for
// storage; the identity used for deduplication is the (StationID, Type)
// pair.
type Outage struct {
	ID           uint       `gorm:"primarykey" json:"-"`
	Timestamp    time.Time  `gorm:"index" json:"timestamp"`
	StationID    string     `gorm:"index" json:"station_id"`
	Type         string     `json:"type"`
	DurationMin  int        `json:"duration_min"`
	CrewNotes    string     `json:"crew_notes"`
	Resolved     bool       `json:"resolved"`
	ResolvedTime *time.Time `json:"resolved_time,omitempty"`
}

// Key identifies an outage for deduplication purposes.
type Key struct {
	StationID string
	Type      string
}

func (o Outage) Key() Key {
	return Key{StationID: o.StationID, Type: o.Type}
}

// Provider answers time-windowed outage queries. The report aggregator
// depends only on this contract so tests can substitute doubles.
type Provider interface {
	// ActiveOutages returns outages that started at or before asOf and are
	// not yet resolved; there is no lower bound on the start time.
	ActiveOutages(ctx context.Context, asOf time.Time) ([]Outage, error)
	// ResolvedOutages returns outages whose resolution time falls within
	// [start, end] inclusive.
	ResolvedOutages(ctx context.Context, start, end time.Time) ([]Outage, error)
}
