package outage

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store keeps outage records in SQLite and implements Provider.
type Store struct {
	db *gorm.DB
}

func NewStore(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open outage database: %w", err)
	}

	if err := db.AutoMigrate(&Outage{}); err != nil {
		return nil, fmt.Errorf("failed to migrate outage database: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Add(o *Outage) error {
	return s.db.Create(o).Error
}

// LoadCSV ingests outage rows from a CSV file. Required columns are
// timestamp, station_id, type and duration_min; crew_notes, resolved and
// resolved_time are optional. Returns the number of rows loaded.
func (s *Store) LoadCSV(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open CSV: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"timestamp", "station_id", "type", "duration_min"} {
		if _, ok := columns[required]; !ok {
			return 0, fmt.Errorf("CSV is missing required column %q", required)
		}
	}

	field := func(record []string, name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	loaded := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return loaded, fmt.Errorf("failed to read CSV record: %w", err)
		}

		timestamp, err := parseTime(field(record, "timestamp"))
		if err != nil {
			return loaded, fmt.Errorf("invalid timestamp %q: %w", field(record, "timestamp"), err)
		}
		durationMin, err := strconv.Atoi(field(record, "duration_min"))
		if err != nil {
			return loaded, fmt.Errorf("invalid duration_min %q: %w", field(record, "duration_min"), err)
		}

		entry := Outage{
			Timestamp:   timestamp,
			StationID:   field(record, "station_id"),
			Type:        field(record, "type"),
			DurationMin: durationMin,
			CrewNotes:   field(record, "crew_notes"),
			Resolved:    parseBool(field(record, "resolved")),
		}
		if raw := field(record, "resolved_time"); raw != "" {
			resolvedAt, err := parseTime(raw)
			if err != nil {
				return loaded, fmt.Errorf("invalid resolved_time %q: %w", raw, err)
			}
			entry.ResolvedTime = &resolvedAt
		}

		if err := s.db.Create(&entry).Error; err != nil {
			return loaded, fmt.Errorf("failed to insert outage: %w", err)
		}
		loaded++
	}

	return loaded, nil
}

func (s *Store) ActiveOutages(ctx context.Context, asOf time.Time) ([]Outage, error) {
	var outages []Outage
	result := s.db.WithContext(ctx).
		Where("timestamp <= ? AND resolved = ?", asOf, false).
		Order("timestamp desc").
		Find(&outages)
	if result.Error != nil {
		return nil, result.Error
	}
	return outages, nil
}

func (s *Store) ResolvedOutages(ctx context.Context, start, end time.Time) ([]Outage, error) {
	var outages []Outage
	result := s.db.WithContext(ctx).
		Where("resolved = ? AND resolved_time >= ? AND resolved_time <= ?", true, start, end).
		Order("resolved_time desc").
		Find(&outages)
	if result.Error != nil {
		return nil, result.Error
	}
	return outages, nil
}

func (s *Store) OutagesByStation(ctx context.Context, stationID string) ([]Outage, error) {
	var outages []Outage
	result := s.db.WithContext(ctx).
		Where("station_id = ?", stationID).
		Order("timestamp desc").
		Find(&outages)
	if result.Error != nil {
		return nil, result.Error
	}
	return outages, nil
}

func (s *Store) OutagesByRange(ctx context.Context, start, end time.Time) ([]Outage, error) {
	var outages []Outage
	result := s.db.WithContext(ctx).
		Where("timestamp BETWEEN ? AND ?", start, end).
		Order("timestamp desc").
		Find(&outages)
	if result.Error != nil {
		return nil, result.Error
	}
	return outages, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func parseTime(value string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format")
}

func parseBool(value string) bool {
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}
