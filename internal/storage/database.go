package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/ivalenzuelan/GridIncidentAgent/internal/report"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(path string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&ReportRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Database{db: db}, nil
}

func (d *Database) SaveReport(rep *report.Report) error {
	record := &ReportRecord{
		ReportTime:       rep.ReportTime,
		WindowStart:      rep.WindowStart,
		WindowEnd:        rep.WindowEnd,
		GridStatus:       string(rep.GridStatus),
		VoltageMin:       rep.VoltageStats.Min,
		VoltageMax:       rep.VoltageStats.Max,
		VoltageAvg:       rep.VoltageStats.Avg,
		VoltageStd:       rep.VoltageStats.Std,
		MeasurementCount: len(rep.Measurements),
		ActiveOutages:    len(rep.ActiveOutages),
		ResolvedOutages:  len(rep.ResolvedOutages),
		Alerts:           strings.Join(rep.Alerts, "\n"),
		Recommendations:  strings.Join(rep.Recommendations, "\n"),
		Narrative:        rep.Narrative,
	}

	return d.db.Create(record).Error
}

func (d *Database) LatestReport() (*ReportRecord, error) {
	var record ReportRecord
	result := d.db.Order("report_time desc").First(&record)
	if result.Error != nil {
		return nil, result.Error
	}
	return &record, nil
}

func (d *Database) ReportsByRange(from, to time.Time) ([]ReportRecord, error) {
	var records []ReportRecord
	result := d.db.Where("report_time BETWEEN ? AND ?", from, to).
		Order("report_time desc").
		Find(&records)
	if result.Error != nil {
		return nil, result.Error
	}
	return records, nil
}

func (d *Database) ReportsWithLimit(limit int) ([]ReportRecord, error) {
	var records []ReportRecord
	result := d.db.Order("report_time desc").Limit(limit).Find(&records)
	if result.Error != nil {
		return nil, result.Error
	}
	return records, nil
}

func (d *Database) CleanOldReports(olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	return d.db.Where("report_time < ?", cutoff).Delete(&ReportRecord{}).Error
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
