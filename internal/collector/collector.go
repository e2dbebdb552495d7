package collector

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ivalenzuelan/GridIncidentAgent/internal/mqtt"
	"github.com/ivalenzuelan/GridIncidentAgent/internal/report"
	"github.com/ivalenzuelan/GridIncidentAgent/internal/storage"
)

// Collector periodically generates a grid report, persists it and pushes
// it to MQTT. A single collector drives a single aggregator; concurrent
// report generations against one simulator are not supported.
type Collector struct {
	aggregator *report.Aggregator
	db         *storage.Database
	publisher  *mqtt.Publisher
	interval   time.Duration
	window     time.Duration
	enabled    bool

	mu        sync.RWMutex
	latest    *report.Report
	isRunning bool
}

type CollectorConfig struct {
	Aggregator *report.Aggregator
	Database   *storage.Database
	Publisher  *mqtt.Publisher
	Interval   time.Duration
	Window     time.Duration
	Enabled    bool
}

func NewCollector(cfg CollectorConfig) *Collector {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	window := cfg.Window
	if window <= 0 {
		window = 30 * time.Minute
	}
	return &Collector{
		aggregator: cfg.Aggregator,
		db:         cfg.Database,
		publisher:  cfg.Publisher,
		interval:   interval,
		window:     window,
		enabled:    cfg.Enabled,
	}
}

func (c *Collector) Start(ctx context.Context) error {
	if !c.enabled {
		log.Println("Collector is disabled")
		return nil
	}

	c.mu.Lock()
	c.isRunning = true
	c.mu.Unlock()

	log.Printf("Starting collector with interval %s, window %s", c.interval, c.window)

	// Initial report
	c.collect(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Collector stopped")
			c.mu.Lock()
			c.isRunning = false
			c.mu.Unlock()
			return nil
		case <-ticker.C:
			c.collect(ctx)
		}
	}
}

func (c *Collector) collect(ctx context.Context) {
	rep, err := c.aggregator.GenerateReport(ctx, c.window)
	if err != nil {
		log.Printf("Error generating report: %v", err)
		return
	}

	c.mu.Lock()
	c.latest = rep
	c.mu.Unlock()

	if c.db != nil {
		if err := c.db.SaveReport(rep); err != nil {
			log.Printf("Error saving report: %v", err)
		}
	}

	if c.publisher != nil {
		if err := c.publisher.PublishReport(rep); err != nil {
			log.Printf("Error publishing report: %v", err)
		}
	}

	log.Printf("Report generated: status=%s, vmin=%.3f, vmax=%.3f, active_outages=%d",
		rep.GridStatus, rep.VoltageStats.Min, rep.VoltageStats.Max, len(rep.ActiveOutages))
}

// CollectOnce generates a single report outside the periodic loop.
func (c *Collector) CollectOnce(ctx context.Context) (*report.Report, error) {
	rep, err := c.aggregator.GenerateReport(ctx, c.window)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.latest = rep
	c.mu.Unlock()

	return rep, nil
}

func (c *Collector) LatestReport() *report.Report {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest
}

func (c *Collector) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isRunning
}

func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.aggregator != nil {
		c.aggregator.Close()
	}
	if c.publisher != nil {
		c.publisher.Close()
	}
	if c.db != nil {
		c.db.Close()
	}
}
