package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ivalenzuelan/GridIncidentAgent/config"
	"github.com/ivalenzuelan/GridIncidentAgent/internal/api"
	"github.com/ivalenzuelan/GridIncidentAgent/internal/collector"
	"github.com/ivalenzuelan/GridIncidentAgent/internal/mqtt"
	"github.com/ivalenzuelan/GridIncidentAgent/internal/narrative"
	"github.com/ivalenzuelan/GridIncidentAgent/internal/outage"
	"github.com/ivalenzuelan/GridIncidentAgent/internal/redata"
	"github.com/ivalenzuelan/GridIncidentAgent/internal/report"
	"github.com/ivalenzuelan/GridIncidentAgent/internal/simulator"
	"github.com/ivalenzuelan/GridIncidentAgent/internal/storage"
	"github.com/ivalenzuelan/GridIncidentAgent/internal/weather"

	"github.com/spf13/cobra"
)

var (
	configFile string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gridagent",
		Short: "Electrical grid incident agent",
		Long:  "A tool to monitor grid health and generate classified status reports",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(simulateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the reporting service",
		Long:  "Start the periodic report collector, API server, and MQTT publisher",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			store, sim, agg, err := buildPipeline(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			db, err := storage.NewDatabase(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			log.Printf("Database opened at %s", cfg.Database.Path)

			publisher, err := mqtt.NewPublisher(mqtt.PublisherConfig{
				Broker:      cfg.MQTT.Broker,
				ClientID:    cfg.MQTT.ClientID,
				Username:    cfg.MQTT.Username,
				Password:    cfg.MQTT.Password,
				TopicPrefix: cfg.MQTT.TopicPrefix,
				Enabled:     cfg.MQTT.Enabled,
			})
			if err != nil {
				log.Printf("Warning: MQTT connection failed: %v", err)
			} else if cfg.MQTT.Enabled {
				log.Printf("MQTT connected to %s", cfg.MQTT.Broker)
			}

			coll := collector.NewCollector(collector.CollectorConfig{
				Aggregator: agg,
				Database:   db,
				Publisher:  publisher,
				Interval:   cfg.Collector.Interval,
				Window:     cfg.Collector.Window,
				Enabled:    cfg.Collector.Enabled,
			})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			go func() {
				if err := coll.Start(ctx); err != nil {
					log.Printf("Collector error: %v", err)
				}
			}()

			if cfg.API.Enabled {
				server := api.NewServer(api.ServerConfig{
					Port:      cfg.API.Port,
					Collector: coll,
					Database:  db,
					Outages:   store,
					Simulator: sim,
					Market:    redata.NewClient(cfg.Market.BaseURL, cfg.Market.Timeout),
				})

				go func() {
					if err := server.Start(); err != nil {
						log.Printf("API server error: %v", err)
					}
				}()
			}

			log.Println("Grid Incident Agent started. Press Ctrl+C to stop.")

			<-sigChan
			log.Println("Shutting down...")
			cancel()
			coll.Stop()

			return nil
		},
	}
}

func reportCmd() *cobra.Command {
	var windowMinutes int

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a report once",
		Long:  "Generate a single grid report for the trailing window and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			store, _, agg, err := buildPipeline(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			defer agg.Close()

			window := cfg.Collector.Window
			if windowMinutes > 0 {
				window = time.Duration(windowMinutes) * time.Minute
			}

			rep, err := agg.GenerateReport(cmd.Context(), window)
			if err != nil {
				return fmt.Errorf("failed to generate report: %w", err)
			}

			if verbose {
				output, _ := json.MarshalIndent(rep, "", "  ")
				fmt.Println(string(output))
				return nil
			}

			fmt.Printf("Grid Status: %s\n", rep.GridStatus)
			fmt.Printf("\nVoltage Statistics:\n")
			fmt.Printf("  min: %.3f\n", rep.VoltageStats.Min)
			fmt.Printf("  max: %.3f\n", rep.VoltageStats.Max)
			fmt.Printf("  avg: %.3f\n", rep.VoltageStats.Avg)
			fmt.Printf("  std: %.3f\n", rep.VoltageStats.Std)
			fmt.Printf("\nActive Outages: %d\n", len(rep.ActiveOutages))
			fmt.Printf("Resolved Outages: %d\n", len(rep.ResolvedOutages))

			fmt.Printf("\nWeather:\n")
			for _, sample := range rep.WeatherData {
				fmt.Printf("  %s: %.1f°C, %s\n", sample.Location, sample.Temperature, sample.Conditions)
			}

			fmt.Printf("\nAlerts:\n")
			for _, alert := range rep.Alerts {
				fmt.Printf("  - %s\n", alert)
			}
			fmt.Printf("\nRecommendations:\n")
			for _, rec := range rep.Recommendations {
				fmt.Printf("  - %s\n", rec)
			}
			if rep.Narrative != "" {
				fmt.Printf("\nExecutive Summary:\n%s\n", rep.Narrative)
			}

			return nil
		},
	}

	cmd.Flags().IntVarP(&windowMinutes, "window", "w", 0, "report window in minutes")
	return cmd
}

func simulateCmd() *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the grid simulator",
		Long:  "Step the stochastic grid simulator and print the evolving state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			sim := newSimulator(cfg)
			for i := 0; i < steps; i++ {
				sim.UpdateState()
				snapshot := sim.Measurements()
				fmt.Printf("Time: %s\n", snapshot.Timestamp.Format(time.RFC3339Nano))
				fmt.Printf("Active faults: %v\n", snapshot.ActiveFaults)
				fmt.Printf("Bus 0 voltage: %.3f pu\n", snapshot.Magnitudes[0])
				fmt.Println("---")
			}

			return nil
		},
	}

	cmd.Flags().IntVarP(&steps, "steps", "n", 50, "number of simulation steps")
	return cmd
}

func newSimulator(cfg *config.Config) *simulator.Simulator {
	var rng *rand.Rand
	if cfg.Simulator.Seed != 0 {
		rng = rand.New(rand.NewSource(cfg.Simulator.Seed))
	}
	return simulator.New(simulator.Config{
		SamplingRate:     cfg.Simulator.SamplingRate,
		FaultProbability: cfg.Simulator.FaultProbability,
		FaultDuration:    cfg.Simulator.FaultDuration,
		Rand:             rng,
	})
}

func buildPipeline(cfg *config.Config) (*outage.Store, *simulator.Simulator, *report.Aggregator, error) {
	store, err := outage.NewStore(cfg.Outages.DBPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open outage store: %w", err)
	}
	if cfg.Outages.CSVPath != "" {
		loaded, err := store.LoadCSV(cfg.Outages.CSVPath)
		if err != nil {
			store.Close()
			return nil, nil, nil, fmt.Errorf("failed to load outage CSV: %w", err)
		}
		log.Printf("Loaded %d outages from %s", loaded, cfg.Outages.CSVPath)
	}

	var weatherProvider weather.Provider
	if cfg.Weather.APIKey != "" {
		weatherProvider = weather.NewAEMETClient(
			cfg.Weather.APIKey,
			cfg.Weather.BaseURL,
			cfg.Weather.Timeout,
			cfg.Weather.Retries,
		)
	} else {
		log.Println("AEMET API key not configured - using static weather observations")
		weatherProvider = weather.Static{}
	}

	sim := newSimulator(cfg)

	agg := report.NewAggregator(report.Config{
		Simulator: sim,
		Outages:   store,
		Weather:   weatherProvider,
		Thresholds: report.Thresholds{
			CriticalLow:  cfg.Limits.CriticalLow,
			CriticalHigh: cfg.Limits.CriticalHigh,
			DegradedLow:  cfg.Limits.DegradedLow,
			DegradedHigh: cfg.Limits.DegradedHigh,
		},
		Locations: cfg.Weather.Locations,
		Narrative: narrative.Config{
			AccountID: cfg.Narrative.AccountID,
			APIToken:  cfg.Narrative.APIToken,
			Model:     cfg.Narrative.Model,
			BaseURL:   cfg.Narrative.BaseURL,
		},
		NarrativeTimeout: cfg.Narrative.Timeout,
	})

	return store, sim, agg, nil
}
