package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/ivalenzuelan/GridIncidentAgent/internal/collector"
	"github.com/ivalenzuelan/GridIncidentAgent/internal/outage"
	"github.com/ivalenzuelan/GridIncidentAgent/internal/redata"
	"github.com/ivalenzuelan/GridIncidentAgent/internal/simulator"
	"github.com/ivalenzuelan/GridIncidentAgent/internal/storage"

	"github.com/gin-gonic/gin"
)

type Server struct {
	router    *gin.Engine
	server    *http.Server
	collector *collector.Collector
	db        *storage.Database
	outages   *outage.Store
	sim       *simulator.Simulator
	market    *redata.Client
	port      int
}

type ServerConfig struct {
	Port      int
	Collector *collector.Collector
	Database  *storage.Database
	Outages   *outage.Store
	Simulator *simulator.Simulator
	Market    *redata.Client
}

func NewServer(cfg ServerConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	s := &Server{
		router:    router,
		collector: cfg.Collector,
		db:        cfg.Database,
		outages:   cfg.Outages,
		sim:       cfg.Simulator,
		market:    cfg.Market,
		port:      cfg.Port,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)

	api := s.router.Group("/api/v1")
	{
		api.GET("/report/latest", s.latestReportHandler)
		api.POST("/report", s.generateReportHandler)
		api.GET("/reports", s.reportsHandler)
		api.GET("/outages", s.outagesHandler)
		api.GET("/simulator/state", s.simulatorStateHandler)
		api.POST("/simulator/fault", s.injectFaultHandler)
		api.GET("/market/demand", s.marketDemandHandler)
	}
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	log.Printf("API server starting on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"collecting": s.collector.IsRunning(),
		"timestamp":  time.Now(),
	})
}

func (s *Server) latestReportHandler(c *gin.Context) {
	rep := s.collector.LatestReport()
	if rep == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "No report available yet",
		})
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (s *Server) generateReportHandler(c *gin.Context) {
	rep, err := s.collector.CollectOnce(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Report generation failed",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (s *Server) reportsHandler(c *gin.Context) {
	fromStr := c.Query("from")
	toStr := c.Query("to")
	limitStr := c.DefaultQuery("limit", "100")

	var limit int
	fmt.Sscanf(limitStr, "%d", &limit)
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	if fromStr != "" && toStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'from' date format"})
			return
		}
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'to' date format"})
			return
		}

		records, err := s.db.ReportsByRange(from, to)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, records)
		return
	}

	records, err := s.db.ReportsWithLimit(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, records)
}

func (s *Server) outagesHandler(c *gin.Context) {
	ctx := c.Request.Context()

	if station := c.Query("station"); station != "" {
		outages, err := s.outages.OutagesByStation(ctx, station)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, outages)
		return
	}

	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr != "" && toStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'from' date format"})
			return
		}
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'to' date format"})
			return
		}

		outages, err := s.outages.OutagesByRange(ctx, from, to)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, outages)
		return
	}

	outages, err := s.outages.ActiveOutages(ctx, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, outages)
}

func (s *Server) simulatorStateHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.sim.Measurements())
}

type faultRequest struct {
	BusID *int `json:"bus_id" binding:"required"`
}

func (s *Server) injectFaultHandler(c *gin.Context) {
	var req faultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.sim.InjectFault(*req.BusID); err != nil {
		if errors.Is(err, simulator.ErrInvalidBusID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Fault injected at bus %d", *req.BusID),
	})
}

func (s *Server) marketDemandHandler(c *gin.Context) {
	if s.market == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Market client not configured"})
		return
	}

	now := time.Now()
	from := now.Add(-24 * time.Hour)
	to := now

	if fromStr := c.Query("from"); fromStr != "" {
		parsed, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'from' date format"})
			return
		}
		from = parsed
	}
	if toStr := c.Query("to"); toStr != "" {
		parsed, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'to' date format"})
			return
		}
		to = parsed
	}

	data, err := s.market.WidgetData(c.Request.Context(), redata.Query{
		Lang:      c.DefaultQuery("lang", "es"),
		Category:  "demanda",
		Widget:    "evolucion",
		StartDate: from,
		EndDate:   to,
		TimeTrunc: c.DefaultQuery("time_trunc", "hour"),
		GeoLimit:  c.Query("geo_limit"),
		GeoIDs:    c.Query("geo_ids"),
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Failed to fetch market data",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, data)
}
