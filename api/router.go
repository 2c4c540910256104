package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/use-agent/statuswatch/api/handler"
	"github.com/use-agent/statuswatch/api/middleware"
	"github.com/use-agent/statuswatch/config"
	"github.com/use-agent/statuswatch/digest"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
// reports may be nil when history is disabled. ctx bounds the background
// goroutines of the middleware.
//
// Middleware chain:
//
//	Global:  Recovery → RequestID → Logger → Metrics
//	API:     Auth (if enabled) → RateLimit
//
// Health and metrics are outside auth so monitoring probes always work.
func NewRouter(ctx context.Context, svc *digest.Service, reports handler.ReportLister, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")

	// Health: no auth required.
	v1.GET("/health", handler.Health(svc, reports != nil, startTime))

	// Protected group: auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(ctx, cfg.RateLimit))

	// Terminals
	protected.POST("/terminals/extract", handler.ExtractTerminals(svc))
	protected.GET("/terminals/latest", handler.LatestTerminals(svc))

	// Reports
	protected.POST("/reports", handler.GenerateReport(svc))
	protected.GET("/reports/latest", handler.LatestReport(svc))
	protected.GET("/reports", handler.ListReports(reports))

	return r
}
