package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/statuswatch/digest"
	"github.com/use-agent/statuswatch/models"
)

// Version is reported by the health endpoint.
var Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Status is "busy" while a terminal extraction holds the browser.
func Health(svc *digest.Service, history bool, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := models.HealthResponse{
			Status:     "healthy",
			Uptime:     time.Since(startTime).Round(time.Second).String(),
			Version:    Version,
			Extracting: svc.Extracting(),
			History:    history,
		}
		if resp.Extracting {
			resp.Status = "busy"
		}
		if _, at, ok := svc.LatestReport(c.Request.Context(), 0); ok {
			resp.LastReportAt = &at
		}
		c.JSON(http.StatusOK, resp)
	}
}
