package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/statuswatch/digest"
	"github.com/use-agent/statuswatch/models"
)

// ExtractTerminals returns a handler for POST /api/v1/terminals/extract.
//
// The run is synchronous and may take many minutes. A second request while
// one is running gets 409 BUSY. A run that failed is still returned, with
// Run.Failure set and the status mapped from its code.
func ExtractTerminals(svc *digest.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.ExtractTerminals(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}

		resp := models.TerminalsResponse{Success: true, RunID: res.ID, Run: res.Run}
		status := http.StatusOK
		if f := res.Run.Failure; f != nil {
			resp.Success = false
			resp.Error = &models.ErrorDetail{Code: f.Code, Message: f.Message}
			status = mapErrorToStatus(f.Code)
		}
		c.JSON(status, resp)
	}
}

// LatestTerminals returns a handler for GET /api/v1/terminals/latest.
func LatestTerminals(svc *digest.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q models.LatestQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			invalidInput(c, err)
			return
		}

		res, at, ok := svc.LatestTerminals(c.Request.Context(), time.Duration(q.MaxAgeMs)*time.Millisecond)
		if !ok {
			respondError(c, models.NewExtractError(models.ErrCodeNotFound, "no extraction run within max_age_ms", nil))
			return
		}
		c.JSON(http.StatusOK, models.TerminalsResponse{
			Success:  res.Run.Failure == nil,
			RunID:    res.ID,
			Run:      res.Run,
			CachedAt: &at,
		})
	}
}
