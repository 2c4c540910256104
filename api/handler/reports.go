package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/statuswatch/digest"
	"github.com/use-agent/statuswatch/models"
)

// ReportLister lists recorded reports. history.Store implements it.
type ReportLister interface {
	RecentReports(ctx context.Context, limit int) ([]models.ReportSummary, error)
}

// GenerateReport returns a handler for POST /api/v1/reports.
//
// Orchestration flow:
//  1. Parse request (an empty body is accepted), apply defaults.
//  2. Service.Generate → collect, build, save, optionally deliver.
//  3. Return the summary; the document itself is on /reports/latest.
func GenerateReport(svc *digest.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		// ── 1. Parse request ────────────────────────────────────────
		var req models.GenerateReportRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			invalidInput(c, err)
			return
		}
		req.Defaults()

		// ── 2. Generate ─────────────────────────────────────────────
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Duration(req.Timeout)*time.Second)
		defer cancel()

		res, err := svc.Generate(ctx, digest.Options{Deliver: req.Deliver})
		if err != nil {
			respondError(c, err)
			return
		}

		// ── 3. Respond ──────────────────────────────────────────────
		c.JSON(http.StatusOK, reportResponse(res))
	}
}

// LatestReport returns a handler for GET /api/v1/reports/latest.
//
// format=html (default) serves the document, format=markdown its Markdown
// rendition and format=json the summary.
func LatestReport(svc *digest.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q models.LatestQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			invalidInput(c, err)
			return
		}
		q.Defaults()

		res, _, ok := svc.LatestReport(c.Request.Context(), time.Duration(q.MaxAgeMs)*time.Millisecond)
		if !ok {
			respondError(c, models.NewExtractError(models.ErrCodeNotFound, "no report within max_age_ms", nil))
			return
		}

		switch q.Format {
		case "markdown":
			c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(res.Markdown))
		case "json":
			c.JSON(http.StatusOK, reportResponse(res))
		default:
			c.Header("Content-Disposition", `inline; filename="`+res.Summary.FileName+`"`)
			c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(res.HTML))
		}
	}
}

// ListReports returns a handler for GET /api/v1/reports. A nil lister means
// history is disabled.
func ListReports(lister ReportLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		if lister == nil {
			respondError(c, models.NewExtractError(models.ErrCodeNotFound, "report history is not enabled", nil))
			return
		}
		var q models.HistoryQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			invalidInput(c, err)
			return
		}

		reports, err := lister.RecentReports(c.Request.Context(), q.Limit)
		if err != nil {
			respondError(c, err)
			return
		}
		if reports == nil {
			reports = []models.ReportSummary{}
		}
		c.JSON(http.StatusOK, models.HistoryResponse{Success: true, Reports: reports})
	}
}

func reportResponse(res *digest.Result) models.ReportResponse {
	sum := res.Summary
	return models.ReportResponse{
		Success:       true,
		ID:            res.ID,
		Summary:       &sum,
		Path:          res.Path,
		Delivered:     res.Delivered,
		DeliveryError: res.DeliveryError,
	}
}
