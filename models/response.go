package models

import "time"

// TerminalsResponse is the response of the terminal endpoints.
type TerminalsResponse struct {
	Success bool `json:"success"`

	// RunID identifies the extraction run in history.
	RunID string `json:"run_id,omitempty"`

	// Run is present even when the run failed; Run.Failure then says why.
	Run *TerminalRun `json:"run,omitempty"`

	// CachedAt is set when the run was served from cache.
	CachedAt *time.Time `json:"cached_at,omitempty"`

	Error *ErrorDetail `json:"error,omitempty"`
}

// ReportResponse is the response of POST /api/v1/reports and of
// GET /api/v1/reports/latest?format=json.
type ReportResponse struct {
	Success bool           `json:"success"`
	ID      string         `json:"id,omitempty"`
	Summary *ReportSummary `json:"summary,omitempty"`

	// Path is where the HTML document was written on the server.
	Path string `json:"path,omitempty"`

	Delivered     bool   `json:"delivered"`
	DeliveryError string `json:"delivery_error,omitempty"`

	Error *ErrorDetail `json:"error,omitempty"`
}

// HistoryResponse is the response of GET /api/v1/reports.
type HistoryResponse struct {
	Success bool            `json:"success"`
	Reports []ReportSummary `json:"reports"`
	Error   *ErrorDetail    `json:"error,omitempty"`
}

// ErrorResponse is the body of every failed request without a richer
// response type.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"` // "healthy" or "busy"
	Uptime  string `json:"uptime"`
	Version string `json:"version"`

	// Extracting is true while a terminal extraction is running.
	Extracting bool `json:"extracting"`

	// LastReportAt is the generation time of the latest cached report.
	LastReportAt *time.Time `json:"last_report_at,omitempty"`

	// History reports whether run persistence is enabled.
	History bool `json:"history"`
}
