package models

// LatestQuery is the query string of the GET /latest endpoints.
type LatestQuery struct {
	// MaxAgeMs bounds how old a cached result may be. Zero accepts any age.
	MaxAgeMs int64 `form:"max_age_ms" binding:"omitempty,min=0"`

	// Format selects the report rendition: "html" (default), "markdown"
	// or "json". Ignored by the terminal endpoint.
	Format string `form:"format" binding:"omitempty,oneof=html markdown json"`
}

// Defaults applies default values to unset fields.
func (q *LatestQuery) Defaults() {
	if q.Format == "" {
		q.Format = "html"
	}
}

// GenerateReportRequest is the payload for POST /api/v1/reports.
type GenerateReportRequest struct {
	// Deliver sends the report over every configured notifier.
	// Default: false.
	Deliver bool `json:"deliver,omitempty"`

	// Timeout is the maximum duration in seconds for the whole run.
	// Default: 1800. Max: 3600.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=3600"`
}

// Defaults applies default values to unset fields.
func (r *GenerateReportRequest) Defaults() {
	if r.Timeout == 0 {
		r.Timeout = 1800
	}
}

// HistoryQuery is the query string of GET /api/v1/reports.
type HistoryQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=365"`
}
