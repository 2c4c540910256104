package extractor

import (
	"time"

	"github.com/use-agent/statuswatch/config"
)

// Options is the explicit configuration of one engine. Nothing in the
// engine reads the environment.
type Options struct {
	LoginURL     string
	DashboardURL string
	Username     string
	Password     string

	WindowLabel    string
	FilterTriggers []string
	ApplyLabel     string

	TooltipAttempts int
	HoverSettle     time.Duration
	ScrollSettle    time.Duration
	RetryNudge      time.Duration
	LoginTimeout    time.Duration
	FilterSettle    time.Duration
	PageWait        time.Duration
	PageSettle      time.Duration
	PollInterval    time.Duration

	Zoom     string
	IDPrefix string

	// MaxPages caps the pagination loop for portals whose next control
	// never disables while rows keep changing.
	MaxPages int

	// RunTimeout caps a whole run. Zero leaves only the caller's deadline.
	RunTimeout time.Duration
}

// FromConfig builds Options from the service configuration.
func FromConfig(p config.PortalConfig, e config.ExtractionConfig) Options {
	return Options{
		LoginURL:        p.LoginURL,
		DashboardURL:    p.DashboardURL,
		Username:        p.Username,
		Password:        p.Password,
		WindowLabel:     p.WindowLabel,
		FilterTriggers:  p.FilterTriggers,
		ApplyLabel:      p.ApplyLabel,
		TooltipAttempts: e.TooltipAttempts,
		HoverSettle:     e.HoverSettle,
		ScrollSettle:    e.ScrollSettle,
		RetryNudge:      e.RetryNudge,
		LoginTimeout:    e.LoginTimeout,
		FilterSettle:    e.FilterSettle,
		PageWait:        e.PageWait,
		PageSettle:      e.PageSettle,
		PollInterval:    e.PollInterval,
		Zoom:            e.Zoom,
		IDPrefix:        e.IDPrefix,
		MaxPages:        e.MaxPages,
		RunTimeout:      e.RunTimeout,
	}
}

// withDefaults fills zero fields. Durations may legitimately be zero in
// tests, so only counts and labels are defaulted.
func (o Options) withDefaults() Options {
	if o.TooltipAttempts <= 0 {
		o.TooltipAttempts = 5
	}
	if o.WindowLabel == "" {
		o.WindowLabel = "Last 1 Day"
	}
	if len(o.FilterTriggers) == 0 {
		o.FilterTriggers = []string{"Day", "MTD"}
	}
	if o.ApplyLabel == "" {
		o.ApplyLabel = "Apply"
	}
	if o.IDPrefix == "" {
		o.IDPrefix = "KIT"
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.MaxPages <= 0 {
		o.MaxPages = 200
	}
	return o
}
