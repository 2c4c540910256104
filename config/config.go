package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Browser    BrowserConfig
	Portal     PortalConfig
	Extraction ExtractionConfig
	Report     ReportConfig
	Email      EmailConfig
	Webhook    WebhookConfig
	Zabbix     ZabbixConfig
	Grafana    GrafanaConfig
	Sites      SitesConfig
	History    HistoryConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Cache      CacheConfig
	Log        LogConfig
	Schedule   ScheduleConfig

	// InventoryPath points to the YAML inventory (display names, targets,
	// charts, sites). Empty means an empty inventory.
	InventoryPath string
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is the proxy URL for the browser.
	Proxy string

	// Stealth injects navigator.webdriver masking before every navigation.
	Stealth bool // default: true

	// WindowWidth and WindowHeight size the viewport. Hover gestures in
	// headless mode only land reliably on a desktop-sized viewport.
	WindowWidth  int // default: 1920
	WindowHeight int // default: 1080

	// UserAgent overrides the browser's user agent.
	UserAgent string

	// NavigationTimeout is the max time for a single navigation.
	NavigationTimeout time.Duration // default: 30s

	// ActionTimeout bounds every single element operation (hover, click,
	// input, lookup). Zero disables the bound.
	ActionTimeout time.Duration // default: 15s

	// BlockedResourceTypes lists resource types to block. Stylesheets and
	// images stay enabled by default: status colors live in rendered styles.
	BlockedResourceTypes []string // default: ["Font", "Media"]
}

// PortalConfig describes the satellite-terminal management portal.
type PortalConfig struct {
	LoginURL     string
	DashboardURL string
	Username     string
	Password     string

	// WindowLabel is the reporting-window option selected after sign-in.
	WindowLabel string // default: "Last 1 Day"

	// FilterTriggers are the accepted labels of the window filter control.
	FilterTriggers []string // default: ["Day", "MTD"]

	// ApplyLabel is the text of the filter confirmation button.
	ApplyLabel string // default: "Apply"
}

// ExtractionConfig tunes the extraction engine's retry and wait policy.
type ExtractionConfig struct {
	TooltipAttempts int           // default: 5
	HoverSettle     time.Duration // default: 3.5s
	ScrollSettle    time.Duration // default: 800ms
	RetryNudge      time.Duration // default: 500ms
	LoginTimeout    time.Duration // default: 30s
	FilterSettle    time.Duration // default: 8s
	PageWait        time.Duration // default: 15s
	PageSettle      time.Duration // default: 5s
	PollInterval    time.Duration // default: 500ms
	Zoom            string        // default: "75%"
	IDPrefix        string        // default: "KIT"
	MaxPages        int           // default: 200
	RunTimeout      time.Duration // default: 30m
}

// ReportConfig controls the generated document.
type ReportConfig struct {
	OutputDir  string // default: "output"
	Header     string
	SignerRole string
	Place      string // default: "Manaus"
}

// EmailConfig controls SMTP delivery. Delivery is disabled when Host is empty.
type EmailConfig struct {
	Host     string
	Port     int // default: 587
	Username string
	Password string
	From     string
	To       []string
}

// WebhookConfig controls signed webhook delivery. Disabled when URL is empty.
type WebhookConfig struct {
	URL    string
	Secret string
}

// ZabbixServer is one Zabbix frontend used for chart images.
type ZabbixServer struct {
	URL      string
	Username string
	Password string
}

// ZabbixConfig holds the Zabbix endpoints.
type ZabbixConfig struct {
	// APIURL is the JSON-RPC endpoint used for host address lookup.
	APIURL   string
	Username string
	Password string

	// ChartServers are frontends keyed by the server name used in the inventory.
	ChartServers map[string]ZabbixServer

	// InsecureTLS skips certificate verification. Internal frontends run
	// with self-signed certificates.
	InsecureTLS bool // default: true

	Timeout time.Duration // default: 20s
}

// GrafanaConfig holds the dashboarding service endpoint.
type GrafanaConfig struct {
	URL   string
	Token string
}

// SitesConfig controls the hosted-site checker.
type SitesConfig struct {
	HashDir       string        // default: "output/hashes"
	Timeout       time.Duration // default: 30s
	DiffThreshold int           // default: 3
	Concurrency   int           // default: 4

	// DomainSuffix is trimmed from hosts when deriving a site's display name.
	DomainSuffix string // default: ".eb.mil.br"
}

// HistoryConfig controls run persistence. Disabled when PostgresURL is empty.
type HistoryConfig struct {
	PostgresURL string
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 1

	// Burst is the maximum burst size per API key.
	Burst int // default: 5
}

// CacheConfig controls the latest-result cache.
type CacheConfig struct {
	MaxEntries int           // default: 32
	TTL        time.Duration // default: 48h

	// RedisURL enables the Redis mirror of the latest results.
	RedisURL string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// ScheduleConfig controls the periodic report.
type ScheduleConfig struct {
	Enabled  bool          // default: false
	Interval time.Duration // default: 24h
	Deliver  bool          // default: true
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("STATUSWATCH_HOST", "0.0.0.0"),
			Port: envIntOr("STATUSWATCH_PORT", 8080),
			Mode: envOr("STATUSWATCH_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:          envBoolOr("STATUSWATCH_HEADLESS", true),
			NoSandbox:         envBoolOr("STATUSWATCH_NO_SANDBOX", false),
			BrowserBin:        os.Getenv("STATUSWATCH_BROWSER_BIN"),
			Proxy:             os.Getenv("STATUSWATCH_PROXY"),
			Stealth:           envBoolOr("STATUSWATCH_STEALTH", true),
			WindowWidth:       envIntOr("STATUSWATCH_WINDOW_WIDTH", 1920),
			WindowHeight:      envIntOr("STATUSWATCH_WINDOW_HEIGHT", 1080),
			UserAgent:         os.Getenv("STATUSWATCH_USER_AGENT"),
			NavigationTimeout: envDurationOr("STATUSWATCH_NAV_TIMEOUT", 30*time.Second),
			ActionTimeout:     envDurationOr("STATUSWATCH_ACTION_TIMEOUT", 15*time.Second),
			BlockedResourceTypes: envSliceOr("STATUSWATCH_BLOCKED_RESOURCES", []string{
				"Font", "Media",
			}),
		},
		Portal: PortalConfig{
			LoginURL:       envOr("STATUSWATCH_PORTAL_LOGIN_URL", "https://sport.pulsarconnect.io/login"),
			DashboardURL:   envOr("STATUSWATCH_PORTAL_DASHBOARD_URL", "https://sport.pulsarconnect.io/starlink/starlinkMap"),
			Username:       os.Getenv("STATUSWATCH_PORTAL_USER"),
			Password:       os.Getenv("STATUSWATCH_PORTAL_PASSWORD"),
			WindowLabel:    envOr("STATUSWATCH_PORTAL_WINDOW", "Last 1 Day"),
			FilterTriggers: envSliceOr("STATUSWATCH_PORTAL_FILTER_TRIGGERS", []string{"Day", "MTD"}),
			ApplyLabel:     envOr("STATUSWATCH_PORTAL_APPLY_LABEL", "Apply"),
		},
		Extraction: ExtractionConfig{
			TooltipAttempts: envIntOr("STATUSWATCH_TOOLTIP_ATTEMPTS", 5),
			HoverSettle:     envDurationOr("STATUSWATCH_HOVER_SETTLE", 3500*time.Millisecond),
			ScrollSettle:    envDurationOr("STATUSWATCH_SCROLL_SETTLE", 800*time.Millisecond),
			RetryNudge:      envDurationOr("STATUSWATCH_RETRY_NUDGE", 500*time.Millisecond),
			LoginTimeout:    envDurationOr("STATUSWATCH_LOGIN_TIMEOUT", 30*time.Second),
			FilterSettle:    envDurationOr("STATUSWATCH_FILTER_SETTLE", 8*time.Second),
			PageWait:        envDurationOr("STATUSWATCH_PAGE_WAIT", 15*time.Second),
			PageSettle:      envDurationOr("STATUSWATCH_PAGE_SETTLE", 5*time.Second),
			PollInterval:    envDurationOr("STATUSWATCH_POLL_INTERVAL", 500*time.Millisecond),
			Zoom:            envOr("STATUSWATCH_ZOOM", "75%"),
			IDPrefix:        envOr("STATUSWATCH_ID_PREFIX", "KIT"),
			MaxPages:        envIntOr("STATUSWATCH_MAX_PAGES", 200),
			RunTimeout:      envDurationOr("STATUSWATCH_RUN_TIMEOUT", 30*time.Minute),
		},
		Report: ReportConfig{
			OutputDir:  envOr("STATUSWATCH_OUTPUT_DIR", "output"),
			Header:     envOr("STATUSWATCH_REPORT_HEADER", "RELATÓRIO DIÁRIO - SUPERVISOR TÉCNICO/4° CTA"),
			SignerRole: envOr("STATUSWATCH_REPORT_SIGNER", "Supervisor Técnico"),
			Place:      envOr("STATUSWATCH_REPORT_PLACE", "Manaus"),
		},
		Email: EmailConfig{
			Host:     os.Getenv("STATUSWATCH_SMTP_HOST"),
			Port:     envIntOr("STATUSWATCH_SMTP_PORT", 587),
			Username: os.Getenv("STATUSWATCH_SMTP_USER"),
			Password: os.Getenv("STATUSWATCH_SMTP_PASSWORD"),
			From:     os.Getenv("STATUSWATCH_MAIL_FROM"),
			To:       envSliceOr("STATUSWATCH_MAIL_TO", nil),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("STATUSWATCH_WEBHOOK_URL"),
			Secret: os.Getenv("STATUSWATCH_WEBHOOK_SECRET"),
		},
		Zabbix: ZabbixConfig{
			APIURL:       os.Getenv("STATUSWATCH_ZABBIX_API_URL"),
			Username:     os.Getenv("STATUSWATCH_ZABBIX_USER"),
			Password:     os.Getenv("STATUSWATCH_ZABBIX_PASSWORD"),
			ChartServers: envServersOr("STATUSWATCH_ZABBIX_CHART_SERVERS"),
			InsecureTLS:  envBoolOr("STATUSWATCH_ZABBIX_INSECURE_TLS", true),
			Timeout:      envDurationOr("STATUSWATCH_ZABBIX_TIMEOUT", 20*time.Second),
		},
		Grafana: GrafanaConfig{
			URL:   os.Getenv("STATUSWATCH_GRAFANA_URL"),
			Token: os.Getenv("STATUSWATCH_GRAFANA_TOKEN"),
		},
		Sites: SitesConfig{
			HashDir:       envOr("STATUSWATCH_SITES_HASH_DIR", "output/hashes"),
			Timeout:       envDurationOr("STATUSWATCH_SITES_TIMEOUT", 30*time.Second),
			DiffThreshold: envIntOr("STATUSWATCH_SITES_DIFF_THRESHOLD", 3),
			Concurrency:   envIntOr("STATUSWATCH_SITES_CONCURRENCY", 4),
			DomainSuffix:  envOr("STATUSWATCH_SITES_DOMAIN_SUFFIX", ".eb.mil.br"),
		},
		History: HistoryConfig{
			PostgresURL: os.Getenv("STATUSWATCH_POSTGRES_URL"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("STATUSWATCH_AUTH_ENABLED", true),
			APIKeys: envSliceOr("STATUSWATCH_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("STATUSWATCH_RATE_RPS", 1.0),
			Burst:             envIntOr("STATUSWATCH_RATE_BURST", 5),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("STATUSWATCH_CACHE_MAX_ENTRIES", 32),
			TTL:        envDurationOr("STATUSWATCH_CACHE_TTL", 48*time.Hour),
			RedisURL:   os.Getenv("STATUSWATCH_REDIS_URL"),
		},
		Log: LogConfig{
			Level:  envOr("STATUSWATCH_LOG_LEVEL", "info"),
			Format: envOr("STATUSWATCH_LOG_FORMAT", "json"),
		},
		Schedule: ScheduleConfig{
			Enabled:  envBoolOr("STATUSWATCH_SCHEDULE_ENABLED", false),
			Interval: envDurationOr("STATUSWATCH_REPORT_INTERVAL", 24*time.Hour),
			Deliver:  envBoolOr("STATUSWATCH_SCHEDULE_DELIVER", true),
		},
		InventoryPath: os.Getenv("STATUSWATCH_INVENTORY"),
	}
}

// envServersOr parses "name=url|user|password" entries separated by commas.
// A missing user or password falls back to the STATUSWATCH_ZABBIX_USER /
// STATUSWATCH_ZABBIX_PASSWORD pair.
func envServersOr(key string) map[string]ZabbixServer {
	servers := make(map[string]ZabbixServer)
	for _, entry := range envSliceOr(key, nil) {
		name, spec, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(name) == "" {
			continue
		}
		parts := strings.Split(spec, "|")
		srv := ZabbixServer{
			URL:      strings.TrimSpace(parts[0]),
			Username: os.Getenv("STATUSWATCH_ZABBIX_USER"),
			Password: os.Getenv("STATUSWATCH_ZABBIX_PASSWORD"),
		}
		if len(parts) > 1 && parts[1] != "" {
			srv.Username = parts[1]
		}
		if len(parts) > 2 && parts[2] != "" {
			srv.Password = parts[2]
		}
		servers[strings.TrimSpace(name)] = srv
	}
	return servers
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
