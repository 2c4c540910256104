// Package digest runs the report pipeline: collect every source, build
// the document, deliver it, then cache and record the outcome.
package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/use-agent/statuswatch/cache"
	"github.com/use-agent/statuswatch/config"
	"github.com/use-agent/statuswatch/metrics"
	"github.com/use-agent/statuswatch/models"
	"github.com/use-agent/statuswatch/notify"
	"github.com/use-agent/statuswatch/report"
)

// Cache keys of the latest results.
const (
	KeyTerminals = "terminals:latest"
	KeyReport    = "report:latest"
)

// DiagnosticRunner runs ping and path tests.
type DiagnosticRunner interface {
	RunAll(ctx context.Context, specs []config.TestSpec) []models.DiagnosticResult
}

// ChartCollector downloads chart images.
type ChartCollector interface {
	Collect(ctx context.Context, specs []config.ChartSpec) ([]models.Chart, error)
}

// DashboardCollector reads the status dashboard.
type DashboardCollector interface {
	Collect(ctx context.Context, uid string) ([]models.PanelGroup, error)
}

// SiteChecker checks the hosted sites.
type SiteChecker interface {
	Check(ctx context.Context, specs []config.SiteSpec) ([]models.SiteResult, []models.Occurrence, error)
}

// TerminalSource runs one terminal extraction. It always returns a run;
// failures are carried inside it.
type TerminalSource interface {
	Run(ctx context.Context) *models.TerminalRun
}

// TerminalFunc adapts a function to TerminalSource.
type TerminalFunc func(ctx context.Context) *models.TerminalRun

func (f TerminalFunc) Run(ctx context.Context) *models.TerminalRun { return f(ctx) }

// Recorder persists results. history.Store implements it.
type Recorder interface {
	SaveTerminalRun(ctx context.Context, id string, run *models.TerminalRun) error
	SaveReport(ctx context.Context, sum models.ReportSummary) error
}

// Mirror shares the latest results outside the process. cache.Mirror
// implements it.
type Mirror interface {
	Put(ctx context.Context, key string, v any, createdAt time.Time) error
	Fetch(ctx context.Context, key string, out any) (time.Time, bool, error)
}

// Deps are the collaborators of a Service. Nil sources leave their
// section empty; nil Recorder and Mirror disable persistence.
type Deps struct {
	Diagnostics DiagnosticRunner
	Charts      ChartCollector
	Dashboard   DashboardCollector
	Terminals   TerminalSource
	Sites       SiteChecker

	Notifiers []notify.Notifier
	Recorder  Recorder
	Mirror    Mirror
}

// TerminalResult is one recorded extraction run.
type TerminalResult struct {
	ID  string              `json:"id"`
	Run *models.TerminalRun `json:"run"`
}

// Result is one generated report.
type Result struct {
	ID            string               `json:"id"`
	Summary       models.ReportSummary `json:"summary"`
	HTML          string               `json:"html"`
	Markdown      string               `json:"markdown"`
	Path          string               `json:"path,omitempty"`
	Delivered     bool                 `json:"delivered"`
	DeliveryError string               `json:"delivery_error,omitempty"`
}

// Options tune one Generate call.
type Options struct {
	// Deliver sends the report over every configured notifier.
	Deliver bool
}

// ErrBusy is returned when an extraction is already running.
var ErrBusy = models.NewExtractError(models.ErrCodeBusy, "an extraction is already running", nil)

// Service owns the pipeline and the latest results.
type Service struct {
	deps Deps
	cfg  config.ReportConfig
	inv  atomic.Pointer[config.Inventory]

	runs    *cache.Cache[*TerminalResult]
	reports *cache.Cache[*Result]

	// extracting admits one terminal extraction at a time.
	extracting chan struct{}
	now        func() time.Time
}

// New creates a Service.
func New(deps Deps, cfg config.ReportConfig, inv *config.Inventory, cacheCfg config.CacheConfig) *Service {
	s := &Service{
		deps:       deps,
		cfg:        cfg,
		runs:       cache.New[*TerminalResult](cacheCfg.MaxEntries, cacheCfg.TTL),
		reports:    cache.New[*Result](cacheCfg.MaxEntries, cacheCfg.TTL),
		extracting: make(chan struct{}, 1),
		now:        time.Now,
	}
	s.SetInventory(inv)
	return s
}

// Close stops the caches' background goroutines.
func (s *Service) Close() {
	s.runs.Close()
	s.reports.Close()
}

// SetInventory replaces the inventory used by subsequent runs.
func (s *Service) SetInventory(inv *config.Inventory) {
	if inv == nil {
		inv = &config.Inventory{}
	}
	s.inv.Store(inv)
}

// Inventory returns the current inventory.
func (s *Service) Inventory() *config.Inventory { return s.inv.Load() }

// ExtractTerminals runs one extraction unless another is in progress, in
// which case it returns ErrBusy.
func (s *Service) ExtractTerminals(ctx context.Context) (*TerminalResult, error) {
	select {
	case s.extracting <- struct{}{}:
	default:
		return nil, ErrBusy
	}
	defer func() { <-s.extracting }()
	return s.extract(ctx)
}

// Extracting reports whether a terminal extraction is running.
func (s *Service) Extracting() bool { return len(s.extracting) > 0 }

// waitExtract runs an extraction, waiting for a running one to finish.
func (s *Service) waitExtract(ctx context.Context) (*TerminalResult, error) {
	select {
	case s.extracting <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.extracting }()
	return s.extract(ctx)
}

func (s *Service) extract(ctx context.Context) (*TerminalResult, error) {
	if s.deps.Terminals == nil {
		return nil, errors.New("terminal extraction not configured")
	}
	res := &TerminalResult{ID: uuid.NewString(), Run: s.deps.Terminals.Run(ctx)}

	s.runs.Set(KeyTerminals, res)
	if s.deps.Mirror != nil {
		if err := s.deps.Mirror.Put(ctx, KeyTerminals, res, s.now()); err != nil {
			slog.Warn("mirror terminal run failed", "run_id", res.ID, "error", err)
		}
	}
	if s.deps.Recorder != nil {
		if err := s.deps.Recorder.SaveTerminalRun(ctx, res.ID, res.Run); err != nil {
			slog.Warn("record terminal run failed", "run_id", res.ID, "error", err)
		}
	}
	return res, nil
}

// LatestTerminals returns the latest run younger than maxAge, looking in
// memory first and then in the mirror.
func (s *Service) LatestTerminals(ctx context.Context, maxAge time.Duration) (*TerminalResult, time.Time, bool) {
	return latest(ctx, s, s.runs, KeyTerminals, maxAge)
}

// LatestReport returns the latest report younger than maxAge.
func (s *Service) LatestReport(ctx context.Context, maxAge time.Duration) (*Result, time.Time, bool) {
	return latest(ctx, s, s.reports, KeyReport, maxAge)
}

func latest[V any](ctx context.Context, s *Service, c *cache.Cache[*V], key string, maxAge time.Duration) (*V, time.Time, bool) {
	if v, at, ok := c.Get(key, maxAge); ok {
		return v, at, true
	}
	if s.deps.Mirror == nil {
		return nil, time.Time{}, false
	}

	v := new(V)
	at, ok, err := s.deps.Mirror.Fetch(ctx, key, v)
	if err != nil {
		slog.Warn("mirror lookup failed", "key", key, "error", err)
		return nil, time.Time{}, false
	}
	if !ok || (maxAge > 0 && s.now().Sub(at) > maxAge) {
		return nil, time.Time{}, false
	}
	c.SetAt(key, v, at)
	return v, at, true
}

// Generate collects every source, renders the report, writes it to the
// output directory and optionally delivers it. Source failures never
// abort the report: they empty their section and are listed in
// SourceErrors. Only rendering and writing errors are returned.
//
// Lifecycle:
//
//  1. Collect  – every source concurrently
//  2. Build    – HTML + Markdown
//  3. Save     – output directory
//  4. Deliver  – notifiers (when requested)
//  5. Record   – cache, mirror, history
func (s *Service) Generate(ctx context.Context, opts Options) (*Result, error) {
	id := uuid.NewString()
	started := s.now()
	slog.Info("report started", "run_id", id, "deliver", opts.Deliver)

	// ── 1. Collect ────────────────────────────────────────────────
	data := s.collect(ctx)

	// ── 2. Build ──────────────────────────────────────────────────
	inv := s.Inventory()
	doc, err := report.NewBuilder(s.cfg, inv.DisplayNames).Build(data)
	if err != nil {
		return nil, err
	}

	// ── 3. Save ───────────────────────────────────────────────────
	res := &Result{
		ID:       id,
		Summary:  data.Summarize(id, doc.FileName()),
		HTML:     string(doc.HTML),
		Markdown: doc.Markdown,
	}
	if s.cfg.OutputDir != "" {
		path, err := doc.Save(s.cfg.OutputDir)
		if err != nil {
			return nil, err
		}
		res.Path = path
	}

	// ── 4. Deliver ────────────────────────────────────────────────
	if opts.Deliver && len(s.deps.Notifiers) > 0 {
		err := notify.SendAll(ctx, s.deps.Notifiers, notify.Delivery{
			RunID:       id,
			Subject:     notify.Subject(data.GeneratedAt),
			Body:        mailBody(data.GeneratedAt),
			GeneratedAt: data.GeneratedAt,
			Attachment: &notify.Attachment{
				Name:        doc.FileName(),
				ContentType: "text/html; charset=utf-8",
				Data:        doc.HTML,
			},
			Data: res.Summary,
		})
		res.Delivered = err == nil
		if err != nil {
			res.DeliveryError = err.Error()
		}
	}

	// ── 5. Record ─────────────────────────────────────────────────
	s.reports.Set(KeyReport, res)
	if s.deps.Mirror != nil {
		if err := s.deps.Mirror.Put(ctx, KeyReport, res, s.now()); err != nil {
			slog.Warn("mirror report failed", "run_id", id, "error", err)
		}
	}
	if s.deps.Recorder != nil {
		if err := s.deps.Recorder.SaveReport(ctx, res.Summary); err != nil {
			slog.Warn("record report failed", "run_id", id, "error", err)
		}
	}

	slog.Info("report complete",
		"run_id", id,
		"path", res.Path,
		"source_errors", len(data.SourceErrors),
		"delivered", res.Delivered,
		"duration_ms", s.now().Sub(started).Milliseconds(),
	)
	return res, nil
}

// collect gathers every section concurrently. Sources do not cancel each
// other.
func (s *Service) collect(ctx context.Context) *models.ReportData {
	inv := s.Inventory()
	data := &models.ReportData{GeneratedAt: s.now()}

	var mu sync.Mutex
	fail := func(source string, err error) {
		slog.Warn("report source failed", "source", source, "error", err)
		mu.Lock()
		defer mu.Unlock()
		if data.SourceErrors == nil {
			data.SourceErrors = make(map[string]string)
		}
		data.SourceErrors[source] = err.Error()
	}

	var g errgroup.Group

	if s.deps.Diagnostics != nil {
		g.Go(func() error {
			started := time.Now()
			providers := s.deps.Diagnostics.RunAll(ctx, inv.Diagnostics.Providers)
			tunnels := s.deps.Diagnostics.RunAll(ctx, inv.Diagnostics.Tunnels)
			mu.Lock()
			data.Providers, data.Tunnels = providers, tunnels
			mu.Unlock()
			metrics.ObserveCollector(report.SourceDiagnostics, started, ctx.Err())
			return nil
		})
	}

	if s.deps.Charts != nil && len(inv.Charts) > 0 {
		g.Go(func() error {
			started := time.Now()
			charts, err := s.deps.Charts.Collect(ctx, inv.Charts)
			metrics.ObserveCollector(report.SourceCharts, started, err)
			if err != nil {
				fail(report.SourceCharts, err)
			}
			mu.Lock()
			data.Charts = charts
			mu.Unlock()
			return nil
		})
	}

	if s.deps.Dashboard != nil && inv.DashboardUID != "" {
		g.Go(func() error {
			started := time.Now()
			groups, err := s.deps.Dashboard.Collect(ctx, inv.DashboardUID)
			metrics.ObserveCollector(report.SourceDashboard, started, err)
			if err != nil {
				fail(report.SourceDashboard, err)
			}
			mu.Lock()
			data.Dashboard = groups
			mu.Unlock()
			return nil
		})
	}

	if s.deps.Terminals != nil {
		g.Go(func() error {
			started := time.Now()
			res, err := s.waitExtract(ctx)
			if err == nil && res.Run.Failure != nil {
				err = fmt.Errorf("%s: %s", res.Run.Failure.Code, res.Run.Failure.Message)
			}
			metrics.ObserveCollector(report.SourceTerminals, started, err)
			if err != nil {
				fail(report.SourceTerminals, err)
			}
			if res != nil {
				mu.Lock()
				data.Terminals = res.Run
				mu.Unlock()
			}
			return nil
		})
	}

	if s.deps.Sites != nil && len(inv.Sites) > 0 {
		g.Go(func() error {
			started := time.Now()
			results, occurrences, err := s.deps.Sites.Check(ctx, inv.Sites)
			metrics.ObserveCollector(report.SourceSites, started, err)
			if err != nil {
				fail(report.SourceSites, err)
			}
			mu.Lock()
			data.Sites, data.Occurrences = results, occurrences
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return data
}

func mailBody(t time.Time) string {
	return "Prezado Supervisor Técnico,\n\n" +
		"Segue em anexo o Relatório Técnico Integrado gerado automaticamente.\n\n" +
		"Data: " + t.Format("02/01/2006 15:04") + "\n" +
		"Origem: Servidor de Monitoramento\n"
}
