package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/use-agent/statuswatch/cache"
	"github.com/use-agent/statuswatch/charts"
	"github.com/use-agent/statuswatch/config"
	"github.com/use-agent/statuswatch/dashboard"
	"github.com/use-agent/statuswatch/diagnostics"
	"github.com/use-agent/statuswatch/digest"
	"github.com/use-agent/statuswatch/driver"
	"github.com/use-agent/statuswatch/extractor"
	"github.com/use-agent/statuswatch/history"
	"github.com/use-agent/statuswatch/models"
	"github.com/use-agent/statuswatch/notify"
	"github.com/use-agent/statuswatch/sites"
)

// app holds everything a command needs. close releases it in reverse
// order of acquisition.
type app struct {
	cfg     *config.Config
	svc     *digest.Service
	history *history.Store
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// build wires the service from configuration.
//
// Lifecycle:
//
//  1. Inventory   – YAML targets
//  2. Sources     – diagnostics, charts, dashboard, terminals, sites
//  3. Persistence – Postgres history, Redis mirror (both optional)
//  4. Service     – digest pipeline with notifiers
func build(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	// ── 1. Inventory ─────────────────────────────────────────────────
	inv, err := config.LoadInventory(cfg.InventoryPath)
	if err != nil {
		return nil, err
	}

	// ── 2. Sources ───────────────────────────────────────────────────
	openBrowser := func(ctx context.Context) (driver.Driver, error) {
		s, err := driver.Open(ctx, cfg.Browser)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	engine := extractor.New(extractor.FromConfig(cfg.Portal, cfg.Extraction), openBrowser)

	deps := digest.Deps{
		Diagnostics: diagnostics.New(diagnostics.ExecRunner{}),
		Charts:      charts.New(cfg.Zabbix),
		Dashboard:   dashboard.New(cfg.Zabbix, cfg.Grafana),
		Terminals: digest.TerminalFunc(func(ctx context.Context) *models.TerminalRun {
			return engine.Run(ctx).Snapshot()
		}),
		Sites: sites.NewChecker(
			sites.NewHTTPFetcher(cfg.Browser.Proxy, cfg.Sites.Timeout),
			sites.NewBrowserRenderer(openBrowser),
			sites.NewStore(cfg.Sites.HashDir),
			cfg.Sites,
		),
		Notifiers: notify.FromConfig(cfg.Email, cfg.Webhook),
	}
	if cfg.Portal.Username == "" {
		slog.Warn("portal credentials not set, terminal section will report a failure")
	}

	// ── 3. Persistence ───────────────────────────────────────────────
	if cfg.History.PostgresURL != "" {
		store, err := history.Open(ctx, cfg.History.PostgresURL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("open history: %w", err)
		}
		a.history = store
		a.closers = append(a.closers, store.Close)
		deps.Recorder = store
		slog.Info("run history enabled")
	}
	if cfg.Cache.RedisURL != "" {
		mirror, err := cache.NewMirror(ctx, cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("open redis mirror: %w", err)
		}
		a.closers = append(a.closers, func() { _ = mirror.Close() })
		deps.Mirror = mirror
		slog.Info("redis mirror enabled")
	}

	// ── 4. Service ───────────────────────────────────────────────────
	a.svc = digest.New(deps, cfg.Report, inv, cfg.Cache)
	a.closers = append(a.closers, a.svc.Close)

	names := make([]string, 0, len(deps.Notifiers))
	for _, n := range deps.Notifiers {
		names = append(names, n.Name())
	}
	slog.Info("service ready",
		"providers", len(inv.Diagnostics.Providers),
		"tunnels", len(inv.Diagnostics.Tunnels),
		"charts", len(inv.Charts),
		"sites", len(inv.Sites),
		"notifiers", names,
	)
	return a, nil
}
