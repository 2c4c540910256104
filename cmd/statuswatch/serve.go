package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/use-agent/statuswatch/api"
	"github.com/use-agent/statuswatch/api/handler"
	"github.com/use-agent/statuswatch/config"
	"github.com/use-agent/statuswatch/digest"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API and the report schedule",
		Description: `Serves /api/v1 and /metrics. When STATUSWATCH_SCHEDULE_ENABLED is set the
report is generated every STATUSWATCH_REPORT_INTERVAL. The inventory file
is reloaded whenever it changes.`,
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "shutdown-timeout",
				Usage: "Time given to in-flight requests on shutdown",
				Value: 5 * time.Second,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return serve(ctx, cmd.Duration("shutdown-timeout"))
		},
	}
}

// serve runs until ctx is cancelled.
//
// Lifecycle:
//
//  1. Configuration + logging
//  2. Wiring
//  3. HTTP server, scheduler, inventory watcher
//  4. Graceful shutdown
func serve(ctx context.Context, shutdownTimeout time.Duration) error {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()
	initLogger(cfg.Log)
	slog.Info("statuswatch starting",
		"version", version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"schedule", cfg.Schedule.Enabled,
	)

	// ── 2. Wire service ─────────────────────────────────────────────
	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	var reports handler.ReportLister
	if a.history != nil {
		reports = a.history
	}
	router := api.NewRouter(ctx, a.svc, reports, cfg, time.Now())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── 3. Run ──────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.Schedule.Enabled {
		g.Go(func() error {
			schedule(gctx, a.svc, cfg.Schedule)
			return nil
		})
	}

	if cfg.InventoryPath != "" {
		g.Go(func() error {
			if err := config.WatchInventory(gctx, cfg.InventoryPath, a.svc.SetInventory); err != nil {
				slog.Warn("inventory reload disabled", "error", err)
			}
			return nil
		})
	}

	// ── 4. Graceful shutdown ────────────────────────────────────────
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			slog.Error("HTTP server forced shutdown", "error", err)
			return nil
		}
		slog.Info("HTTP server drained gracefully")
		return nil
	})

	err = g.Wait()
	slog.Info("statuswatch stopped")
	return err
}

// schedule generates a report every interval until ctx is done.
func schedule(ctx context.Context, svc *digest.Service, cfg config.ScheduleConfig) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	slog.Info("report schedule started", "interval", cfg.Interval, "deliver", cfg.Deliver)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		res, err := svc.Generate(ctx, digest.Options{Deliver: cfg.Deliver})
		if err != nil {
			slog.Error("scheduled report failed", "error", err)
			continue
		}
		slog.Info("scheduled report done", "run_id", res.ID, "path", res.Path)
	}
}
