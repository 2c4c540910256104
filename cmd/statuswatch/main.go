package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/use-agent/statuswatch/api/handler"
	"github.com/use-agent/statuswatch/config"
)

// overridden during build with ldflags
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler.Version = version

	cmd := &cli.Command{
		Name:    "statuswatch",
		Usage:   "Daily infrastructure health report",
		Version: version,
		Description: `Collects connectivity diagnostics, monitoring charts, dashboard status,
satellite terminal states and hosted-site checks into one dated report.

Configuration is read from STATUSWATCH_* environment variables; the
inventory of targets lives in the YAML file named by STATUSWATCH_INVENTORY.`,
		Commands: []*cli.Command{
			serveCmd(),
			reportCmd(),
			extractCmd(),
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogger configures slog based on the LogConfig. Logs go to stderr so
// that commands printing JSON keep stdout clean.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(os.Stderr, opts)
	} else {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(h))
}
