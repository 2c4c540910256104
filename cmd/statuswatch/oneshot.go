package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/use-agent/statuswatch/config"
	"github.com/use-agent/statuswatch/digest"
)

func reportCmd() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Collect every source, build the report and exit",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "deliver",
				Usage: "Send the report over the configured email and webhook",
			},
			&cli.StringFlag{
				Name:    "output-dir",
				Usage:   "Directory the HTML and Markdown files are written to",
				Sources: cli.EnvVars("STATUSWATCH_OUTPUT_DIR"),
				Value:   "output",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.Load()
			cfg.Report.OutputDir = cmd.String("output-dir")
			initLogger(cfg.Log)

			a, err := build(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.svc.Generate(ctx, digest.Options{Deliver: cmd.Bool("deliver")})
			if err != nil {
				return err
			}
			if err := printJSON(res.Summary); err != nil {
				return err
			}
			if res.DeliveryError != "" {
				return fmt.Errorf("delivery: %s", res.DeliveryError)
			}
			return nil
		},
	}
}

func extractCmd() *cli.Command {
	return &cli.Command{
		Name:  "extract",
		Usage: "Run one terminal extraction and print it as JSON",
		Description: `Signs in to the terminal portal, walks every page of the status table and
prints the run, including warnings and any failure, to stdout. The exit
status is non-zero when the run failed.`,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.Load()
			initLogger(cfg.Log)

			a, err := build(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.svc.ExtractTerminals(ctx)
			if err != nil {
				return err
			}
			if err := printJSON(res); err != nil {
				return err
			}
			if f := res.Run.Failure; f != nil {
				return errors.New(f.Code + ": " + f.Message)
			}
			return nil
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
