// Package extractor scrapes the satellite-terminal portal: it signs in,
// walks the paginated terminal table, hovers each status indicator to
// recover the terminal identifier from its tooltip, classifies the
// indicator color and deduplicates rows across re-renders.
//
// The engine is strictly sequential. One run owns one browser session and
// all of its state; nothing survives between runs.
package extractor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/use-agent/statuswatch/driver"
	"github.com/use-agent/statuswatch/metrics"
	"github.com/use-agent/statuswatch/models"
)

// Opener acquires a fresh browser session for one run. Cancelling ctx
// tears the session down.
type Opener func(ctx context.Context) (driver.Driver, error)

// Engine runs extractions. An Engine holds configuration only and may be
// reused; each Run starts from a clean session.
type Engine struct {
	opts       Options
	open       Opener
	clock      Clock
	strategies []TooltipStrategy
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithTooltipStrategies replaces the ordered tooltip strategy list.
func WithTooltipStrategies(s ...TooltipStrategy) Option {
	return func(e *Engine) { e.strategies = s }
}

func New(opts Options, open Opener, options ...Option) *Engine {
	e := &Engine{
		opts:       opts.withDefaults(),
		open:       open,
		clock:      RealClock(),
		strategies: DefaultTooltipStrategies(),
	}
	for _, o := range options {
		o(e)
	}
	return e
}

// Run performs one extraction. It never panics and never returns nil: a
// run that cannot complete yields zero records and a Failure entry.
//
// The run is bounded by RunTimeout on top of any deadline already on ctx.
//
// Lifecycle:
//
//  1. Session      – open a dedicated browser session (closed on every path)
//  2. Bootstrap    – sign in, open the dashboard, apply the reporting window
//  3. Pagination   – discover the total, extract every page
//  4. Finalize     – reconcile actual against expected
func (e *Engine) Run(ctx context.Context) (res *RunResult) {
	start := e.clock.Now()
	res = &RunResult{StartedAt: start}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("extraction panic", "panic", r)
			res.fail(models.NewExtractError(models.ErrCodePanic, fmt.Sprintf("panic: %v", r), nil))
		}
		res.Duration = e.clock.Now().Sub(start)
		observe(res)
	}()

	if e.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.RunTimeout)
		defer cancel()
	}

	// ── 1. Session ────────────────────────────────────────────────────
	d, err := e.open(ctx)
	if err != nil {
		slog.Error("browser session unavailable", "error", err)
		res.fail(err)
		return res
	}
	defer func() {
		if cerr := d.Close(); cerr != nil {
			slog.Warn("browser session close failed", "error", cerr)
		}
	}()

	// ── 2. Bootstrap ──────────────────────────────────────────────────
	warnings, err := NewBootstrapper(d, e.clock, e.opts).Bootstrap()
	res.Warnings = append(res.Warnings, warnings...)
	if err != nil {
		slog.Error("portal bootstrap failed", "error", err)
		res.fail(interrupted(ctx, err))
		return res
	}

	// ── 3. Pagination ─────────────────────────────────────────────────
	rows := newRowExtractor(d, e.clock, e.opts, e.strategies)
	seen := NewDeduper()
	ctrl := NewController(d, e.clock, e.opts)

	err = ctrl.Run(func(page int, nodes []driver.Node) {
		accepted := 0
		for position, node := range nodes {
			rec, ok, rowErr := rows.extract(node)
			if !ok {
				continue
			}
			if rowErr != nil {
				res.warn(WarningRowExtraction, "page %d row %d (%s): %v", page, position, rec.label, rowErr)
			}
			if seen.Accept(rec, position) {
				accepted++
			}
		}
		slog.Info("page extracted", "page", page, "rows", len(nodes), "accepted", accepted)
	})
	res.Warnings = append(res.Warnings, ctrl.Warnings()...)
	if err != nil || ctx.Err() != nil {
		res.fail(interrupted(ctx, err))
		return res
	}

	// ── 4. Finalize ───────────────────────────────────────────────────
	state := ctrl.State()
	res.Records = seen.Records()
	res.ExpectedTotal = state.ExpectedTotal
	res.ActualTotal = len(res.Records)
	res.PagesVisited = state.CurrentPage
	if res.ActualTotal < res.ExpectedTotal {
		res.warn(WarningTotalMismatch, "extracted %d of %d expected terminals", res.ActualTotal, res.ExpectedTotal)
	}

	slog.Info("extraction complete",
		"records", res.ActualTotal,
		"expected", res.ExpectedTotal,
		"pages", res.PagesVisited,
		"warnings", len(res.Warnings),
	)
	return res
}

// interrupted reports an ended ctx as a timeout, whatever error the
// interrupted step surfaced.
func interrupted(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return models.NewExtractError(models.ErrCodeTimeout, "extraction cancelled", ctx.Err())
	}
	return err
}

func observe(res *RunResult) {
	metrics.ExtractionDuration.Observe(res.Duration.Seconds())
	for _, w := range res.Warnings {
		metrics.ExtractionWarningsTotal.WithLabelValues(string(w.Kind)).Inc()
	}
	if res.Failure != nil {
		metrics.ExtractionRunsTotal.WithLabelValues("failure", res.Failure.Code).Inc()
	} else {
		metrics.ExtractionRunsTotal.WithLabelValues("success", "").Inc()
	}
	for _, s := range States {
		metrics.TerminalRecords.WithLabelValues(s.String()).Set(float64(res.Count(s)))
	}
}
