// Package diagnostics runs the connectivity tests behind the providers and
// tunnels sections: ping for reachability, mtr (or traceroute when mtr is
// not installed) for path checks.
package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/use-agent/statuswatch/config"
	"github.com/use-agent/statuswatch/models"
)

// maxOutput bounds the command output kept on a result.
const maxOutput = 4096

// Runner executes an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands on the local host.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Prober executes test specs through a Runner.
type Prober struct {
	runner      Runner
	concurrency int
}

// New creates a Prober. A nil runner uses ExecRunner.
func New(runner Runner) *Prober {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Prober{runner: runner, concurrency: 4}
}

// RunAll runs every spec concurrently and returns results in spec order.
func (p *Prober) RunAll(ctx context.Context, specs []config.TestSpec) []models.DiagnosticResult {
	results := make([]models.DiagnosticResult, len(specs))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, spec := range specs {
		g.Go(func() error {
			results[i] = p.Run(ctx, spec)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Run executes one spec. A test passes iff the tool exits with status 0.
func (p *Prober) Run(ctx context.Context, spec config.TestSpec) models.DiagnosticResult {
	start := time.Now()
	res := models.DiagnosticResult{
		Name:    spec.Name,
		Command: spec.Command,
		WAN:     spec.WAN,
		Note:    spec.Note,
	}

	fields := strings.Fields(spec.Command)
	if len(fields) < 2 {
		res.Output = "invalid test command"
		return res
	}
	tool, host := fields[0], fields[1]
	wait := time.Duration(spec.TimeoutSeconds) * time.Second

	var out []byte
	var err error
	switch tool {
	case "ping":
		res.Tool = "ping"
		out, err = p.run(ctx, wait+5*time.Second, "ping",
			"-c", strconv.Itoa(spec.Count), "-W", strconv.Itoa(spec.TimeoutSeconds), host)
	case "mtr":
		res.Tool = "mtr"
		out, err = p.run(ctx, wait+10*time.Second, "mtr",
			"-r", "-c", strconv.Itoa(spec.Count), "-w", host)
		if errors.Is(err, exec.ErrNotFound) {
			res.Tool = "traceroute"
			out, err = p.run(ctx, wait+10*time.Second, "traceroute",
				"-m", "15", "-w", strconv.Itoa(spec.TimeoutSeconds), host)
		}
	default:
		res.Output = fmt.Sprintf("unsupported tool %q", tool)
		return res
	}

	res.OK = err == nil
	res.Output = truncate(string(out))
	res.DurationMs = time.Since(start).Milliseconds()

	slog.Debug("diagnostic finished",
		"name", spec.Name, "tool", res.Tool, "host", host, "ok", res.OK, "error", err,
	)
	return res
}

func (p *Prober) run(ctx context.Context, timeout time.Duration, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.runner.Run(ctx, name, args...)
}

func truncate(s string) string {
	if len(s) <= maxOutput {
		return s
	}
	return s[:maxOutput]
}
