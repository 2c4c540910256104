package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/statuswatch/models"
)

func main() {
	apiURL := os.Getenv("STATUSWATCH_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("STATUSWATCH_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "STATUSWATCH_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"statuswatch",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	c := &client{apiURL: strings.TrimRight(apiURL, "/"), apiKey: apiKey}

	latestTerminalsTool := mcp.NewTool("latest_terminals",
		mcp.WithDescription("Return the latest satellite terminal extraction: every terminal with its state (ONLINE, OFFLINE, WARNING, UNKNOWN), totals and warnings."),
		mcp.WithNumber("max_age_minutes",
			mcp.Description("Only accept a run younger than this many minutes (default: any age)"),
		),
	)
	s.AddTool(latestTerminalsTool, handleLatestTerminals(c))

	extractTerminalsTool := mcp.NewTool("extract_terminals",
		mcp.WithDescription("Run a fresh terminal extraction against the portal. Takes several minutes; fails with BUSY when one is already running."),
	)
	s.AddTool(extractTerminalsTool, handleExtractTerminals(c))

	generateReportTool := mcp.NewTool("generate_report",
		mcp.WithDescription("Collect every source and build the daily report. Returns the summary counts."),
		mcp.WithBoolean("deliver",
			mcp.Description("Also send the report by email and webhook (default: false)"),
		),
	)
	s.AddTool(generateReportTool, handleGenerateReport(c))

	latestReportTool := mcp.NewTool("latest_report",
		mcp.WithDescription("Return the latest report as Markdown."),
		mcp.WithNumber("max_age_minutes",
			mcp.Description("Only accept a report younger than this many minutes (default: any age)"),
		),
	)
	s.AddTool(latestReportTool, handleLatestReport(c))

	listReportsTool := mcp.NewTool("list_reports",
		mcp.WithDescription("List recent reports with their summary counts, newest first. Requires run history on the server."),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of reports (default: 30)"),
		),
	)
	s.AddTool(listReportsTool, handleListReports(c))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// client calls the statuswatch HTTP API.
type client struct {
	apiURL string
	apiKey string
}

func (c *client) do(ctx context.Context, timeout time.Duration, method, path string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := (&http.Client{Timeout: timeout}).Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, data, err
}

// apiError extracts the error detail of a failed response.
func apiError(status int, body []byte) string {
	var e models.ErrorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error != nil {
		return fmt.Sprintf("[%s] %s", e.Error.Code, e.Error.Message)
	}
	return fmt.Sprintf("API returned HTTP %d", status)
}

func maxAgeQuery(request mcp.CallToolRequest) string {
	minutes := request.GetFloat("max_age_minutes", 0)
	if minutes <= 0 {
		return ""
	}
	return "max_age_ms=" + fmt.Sprint(int64(minutes*60*1000))
}

func handleLatestTerminals(c *client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path := "/api/v1/terminals/latest"
		if q := maxAgeQuery(request); q != "" {
			path += "?" + q
		}
		return terminalsResult(c.do(ctx, 30*time.Second, http.MethodGet, path, nil))
	}
}

func handleExtractTerminals(c *client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return terminalsResult(c.do(ctx, 45*time.Minute, http.MethodPost, "/api/v1/terminals/extract", nil))
	}
}

func terminalsResult(status int, body []byte, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var resp models.TerminalsResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Run == nil {
		return mcp.NewToolResultError(apiError(status, body)), nil
	}
	return mcp.NewToolResultText(formatRun(resp)), nil
}

func formatRun(resp models.TerminalsResponse) string {
	run := resp.Run
	var sb strings.Builder
	fmt.Fprintf(&sb, "Run %s started %s\n", resp.RunID, run.StartedAt.Format(time.RFC3339))
	if f := run.Failure; f != nil {
		fmt.Fprintf(&sb, "FAILED: [%s] %s\n", f.Code, f.Message)
		return sb.String()
	}
	fmt.Fprintf(&sb, "Total %d (expected %d) | Online %d | Offline %d | Pages %d\n\n",
		run.ActualTotal, run.ExpectedTotal,
		run.CountState("ONLINE"), run.CountState("OFFLINE"), run.PagesVisited)
	for _, r := range run.Records {
		id := r.StableID
		if id == "" {
			id = "-"
		}
		fmt.Fprintf(&sb, "%-8s %-14s %s\n", r.State, id, r.Label)
	}
	for _, w := range run.Warnings {
		fmt.Fprintf(&sb, "\nwarning (%s): %s", w.Kind, w.Message)
	}
	return sb.String()
}

func handleGenerateReport(c *client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		payload := models.GenerateReportRequest{Deliver: request.GetBool("deliver", false)}
		status, body, err := c.do(ctx, 60*time.Minute, http.MethodPost, "/api/v1/reports", payload)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var resp models.ReportResponse
		if err := json.Unmarshal(body, &resp); err != nil || !resp.Success || resp.Summary == nil {
			return mcp.NewToolResultError(apiError(status, body)), nil
		}

		result := formatSummary(*resp.Summary)
		if resp.Path != "" {
			result += "\nSaved to " + resp.Path
		}
		if resp.DeliveryError != "" {
			result += "\nDelivery failed: " + resp.DeliveryError
		} else if resp.Delivered {
			result += "\nDelivered."
		}
		return mcp.NewToolResultText(result), nil
	}
}

func handleLatestReport(c *client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q := url.Values{"format": {"markdown"}}
		if minutes := request.GetFloat("max_age_minutes", 0); minutes > 0 {
			q.Set("max_age_ms", fmt.Sprint(int64(minutes*60*1000)))
		}
		status, body, err := c.do(ctx, 30*time.Second, http.MethodGet, "/api/v1/reports/latest?"+q.Encode(), nil)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if status != http.StatusOK {
			return mcp.NewToolResultError(apiError(status, body)), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}

func handleListReports(c *client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path := "/api/v1/reports"
		if limit := request.GetInt("limit", 0); limit > 0 {
			path += fmt.Sprintf("?limit=%d", limit)
		}
		status, body, err := c.do(ctx, 30*time.Second, http.MethodGet, path, nil)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var resp models.HistoryResponse
		if err := json.Unmarshal(body, &resp); err != nil || !resp.Success {
			return mcp.NewToolResultError(apiError(status, body)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "%d reports:\n\n", len(resp.Reports))
		for _, r := range resp.Reports {
			sb.WriteString(formatSummary(r))
			sb.WriteString("\n\n")
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func formatSummary(s models.ReportSummary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Report %s (%s)\n", s.ID, s.GeneratedAt.Format("02/01/2006 15:04"))
	fmt.Fprintf(&sb, "Providers %d/%d OK | Tunnels %d/%d OK | Charts %d\n",
		s.ProvidersOK, s.ProvidersTotal, s.TunnelsOK, s.TunnelsTotal, s.Charts)
	fmt.Fprintf(&sb, "Panels %d down of %d | Terminals %d online, %d offline of %d\n",
		s.PanelsDown, s.PanelsTotal, s.TerminalsOnline, s.TerminalsOffline, s.TerminalsTotal)
	fmt.Fprintf(&sb, "Sites %d/%d OK | Occurrences %d", s.SitesOK, s.SitesTotal, s.Occurrences)
	for source, msg := range s.SourceErrors {
		fmt.Fprintf(&sb, "\n%s unavailable: %s", source, msg)
	}
	return sb.String()
}
