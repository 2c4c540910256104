// Package dashboard correlates the Grafana status dashboard with Zabbix
// host addresses, producing the grouped PoP status tables of the report.
package dashboard

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/use-agent/statuswatch/config"
	"github.com/use-agent/statuswatch/models"
)

// Status texts.
const (
	StatusUp     = "UP"
	StatusDown   = "DOWN"
	StatusViaBBS = "Via BBS"
	StatusNoData = "SEM DADOS"
)

// latencyGreen is the highest latency value still shown as healthy.
const latencyGreen = 0.2

// Correlator reads one Grafana dashboard and resolves panel hosts through
// the Zabbix API.
type Correlator struct {
	zabbix  config.ZabbixConfig
	grafana config.GrafanaConfig
	client  *http.Client
}

// New creates a Correlator.
func New(z config.ZabbixConfig, g config.GrafanaConfig) *Correlator {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if z.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	timeout := z.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Correlator{zabbix: z, grafana: g, client: &http.Client{Transport: transport, Timeout: timeout}}
}

type panel struct {
	Title       string `json:"title"`
	FieldConfig struct {
		Defaults struct {
			NoValue string `json:"noValue"`
		} `json:"defaults"`
	} `json:"fieldConfig"`
	Targets []map[string]any `json:"targets"`

	// Panels holds the children of a collapsed row.
	Panels []panel `json:"panels"`
}

type dashboardResponse struct {
	Dashboard struct {
		Panels []panel `json:"panels"`
	} `json:"dashboard"`
}

type queryResponse struct {
	Results map[string]struct {
		Frames []struct {
			Data struct {
				Values [][]*float64 `json:"values"`
			} `json:"data"`
		} `json:"frames"`
	} `json:"results"`
}

// Collect builds the panel groups of dashboard uid. Header panels (those
// whose "no value" text is a location name) open a group; every panel with
// a query becomes an item of the current group. A Zabbix failure leaves
// addresses blank; a Grafana failure is returned.
func (c *Correlator) Collect(ctx context.Context, uid string) ([]models.PanelGroup, error) {
	if c.grafana.URL == "" || uid == "" {
		return nil, errors.New("grafana dashboard not configured")
	}

	ips, err := c.hostAddresses(ctx)
	if err != nil {
		slog.Warn("zabbix host lookup failed, addresses will be blank", "error", err)
	}

	panels, err := c.dashboardPanels(ctx, uid)
	if err != nil {
		return nil, err
	}

	type job struct {
		group, item int
		title       string
		target      map[string]any
	}

	var groups []models.PanelGroup
	var jobs []job
	for _, p := range flatten(panels) {
		if noValue := strings.TrimSpace(p.FieldConfig.Defaults.NoValue); utf8.RuneCountInString(noValue) > 2 {
			groups = append(groups, models.PanelGroup{Title: groupTitle(noValue)})
			continue
		}
		if len(p.Targets) == 0 || len(groups) == 0 {
			continue
		}
		g := len(groups) - 1
		title := p.Title
		if title == "" {
			title = "Sem Nome"
		}
		groups[g].Items = append(groups[g].Items, models.PanelItem{Name: title})
		jobs = append(jobs, job{group: g, item: len(groups[g].Items) - 1, title: title, target: p.Targets[0]})
	}

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(8)
	for _, j := range jobs {
		eg.Go(func() error {
			host, value, item := c.query(ectx, j.target)
			status, color := panelStatus(value, item)

			it := &groups[j.group].Items[j.item]
			it.Value = value
			it.Status = status
			it.Color = color
			it.IP = lookup(ips, host, j.title, hostKey(host), hostKey(j.title))
			return nil
		})
	}
	_ = eg.Wait()

	return groups, ctx.Err()
}

func flatten(panels []panel) []panel {
	var out []panel
	for _, p := range panels {
		out = append(out, p)
		if len(p.Panels) > 0 {
			out = append(out, flatten(p.Panels)...)
		}
	}
	return out
}

func groupTitle(noValue string) string {
	raw := strings.ToUpper(noValue)
	if strings.Contains(raw, "INTERNET") || strings.Contains(raw, "BBI") {
		return "STATUS DE PROVEDORES DE " + raw
	}
	return "STATUS DOS PoP REME " + raw
}

func lookup(ips map[string]string, keys ...string) string {
	for _, k := range keys {
		if k == "" {
			continue
		}
		if ip, ok := ips[k]; ok {
			return ip
		}
	}
	return "-"
}

// panelStatus maps a panel's last value to its status text and color.
// Latency items read 0 as down; any other item reads 1 as up.
func panelStatus(value *float64, item string) (string, string) {
	if value == nil {
		return StatusNoData, models.ColorGray
	}

	lower := strings.ToLower(item)
	if strings.Contains(lower, "latencia") || strings.Contains(lower, "latência") {
		switch {
		case *value == 0:
			return StatusDown, models.ColorRed
		case *value <= latencyGreen:
			return StatusViaBBS, models.ColorGreen
		default:
			return StatusViaBBS, models.ColorYellow
		}
	}

	if *value == 1 {
		return StatusUp, models.ColorGreen
	}
	return StatusDown, models.ColorRed
}

func (c *Correlator) dashboardPanels(ctx context.Context, uid string) ([]panel, error) {
	endpoint := strings.TrimRight(c.grafana.URL, "/") + "/api/dashboards/uid/" + url.PathEscape(uid)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("grafana dashboard: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("grafana dashboard: HTTP %d", resp.StatusCode)
	}

	var dr dashboardResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("grafana dashboard: decode: %w", err)
	}
	return dr.Dashboard.Panels, nil
}

// query runs a panel target over the last 24 hours and returns the target
// host, the last non-null value and the item name. value is nil when the
// query failed or returned nothing.
func (c *Correlator) query(ctx context.Context, target map[string]any) (string, *float64, string) {
	host := filter(target, "host")
	item := filter(target, "item")
	if host == "" {
		return "", nil, item
	}

	q := maps.Clone(target)
	q["refId"] = "A"
	body, err := json.Marshal(map[string]any{
		"from":    "now-24h",
		"to":      "now",
		"queries": []any{q},
	})
	if err != nil {
		return host, nil, item
	}

	endpoint := strings.TrimRight(c.grafana.URL, "/") + "/api/ds/query"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return host, nil, item
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Debug("grafana query failed", "host", host, "error", err)
		return host, nil, item
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
	if err != nil {
		return host, nil, item
	}
	var qr queryResponse
	if err := json.Unmarshal(data, &qr); err != nil {
		slog.Debug("grafana query: undecodable response", "host", host, "error", err)
		return host, nil, item
	}

	res, ok := qr.Results["A"]
	if !ok || len(res.Frames) == 0 {
		return host, nil, item
	}
	values := res.Frames[0].Data.Values
	if len(values) < 2 {
		return host, nil, item
	}
	series := values[1]
	for i := len(series) - 1; i >= 0; i-- {
		if series[i] != nil {
			v := *series[i]
			return host, &v, item
		}
	}
	return host, nil, item
}

func (c *Correlator) authorize(req *http.Request) {
	if c.grafana.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.grafana.Token)
	}
}

// filter reads target[field].filter, falling back to the older nested
// target.zabbix[field].filter layout of the Zabbix datasource plugin.
func filter(target map[string]any, field string) string {
	if v := nestedFilter(target, field); v != "" {
		return v
	}
	if z, ok := target["zabbix"].(map[string]any); ok {
		return nestedFilter(z, field)
	}
	return ""
}

func nestedFilter(m map[string]any, field string) string {
	f, ok := m[field].(map[string]any)
	if !ok {
		return ""
	}
	s, _ := f["filter"].(string)
	return s
}
