package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Inventory is the static description of what the report covers. It changes
// far less often than credentials and endpoints, so it lives in a YAML file
// instead of the environment.
type Inventory struct {
	// DisplayNames maps a terminal's stable identifier to the organisational
	// name printed in the report.
	DisplayNames map[string]string `yaml:"display_names"`

	Diagnostics DiagnosticsInventory `yaml:"diagnostics"`
	Charts      []ChartSpec          `yaml:"charts"`

	// DashboardUID is the Grafana dashboard holding the PoP status panels.
	DashboardUID string `yaml:"dashboard_uid"`

	Sites []SiteSpec `yaml:"sites"`
}

// DiagnosticsInventory groups the ping/path tests.
type DiagnosticsInventory struct {
	Providers []TestSpec `yaml:"providers"`
	Tunnels   []TestSpec `yaml:"tunnels"`
}

// TestSpec is one connectivity test, e.g. command "ping 200.213.232.73".
type TestSpec struct {
	Name           string `yaml:"name"`
	Command        string `yaml:"command"`
	WAN            string `yaml:"wan"`
	Note           string `yaml:"note"`
	TimeoutSeconds int    `yaml:"timeout"`
	Count          int    `yaml:"count"`
}

// ChartSpec is one Zabbix graph rendered into the report.
type ChartSpec struct {
	Server  string `yaml:"server"`
	GraphID int    `yaml:"graph_id"`
	Title   string `yaml:"title"`
	HostID  int    `yaml:"host_id"`
}

// SiteSpec is one hosted site whose availability and content are tracked.
type SiteSpec struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`

	// Selector optionally scopes the fingerprint to a CSS-selected region.
	Selector string `yaml:"selector"`

	// Ignore lists CSS selectors of volatile regions (news tickers, visitor
	// counters) removed before fingerprinting.
	Ignore []string `yaml:"ignore"`
}

// LoadInventory reads the YAML inventory at path. An empty path yields an
// empty inventory.
func LoadInventory(path string) (*Inventory, error) {
	inv := &Inventory{DisplayNames: map[string]string{}}
	if path == "" {
		return inv, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read inventory: %w", err)
	}
	if err := yaml.Unmarshal(data, inv); err != nil {
		return nil, fmt.Errorf("config: parse inventory %s: %w", path, err)
	}
	if inv.DisplayNames == nil {
		inv.DisplayNames = map[string]string{}
	}

	for i := range inv.Diagnostics.Providers {
		inv.Diagnostics.Providers[i].applyDefaults()
	}
	for i := range inv.Diagnostics.Tunnels {
		inv.Diagnostics.Tunnels[i].applyDefaults()
	}
	return inv, nil
}

func (t *TestSpec) applyDefaults() {
	if t.TimeoutSeconds <= 0 {
		t.TimeoutSeconds = 5
	}
	if t.Count <= 0 {
		t.Count = 4
	}
}
