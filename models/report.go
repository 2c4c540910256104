package models

import "time"

// DiagnosticResult is the outcome of one ping or path test.
type DiagnosticResult struct {
	Name       string `json:"name"`
	Command    string `json:"command"`
	WAN        string `json:"wan,omitempty"`
	Note       string `json:"note,omitempty"`
	OK         bool   `json:"ok"`
	Tool       string `json:"tool"` // ping, mtr or traceroute
	Output     string `json:"output,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Chart is one rendered metrics graph.
type Chart struct {
	Server  string `json:"server"`
	GraphID int    `json:"graph_id"`
	Title   string `json:"title"`
	PNG     []byte `json:"-"`
}

// PanelItem is one dashboard panel correlated with a device address.
type PanelItem struct {
	Name   string   `json:"name"`
	IP     string   `json:"ip"`
	Value  *float64 `json:"value,omitempty"`
	Status string   `json:"status"` // UP, DOWN, Via BBS, SEM DADOS
	Color  string   `json:"color"`  // GREEN, YELLOW, RED, GRAY
}

// Status colors shared by the dashboard and report sections.
const (
	ColorGreen  = "GREEN"
	ColorYellow = "YELLOW"
	ColorRed    = "RED"
	ColorGray   = "GRAY"
)

// PanelGroup is a titled section of dashboard panels.
type PanelGroup struct {
	Title string      `json:"title"`
	Items []PanelItem `json:"items"`
}

// Site status values.
const (
	SiteStatusOK         = "S/A"  // sem alteração
	SiteStatusOccurrence = "C.O." // com ocorrência
)

// SiteResult is the check outcome of one hosted site.
type SiteResult struct {
	Index        int    `json:"index"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	Status       string `json:"status"`
	OccurrenceID string `json:"occurrence_id"` // "-" when there is none
}

// OK reports whether the site had no occurrence.
func (s SiteResult) OK() bool { return s.Status == SiteStatusOK }

// Occurrence is a numbered problem description shared by every site that
// reported the same message.
type Occurrence struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Action  string `json:"action"`
}

// ReportData is everything the document builder renders.
type ReportData struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Providers   []DiagnosticResult `json:"providers"`
	Tunnels     []DiagnosticResult `json:"tunnels"`
	Charts      []Chart            `json:"charts"`
	Dashboard   []PanelGroup       `json:"dashboard"`
	Terminals   *TerminalRun       `json:"terminals,omitempty"`
	Sites       []SiteResult       `json:"sites"`
	Occurrences []Occurrence       `json:"occurrences"`

	// SourceErrors maps a collector name to the error that emptied its section.
	SourceErrors map[string]string `json:"source_errors,omitempty"`
}

// ReportSummary condenses one report for history, webhooks and API listings.
type ReportSummary struct {
	ID          string    `json:"id"`
	GeneratedAt time.Time `json:"generated_at"`
	FileName    string    `json:"file_name,omitempty"`

	ProvidersOK      int `json:"providers_ok"`
	ProvidersTotal   int `json:"providers_total"`
	TunnelsOK        int `json:"tunnels_ok"`
	TunnelsTotal     int `json:"tunnels_total"`
	Charts           int `json:"charts"`
	PanelsDown       int `json:"panels_down"`
	PanelsTotal      int `json:"panels_total"`
	TerminalsOnline  int `json:"terminals_online"`
	TerminalsOffline int `json:"terminals_offline"`
	TerminalsTotal   int `json:"terminals_total"`
	SitesOK          int `json:"sites_ok"`
	SitesTotal       int `json:"sites_total"`
	Occurrences      int `json:"occurrences"`

	SourceErrors map[string]string `json:"source_errors,omitempty"`
}

// Summarize counts the outcomes of every section.
func (d *ReportData) Summarize(id, fileName string) ReportSummary {
	s := ReportSummary{
		ID:             id,
		GeneratedAt:    d.GeneratedAt,
		FileName:       fileName,
		ProvidersTotal: len(d.Providers),
		TunnelsTotal:   len(d.Tunnels),
		Charts:         len(d.Charts),
		SitesTotal:     len(d.Sites),
		Occurrences:    len(d.Occurrences),
		SourceErrors:   d.SourceErrors,
	}
	for _, p := range d.Providers {
		if p.OK {
			s.ProvidersOK++
		}
	}
	for _, t := range d.Tunnels {
		if t.OK {
			s.TunnelsOK++
		}
	}
	for _, g := range d.Dashboard {
		for _, it := range g.Items {
			s.PanelsTotal++
			if it.Color == ColorRed {
				s.PanelsDown++
			}
		}
	}
	if d.Terminals != nil && d.Terminals.Failure == nil {
		s.TerminalsTotal = len(d.Terminals.Records)
		s.TerminalsOnline = d.Terminals.CountState("ONLINE")
		s.TerminalsOffline = d.Terminals.CountState("OFFLINE")
	}
	for _, site := range d.Sites {
		if site.OK() {
			s.SitesOK++
		}
	}
	return s
}
