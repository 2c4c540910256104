// Package report renders the integrated daily report: a cover, a table of
// contents built from the section headings, and one section per source.
// The document is a self-contained HTML file with a Markdown rendition
// for mail bodies and API clients.
package report

import (
	"bytes"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/gabriel-vasile/mimetype"

	"github.com/use-agent/statuswatch/cleaner"
	"github.com/use-agent/statuswatch/config"
	"github.com/use-agent/statuswatch/models"
)

//go:embed templates/report.html.tmpl
var templates embed.FS

// Source names used as SourceErrors keys.
const (
	SourceDiagnostics = "diagnostics"
	SourceCharts      = "charts"
	SourceDashboard   = "dashboard"
	SourceTerminals   = "terminals"
	SourceSites       = "sites"
)

var months = [...]string{
	"janeiro", "fevereiro", "março", "abril", "maio", "junho",
	"julho", "agosto", "setembro", "outubro", "novembro", "dezembro",
}

// Dateline formats the place and date line of the cover, e.g.
// "Manaus, 19 de outubro de 2026".
func Dateline(place string, t time.Time) string {
	return fmt.Sprintf("%s, %d de %s de %d", place, t.Day(), months[t.Month()-1], t.Year())
}

// Document is one rendered report.
type Document struct {
	GeneratedAt time.Time
	HTML        []byte
	Markdown    string
}

// FileName is the HTML file name, Relatorio_Integrado_YYYY-MM-DD.html.
func (d *Document) FileName() string {
	return "Relatorio_Integrado_" + d.GeneratedAt.Format("2006-01-02") + ".html"
}

// Save writes the HTML file and its .md sibling into dir and returns the
// HTML path.
func (d *Document) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("report: create output dir: %w", err)
	}
	path := filepath.Join(dir, d.FileName())
	if err := os.WriteFile(path, d.HTML, 0o644); err != nil {
		return "", fmt.Errorf("report: write html: %w", err)
	}
	mdPath := strings.TrimSuffix(path, ".html") + ".md"
	if err := os.WriteFile(mdPath, []byte(d.Markdown), 0o644); err != nil {
		return "", fmt.Errorf("report: write markdown: %w", err)
	}
	return path, nil
}

// Builder renders ReportData. It is safe for concurrent use.
type Builder struct {
	cfg   config.ReportConfig
	names map[string]string
	tmpl  *template.Template
	conv  *converter.Converter
}

// NewBuilder creates a Builder. names maps terminal identifiers to the
// organisation names shown in the satellite section.
func NewBuilder(cfg config.ReportConfig, names map[string]string) *Builder {
	tmpl := template.Must(template.New("report.html.tmpl").Funcs(template.FuncMap{
		"inc":     func(i int) int { return i + 1 },
		"css":     colorCSS,
		"siteCSS": siteCSS,
	}).ParseFS(templates, "templates/report.html.tmpl"))

	if cfg.Place == "" {
		cfg.Place = "Manaus"
	}
	return &Builder{cfg: cfg, names: names, tmpl: tmpl, conv: cleaner.NewMarkdownConverter()}
}

// Build renders data into a Document.
func (b *Builder) Build(data *models.ReportData) (*Document, error) {
	v := view{
		Header:   b.cfg.Header,
		Signer:   b.cfg.SignerRole,
		Dateline: Dateline(b.cfg.Place, data.GeneratedAt),
		Sections: b.sections(data),
	}

	var html bytes.Buffer
	if err := b.tmpl.Execute(&html, v); err != nil {
		return nil, fmt.Errorf("report: render html: %w", err)
	}

	// The Markdown rendition leaves chart images out.
	v.TextOnly = true
	var text bytes.Buffer
	if err := b.tmpl.Execute(&text, v); err != nil {
		return nil, fmt.Errorf("report: render text: %w", err)
	}
	md, err := cleaner.ToMarkdown(b.conv, text.String(), "")
	if err != nil {
		return nil, fmt.Errorf("report: markdown: %w", err)
	}

	return &Document{GeneratedAt: data.GeneratedAt, HTML: html.Bytes(), Markdown: md}, nil
}

type view struct {
	Header   string
	Signer   string
	Dateline string
	Sections []*section
	TextOnly bool
}

// section is one heading of the document with the body that follows it.
// Level 1 headings are numbered "N.", level 2 headings "N.M".
type section struct {
	Number string
	Title  string
	Level  int
	Kind   string
	Note   string
	Error  string

	Diagnostics []diagnosticRow
	Chart       *chartView
	Panels      []models.PanelItem
	Terminals   []terminalRow
	Summary     *terminalSummary
	Warnings    []string
	Sites       []models.SiteResult
	Occurrences []models.Occurrence
}

// Anchor is the element id the table of contents links to.
func (s section) Anchor() string {
	return "sec-" + strings.ReplaceAll(strings.TrimSuffix(s.Number, "."), ".", "-")
}

type diagnosticRow struct {
	Index      int // 0 for tunnels, which have no index or WAN column
	Name       string
	Command    string
	Note       string
	WAN        string
	Status     string
	Background string
}

type chartView struct {
	Server  string
	GraphID int
	Title   string
	Src     template.URL
}

type terminalRow struct {
	Index      string
	Name       string
	StableID   string
	State      string
	Background string
}

type terminalSummary struct {
	Total, Online, Offline int
}

// sections lays out the document. Numbering follows the order sources
// appear: every dashboard group is a numbered section of its own.
func (b *Builder) sections(data *models.ReportData) []*section {
	var out []*section
	n := 0
	next := func(title, kind string) *section {
		n++
		s := &section{Number: strconv.Itoa(n) + ".", Title: title, Level: 1, Kind: kind}
		out = append(out, s)
		return s
	}
	sub := func(m int, title, kind string) *section {
		s := &section{Number: fmt.Sprintf("%d.%d", n, m), Title: title, Level: 2, Kind: kind}
		out = append(out, s)
		return s
	}
	errOf := func(source string) string { return data.SourceErrors[source] }

	// ── 1. Providers and tunnels ────────────────────────────────────
	s := next("STATUS DE PROVEDORES DE INTERNET E BBI", "providers")
	s.Error = errOf(SourceDiagnostics)
	for i, r := range data.Providers {
		s.Diagnostics = append(s.Diagnostics, diagnosticRowOf(i+1, r))
	}
	if len(data.Providers) == 0 {
		s.Note = "Sem resultados de testes de provedores."
	}
	if len(data.Tunnels) > 0 {
		t := sub(1, "STATUS DOS TÚNEIS CONFIGURADOS PARA CONTINGÊNCIA", "tunnels")
		for _, r := range data.Tunnels {
			t.Diagnostics = append(t.Diagnostics, diagnosticRowOf(0, r))
		}
	}

	// ── 2. Charts ──────────────────────────────────────────────────
	s = next("GRÁFICOS DE BANDA E LATÊNCIA PELOS LINKS DE ENTRADA", "charts")
	s.Error = errOf(SourceCharts)
	if len(data.Charts) == 0 {
		s.Note = "Gráficos indisponíveis."
	}
	for i, c := range data.Charts {
		cs := sub(i+1, c.Title, "chart")
		cs.Chart = &chartView{Server: c.Server, GraphID: c.GraphID, Title: c.Title, Src: dataURI(c.PNG)}
	}

	// ── 3. Dashboard groups ────────────────────────────────────────
	if len(data.Dashboard) == 0 {
		s = next("STATUS DOS POP REME", "panels")
		s.Error = errOf(SourceDashboard)
		s.Note = "Não foi possível coletar dados da REME."
	}
	for _, g := range data.Dashboard {
		s = next(g.Title, "panels")
		s.Panels = g.Items
		if len(g.Items) == 0 {
			s.Note = "Sem dados para esta localidade."
		}
	}

	// ── 4. Satellite terminals ─────────────────────────────────────
	s = next("STATUS DOS PONTOS SATELITAIS - STARLINK", "terminals")
	s.Error = errOf(SourceTerminals)
	b.fillTerminals(s, data.Terminals)

	// ── 5. Hosted sites ────────────────────────────────────────────
	s = next("FUNCIONAMENTO DOS SITES HOSPEDADOS", "sites")
	s.Error = errOf(SourceSites)
	s.Sites = data.Sites
	if len(data.Sites) == 0 {
		s.Note = "Sem dados de sites."
	}
	if len(data.Occurrences) > 0 {
		o := sub(1, "DETALHAMENTO DE OCORRÊNCIAS", "occurrences")
		o.Occurrences = data.Occurrences
	}

	return out
}

// fillTerminals renders one row per record. A failed run renders its
// failure entry as the only row so the section is never silently empty.
func (b *Builder) fillTerminals(s *section, run *models.TerminalRun) {
	if run == nil {
		s.Note = "Sem dados do Pulsar disponíveis no momento."
		return
	}
	if run.Failure != nil {
		s.Terminals = []terminalRow{{
			Index:      "-",
			Name:       "Dados indisponíveis: " + run.Failure.Message,
			StableID:   "-",
			State:      "UNKNOWN",
			Background: stateCSS("UNKNOWN"),
		}}
		return
	}
	if len(run.Records) == 0 {
		s.Note = "Nenhum terminal listado no portal."
		return
	}

	for i, rec := range run.Records {
		s.Terminals = append(s.Terminals, terminalRow{
			Index:      strconv.Itoa(i + 1),
			Name:       b.displayName(rec),
			StableID:   orDash(rec.StableID),
			State:      rec.State,
			Background: stateCSS(rec.State),
		})
	}
	s.Summary = &terminalSummary{
		Total:   len(run.Records),
		Online:  run.CountState("ONLINE"),
		Offline: run.CountState("OFFLINE"),
	}
	for _, w := range run.Warnings {
		s.Warnings = append(s.Warnings, "Aviso: "+w.Message)
	}
}

func (b *Builder) displayName(rec models.TerminalRecord) string {
	if rec.StableID != "" {
		if name, ok := b.names[rec.StableID]; ok && name != "" {
			return name
		}
	}
	return rec.Label
}

func diagnosticRowOf(index int, r models.DiagnosticResult) diagnosticRow {
	row := diagnosticRow{
		Index:   index,
		Name:    r.Name,
		Command: r.Command,
		Note:    r.Note,
		WAN:     r.WAN,
	}
	if r.OK {
		row.Status, row.Background = "OK", colorCSS(models.ColorGreen)
	} else {
		row.Status, row.Background = "FALHA", colorCSS(models.ColorRed)
	}
	return row
}

func dataURI(img []byte) template.URL {
	if len(img) == 0 {
		return ""
	}
	return template.URL("data:" + mimetype.Detect(img).String() + ";base64," + base64.StdEncoding.EncodeToString(img))
}

func colorCSS(color string) string {
	switch color {
	case models.ColorGreen:
		return "lime"
	case models.ColorRed:
		return "red"
	case models.ColorYellow:
		return "yellow"
	default:
		return "lightgrey"
	}
}

func stateCSS(state string) string {
	switch state {
	case "ONLINE":
		return "lime"
	case "OFFLINE":
		return "red"
	case "WARNING":
		return "yellow"
	default:
		return "lightgrey"
	}
}

func siteCSS(s models.SiteResult) string {
	if s.OK() {
		return "lime"
	}
	return "red"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
