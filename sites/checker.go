// Package sites checks hosted institutional sites for availability,
// hijacking redirects, error pages and unannounced content changes.
package sites

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/use-agent/statuswatch/cleaner"
	"github.com/use-agent/statuswatch/config"
	"github.com/use-agent/statuswatch/models"
)

// Occurrence messages. They double as occurrence keys: sites reporting the
// same message share one occurrence ID.
const (
	msgUnreachable = "Site inacessível / Timeout"
	msgNotFound    = "Erro 404 detectado"
	msgChanged     = "Alteração visual detectada"
)

const notFoundMarker = "404 - File or directory not found"

var errorPathMarkers = []string{"/error", "/404", "pagina-nao-encontrada"}

// Checker runs site checks with bounded concurrency.
type Checker struct {
	fetch  Fetcher
	render Renderer // nil disables browser rendering
	store  *Store
	cfg    config.SitesConfig
}

// NewChecker creates a Checker. render may be nil.
func NewChecker(fetch Fetcher, render Renderer, store *Store, cfg config.SitesConfig) *Checker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Checker{fetch: fetch, render: render, store: store, cfg: cfg}
}

// Check visits every site and returns one result per site in input order,
// plus the numbered occurrence list. Individual site failures become
// occurrences; Check itself only fails when ctx is cancelled.
func (c *Checker) Check(ctx context.Context, specs []config.SiteSpec) ([]models.SiteResult, []models.Occurrence, error) {
	messages := make([]string, len(specs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i, spec := range specs {
		g.Go(func() error {
			messages[i] = c.checkOne(gctx, spec)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	results := make([]models.SiteResult, len(specs))
	var occurrences []models.Occurrence
	ids := make(map[string]string)

	for i, spec := range specs {
		res := models.SiteResult{
			Index:        i + 1,
			Name:         c.siteName(spec),
			URL:          spec.URL,
			Status:       models.SiteStatusOK,
			OccurrenceID: "-",
		}
		if msg := messages[i]; msg != "" {
			id, ok := ids[msg]
			if !ok {
				id = strconv.Itoa(len(occurrences) + 1)
				ids[msg] = id
				occurrences = append(occurrences, models.Occurrence{ID: id, Message: msg, Action: "-"})
			}
			res.Status = models.SiteStatusOccurrence
			res.OccurrenceID = id
		}
		results[i] = res
	}
	return results, occurrences, nil
}

// checkOne returns the occurrence message for spec, or "" when the site is fine.
func (c *Checker) checkOne(ctx context.Context, spec config.SiteSpec) string {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	log := slog.With("site", spec.URL)

	// ── 1. Fetch ──────────────────────────────────────────────────────
	page, err := c.fetch.Fetch(ctx, spec.URL)
	if err != nil {
		log.Warn("site unreachable", "error", err)
		return msgUnreachable
	}

	// ── 2. Render SPA shells ──────────────────────────────────────────
	if c.render != nil && page.HTML != "" && needsBrowser(page.HTML) {
		rendered, err := c.render.Render(ctx, spec.URL)
		if err != nil {
			log.Debug("browser render failed, using http body", "error", err)
		} else {
			page = rendered
		}
	}

	// ── 3. Where did we land? ─────────────────────────────────────────
	orig, _ := url.Parse(spec.URL)
	final, err := url.Parse(page.FinalURL)
	if err != nil || final.Host == "" {
		final = orig
	}
	if orig != nil && !sameHost(orig.Host, final.Host) {
		return "Redirecionado para externo: " + final.Host
	}
	lowerPath := strings.ToLower(final.Path)
	for _, marker := range errorPathMarkers {
		if strings.Contains(lowerPath, marker) {
			return "Página de erro: " + final.Path
		}
	}

	// ── 4. Error bodies ───────────────────────────────────────────────
	if strings.Contains(page.HTML, notFoundMarker) {
		return msgNotFound
	}
	if page.Status >= 400 {
		return fmt.Sprintf("Erro HTTP %d", page.Status)
	}

	// ── 5. Content change ─────────────────────────────────────────────
	changed, err := c.compare(spec, page)
	if err != nil {
		log.Warn("fingerprint store failed", "error", err)
	}
	if changed {
		log.Info("site content changed", "title", pageTitle(page.HTML))
		return msgChanged
	}
	return ""
}

// compare fingerprints page against the stored fingerprint. The store is
// updated on first visit and on change.
func (c *Checker) compare(spec config.SiteSpec, page *Page) (bool, error) {
	markup := page.HTML
	if spec.Selector != "" {
		scoped, err := cleaner.Scope(markup, spec.Selector)
		if err != nil {
			slog.Warn("invalid site selector, using whole page", "site", spec.URL, "selector", spec.Selector, "error", err)
		} else {
			markup = scoped
		}
	}

	if len(spec.Ignore) > 0 {
		stripped, err := cleaner.Exclude(markup, spec.Ignore)
		if err != nil {
			return false, err
		}
		markup = stripped
	}

	text, _ := cleaner.MainText(markup, page.FinalURL)
	base, _ := url.Parse(page.FinalURL)
	images, err := bannerImages(markup, base)
	if err != nil {
		return false, err
	}

	current := Fingerprint{
		Text:      textFingerprint(cleaner.StableText(text)),
		Layout:    layoutFingerprint(markup),
		Images:    imageDigest(images),
		UpdatedAt: time.Now().UTC(),
	}

	stored, ok, err := c.store.Load(spec.URL)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, c.store.Save(spec.URL, current)
	}

	if !c.differs(stored, current) {
		return false, nil
	}
	return true, c.store.Save(spec.URL, current)
}

func (c *Checker) differs(a, b Fingerprint) bool {
	return distance(a.Text, b.Text) > c.cfg.DiffThreshold ||
		distance(a.Layout, b.Layout) > c.cfg.DiffThreshold ||
		a.Images != b.Images
}

// siteName is the configured name, or the host without "www." and the
// domain suffix, followed by the path, upper-cased.
func (c *Checker) siteName(spec config.SiteSpec) string {
	if spec.Name != "" {
		return spec.Name
	}
	u, err := url.Parse(spec.URL)
	if err != nil || u.Host == "" {
		return "SITE"
	}

	name := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if c.cfg.DomainSuffix != "" {
		name = strings.TrimSuffix(name, strings.ToLower(c.cfg.DomainSuffix))
	}
	if len(u.Path) > 1 {
		name += " " + strings.ReplaceAll(u.Path, "/", "")
	}
	return strings.ToUpper(name)
}
