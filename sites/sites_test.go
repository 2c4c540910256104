package sites

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/use-agent/statuswatch/config"
	"github.com/use-agent/statuswatch/driver"
	"github.com/use-agent/statuswatch/models"
)

const homeV1 = `<html><head><title>Comando Militar da Amazônia</title></head><body>
<main>
<h1>Comando Militar da Amazônia</h1>
<div class="carousel"><img src="/img/selva.jpg"><img data-src="/img/rio.jpg"></div>
<p>O Comando Militar da Amazônia é o grande comando responsável pela defesa da região amazônica,
coordenando brigadas de infantaria de selva, batalhões de fronteira e unidades de apoio logístico
espalhadas por milhares de quilômetros de rios e florestas.</p>
<p>Atualizado em 19/10/2026 08:15</p>
<p>Visualizações: 1234</p>
</main></body></html>`

const homeV2 = `<html><head><title>Página em manutenção</title></head><body>
<table><tr><td>Este domínio está à venda</td></tr><tr><td>Entre em contato com o registrador
para ofertas de compra, hospedagem barata e serviços de correio eletrônico corporativo.</td></tr>
<tr><td>Apostas esportivas bônus cassino online grátis promoção exclusiva hoje.</td></tr></table>
</body></html>`

func siteServer(t *testing.T) (*httptest.Server, *atomic.Pointer[string]) {
	t.Helper()

	home := new(atomic.Pointer[string])
	v1 := homeV1
	home.Store(&v1)

	mux := http.NewServeMux()
	mux.HandleFunc("/cma/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, *home.Load())
	})
	mux.HandleFunc("/moved/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://parked.example/landing", http.StatusFound)
	})
	mux.HandleFunc("/moved-too/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://parked.example/", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/broken/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/pagina-nao-encontrada", http.StatusFound)
	})
	mux.HandleFunc("/pagina-nao-encontrada", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>Ops</body></html>")
	})
	mux.HandleFunc("/iis/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body><h2>404 - File or directory not found.</h2></body></html>")
	})
	mux.HandleFunc("/down/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, home
}

func newTestChecker(t *testing.T, render Renderer) *Checker {
	t.Helper()
	return NewChecker(
		NewHTTPFetcher("", 5*time.Second),
		render,
		NewStore(t.TempDir()),
		config.SitesConfig{Timeout: 5 * time.Second, DiffThreshold: 3, Concurrency: 3, DomainSuffix: ".eb.mil.br"},
	)
}

func TestChecker_Occurrences(t *testing.T) {
	srv, _ := siteServer(t)

	closed := httptest.NewServer(http.NotFoundHandler())
	deadURL := closed.URL + "/"
	closed.Close()

	specs := []config.SiteSpec{
		{Name: "CMA", URL: srv.URL + "/cma/"},
		{Name: "PARKED 1", URL: srv.URL + "/moved/"},
		{Name: "BROKEN", URL: srv.URL + "/broken/"},
		{Name: "IIS", URL: srv.URL + "/iis/"},
		{Name: "DOWN", URL: srv.URL + "/down/"},
		{Name: "DEAD", URL: deadURL},
		{Name: "PARKED 2", URL: srv.URL + "/moved-too/"},
	}

	results, occurrences, err := newTestChecker(t, nil).Check(context.Background(), specs)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(results) != len(specs) {
		t.Fatalf("got %d results, want %d", len(results), len(specs))
	}

	wantOcc := []string{
		"Redirecionado para externo: parked.example",
		"Página de erro: /pagina-nao-encontrada",
		"Erro 404 detectado",
		"Erro HTTP 503",
		"Site inacessível / Timeout",
	}
	if len(occurrences) != len(wantOcc) {
		t.Fatalf("occurrences = %+v", occurrences)
	}
	for i, want := range wantOcc {
		if occurrences[i].Message != want || occurrences[i].ID != fmt.Sprint(i+1) {
			t.Errorf("occurrence[%d] = %+v, want %q", i, occurrences[i], want)
		}
	}

	wantIDs := []string{"-", "1", "2", "3", "4", "5", "1"}
	for i, res := range results {
		if res.Index != i+1 {
			t.Errorf("result[%d].Index = %d", i, res.Index)
		}
		if res.OccurrenceID != wantIDs[i] {
			t.Errorf("%s: occurrence id = %q, want %q", res.Name, res.OccurrenceID, wantIDs[i])
		}
		if res.OK() != (wantIDs[i] == "-") {
			t.Errorf("%s: status = %q", res.Name, res.Status)
		}
	}
}

func TestChecker_ContentChange(t *testing.T) {
	srv, home := siteServer(t)
	checker := newTestChecker(t, nil)
	specs := []config.SiteSpec{{Name: "CMA", URL: srv.URL + "/cma/"}}

	check := func() models.SiteResult {
		t.Helper()
		results, _, err := checker.Check(context.Background(), specs)
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		return results[0]
	}

	if res := check(); !res.OK() {
		t.Fatalf("first visit should only record the fingerprint, got %+v", res)
	}

	// Volatile lines do not count as a change.
	bumped := strings.ReplaceAll(homeV1, "1234", "1301")
	bumped = strings.ReplaceAll(bumped, "08:15", "09:40")
	home.Store(&bumped)
	if res := check(); !res.OK() {
		t.Errorf("counter and timestamp change flagged as alteration: %+v", res)
	}

	v2 := homeV2
	home.Store(&v2)
	if res := check(); res.OK() {
		t.Error("replaced page should be flagged")
	}
	if res := check(); !res.OK() {
		t.Errorf("stored fingerprint should be replaced after a change, got %+v", res)
	}
}

func TestChecker_ImageSetChange(t *testing.T) {
	srv, home := siteServer(t)
	checker := newTestChecker(t, nil)
	specs := []config.SiteSpec{{Name: "CMA", URL: srv.URL + "/cma/"}}

	if _, _, err := checker.Check(context.Background(), specs); err != nil {
		t.Fatal(err)
	}

	swapped := strings.ReplaceAll(homeV1, "/img/rio.jpg", "/img/hacked.jpg")
	home.Store(&swapped)
	results, occ, err := checker.Check(context.Background(), specs)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].OK() || len(occ) != 1 || occ[0].Message != "Alteração visual detectada" {
		t.Errorf("banner swap not detected: %+v %+v", results[0], occ)
	}
}

func TestChecker_CancelledContext(t *testing.T) {
	srv, _ := siteServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := newTestChecker(t, nil).Check(ctx, []config.SiteSpec{{URL: srv.URL + "/cma/"}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

type stubRenderer struct {
	calls atomic.Int32
	page  *Page
	err   error
}

func (s *stubRenderer) Render(ctx context.Context, targetURL string) (*Page, error) {
	s.calls.Add(1)
	return s.page, s.err
}

func TestChecker_RendersSPAShell(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div id="root"></div><script src="/app.js"></script></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	render := &stubRenderer{page: &Page{
		URL:      srv.URL + "/",
		FinalURL: "http://hijacked.example/",
		Status:   200,
		HTML:     homeV1,
		Rendered: true,
	}}

	results, occ, err := newTestChecker(t, render).Check(context.Background(), []config.SiteSpec{{URL: srv.URL + "/"}})
	if err != nil {
		t.Fatal(err)
	}
	if render.calls.Load() != 1 {
		t.Errorf("renderer called %d times, want 1", render.calls.Load())
	}
	if results[0].OK() || occ[0].Message != "Redirecionado para externo: hijacked.example" {
		t.Errorf("rendered location not used: %+v %+v", results[0], occ)
	}
}

func TestChecker_RenderFailureKeepsHTTPBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div id="app"></div></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	render := &stubRenderer{err: errors.New("chromium missing")}
	results, _, err := newTestChecker(t, render).Check(context.Background(), []config.SiteSpec{{URL: srv.URL + "/"}})
	if err != nil {
		t.Fatal(err)
	}
	if !results[0].OK() {
		t.Errorf("render failure should fall back to the http body, got %+v", results[0])
	}
}

func TestSiteName(t *testing.T) {
	c := newTestChecker(t, nil)
	tests := []struct {
		spec config.SiteSpec
		want string
	}{
		{config.SiteSpec{URL: "https://www.cma.eb.mil.br/"}, "CMA"},
		{config.SiteSpec{URL: "https://www.cma.eb.mil.br/4cta"}, "CMA 4CTA"},
		{config.SiteSpec{URL: "http://8bis.eb.mil.br/portal/inicio"}, "8BIS PORTALINICIO"},
		{config.SiteSpec{URL: "https://example.org"}, "EXAMPLE.ORG"},
		{config.SiteSpec{URL: "https://licitacoeseb.example", Name: "LICITAÇÕES 12RM"}, "LICITAÇÕES 12RM"},
		{config.SiteSpec{URL: "not a url"}, "SITE"},
	}
	for _, tt := range tests {
		if got := c.siteName(tt.spec); got != tt.want {
			t.Errorf("siteName(%q) = %q, want %q", tt.spec.URL, got, tt.want)
		}
	}
}

func TestNeedsBrowser(t *testing.T) {
	long := "<html><body><p>" + strings.Repeat("conteúdo institucional ", 30) + "</p></body></html>"
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"empty root", `<html><body><div id="root"></div></body></html>`, true},
		{"short text", `<html><body><p>Olá</p></body></html>`, true},
		{"plain page", long, false},
		{"noscript warning", strings.Replace(long, "<body>", "<body><noscript>Por favor habilite o JavaScript</noscript>", 1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := needsBrowser(tt.body); got != tt.want {
				t.Errorf("needsBrowser = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPageTitle(t *testing.T) {
	if got := pageTitle(homeV1); got != "Comando Militar da Amazônia" {
		t.Errorf("pageTitle = %q", got)
	}
	if got := pageTitle("<html><body></body></html>"); got != "" {
		t.Errorf("pageTitle without title = %q", got)
	}
}

func TestBannerImages(t *testing.T) {
	raw := `<html><body>
<div class="main-carousel"><img src="/a.jpg"><img data-src="b.jpg"><img src="data:image/png;base64,AAAA"></div>
<section id="top-banner"><img src="/a.jpg"></section>
<footer><img src="/logo.png"></footer>
</body></html>`
	base, _ := url.Parse("https://www.cma.eb.mil.br/home/")

	images, err := bannerImages(raw, base)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"https://www.cma.eb.mil.br/a.jpg", "https://www.cma.eb.mil.br/home/b.jpg"}
	if strings.Join(images, ",") != strings.Join(want, ",") {
		t.Errorf("images = %v, want %v", images, want)
	}
	if imageDigest(nil) != "" {
		t.Error("empty image set should digest to empty string")
	}
	if imageDigest(images) == imageDigest(images[:1]) {
		t.Error("different sets produced the same digest")
	}
}

func TestStore(t *testing.T) {
	store := NewStore(t.TempDir() + "/hashes")
	const site = "https://www.cma.eb.mil.br/"

	if _, ok, err := store.Load(site); ok || err != nil {
		t.Fatalf("Load on empty store = %v, %v", ok, err)
	}

	fp := Fingerprint{Text: 42, Layout: 7, Images: "abc", UpdatedAt: time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)}
	if err := store.Save(site, fp); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, ok, err := store.Load(site)
	if err != nil || !ok {
		t.Fatalf("Load = %v, %v", ok, err)
	}
	if got.Text != fp.Text || got.Layout != fp.Layout || got.Images != fp.Images || !got.UpdatedAt.Equal(fp.UpdatedAt) {
		t.Errorf("Load = %+v, want %+v", got, fp)
	}
}

func TestFileKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://www.cma.eb.mil.br/", "www.cma.eb.mil.br_"},
		{"http://8bis.eb.mil.br/portal/inicio", "8bis.eb.mil.br_portal_inicio"},
		{"https://host:8443/a?b=c", "host_8443_a"},
	}
	for _, tt := range tests {
		if got := fileKey(tt.in); got != tt.want {
			t.Errorf("fileKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := fileKey("https://example.org/" + strings.Repeat("x", 300)); len(got) != 120 {
		t.Errorf("long key length = %d, want 120", len(got))
	}
}

type renderDriver struct {
	navigated string
	closed    bool
}

func (d *renderDriver) Navigate(u string) error { d.navigated = u; return nil }
func (d *renderDriver) FindAll(driver.Selector) ([]driver.Node, error) {
	return nil, nil
}
func (d *renderDriver) Evaluate(js string) (string, error) {
	if strings.Contains(js, "location.href") {
		return "https://www.cma.eb.mil.br/inicio", nil
	}
	return "<html><body>rendered</body></html>", nil
}
func (d *renderDriver) NudgePointer(dx, dy float64) error { return nil }
func (d *renderDriver) PressEscape() error                { return nil }
func (d *renderDriver) Close() error                      { d.closed = true; return nil }

func TestBrowserRenderer(t *testing.T) {
	d := &renderDriver{}
	r := NewBrowserRenderer(func(ctx context.Context) (driver.Driver, error) { return d, nil })

	page, err := r.Render(context.Background(), "https://www.cma.eb.mil.br/")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if d.navigated != "https://www.cma.eb.mil.br/" || !d.closed {
		t.Errorf("driver not used correctly: %+v", d)
	}
	if page.FinalURL != "https://www.cma.eb.mil.br/inicio" || !page.Rendered || !strings.Contains(page.HTML, "rendered") {
		t.Errorf("page = %+v", page)
	}

	failing := NewBrowserRenderer(func(ctx context.Context) (driver.Driver, error) { return nil, errors.New("no chromium") })
	if _, err := failing.Render(context.Background(), "https://x"); err == nil {
		t.Error("open failure should be returned")
	}
}
