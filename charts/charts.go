// Package charts downloads rendered graph images from Zabbix frontends.
//
// The frontend has no token API for chart2.php, so the fetcher signs in the
// way a browser does: discover the CSRF token on a login page, post the
// form, and keep the session cookie.
package charts

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"

	"github.com/use-agent/statuswatch/config"
	"github.com/use-agent/statuswatch/models"
)

const (
	width  = 1200
	height = 200
	period = "now-24h"
)

// loginPaths are tried in order until one serves the sign-in form.
var loginPaths = []string{"/index.php", "/", "/zabbix.php?action=signin", "/index_sso.php"}

var sessionCookies = []string{"zbx_session", "zbx_sessionid"}

// ErrSignIn is returned when the frontend did not issue a session cookie.
var ErrSignIn = errors.New("zabbix sign-in failed")

// Fetcher downloads charts from the configured servers.
type Fetcher struct {
	servers  map[string]config.ZabbixServer
	insecure bool
	timeout  time.Duration
}

// New creates a Fetcher for cfg.ChartServers.
func New(cfg config.ZabbixConfig) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Fetcher{servers: cfg.ChartServers, insecure: cfg.InsecureTLS, timeout: timeout}
}

// Collect returns the charts of specs in order. Charts that could not be
// downloaded are skipped; the returned error joins every reason.
func (f *Fetcher) Collect(ctx context.Context, specs []config.ChartSpec) ([]models.Chart, error) {
	sessions := make(map[string]*session)
	failed := make(map[string]error)

	var charts []models.Chart
	var errs []error

	for _, spec := range specs {
		if err, ok := failed[spec.Server]; ok {
			errs = append(errs, fmt.Errorf("chart %d: %w", spec.GraphID, err))
			continue
		}

		sess, ok := sessions[spec.Server]
		if !ok {
			srv, known := f.servers[spec.Server]
			if !known || srv.URL == "" {
				err := fmt.Errorf("server %q not configured", spec.Server)
				failed[spec.Server] = err
				errs = append(errs, fmt.Errorf("chart %d: %w", spec.GraphID, err))
				continue
			}

			var err error
			sess, err = f.signIn(ctx, srv)
			if err != nil {
				slog.Warn("zabbix sign-in failed", "server", spec.Server, "url", srv.URL, "error", err)
				failed[spec.Server] = err
				errs = append(errs, fmt.Errorf("chart %d: %w", spec.GraphID, err))
				continue
			}
			sessions[spec.Server] = sess
		}

		png, err := sess.download(ctx, spec)
		if err != nil {
			slog.Warn("chart download failed", "server", spec.Server, "graph_id", spec.GraphID, "title", spec.Title, "error", err)
			errs = append(errs, fmt.Errorf("chart %d: %w", spec.GraphID, err))
			continue
		}
		charts = append(charts, models.Chart{
			Server:  spec.Server,
			GraphID: spec.GraphID,
			Title:   spec.Title,
			PNG:     png,
		})
	}

	return charts, errors.Join(errs...)
}

type session struct {
	base   string
	client *http.Client
}

func (f *Fetcher) newClient() *http.Client {
	jar, _ := cookiejar.New(nil)
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if f.insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{Jar: jar, Transport: transport, Timeout: f.timeout}
}

// signIn posts the login form and checks for a session cookie.
func (f *Fetcher) signIn(ctx context.Context, srv config.ZabbixServer) (*session, error) {
	if srv.Username == "" || srv.Password == "" {
		return nil, fmt.Errorf("%w: missing credentials", ErrSignIn)
	}

	s := &session{base: strings.TrimRight(srv.URL, "/"), client: f.newClient()}

	form := url.Values{
		"name":     {srv.Username},
		"password": {srv.Password},
		"enter":    {"Sign in"},
	}
	if token := s.csrfToken(ctx); token != "" {
		form.Set("csrf_token", token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+"/index.php", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("zabbix login: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if !s.hasSessionCookie() {
		return nil, ErrSignIn
	}
	return s, nil
}

// csrfToken returns the sign-in form's token, or "" when the form has none
// or no login page responded.
func (s *session) csrfToken(ctx context.Context) string {
	for _, path := range loginPaths {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+path, nil)
		if err != nil {
			continue
		}
		resp, err := s.client.Do(req)
		if err != nil {
			slog.Debug("zabbix login page unreachable", "url", s.base+path, "error", err)
			continue
		}
		doc, err := goquery.NewDocumentFromReader(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || err != nil {
			continue
		}

		if token, ok := doc.Find(`input[name="csrf_token"]`).Attr("value"); ok && token != "" {
			return token
		}
		if doc.Find(`[name="enter"]`).Length() > 0 {
			return ""
		}
	}
	return ""
}

func (s *session) hasSessionCookie() bool {
	u, err := url.Parse(s.base + "/index.php")
	if err != nil {
		return false
	}
	for _, c := range s.client.Jar.Cookies(u) {
		for _, name := range sessionCookies {
			if c.Name == name {
				return true
			}
		}
	}
	return false
}

func chartURL(base string, spec config.ChartSpec) string {
	q := url.Values{}
	q.Set("graphid", strconv.Itoa(spec.GraphID))
	q.Set("width", strconv.Itoa(width))
	q.Set("height", strconv.Itoa(height))
	q.Set("from", period)
	q.Set("to", "now")
	q.Set("profileIdx", "web.charts.filter")
	q.Set("resolve_macros", "1")
	if spec.HostID != 0 {
		q.Set("hostids[0]", strconv.Itoa(spec.HostID))
	}
	return base + "/chart2.php?" + q.Encode()
}

// download fetches one chart. A non-image body (an expired session serves
// the login page with status 200) is an error.
func (s *session) download(ctx context.Context, spec config.ChartSpec) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, chartURL(s.base, spec), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, err
	}
	if mt := mimetype.Detect(body); !strings.HasPrefix(mt.String(), "image/") {
		return nil, fmt.Errorf("unexpected content type %s", mt.String())
	}
	return body, nil
}
