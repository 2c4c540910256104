package sites

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	tls2 "github.com/refraction-networking/utls"
	"golang.org/x/net/html"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Page is a fetched document and where it ended up.
type Page struct {
	URL      string // requested
	FinalURL string // after same-host redirects, or the off-host Location
	Status   int
	HTML     string
	Rendered bool // produced by the browser rather than plain HTTP
}

// Fetcher retrieves a page.
type Fetcher interface {
	Fetch(ctx context.Context, targetURL string) (*Page, error)
}

// httpFetcher performs HTTP requests with a Chrome TLS fingerprint (utls).
// Redirects are followed only within the original host; an off-host
// redirect is reported through FinalURL instead of being fetched.
type httpFetcher struct {
	proxy   string
	timeout time.Duration
}

// NewHTTPFetcher creates a Chrome-fingerprinted HTTP fetcher.
func NewHTTPFetcher(proxy string, timeout time.Duration) Fetcher {
	return &httpFetcher{proxy: proxy, timeout: timeout}
}

func (f *httpFetcher) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialTLSChrome(ctx, network, addr, f.proxy)
		},
	}
	if f.proxy != "" {
		proxyURL, err := url.Parse(f.proxy)
		if err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   f.timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("stopped after %d redirects", len(via))
			}
			if !sameHost(req.URL.Host, via[0].URL.Host) {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("httpfetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en;q=0.8")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpfetch: request failed: %w", err)
	}
	defer resp.Body.Close()

	page := &Page{URL: targetURL, FinalURL: resp.Request.URL.String(), Status: resp.StatusCode}
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		if loc, err := resp.Location(); err == nil {
			page.FinalURL = loc.String()
		}
		return page, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024)) // 10 MB cap
	if err != nil {
		return nil, fmt.Errorf("httpfetch: read body: %w", err)
	}
	page.HTML = string(body)
	return page, nil
}

// dialTLSChrome establishes a TLS connection using a Chrome fingerprint via utls.
func dialTLSChrome(ctx context.Context, network, addr, proxy string) (net.Conn, error) {
	var rawConn net.Conn
	var err error

	dialer := &net.Dialer{}

	if proxy != "" {
		proxyURL, parseErr := url.Parse(proxy)
		if parseErr == nil && (proxyURL.Scheme == "socks5" || proxyURL.Scheme == "socks5h") {
			socksConn, socksErr := dialer.DialContext(ctx, "tcp", proxyURL.Host)
			if socksErr != nil {
				return nil, fmt.Errorf("socks5 dial: %w", socksErr)
			}
			rawConn = socksConn
		}
	}

	if rawConn == nil {
		rawConn, err = dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
	}

	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls2.UClient(rawConn, &tls2.Config{ServerName: host}, tls2.HelloChrome_Auto)

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}

func sameHost(a, b string) bool {
	return strings.EqualFold(strings.TrimPrefix(a, "www."), strings.TrimPrefix(b, "www."))
}

// needsBrowser uses heuristics to decide if the HTTP-fetched HTML likely
// needs JS rendering (SPA shell, heavy JS dependency, noscript warnings).
func needsBrowser(body string) bool {
	bodyText := visibleBodyText(body)

	// 1. Very little visible text in <body> → likely SPA shell
	if len(bodyText) < 200 {
		return true
	}

	lower := strings.ToLower(body)

	// 2. Empty SPA root containers
	for _, shell := range []string{`<div id="root"></div>`, `<div id="app"></div>`, `<div id="__next"></div>`} {
		if strings.Contains(lower, shell) {
			return true
		}
	}

	// 3. <noscript> with JS-required warnings
	if reNoscript.MatchString(lower) {
		return true
	}

	// 4. Many <script> tags + little body text → JS-heavy page
	return strings.Count(lower, "<script") > 10 && len(bodyText) < 500
}

var reNoscript = regexp.MustCompile(`<noscript[^>]*>[^<]*(enable|activate|turn on|requires?|habilite|ative)\s+(o\s+)?javascript`)

// pageTitle extracts the <title> content from raw HTML.
func pageTitle(body string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(body))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				if tokenizer.Next() == html.TextToken {
					return strings.TrimSpace(string(tokenizer.Text()))
				}
				return ""
			}
		}
	}
}

// visibleBodyText extracts the visible text from within <body>, stripping
// all tags and <script>/<style> content. Used for heuristic analysis only.
func visibleBodyText(body string) string {
	tokenizer := html.NewTokenizer(bytes.NewReader([]byte(body)))
	var buf strings.Builder
	inBody := false
	skipDepth := 0

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return buf.String()
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			tag := string(tn)
			if tag == "body" {
				inBody = true
			}
			if tag == "script" || tag == "style" || tag == "noscript" {
				skipDepth++
			}
		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			tag := string(tn)
			if (tag == "script" || tag == "style" || tag == "noscript") && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if inBody && skipDepth == 0 {
				text := strings.TrimSpace(string(tokenizer.Text()))
				if text != "" {
					buf.WriteString(text)
					buf.WriteByte(' ')
				}
			}
		}
	}
}
