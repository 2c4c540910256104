package driver

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/statuswatch/config"
	"github.com/use-agent/statuswatch/models"
)

// Open launches a dedicated browser and returns a Session bound to ctx.
// Cancelling ctx aborts every in-flight browser operation; Close must still be
// called to kill the browser process.
//
// Lifecycle:
//
//  1. Launch          – start Chromium with stealth + viewport flags
//  2. Connect         – attach rod over CDP
//  3. Page            – one tab per session, sized for hover gestures
//  4. Stealth         – mask navigator.webdriver (before navigation!)
//  5. Headers         – extra headers (Accept-Language)
//  6. Hijack          – block configured resource types (before navigation!)
//  7. Context binding – propagate ctx to all rod operations
func Open(ctx context.Context, cfg config.BrowserConfig) (*Session, error) {
	// ── 1. Launch ─────────────────────────────────────────────────────
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", cfg.WindowWidth, cfg.WindowHeight))
	l.Set(flags.Flag("disable-gpu"))
	l.Set(flags.Flag("ignore-certificate-errors"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("no-first-run"))
	if cfg.UserAgent != "" {
		l.Set(flags.Flag("user-agent"), cfg.UserAgent)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewExtractError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Debug("browser launched", "controlURL", controlURL)

	// ── 2. Connect ────────────────────────────────────────────────────
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, models.NewExtractError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	s := &Session{
		launcher:   l,
		browser:    browser,
		navTimeout: cfg.NavigationTimeout,
		actTimeout: cfg.ActionTimeout,
	}

	// ── 3. Page ───────────────────────────────────────────────────────
	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = s.Close()
		return nil, models.NewExtractError(
			models.ErrCodeBrowserCrash,
			"failed to open page",
			err,
		)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             cfg.WindowWidth,
		Height:            cfg.WindowHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		slog.Warn("viewport override failed, keeping window size", "error", err)
	}

	// ── 4. Stealth ────────────────────────────────────────────────────
	if cfg.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth",
				"error", evalErr,
			)
		}
	}

	// ── 5. Headers ────────────────────────────────────────────────────
	_ = proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(map[string]string{
			"Accept-Language": "en-US,en;q=0.9,pt-BR;q=0.8",
		}),
	}.Call(page)

	// ── 6. Hijack ─────────────────────────────────────────────────────
	s.router = setupHijack(page, cfg.BlockedResourceTypes)

	// ── 7. Context binding ────────────────────────────────────────────
	s.page = page.Context(ctx)
	return s, nil
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// hostOf returns the hostname of rawURL, or rawURL itself when unparsable.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}
