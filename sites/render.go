package sites

import (
	"context"
	"fmt"

	"github.com/use-agent/statuswatch/driver"
)

// Renderer loads a page in a real browser. It is used when the plain HTTP
// body is an SPA shell.
type Renderer interface {
	Render(ctx context.Context, targetURL string) (*Page, error)
}

// Opener starts a browser session.
type Opener func(ctx context.Context) (driver.Driver, error)

// BrowserRenderer renders pages through a fresh driver session per call.
type BrowserRenderer struct {
	open Opener
}

// NewBrowserRenderer returns a Renderer backed by open.
func NewBrowserRenderer(open Opener) *BrowserRenderer {
	return &BrowserRenderer{open: open}
}

func (r *BrowserRenderer) Render(ctx context.Context, targetURL string) (*Page, error) {
	d, err := r.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("render: open browser: %w", err)
	}
	defer d.Close()

	if err := d.Navigate(targetURL); err != nil {
		return nil, fmt.Errorf("render: navigate: %w", err)
	}

	finalURL, err := d.Evaluate("() => location.href")
	if err != nil {
		return nil, fmt.Errorf("render: read location: %w", err)
	}
	markup, err := d.Evaluate("() => document.documentElement.outerHTML")
	if err != nil {
		return nil, fmt.Errorf("render: read document: %w", err)
	}

	return &Page{
		URL:      targetURL,
		FinalURL: finalURL,
		Status:   200,
		HTML:     markup,
		Rendered: true,
	}, nil
}
