package driver

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Session is a Driver backed by one Chromium tab.
type Session struct {
	launcher   *launcher.Launcher
	browser    *rod.Browser
	page       *rod.Page
	router     *rod.HijackRouter
	navTimeout time.Duration
	actTimeout time.Duration
	closeOnce  sync.Once
	closeErr   error
}

var _ Driver = (*Session)(nil)

// Navigate loads url with the configured navigation timeout, then waits
// (best-effort) for the DOM to stop changing.
func (s *Session) Navigate(url string) error {
	p := s.page
	if s.navTimeout > 0 {
		p = s.page.Timeout(s.navTimeout)
		defer p.CancelTimeout()
	}
	if err := p.Navigate(url); err != nil {
		return err
	}
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM",
			"url", url,
			"error", err,
		)
	}
	return nil
}

func (s *Session) FindAll(sel Selector) ([]Node, error) {
	p := s.page
	if s.actTimeout > 0 {
		p = s.page.Timeout(s.actTimeout)
		defer p.CancelTimeout()
	}
	var (
		els rod.Elements
		err error
	)
	if sel.XPath {
		els, err = p.ElementsX(sel.Expr)
	} else {
		els, err = p.Elements(sel.Expr)
	}
	if err != nil {
		return nil, err
	}
	return wrapElements(s.page.GetContext(), els, s.actTimeout), nil
}

func (s *Session) Evaluate(js string) (string, error) {
	p := s.page
	if s.actTimeout > 0 {
		p = s.page.Timeout(s.actTimeout)
		defer p.CancelTimeout()
	}
	res, err := p.Eval(js)
	if err != nil {
		return "", err
	}
	return res.Value.String(), nil
}

func (s *Session) NudgePointer(dx, dy float64) error {
	pos := s.page.Mouse.Position()
	return s.page.Mouse.MoveTo(proto.Point{X: pos.X + dx, Y: pos.Y + dy})
}

func (s *Session) PressEscape() error {
	return s.page.Keyboard.Press(input.Escape)
}

// Close stops the hijack router, closes the tab and kills the browser.
// Errors from the individual steps are joined; later steps always run.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.router != nil {
			errs = append(errs, s.router.Stop())
		}
		if s.page != nil {
			errs = append(errs, s.page.Close())
		}
		if s.browser != nil {
			errs = append(errs, s.browser.Close())
		}
		if s.launcher != nil {
			s.launcher.Kill()
			s.launcher.Cleanup()
		}
		s.closeErr = errors.Join(errs...)
		slog.Debug("browser session closed", "error", s.closeErr)
	})
	return s.closeErr
}

// rodNode adapts *rod.Element to Node. Every operation runs under its own
// timeout: rod retries hover and click while the element is covered and
// only gives up when the context ends.
type rodNode struct {
	el      *rod.Element
	timeout time.Duration
}

// wrapElements rebinds els to the session context so handles outlive the
// lookup that produced them.
func wrapElements(ctx context.Context, els rod.Elements, timeout time.Duration) []Node {
	nodes := make([]Node, len(els))
	for i, el := range els {
		nodes[i] = rodNode{el: el.Context(ctx), timeout: timeout}
	}
	return nodes
}

// bound returns the element limited to the action timeout and a release
// func that cancels it.
func (n rodNode) bound() (*rod.Element, func()) {
	if n.timeout <= 0 {
		return n.el, func() {}
	}
	el := n.el.Timeout(n.timeout)
	return el, func() { el.CancelTimeout() }
}

func (n rodNode) Text() (string, error) {
	el, release := n.bound()
	defer release()
	return el.Text()
}

func (n rodNode) Attribute(name string) (string, bool, error) {
	el, release := n.bound()
	defer release()
	v, err := el.Attribute(name)
	if err != nil || v == nil {
		return "", false, err
	}
	return *v, true, nil
}

func (n rodNode) OuterHTML() (string, error) {
	el, release := n.bound()
	defer release()
	return el.HTML()
}

func (n rodNode) Visible() (bool, error) {
	el, release := n.bound()
	defer release()
	visible, err := el.Visible()
	if err != nil || !visible {
		return false, err
	}
	res, err := el.Eval(`() => this.getBoundingClientRect().height`)
	if err != nil {
		return false, err
	}
	return res.Value.Num() > 0, nil
}

func (n rodNode) Hover() error {
	el, release := n.bound()
	defer release()
	return el.Hover()
}

func (n rodNode) Click() error {
	el, release := n.bound()
	defer release()
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (n rodNode) ScrollIntoView() error {
	el, release := n.bound()
	defer release()
	_, err := el.Eval(`() => this.scrollIntoView({block: 'center', inline: 'center'})`)
	return err
}

func (n rodNode) Input(text string) error {
	el, release := n.bound()
	defer release()
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(text)
}

func (n rodNode) FindAll(sel Selector) ([]Node, error) {
	el, release := n.bound()
	defer release()
	var (
		els rod.Elements
		err error
	)
	if sel.XPath {
		els, err = el.ElementsX(sel.Expr)
	} else {
		els, err = el.Elements(sel.Expr)
	}
	if err != nil {
		return nil, err
	}
	return wrapElements(n.el.GetContext(), els, n.timeout), nil
}
