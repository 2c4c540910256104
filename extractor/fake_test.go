package extractor

import (
	"context"
	"errors"
	"time"

	"github.com/use-agent/statuswatch/driver"
)

const (
	testLoginURL     = "https://portal.test/login"
	testDashboardURL = "https://portal.test/starlink/starlinkMap"
)

func testOptions() Options {
	return Options{
		LoginURL:        testLoginURL,
		DashboardURL:    testDashboardURL,
		Username:        "ops@example.com",
		Password:        "secret",
		TooltipAttempts: 5,
		HoverSettle:     3500 * time.Millisecond,
		ScrollSettle:    800 * time.Millisecond,
		RetryNudge:      500 * time.Millisecond,
		LoginTimeout:    30 * time.Second,
		FilterSettle:    8 * time.Second,
		PageWait:        15 * time.Second,
		PageSettle:      5 * time.Second,
		PollInterval:    500 * time.Millisecond,
		Zoom:            "75%",
		IDPrefix:        "KIT",
	}.withDefaults()
}

// fakeClock advances only when slept on.
type fakeClock struct {
	now   time.Time
	slept time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.now = c.now.Add(d)
	c.slept += d
}

// fakeNode is an in-memory element. Children are keyed by selector expression.
type fakeNode struct {
	text    string
	attrs   map[string]string
	html    string
	hidden  bool
	kids    map[string][]*fakeNode
	onHover func() error
	onClick func() error
	onInput func(string)
	htmlErr error
}

func (n *fakeNode) Text() (string, error) { return n.text, nil }

func (n *fakeNode) Attribute(name string) (string, bool, error) {
	v, ok := n.attrs[name]
	return v, ok, nil
}

func (n *fakeNode) OuterHTML() (string, error) { return n.html, n.htmlErr }
func (n *fakeNode) Visible() (bool, error)     { return !n.hidden, nil }
func (n *fakeNode) ScrollIntoView() error      { return nil }

func (n *fakeNode) Hover() error {
	if n.onHover != nil {
		return n.onHover()
	}
	return nil
}

func (n *fakeNode) Click() error {
	if n.onClick != nil {
		return n.onClick()
	}
	return nil
}

func (n *fakeNode) Input(text string) error {
	if n.onInput != nil {
		n.onInput(text)
	}
	return nil
}

func (n *fakeNode) FindAll(sel driver.Selector) ([]driver.Node, error) {
	return asNodes(n.kids[sel.Expr]), nil
}

func asNodes(ns []*fakeNode) []driver.Node {
	out := make([]driver.Node, len(ns))
	for i, n := range ns {
		out[i] = n
	}
	return out
}

// fakeTerminal is one table row of the fake portal.
type fakeTerminal struct {
	label string
	id    string // empty: the tooltip never shows an identifier
	color string

	// indicators overrides the indicator count (default 2).
	indicators int

	// classTooltip renders the overlay only for the class-based strategy.
	classTooltip bool
}

// fakePortal simulates the terminal portal: a login form, a window filter
// popover and a paginated table with hover tooltips.
type fakePortal struct {
	pages   [][]fakeTerminal
	counter string

	rejectLogin  bool // the login form never goes away
	noFilter     bool // the window filter control is missing
	neverDisable bool // next is never disabled
	stallFrom    int  // 1-based page from which next clicks do nothing; 0 = never
	panicOn      string

	// notes are extra text nodes the counter lookup also sees.
	notes []string
	// decoys are buttons rendered before the filter trigger.
	decoys      []string
	decoyClicks int

	// Advancing to lagPage (1-based) only renders after lag on clock.
	clock    *fakeClock
	lagPage  int
	lag      time.Duration
	arriveAt time.Time
	pending  int

	// hoverGate, when set, makes every indicator hover block until it ends,
	// as rod does for an element covered by another.
	hoverGate context.Context

	url        string
	signedIn   bool
	filterOpen bool
	filtered   bool
	page       int // 0-based
	tooltip    string
	tooltipCls bool

	user, pass string
	hovers     int
	nudges     int
	escapes    int
	closes     int
	evals      []string
}

var _ driver.Driver = (*fakePortal)(nil)

// newDashboard returns a signed-in portal already showing the table.
func newDashboard(pages ...[]fakeTerminal) *fakePortal {
	return &fakePortal{pages: pages, url: testDashboardURL, signedIn: true}
}

func (p *fakePortal) Navigate(url string) error {
	if url == "" {
		return errors.New("empty url")
	}
	p.url = url
	return nil
}

func (p *fakePortal) Evaluate(js string) (string, error) {
	p.evals = append(p.evals, js)
	return "", nil
}

func (p *fakePortal) NudgePointer(dx, dy float64) error {
	p.nudges++
	p.tooltip = ""
	return nil
}

func (p *fakePortal) PressEscape() error {
	p.escapes++
	p.filterOpen = false
	return nil
}

func (p *fakePortal) Close() error {
	p.closes++
	return nil
}

func (p *fakePortal) FindAll(sel driver.Selector) ([]driver.Node, error) {
	if p.panicOn != "" && sel.Expr == p.panicOn {
		panic("renderer crashed")
	}
	onLogin := p.url == testLoginURL
	onDashboard := p.url == testDashboardURL && p.signedIn

	switch sel.Expr {
	case usernameSelector.Expr:
		if onLogin && !p.signedIn {
			return asNodes([]*fakeNode{{onInput: func(s string) { p.user = s }}}), nil
		}
	case passwordSelector.Expr:
		if (onLogin && !p.signedIn) || (p.url == testDashboardURL && !p.signedIn) {
			return asNodes([]*fakeNode{{onInput: func(s string) { p.pass = s }}}), nil
		}
	case loginButtonSelector.Expr:
		if onLogin {
			return asNodes([]*fakeNode{{text: "Login", onClick: func() error {
				if !p.rejectLogin {
					p.signedIn = true
				}
				return nil
			}}}), nil
		}
	case buttonSelector.Expr:
		if onDashboard && !p.noFilter {
			buttons := []*fakeNode{{text: "Export"}}
			for _, d := range p.decoys {
				buttons = append(buttons, &fakeNode{text: d, onClick: func() error { p.decoyClicks++; return nil }})
			}
			buttons = append(buttons, &fakeNode{text: "MTD", onClick: func() error { p.filterOpen = true; return nil }})
			return asNodes(buttons), nil
		}
	case windowOptionSelector("Last 1 Day").Expr:
		if p.filterOpen {
			return asNodes([]*fakeNode{{text: "Last 1 Day"}}), nil
		}
	case applySelector("Apply").Expr:
		if p.filterOpen {
			return asNodes([]*fakeNode{
				{text: "Apply", hidden: true},
				{text: "Apply", onClick: func() error {
					p.filterOpen = false
					p.filtered = true
					return nil
				}},
			}), nil
		}
	case counterSelector.Expr:
		if onDashboard && (p.counter != "" || len(p.notes) > 0) {
			nodes := []*fakeNode{{text: "Rows per page:"}}
			for _, n := range p.notes {
				nodes = append(nodes, &fakeNode{text: n})
			}
			if p.counter != "" {
				nodes = append(nodes, &fakeNode{text: p.counter})
			}
			return asNodes(nodes), nil
		}
	case rowSelector.Expr:
		if onDashboard && len(p.pages) > 0 {
			return asNodes(p.rows()), nil
		}
	case nextPageSelector.Expr:
		if onDashboard {
			return asNodes([]*fakeNode{p.nextButton()}), nil
		}
	case roleTooltipSelector.Expr:
		if p.tooltip != "" && !p.tooltipCls {
			return asNodes([]*fakeNode{{text: p.tooltip}}), nil
		}
	case classTooltipSelector.Expr:
		if p.tooltip != "" && p.tooltipCls {
			return asNodes([]*fakeNode{{text: "stale", hidden: true}, {text: p.tooltip}}), nil
		}
	}
	return nil, nil
}

func (p *fakePortal) nextButton() *fakeNode {
	btn := &fakeNode{attrs: map[string]string{"aria-label": "Go to next page"}}
	last := p.page == len(p.pages)-1
	if last && !p.neverDisable {
		btn.attrs["disabled"] = ""
		return btn
	}
	btn.onClick = func() error {
		if p.stallFrom > 0 && p.page+1 >= p.stallFrom {
			return nil
		}
		if p.page >= len(p.pages)-1 {
			return nil
		}
		if p.clock != nil && p.page+2 == p.lagPage {
			p.pending = p.page + 1
			p.arriveAt = p.clock.now.Add(p.lag)
			return nil
		}
		p.page++
		return nil
	}
	return btn
}

// rows renders fresh handles for the current page, as a re-render would.
func (p *fakePortal) rows() []*fakeNode {
	if p.pending > 0 && !p.clock.now.Before(p.arriveAt) {
		p.page, p.pending = p.pending, 0
	}
	var out []*fakeNode
	for _, t := range p.pages[p.page] {
		out = append(out, p.row(t))
	}
	return out
}

func (p *fakePortal) row(t fakeTerminal) *fakeNode {
	count := t.indicators
	if count == 0 {
		count = 2
	}
	var indicators []*fakeNode
	for i := 0; i < count; i++ {
		indicators = append(indicators, &fakeNode{html: `<svg class="signal"><path d="M0 0"/></svg>`})
	}
	if count >= 2 {
		target := indicators[1]
		target.html = `<svg fill="` + t.color + `"><circle r="6"/></svg>`
		target.onHover = func() error {
			p.hovers++
			if p.hoverGate != nil {
				<-p.hoverGate.Done()
				return p.hoverGate.Err()
			}
			p.tooltipCls = t.classTooltip
			if t.id != "" {
				p.tooltip = "Terminal\n" + t.id + "\nService plan: Mobile"
			} else {
				p.tooltip = "Terminal\nService plan: Mobile"
			}
			return nil
		}
	}

	status := &fakeNode{kids: map[string][]*fakeNode{indicatorSelector.Expr: indicators}}
	cells := []*fakeNode{{text: "  " + t.label + " "}, status, {text: "1.2 GB"}}
	return &fakeNode{
		text: t.label,
		kids: map[string][]*fakeNode{cellSelector.Expr: cells},
	}
}
