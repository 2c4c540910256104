package extractor

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/use-agent/statuswatch/driver"
)

// Phase is the pagination controller's state.
type Phase int

const (
	PhaseDiscoveringTotal Phase = iota
	PhaseExtractingPage
	PhaseAdvancing
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseDiscoveringTotal:
		return "DISCOVERING_TOTAL"
	case PhaseExtractingPage:
		return "EXTRACTING_PAGE"
	case PhaseAdvancing:
		return "ADVANCING"
	default:
		return "DONE"
	}
}

// PaginationState is what the controller knows about the table.
type PaginationState struct {
	ExpectedTotal int
	CurrentPage   int
	HasMore       bool
}

// ErrControllerDone is returned when a finished controller is run again.
var ErrControllerDone = errors.New("extractor: pagination controller already finished")

var (
	rowSelector         = driver.XPath("//table//tbody//tr[td]")
	fallbackRowSelector = driver.XPath("//tr[contains(@class, 'MuiTableRow') and .//td]")
	nextPageSelector    = driver.XPath("//button[@aria-label='Next page' or contains(@aria-label,'next') or contains(@class,'next')]")
)

// PageVisitor is called once per page with the rows currently rendered.
type PageVisitor func(page int, rows []driver.Node)

// Controller walks the paginated table exactly once.
type Controller struct {
	d     driver.Driver
	clock Clock
	opts  Options

	phase    Phase
	state    PaginationState
	warnings []Warning
}

// NewController returns a controller in DISCOVERING_TOTAL.
func NewController(d driver.Driver, clock Clock, opts Options) *Controller {
	return &Controller{d: d, clock: clock, opts: opts.withDefaults()}
}

func (c *Controller) Phase() Phase           { return c.phase }
func (c *Controller) State() PaginationState { return c.state }
func (c *Controller) Warnings() []Warning    { return c.warnings }

// Run drives the state machine to DONE, calling visit for every page.
// Callers need a fresh controller per run.
func (c *Controller) Run(visit PageVisitor) error {
	if c.phase != PhaseDiscoveringTotal {
		return ErrControllerDone
	}

	var rows []driver.Node
	for c.phase != PhaseDone {
		switch c.phase {
		case PhaseDiscoveringTotal:
			c.state = PaginationState{
				ExpectedTotal: discoverTotal(c.d, c.opts.Zoom),
				CurrentPage:   1,
				HasMore:       true,
			}
			slog.Info("pagination started", "expected_total", c.state.ExpectedTotal)
			c.phase = PhaseExtractingPage

		case PhaseExtractingPage:
			rows = c.findRows()
			if len(rows) == 0 {
				slog.Warn("no rows rendered", "page", c.state.CurrentPage)
				c.finish()
				continue
			}
			visit(c.state.CurrentPage, rows)
			c.phase = PhaseAdvancing

		case PhaseAdvancing:
			if c.advance(rows) {
				c.phase = PhaseExtractingPage
			} else {
				c.finish()
			}
		}
	}
	return nil
}

func (c *Controller) finish() {
	c.phase = PhaseDone
	c.state.HasMore = false
	slog.Info("pagination finished", "pages", c.state.CurrentPage)
}

// advance moves to the next page. It returns false when the current page
// is terminal: no next control, a disabled one, a failed click, a row
// plateau after the stall retry, or the page cap.
func (c *Controller) advance(current []driver.Node) bool {
	if c.state.CurrentPage >= c.opts.MaxPages {
		slog.Warn("page cap reached", "max_pages", c.opts.MaxPages)
		return false
	}

	next := c.findNext()
	if next == nil {
		return false
	}
	if disabled(next) {
		return false
	}

	before := signature(current)
	if err := next.ScrollIntoView(); err != nil {
		slog.Debug("scroll to next control failed", "error", err)
	}
	if err := next.Click(); err != nil {
		slog.Warn("next page click failed", "page", c.state.CurrentPage, "error", err)
		return false
	}

	fresh := waitUntil(c.clock, c.opts.PageWait, c.opts.PollInterval, func() bool {
		rows := c.findRows()
		return len(rows) > 0 && signature(rows) != before
	})
	if !fresh {
		c.warnings = append(c.warnings, Warning{
			Kind:    WarningPaginationStall,
			Message: "rows did not change after advancing from page " + strconv.Itoa(c.state.CurrentPage),
		})
		slog.Warn("pagination stalled, retrying once", "page", c.state.CurrentPage)
		c.clock.Sleep(c.opts.PageSettle)

		// Same rows after the retry means the control silently failed.
		rows := c.findRows()
		if len(rows) == 0 || signature(rows) == before {
			return false
		}
	}

	c.state.CurrentPage++
	scrollToTop(c.d)
	return true
}

func (c *Controller) findRows() []driver.Node {
	for _, sel := range []driver.Selector{rowSelector, fallbackRowSelector} {
		rows, err := c.d.FindAll(sel)
		if err != nil {
			slog.Debug("row lookup failed", "selector", sel.String(), "error", err)
			continue
		}
		if len(rows) > 0 {
			return rows
		}
	}
	return nil
}

func (c *Controller) findNext() driver.Node {
	nodes, err := c.d.FindAll(nextPageSelector)
	if err != nil || len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

// disabled reports whether a control shows any disabled affordance.
func disabled(n driver.Node) bool {
	if _, ok, _ := n.Attribute("disabled"); ok {
		return true
	}
	if v, ok, _ := n.Attribute("aria-disabled"); ok && strings.EqualFold(v, "true") {
		return true
	}
	if class, ok, _ := n.Attribute("class"); ok {
		for _, token := range strings.Fields(class) {
			if token == "Mui-disabled" || token == "disabled" {
				return true
			}
		}
	}
	return false
}

// signature fingerprints a set of rows by their rendered text.
func signature(rows []driver.Node) string {
	parts := make([]string, len(rows))
	for i, r := range rows {
		text, _ := r.Text()
		parts[i] = strings.TrimSpace(text)
	}
	return strings.Join(parts, "\x1f")
}
