package extractor

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/use-agent/statuswatch/driver"
)

var (
	cellSelector      = driver.CSS("td")
	indicatorSelector = driver.XPath(".//svg | .//*[name()='svg']")
)

// nonDataMarkers are label fragments of header repeats and placeholder rows.
var nonDataMarkers = []string{"SERVICE LINE", "NO SERVICE"}

const minLabelLength = 3

// validLabel reports whether label names a real terminal row.
func validLabel(label string) bool {
	if utf8.RuneCountInString(label) < minLabelLength {
		return false
	}
	upper := strings.ToUpper(label)
	for _, m := range nonDataMarkers {
		if strings.Contains(upper, m) {
			return false
		}
	}
	return true
}

// rowExtractor turns one rendered table row into a candidate record.
type rowExtractor struct {
	d          driver.Driver
	clock      Clock
	opts       Options
	strategies []TooltipStrategy
	idPattern  *regexp.Regexp
}

func newRowExtractor(d driver.Driver, clock Clock, opts Options, strategies []TooltipStrategy) *rowExtractor {
	return &rowExtractor{
		d:          d,
		clock:      clock,
		opts:       opts,
		strategies: strategies,
		idPattern:  identifierPattern(opts.IDPrefix),
	}
}

// extract returns the candidate for row. ok is false when the row is not a
// data row. A non-nil err means the status steps failed and the record was
// degraded to UNKNOWN; the record is still usable.
func (x *rowExtractor) extract(row driver.Node) (rec ExtractedRecord, ok bool, err error) {
	cells, findErr := row.FindAll(cellSelector)
	if findErr != nil || len(cells) < 2 {
		return ExtractedRecord{}, false, nil
	}
	text, textErr := cells[0].Text()
	if textErr != nil {
		return ExtractedRecord{}, false, nil
	}
	label := strings.TrimSpace(text)
	if !validLabel(label) {
		return ExtractedRecord{}, false, nil
	}

	rec = ExtractedRecord{label: label, state: StateUnknown}
	stableID, state, err := x.resolveStatus(cells[1])
	if err != nil {
		return rec, true, err
	}
	rec.stableID = stableID
	rec.state = state
	return rec, true, nil
}

// resolveStatus runs indicator location, tooltip resolution and color
// classification on the status cell. Any failure, including a panic inside
// the driver, yields UNKNOWN with no identifier.
func (x *rowExtractor) resolveStatus(cell driver.Node) (stableID string, state State, err error) {
	defer func() {
		if r := recover(); r != nil {
			stableID, state, err = "", StateUnknown, fmt.Errorf("status cell panic: %v", r)
		}
	}()

	indicators, err := cell.FindAll(indicatorSelector)
	if err != nil {
		return "", StateUnknown, fmt.Errorf("locate indicators: %w", err)
	}
	// A cell without both indicators cannot show a tooltip; skip the hover.
	if len(indicators) < 2 {
		return "", StateUnknown, nil
	}
	target := indicators[1]

	stableID, err = x.resolveTooltip(target)
	if err != nil {
		return "", StateUnknown, fmt.Errorf("tooltip: %w", err)
	}

	markup, err := target.OuterHTML()
	if err != nil {
		return "", StateUnknown, fmt.Errorf("read indicator markup: %w", err)
	}
	state = classifyMarkup(markup)

	// Park the pointer away from the table so the next row starts clean.
	_ = x.d.NudgePointer(100, 100)
	return stableID, state, nil
}

// resolveTooltip hovers target up to TooltipAttempts times and returns the
// first identifier any strategy reads. An empty result with a nil error
// means no attempt produced one.
func (x *rowExtractor) resolveTooltip(target driver.Node) (string, error) {
	for attempt := 1; attempt <= x.opts.TooltipAttempts; attempt++ {
		if err := target.ScrollIntoView(); err != nil {
			return "", err
		}
		x.clock.Sleep(x.opts.ScrollSettle)

		if err := target.Hover(); err != nil {
			return "", err
		}
		x.clock.Sleep(x.opts.HoverSettle)

		if id := x.readTooltip(); id != "" {
			slog.Debug("tooltip resolved", "id", id, "attempt", attempt)
			return id, nil
		}

		// Move off the indicator so the next hover re-opens the overlay.
		_ = x.d.NudgePointer(200, 0)
		x.clock.Sleep(x.opts.RetryNudge)
	}
	return "", nil
}

func (x *rowExtractor) readTooltip() string {
	for _, s := range x.strategies {
		text, err := s.Lookup(x.d)
		if err != nil {
			slog.Debug("tooltip strategy failed", "strategy", s.Name(), "error", err)
			continue
		}
		if id := x.idPattern.FindString(text); id != "" {
			return id
		}
	}
	return ""
}
