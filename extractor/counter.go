package extractor

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/use-agent/statuswatch/driver"
)

// Range counters ("1–25 of 44", "26-44 de 44") and page counters
// ("2 de 9"). Both need a leading number so dates such as
// "19 de outubro de 2026" never count. Connectors cover English and
// Portuguese; dashes cover ASCII, en and em.
var (
	rangeCounterRe = regexp.MustCompile(`(\d+)\s*[-–—]\s*(\d+)\s+(?:of|de)\s+(\d+)`)
	pairCounterRe  = regexp.MustCompile(`\b(\d+)\s+(?:of|de)\s+(\d+)\b`)
)

var counterSelector = driver.XPath(
	"//*[contains(text(),'of') or contains(text(),'de') or contains(text(),'–')]",
)

// parseCounter returns the largest number captured by a counter match in
// text, or 0 when there is none. Range matches win; the "X of Y" form is
// only consulted when no range is present.
func parseCounter(text string) int {
	for _, re := range []*regexp.Regexp{rangeCounterRe, pairCounterRe} {
		if best := largestGroup(re, text); best > 0 {
			return best
		}
	}
	return 0
}

func largestGroup(re *regexp.Regexp, text string) int {
	best := 0
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		for _, g := range m[1:] {
			if n, err := strconv.Atoi(g); err == nil && n > best {
				best = n
			}
		}
	}
	return best
}

// discoverTotal zooms the page out, reads every counter-like text node and
// returns the expected record count. Failures degrade to 0.
func discoverTotal(d driver.Driver, zoom string) int {
	if zoom != "" {
		if _, err := d.Evaluate(fmt.Sprintf("() => { document.body.style.zoom = %q }", zoom)); err != nil {
			slog.Debug("zoom failed", "error", err)
		}
	}
	defer scrollToTop(d)

	nodes, err := d.FindAll(counterSelector)
	if err != nil {
		slog.Warn("counter lookup failed", "error", err)
		return 0
	}

	total := 0
	for _, n := range nodes {
		text, err := n.Text()
		if err != nil {
			continue
		}
		if v := parseCounter(text); v > total {
			total = v
		}
	}
	return total
}

func scrollToTop(d driver.Driver) {
	if _, err := d.Evaluate("() => window.scrollTo(0, 0)"); err != nil {
		slog.Debug("scroll to top failed", "error", err)
	}
}
