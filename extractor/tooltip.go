package extractor

import (
	"regexp"
	"strings"

	"github.com/use-agent/statuswatch/driver"
)

// TooltipStrategy is one way of reading the overlay a hover just opened.
// Strategies are tried in order; the first whose text carries an identifier
// wins.
type TooltipStrategy interface {
	Name() string
	Lookup(d driver.Driver) (string, error)
}

// overlayStrategy returns the text of the last visible node matching sel.
// Overlays stack, so the most recent one is last in document order.
type overlayStrategy struct {
	name string
	sel  driver.Selector
}

func (s overlayStrategy) Name() string { return s.name }

func (s overlayStrategy) Lookup(d driver.Driver) (string, error) {
	nodes, err := d.FindAll(s.sel)
	if err != nil {
		return "", err
	}
	for i := len(nodes) - 1; i >= 0; i-- {
		visible, err := nodes[i].Visible()
		if err != nil || !visible {
			continue
		}
		text, err := nodes[i].Text()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(text), nil
	}
	return "", nil
}

var (
	roleTooltipSelector  = driver.XPath("//div[@role='tooltip']")
	classTooltipSelector = driver.XPath("//*[contains(@class,'tooltip') or contains(@class,'Popper')]")
)

// RoleTooltip reads ARIA tooltips.
func RoleTooltip() TooltipStrategy {
	return overlayStrategy{name: "role", sel: roleTooltipSelector}
}

// ClassTooltip reads overlays recognised by class name (MUI poppers and
// generic tooltip widgets).
func ClassTooltip() TooltipStrategy {
	return overlayStrategy{name: "class", sel: classTooltipSelector}
}

// DefaultTooltipStrategies is the semantic query followed by the heuristic one.
func DefaultTooltipStrategies() []TooltipStrategy {
	return []TooltipStrategy{RoleTooltip(), ClassTooltip()}
}

// identifierPattern matches prefix, one optional letter, then digits
// (KIT304062259, KITP00237489).
func identifierPattern(prefix string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(prefix) + `[A-Z]?\d+\b`)
}
