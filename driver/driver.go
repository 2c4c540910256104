// Package driver is the automation layer the extraction engine talks to.
//
// The engine never issues raw protocol calls; everything it needs from a
// browser session goes through Driver and Node. The production
// implementation (Session) drives Chromium through go-rod, and tests
// substitute an in-memory page.
package driver

import "fmt"

// Selector addresses nodes either by CSS or by XPath.
type Selector struct {
	XPath bool
	Expr  string
}

// CSS returns a CSS selector.
func CSS(expr string) Selector { return Selector{Expr: expr} }

// XPath returns an XPath selector. Relative expressions (".//svg") are
// evaluated against the node they are issued on.
func XPath(expr string) Selector { return Selector{XPath: true, Expr: expr} }

func (s Selector) String() string {
	if s.XPath {
		return fmt.Sprintf("xpath(%s)", s.Expr)
	}
	return fmt.Sprintf("css(%s)", s.Expr)
}

// Node is a handle to one rendered DOM element.
type Node interface {
	// Text returns the element's rendered inner text.
	Text() (string, error)

	// Attribute returns the named attribute and whether it is present.
	Attribute(name string) (string, bool, error)

	// OuterHTML returns the element's serialized markup.
	OuterHTML() (string, error)

	// Visible reports whether the element is displayed with a non-zero height.
	Visible() (bool, error)

	Hover() error
	Click() error

	// ScrollIntoView centers the element in the viewport.
	ScrollIntoView() error

	// Input replaces the element's value with text.
	Input(text string) error

	// FindAll returns descendants matching sel. It never waits.
	FindAll(sel Selector) ([]Node, error)
}

// Driver is one exclusive browser session. Implementations are not safe for
// concurrent use: hover and tooltip state belong to a single interaction
// stream.
type Driver interface {
	// Navigate loads url and waits for the DOM to settle.
	Navigate(url string) error

	// FindAll returns every element in the document matching sel. It never waits.
	FindAll(sel Selector) ([]Node, error)

	// Evaluate runs a JS function definition (e.g. "() => document.title")
	// in the page and returns its result rendered as a string.
	Evaluate(js string) (string, error)

	// NudgePointer moves the mouse by (dx, dy) from its current position.
	NudgePointer(dx, dy float64) error

	// PressEscape sends an Escape key press to the focused element.
	PressEscape() error

	// Close releases the session. It is safe to call more than once.
	Close() error
}
