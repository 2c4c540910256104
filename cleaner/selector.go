package cleaner

import (
	"bytes"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Scope narrows rawHTML to the elements matching selector, concatenating
// their outer HTML. Monitoring a region instead of the whole page keeps
// rotating sidebars and footers out of change detection.
//
// If nothing matches, rawHTML is returned unchanged.
func Scope(rawHTML string, selector string) (string, error) {
	sel, err := cascadia.Parse(selector)
	if err != nil {
		return "", err
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", err
	}

	matches := cascadia.QueryAll(doc, sel)
	if len(matches) == 0 {
		return rawHTML, nil
	}

	var buf bytes.Buffer
	buf.WriteString("<html><body>")
	for _, node := range matches {
		if err := html.Render(&buf, node); err != nil {
			return "", err
		}
	}
	buf.WriteString("</body></html>")

	return buf.String(), nil
}
