package cleaner

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Exclude removes every element matching one of selectors and returns the
// resulting document. Empty selectors leave rawHTML unchanged.
func Exclude(rawHTML string, selectors []string) (string, error) {
	if len(selectors) == 0 {
		return rawHTML, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", err
	}
	for _, sel := range selectors {
		doc.Find(sel).Remove()
	}
	return doc.Html()
}
