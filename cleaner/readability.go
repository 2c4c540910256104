package cleaner

import (
	"log/slog"
	nurl "net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// minContentLength is the minimum TextContent length (in characters) for
// readability output to be considered valid. Institutional home pages are
// mostly navigation, so below this the whole page text is used instead.
const minContentLength = 50

// MainText runs the Mozilla Readability algorithm on rawHTML and returns the
// main content as plain text, one line per text node.
//
// Fallback behaviour (a site check must never fail because readability choked):
//   - If URL parsing fails           → page text without boilerplate blocks
//   - If readability.FromReader errs → page text without boilerplate blocks
//   - If extracted TextContent < 50  → page text without boilerplate blocks
//
// The second return value is false when the fallback was used.
func MainText(rawHTML string, sourceURL string) (string, bool) {
	parsedURL, err := nurl.Parse(sourceURL)
	if err != nil {
		slog.Warn("readability: invalid source URL, using page text",
			"url", sourceURL, "error", err,
		)
		return pageText(rawHTML), false
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), parsedURL)
	if err != nil {
		slog.Warn("readability: extraction failed, using page text",
			"url", sourceURL, "error", err,
		)
		return pageText(rawHTML), false
	}

	if len(strings.TrimSpace(article.TextContent)) < minContentLength {
		slog.Debug("readability: extracted content too short, using page text",
			"url", sourceURL, "length", len(article.TextContent),
		)
		return pageText(rawHTML), false
	}

	return VisibleText(article.Content), true
}

func pageText(rawHTML string) string {
	return VisibleText(StripBoilerplate(rawHTML))
}
