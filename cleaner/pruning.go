package cleaner

import (
	"math"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Signal weights of the block scorer.
const (
	wTextDensity = 3.0
	wLinkDensity = -2.0
	wTag         = 1.5
	wClassID     = 1.0
	wTextLength  = 0.5
)

// boilerplateHints are class/id substrings of blocks that change on every
// visit without the page content changing: menus, tickers, social widgets.
var boilerplateHints = []string{
	"sidebar", "widget", "nav", "menu", "footer", "header", "cookie",
	"social", "share", "related", "ticker", "clima", "tempo", "acesso",
}

var contentHints = []string{
	"content", "conteudo", "article", "noticia", "post", "main", "texto",
}

// StripBoilerplate drops the top-level <body> blocks that score as
// navigation or chrome and returns the rest. When every block would be
// dropped the whole body is kept.
func StripBoilerplate(rawHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML
	}
	body := doc.Find("body")
	if body.Length() == 0 {
		return rawHTML
	}

	var kept []string
	body.Children().Each(func(_ int, el *goquery.Selection) {
		if blockScore(el) <= 0 {
			return
		}
		if h, err := goquery.OuterHtml(el); err == nil {
			kept = append(kept, h)
		}
	})
	if len(kept) == 0 {
		h, err := body.Html()
		if err != nil {
			return rawHTML
		}
		return h
	}
	return strings.Join(kept, "\n")
}

func blockScore(el *goquery.Selection) float64 {
	outer, err := goquery.OuterHtml(el)
	if err != nil || outer == "" {
		return 0
	}
	text := strings.TrimSpace(el.Text())
	if text == "" {
		return 0
	}

	linkText := 0
	el.Find("a").Each(func(_ int, a *goquery.Selection) {
		linkText += len(strings.TrimSpace(a.Text()))
	})

	textDensity := float64(len(text)) / float64(len(outer))
	linkDensity := float64(linkText) / float64(len(text))

	return textDensity*wTextDensity +
		linkDensity*wLinkDensity +
		tagScore(goquery.NodeName(el))*wTag +
		hintScore(el)*wClassID +
		math.Log10(float64(len(text))+1)*wTextLength
}

func tagScore(tag string) float64 {
	switch tag {
	case "article", "main", "section":
		return 5
	case "nav", "footer", "aside", "header":
		return -5
	}
	return 0
}

// hintScore counts at most one positive and one negative class/id hint.
func hintScore(el *goquery.Selection) float64 {
	class, _ := el.Attr("class")
	id, _ := el.Attr("id")
	attrs := strings.ToLower(class + " " + id)

	score := 0.0
	if containsAny(attrs, contentHints) {
		score += 3
	}
	if containsAny(attrs, boilerplateHints) {
		score -= 3
	}
	return score
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
