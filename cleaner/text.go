package cleaner

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// volatileLine matches lines that change on every visit: timestamps, dates,
// view and visitor counters, "online now" widgets.
var volatileLine = regexp.MustCompile(`(?i)(\d{1,2}[:/]\d{1,2}[:/]\d{2,4}|\d+:\d+|visualizaç|views?:|acess|visit|online)`)

// StableText drops volatile lines from text and collapses whitespace, so
// two visits of an unchanged page produce the same string.
func StableText(text string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || volatileLine.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(strings.Fields(strings.Join(kept, " ")), " ")
}

// VisibleText returns the text of rawHTML without script and style content,
// one line per text node.
func VisibleText(rawHTML string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(rawHTML))
	var buf strings.Builder
	skipDepth := 0

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return buf.String()
		case html.StartTagToken:
			if isHiddenTag(tokenizer) {
				skipDepth++
			}
		case html.EndTagToken:
			if isHiddenTag(tokenizer) && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			if text := strings.TrimSpace(string(tokenizer.Text())); text != "" {
				buf.WriteString(text)
				buf.WriteByte('\n')
			}
		}
	}
}

func isHiddenTag(z *html.Tokenizer) bool {
	tn, _ := z.TagName()
	switch string(tn) {
	case "script", "style", "noscript", "template":
		return true
	}
	return false
}
