package sites

import (
	"hash/fnv"
	"math/bits"
	"strings"

	"golang.org/x/net/html"
)

// textFingerprint computes a 64-bit SimHash of text over word tokens.
// Small edits move few bits; a rewrite of the page moves many.
func textFingerprint(text string) uint64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}

	var vector [64]int
	for _, word := range words {
		h := fnv.New64a()
		h.Write([]byte(strings.ToLower(word)))
		hash := h.Sum64()

		for i := 0; i < 64; i++ {
			if hash&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fingerprint uint64
	for i := 0; i < 64; i++ {
		if vector[i] > 0 {
			fingerprint |= 1 << uint(i)
		}
	}
	return fingerprint
}

// layoutFingerprint computes a SimHash of the page's tag sequence, ignoring
// text and attributes. A redesigned template shows up here even when the
// wording is unchanged.
func layoutFingerprint(rawHTML string) uint64 {
	tags := tagSequence(rawHTML)
	if len(tags) == 0 {
		return 0
	}

	shingles := shingle(tags, 3)
	if len(shingles) == 0 {
		return textFingerprint(strings.Join(tags, " "))
	}
	return textFingerprint(strings.Join(shingles, " "))
}

// distance is the Hamming distance between two fingerprints.
func distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// tagSequence collects open tag names in document order. Script and style
// tags are skipped; their count changes with analytics snippets.
func tagSequence(rawHTML string) []string {
	tokenizer := html.NewTokenizer(strings.NewReader(rawHTML))
	var tags []string

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return tags
		case html.StartTagToken, html.SelfClosingTagToken:
			tn, _ := tokenizer.TagName()
			switch tag := string(tn); tag {
			case "script", "style", "link", "meta":
			default:
				tags = append(tags, tag)
			}
		}
	}
}

func shingle(tokens []string, n int) []string {
	if len(tokens) < n {
		return nil
	}

	out := make([]string, 0, len(tokens)-n+1)
	for i := 0; i <= len(tokens)-n; i++ {
		out = append(out, strings.Join(tokens[i:i+n], "_"))
	}
	return out
}
