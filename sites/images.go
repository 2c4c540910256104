package sites

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// rotatingContainers are the regions whose images make up a site's visual
// identity: carousels, sliders and banners.
var rotatingContainers = []string{
	`[class*="carousel"]`,
	`[class*="slider"]`,
	`[class*="banner"]`,
	`[id*="banner"]`,
}

// bannerImages returns the sorted, de-duplicated image sources found inside
// rotating containers, resolved against base. Inline data: URIs are skipped.
func bannerImages(rawHTML string, base *url.URL) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	doc.Find(strings.Join(rotatingContainers, ", ")).Find("img").Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || strings.TrimSpace(src) == "" {
			src, ok = img.Attr("data-src")
		}
		src = strings.TrimSpace(src)
		if !ok || src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		if base != nil {
			if ref, err := url.Parse(src); err == nil {
				src = base.ResolveReference(ref).String()
			}
		}
		seen[src] = struct{}{}
	})

	images := make([]string, 0, len(seen))
	for src := range seen {
		images = append(images, src)
	}
	sort.Strings(images)
	return images, nil
}

// imageDigest is a stable digest of an image set; empty sets digest to "".
func imageDigest(images []string) string {
	if len(images) == 0 {
		return ""
	}
	sum := sha256.Sum256([]byte(strings.Join(images, "\n")))
	return hex.EncodeToString(sum[:])
}
