// Package clean implements the Content Cleaner: HTML→text normalization,
// content/SimHash fingerprinting, and garbage/validation checks shared by
// every extraction tier and the Processor.
package clean

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var whitespaceRun = regexp.MustCompile(`[ \t\f\v]+`)
var blankLineRun = regexp.MustCompile(`\n{3,}`)

// HTML converts raw article HTML into normalized plain text. It strips
// script/style/nav/footer noise, keeps "pre"/"code" blocks fenced with
// triple backticks, renders inline anchors as "text (url)", and collapses
// runs of whitespace while preserving paragraph breaks.
func HTML(rawHTML string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, nav, footer, header, aside, noscript").Remove()

	doc.Find("pre, code").Each(func(_ int, sel *goquery.Selection) {
		text := sel.Text()
		sel.ReplaceWithHtml("\n```\n" + text + "\n```\n")
	})

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		text := strings.TrimSpace(sel.Text())
		if !ok || href == "" || text == "" {
			return
		}
		sel.ReplaceWithHtml(text + " (" + href + ")")
	})

	doc.Find("p, div, br, h1, h2, h3, h4, h5, h6, li").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml("\n")
	})

	text := doc.Text()
	return normalizeWhitespace(text), nil
}

// normalizeWhitespace collapses intra-line whitespace runs and squashes
// any run of two or more consecutive blank lines down to one, without
// disturbing paragraph structure.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(whitespaceRun.ReplaceAllString(line, " "))
	}
	joined := strings.Join(lines, "\n")
	joined = blankLineRun.ReplaceAllString(joined, "\n\n")
	return strings.TrimSpace(joined)
}
