package scraper

import (
	"bytes"
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/domain/entity/taskerr"
	"catchup-feed/internal/infra/httpclient"
	"catchup-feed/internal/usecase/fetch"
)

// linkDensityThreshold is the fraction of a candidate body's text that may
// sit inside <a> tags before it's considered a navigation block rather than
// article content once the feed itself only yields a summary.
const linkDensityThreshold = 0.40

// titleSuffixPattern strips the common " | Site Name" / " - Site Name" /
// " — Site Name" suffix publishers append to <title>.
var titleSuffixPattern = regexp.MustCompile(`\s*[|\-—–]\s*[^|\-—–]{2,40}$`)

var datePattern = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|\w+ \d{1,2},? \d{4})\b`)

// LegacyHTMLScraper implements fetch.Tier for sites with neither a feed nor
// discovery hints: it fetches src.URL directly and applies a link-density
// body heuristic rather than any structured-data extraction.
type LegacyHTMLScraper struct {
	client *httpclient.Client
}

func NewLegacyHTMLScraper(client *httpclient.Client) *LegacyHTMLScraper {
	return &LegacyHTMLScraper{client: client}
}

func (l *LegacyHTMLScraper) Fetch(ctx context.Context, src *entity.Source, state *entity.SourceState) ([]fetch.ArticleCandidate, *fetch.FetchMeta, error) {
	resp, taskErr := l.client.Fetch(ctx, httpclient.Request{
		URL:                src.URL,
		UserAgent:          src.UserAgentOverride,
		Tier:               entity.TierLegacy,
		Scope:              src.Scope,
		RateLimitPerMinute: src.RateLimitPerMinute,
		Timeout:            time.Duration(src.HTTPTimeoutSeconds) * time.Second,
	})
	if taskErr != nil {
		return nil, nil, taskErr
	}

	meta := &fetch.FetchMeta{HTTPStatus: resp.StatusCode, BytesRead: int64(len(resp.Body))}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, meta, taskerr.Wrap(taskerr.KindExtractionFailed, "parse legacy html page", err)
	}

	title := stripTitleSuffix(strings.TrimSpace(doc.Find("title").First().Text()))
	body := densestSubtreeText(doc)
	if title == "" || body == "" {
		return nil, meta, taskerr.New(taskerr.KindExtractionFailed, "legacy parser found no title/body")
	}

	published := sweepForDate(doc.Text())

	return []fetch.ArticleCandidate{{
		Title:       title,
		URL:         src.URL,
		Content:     body,
		PublishedAt: published,
	}}, meta, nil
}

func stripTitleSuffix(title string) string {
	return titleSuffixPattern.ReplaceAllString(title, "")
}

// densestSubtreeText picks the element among a fixed set of content-bearing
// tags with the most text (link text included in the length), skipping any
// whose link density exceeds
// linkDensityThreshold (i.e. nav/footer/sidebar blocks masquerading as body).
func densestSubtreeText(doc *goquery.Document) string {
	candidates := doc.Find("article, main, #content, .content, .post, .article-body, body")

	best := ""
	bestLen := 0
	candidates.Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return
		}
		linkText := strings.TrimSpace(sel.Find("a").Text())
		density := 0.0
		if len(text) > 0 {
			density = float64(len(linkText)) / float64(len(text))
		}
		if density > linkDensityThreshold {
			return
		}
		if len(text) > bestLen {
			best = text
			bestLen = len(text)
		}
	})
	return best
}

func sweepForDate(text string) *time.Time {
	match := datePattern.FindString(text)
	if match == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", "January 2, 2006", "Jan 2, 2006", "January 2 2006"} {
		if t, err := time.Parse(layout, match); err == nil {
			return &t
		}
	}
	return nil
}

var _ fetch.Tier = (*LegacyHTMLScraper)(nil)
