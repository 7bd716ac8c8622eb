package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/domain/entity/taskerr"
	"catchup-feed/internal/infra/fetcher"
	"catchup-feed/internal/infra/httpclient"
	"catchup-feed/internal/observability/metrics"
	"catchup-feed/internal/resilience/retry"
	"catchup-feed/internal/usecase/fetch"
)

// ModernScraper implements fetch.Tier for sources discovered via listing
// pages (entity.Source.DiscoveryHints). It crawls each listing URL for post
// links, then extracts every candidate's title/body with a waterfall: JSON-LD
// (schema.org Article/NewsArticle), OpenGraph meta tags, microdata, then the
// source's configured ExtractHints selectors. A go-readability fallback
// fires only if every structured strategy comes up empty.
type ModernScraper struct {
	client   *httpclient.Client
	fallback fetch.ContentFetcher
}

// NewModernScraper builds a ModernScraper. fallback is used only when the
// JSON-LD/OpenGraph/microdata/selector waterfall fails to find a body.
func NewModernScraper(client *httpclient.Client, fallback fetch.ContentFetcher) *ModernScraper {
	return &ModernScraper{client: client, fallback: fallback}
}

func (m *ModernScraper) Fetch(ctx context.Context, src *entity.Source, state *entity.SourceState) ([]fetch.ArticleCandidate, *fetch.FetchMeta, error) {
	links, meta, err := m.discoverLinks(ctx, src)
	if err != nil {
		return nil, meta, err
	}

	candidates := make([]fetch.ArticleCandidate, 0, len(links))
	for _, link := range links {
		cand, err := m.extractArticle(ctx, src, link)
		if err != nil {
			if isGone(err) {
				meta.SuppressedURLs = append(meta.SuppressedURLs, link)
			}
			continue // one broken detail page doesn't fail the whole check
		}
		if cand != nil {
			candidates = append(candidates, *cand)
		}
	}
	return candidates, meta, nil
}

// isGone reports whether err is a 404/410 from the detail page fetch, the
// signal that the page was permanently removed rather than transiently
// broken.
func isGone(err error) bool {
	var httpErr *retry.HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	return httpErr.StatusCode == http.StatusNotFound || httpErr.StatusCode == http.StatusGone
}

// discoverLinks crawls every configured listing URL (capped at MaxPages,
// default 1) and collects absolute post URLs matching PostLinkSelector.
func (m *ModernScraper) discoverLinks(ctx context.Context, src *entity.Source) ([]string, *fetch.FetchMeta, error) {
	maxPages := src.DiscoveryHints.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}

	var combinedMeta fetch.FetchMeta
	seen := make(map[string]struct{})
	var links []string

	for _, listingURL := range src.DiscoveryHints.ListingURLs {
		for page := 1; page <= maxPages; page++ {
			pageURL := listingURL
			if page > 1 {
				pageURL = fmt.Sprintf("%s?page=%d", listingURL, page)
			}

			resp, taskErr := m.client.Fetch(ctx, httpclient.Request{
				URL:                pageURL,
				UserAgent:          src.UserAgentOverride,
				Tier:               entity.TierStructured,
				Scope:              src.Scope,
				RateLimitPerMinute: src.RateLimitPerMinute,
				Timeout:            time.Duration(src.HTTPTimeoutSeconds) * time.Second,
			})
			if taskErr != nil {
				if page == 1 {
					return nil, &combinedMeta, taskErr
				}
				break // later pages 404ing just ends pagination
			}
			combinedMeta.HTTPStatus = resp.StatusCode
			combinedMeta.BytesRead += int64(len(resp.Body))

			doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
			if err != nil {
				return nil, &combinedMeta, taskerr.Wrap(taskerr.KindExtractionFailed, "parse listing page", err)
			}

			found := 0
			doc.Find(src.DiscoveryHints.PostLinkSelector).Each(func(_ int, sel *goquery.Selection) {
				href, ok := sel.Attr("href")
				if !ok {
					return
				}
				abs := resolveURL(pageURL, href)
				if abs == "" {
					return
				}
				if _, dup := seen[abs]; dup {
					return
				}
				seen[abs] = struct{}{}
				links = append(links, abs)
				found++
			})
			if found == 0 {
				break
			}
		}
	}

	return links, &combinedMeta, nil
}

// extractArticle fetches one detail page and runs the waterfall.
func (m *ModernScraper) extractArticle(ctx context.Context, src *entity.Source, pageURL string) (*fetch.ArticleCandidate, error) {
	start := time.Now()
	resp, taskErr := m.client.Fetch(ctx, httpclient.Request{
		URL:                pageURL,
		UserAgent:          src.UserAgentOverride,
		Tier:               entity.TierStructured,
		Scope:              src.Scope,
		RateLimitPerMinute: src.RateLimitPerMinute,
		Timeout:            time.Duration(src.HTTPTimeoutSeconds) * time.Second,
	})
	if taskErr != nil {
		metrics.RecordContentFetchFailed(time.Since(start))
		return nil, taskErr
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		metrics.RecordContentFetchFailed(time.Since(start))
		return nil, fmt.Errorf("parse detail page: %w", err)
	}

	cand := &fetch.ArticleCandidate{URL: pageURL}

	if title, body, published, author, ok := extractJSONLD(doc); ok {
		cand.Title, cand.Content, cand.PublishedAt, cand.Author = title, body, published, author
	} else if title, body, ok := extractOpenGraph(doc); ok {
		cand.Title, cand.Content = title, body
	} else if title, body, ok := extractMicrodata(doc); ok {
		cand.Title, cand.Content = title, body
	} else if title, body, published, author, ok := extractBySelectors(doc, src.ExtractHints); ok {
		cand.Title, cand.Content, cand.PublishedAt, cand.Author = title, body, published, author
	}

	if cand.Title == "" {
		cand.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if cand.Content == "" && m.fallback != nil {
		if body, err := m.fallback.FetchContent(ctx, pageURL); err == nil && body != "" {
			cand.Content = body
		}
	}
	if cand.Title == "" || cand.Content == "" {
		metrics.RecordContentFetchFailed(time.Since(start))
		return nil, taskerr.New(taskerr.KindExtractionFailed, "no title/body found by any extraction strategy")
	}

	cand.NeedsFullText = false
	metrics.RecordContentFetchSuccess(time.Since(start), len(cand.Content))
	return cand, nil
}

// jsonLDNode is the subset of schema.org Article/NewsArticle fields the
// waterfall reads; unknown fields are ignored by encoding/json.
type jsonLDNode struct {
	Type          string `json:"@type"`
	Headline      string `json:"headline"`
	ArticleBody   string `json:"articleBody"`
	DatePublished string `json:"datePublished"`
	Author        any    `json:"author"`
}

func extractJSONLD(doc *goquery.Document) (title, body string, published *time.Time, author string, ok bool) {
	var found *jsonLDNode
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		raw := sel.Text()
		var node jsonLDNode
		if err := json.Unmarshal([]byte(raw), &node); err == nil && isArticleType(node.Type) {
			found = &node
			return false
		}
		var nodes []jsonLDNode
		if err := json.Unmarshal([]byte(raw), &nodes); err == nil {
			for i := range nodes {
				if isArticleType(nodes[i].Type) {
					found = &nodes[i]
					return false
				}
			}
		}
		return true
	})
	if found == nil || found.Headline == "" || found.ArticleBody == "" {
		return "", "", nil, "", false
	}

	if found.DatePublished != "" {
		if t, err := time.Parse(time.RFC3339, found.DatePublished); err == nil {
			published = &t
		}
	}
	author = extractAuthorName(found.Author)

	return found.Headline, found.ArticleBody, published, author, true
}

func isArticleType(t string) bool {
	switch t {
	case "Article", "NewsArticle", "BlogPosting", "TechArticle":
		return true
	default:
		return false
	}
}

func extractAuthorName(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case map[string]any:
		if name, ok := v["name"].(string); ok {
			return name
		}
	case []any:
		if len(v) > 0 {
			return extractAuthorName(v[0])
		}
	}
	return ""
}

func extractOpenGraph(doc *goquery.Document) (title, body string, ok bool) {
	title = metaContent(doc, "og:title")
	body = metaContent(doc, "og:description")
	if title == "" || body == "" {
		return "", "", false
	}
	return title, body, true
}

func metaContent(doc *goquery.Document, property string) string {
	sel := doc.Find(fmt.Sprintf(`meta[property="%s"]`, property))
	if sel.Length() == 0 {
		sel = doc.Find(fmt.Sprintf(`meta[name="%s"]`, property))
	}
	content, _ := sel.First().Attr("content")
	return strings.TrimSpace(content)
}

func extractMicrodata(doc *goquery.Document) (title, body string, ok bool) {
	scope := doc.Find(`[itemtype*="schema.org/Article"], [itemtype*="schema.org/NewsArticle"]`).First()
	if scope.Length() == 0 {
		return "", "", false
	}
	title = strings.TrimSpace(scope.Find(`[itemprop="headline"]`).First().Text())
	body = strings.TrimSpace(scope.Find(`[itemprop="articleBody"]`).First().Text())
	if title == "" || body == "" {
		return "", "", false
	}
	return title, body, true
}

func extractBySelectors(doc *goquery.Document, hints entity.ExtractHints) (title, body string, published *time.Time, author string, ok bool) {
	title = firstNonEmptyText(doc, hints.TitleSelectors)
	body = firstNonEmptyText(doc, hints.BodySelectors)
	author = firstNonEmptyText(doc, hints.AuthorSelectors)
	if dateStr := firstNonEmptyText(doc, hints.DateSelectors); dateStr != "" {
		published = parseAnyDate(dateStr)
	}
	if title == "" || body == "" {
		return "", "", nil, "", false
	}
	return title, body, published, author, true
}

func firstNonEmptyText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02T15:04:05Z",
	"Jan 2, 2006",
	"January 2, 2006",
}

func parseAnyDate(s string) *time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func resolveURL(base, ref string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return baseURL.ResolveReference(refURL).String()
}

var (
	_ fetch.Tier           = (*ModernScraper)(nil)
	_ fetch.ContentFetcher = (*fetcher.ReadabilityFetcher)(nil)
)
