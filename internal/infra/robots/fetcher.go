package robots

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultTTL is the robots.txt cache lifetime the HTTP Client contract
// specifies (24h).
const DefaultTTL = 24 * time.Hour

// Fetcher retrieves and caches robots.txt rule sets per origin. Fetch
// failures (network errors, any status other than 200 or 404) degrade to an
// empty RuleSet (allow-everything) rather than blocking ingestion, per the
// HTTP Client contract. A 404 also yields allow-everything; a body larger
// than 512 KiB is cut at that size and the remainder is parsed.
type Fetcher struct {
	client    *http.Client
	userAgent string
	cache     Cache
}

// NewFetcher builds a Fetcher. client is typically a short-timeout client
// distinct from the main content-fetching client, since robots.txt fetches
// must not consume the caller's rate-limit budget.
func NewFetcher(client *http.Client, userAgent string, cache Cache) *Fetcher {
	return &Fetcher{client: client, userAgent: userAgent, cache: cache}
}

func cacheKey(scheme, host string) string {
	return scheme + "://" + host
}

// Rules returns the cached or freshly-fetched RuleSet for scheme://host.
// It never returns an error to the caller: any fetch failure results in an
// allow-everything RuleSet, logged at warn level.
func (f *Fetcher) Rules(ctx context.Context, scheme, host string) *RuleSet {
	key := cacheKey(scheme, host)
	if cached, ok := f.cache.Get(key); ok {
		return cached
	}

	rules, err := f.fetch(ctx, scheme, host)
	if err != nil {
		slog.Warn("robots.txt fetch failed, degrading to allow",
			slog.String("host", host), slog.String("error", err.Error()))
		rules = &RuleSet{}
	}

	f.cache.Put(key, rules)
	return rules
}

func (f *Fetcher) fetch(ctx context.Context, scheme, host string) (*RuleSet, error) {
	url := fmt.Sprintf("%s://%s/robots.txt", scheme, host)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return &RuleSet{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("robots.txt returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil, err
	}

	return Parse(string(body), f.userAgent), nil
}
