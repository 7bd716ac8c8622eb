package entity

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"
)

// Tier identifies which extraction strategy applies to a Source.
type Tier int

const (
	TierUnspecified Tier = 0
	TierRSS         Tier = 1
	TierStructured  Tier = 2
	TierLegacy      Tier = 3
)

// Health classifies a source's operational state, derived from
// SourceState.ConsecutiveFailures by the scheduler.
type Health string

const (
	HealthHealthy      Health = "healthy"
	HealthDegraded     Health = "degraded"
	HealthDisabledAuto Health = "disabled_auto"
)

// Scope restricts which hosts and post URLs a source's fetches may touch.
// AllowHosts/DenyHosts are regexes matched against the request host;
// PostURLRegex, if set, further restricts which discovered URLs are
// eligible to be treated as article candidates.
type Scope struct {
	AllowHosts   []string `yaml:"allow,omitempty" json:"allow,omitempty"`
	DenyHosts    []string `yaml:"deny,omitempty" json:"deny,omitempty"`
	PostURLRegex string   `yaml:"post_url_regex,omitempty" json:"post_url_regex,omitempty"`
}

// DiscoveryHints configures Tier 2/3 listing-page crawling: where to look
// for article links and how far to paginate.
type DiscoveryHints struct {
	ListingURLs      []string `yaml:"listing_urls,omitempty" json:"listing_urls,omitempty"`
	PostLinkSelector string   `yaml:"post_link_selector,omitempty" json:"post_link_selector,omitempty"`
	MaxPages         int      `yaml:"max_pages,omitempty" json:"max_pages,omitempty"`
}

// ExtractHints carries per-source selector/strategy preferences consumed by
// the Modern Scraper's JSON-LD → OpenGraph → microdata → selector waterfall.
type ExtractHints struct {
	PreferJSONLD    bool     `yaml:"prefer_jsonld,omitempty" json:"prefer_jsonld,omitempty"`
	TitleSelectors  []string `yaml:"title_selectors,omitempty" json:"title_selectors,omitempty"`
	DateSelectors   []string `yaml:"date_selectors,omitempty" json:"date_selectors,omitempty"`
	BodySelectors   []string `yaml:"body_selectors,omitempty" json:"body_selectors,omitempty"`
	AuthorSelectors []string `yaml:"author_selectors,omitempty" json:"author_selectors,omitempty"`
}

// Source represents one polling target: an RSS feed, a structured-scrape
// site, or a legacy-HTML site. Config-sync owns creation/removal; the
// scheduler and fetcher mutate only SourceState fields (see SourceState).
type Source struct {
	ID         int64
	Identifier string // unique, stable across config reloads
	Name       string
	URL        string
	RSSURL     string // enables Tier 1 when set
	Tier       Tier   // hint; overridden by RSSURL/DiscoveryHints presence
	Active     bool
	Weight     float64 // default 1.0; scheduler priority + quality-reject rescue

	CheckFrequencySeconds int // default 1800
	RateLimitPerMinute    int // default from global config when zero
	UserAgentOverride     string
	HTTPTimeoutSeconds    int
	MaxArticles           int

	Scope          Scope
	DiscoveryHints DiscoveryHints
	ExtractHints   ExtractHints
	Categories     []string
}

// EffectiveTier resolves the tier actually used by the Fetcher: RSS wins if
// configured, then discovery hints imply structured scraping, else legacy.
func (s *Source) EffectiveTier() Tier {
	if s.RSSURL != "" {
		return TierRSS
	}
	if len(s.DiscoveryHints.ListingURLs) > 0 && s.DiscoveryHints.PostLinkSelector != "" {
		return TierStructured
	}
	return TierLegacy
}

var identifierPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Validate checks the Source invariants from the data model: identifier
// syntax, presence of a resolvable tier, and well-formed scope regexes.
func (s *Source) Validate() error {
	if s.Identifier == "" {
		return errors.New("identifier is required")
	}
	if !identifierPattern.MatchString(s.Identifier) {
		return fmt.Errorf("identifier %q must match %s", s.Identifier, identifierPattern.String())
	}
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.URL == "" {
		return errors.New("url is required")
	}
	if s.RSSURL == "" && len(s.DiscoveryHints.ListingURLs) == 0 && s.Tier != TierLegacy && s.Tier != TierUnspecified {
		return fmt.Errorf("source %s: tier %d requires rss_url or discovery_hints", s.Identifier, s.Tier)
	}
	for _, pattern := range append(append([]string{}, s.Scope.AllowHosts...), s.Scope.DenyHosts...) {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("source %s: invalid scope host regex %q: %w", s.Identifier, pattern, err)
		}
	}
	if s.Scope.PostURLRegex != "" {
		if _, err := regexp.Compile(s.Scope.PostURLRegex); err != nil {
			return fmt.Errorf("source %s: invalid scope.post_url_regex %q: %w", s.Identifier, s.Scope.PostURLRegex, err)
		}
	}
	return nil
}

// ApplyDefaults fills in zero-valued fields with the documented defaults.
func (s *Source) ApplyDefaults(globalRateLimitPerMinute int) {
	if s.Weight == 0 {
		s.Weight = 1.0
	}
	if s.CheckFrequencySeconds == 0 {
		s.CheckFrequencySeconds = 1800
	}
	if s.RateLimitPerMinute == 0 {
		s.RateLimitPerMinute = globalRateLimitPerMinute
	}
	if s.HTTPTimeoutSeconds == 0 {
		s.HTTPTimeoutSeconds = 30
	}
}

// IsTrusted reports whether the source's weight exempts it from the quality
// score floor rejection (spec: weight > 1.5).
func (s *Source) IsTrusted() bool {
	return s.Weight > 1.5
}

// URLInScope reports whether rawURL's host passes the source's
// Scope.AllowHosts/DenyHosts regexes and, when set, Scope.PostURLRegex.
// Invalid regexes (already rejected by Validate) and unparsable URLs are
// treated as out of scope rather than panicking.
func URLInScope(src *Source, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := u.Hostname()

	for _, pattern := range src.Scope.DenyHosts {
		if matched, _ := regexp.MatchString(pattern, host); matched {
			return false
		}
	}

	if len(src.Scope.AllowHosts) > 0 {
		allowed := false
		for _, pattern := range src.Scope.AllowHosts {
			if matched, _ := regexp.MatchString(pattern, host); matched {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if src.Scope.PostURLRegex != "" {
		if matched, _ := regexp.MatchString(src.Scope.PostURLRegex, rawURL); !matched {
			return false
		}
	}

	return true
}

// SourceState is the mutable, 1:1 scheduling/fetch state for a Source.
// Scheduler owns NextRunAt/Health; Fetcher owns the remaining fields.
type SourceState struct {
	SourceID            int64
	LastCheckedAt        *time.Time
	LastSuccessAt        *time.Time
	LastETag             string
	LastModified         string
	ConsecutiveFailures  int
	Health               Health
	NextRunAt            time.Time
}

// RecomputeHealth derives Health from ConsecutiveFailures per the data
// model's invariant (≥5 degraded, ≥20 disabled_auto).
func (st *SourceState) RecomputeHealth() {
	switch {
	case st.ConsecutiveFailures >= 20:
		st.Health = HealthDisabledAuto
	case st.ConsecutiveFailures >= 5:
		st.Health = HealthDegraded
	default:
		st.Health = HealthHealthy
	}
}
