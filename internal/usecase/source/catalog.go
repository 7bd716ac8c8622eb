package source

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"catchup-feed/internal/domain/entity"
)

// CatalogDocument is the on-disk source configuration document (
// "Source configuration"). One document lists every source the ingester is
// allowed to crawl; sync reconciles it against the sources table.
type CatalogDocument struct {
	Sources []CatalogSource `yaml:"sources"`
}

// CatalogSource mirrors entity.Source's YAML-facing fields. Fields absent
// from the document take entity.Source.ApplyDefaults' zero-value defaults.
type CatalogSource struct {
	Identifier            string   `yaml:"identifier"`
	Name                   string   `yaml:"name"`
	URL                    string   `yaml:"url"`
	RSSURL                 string   `yaml:"rss_url,omitempty"`
	Tier                   int      `yaml:"tier,omitempty"`
	Active                 *bool    `yaml:"active,omitempty"`
	Weight                 float64  `yaml:"weight,omitempty"`
	CheckFrequencySeconds  int      `yaml:"check_frequency,omitempty"`
	RateLimitPerMinute     int      `yaml:"rate_limit_per_minute,omitempty"`
	UserAgentOverride      string   `yaml:"user_agent_override,omitempty"`
	HTTPTimeoutSeconds     int      `yaml:"http_timeout_seconds,omitempty"`
	MaxArticles            int      `yaml:"max_articles,omitempty"`
	Categories             []string `yaml:"categories,omitempty"`

	Scope     CatalogScope     `yaml:"scope,omitempty"`
	Discovery CatalogDiscovery `yaml:"discovery,omitempty"`
	Extract   CatalogExtract   `yaml:"extract,omitempty"`
}

type CatalogScope struct {
	Allow        []string `yaml:"allow,omitempty"`
	Deny         []string `yaml:"deny,omitempty"`
	PostURLRegex string   `yaml:"post_url_regex,omitempty"`
}

type CatalogDiscovery struct {
	ListingURLs      []string `yaml:"listing_urls,omitempty"`
	PostLinkSelector string   `yaml:"post_link_selector,omitempty"`
	MaxPages         int      `yaml:"max_pages,omitempty"`
}

type CatalogExtract struct {
	PreferJSONLD    bool     `yaml:"prefer_jsonld,omitempty"`
	TitleSelectors  []string `yaml:"title_selectors,omitempty"`
	DateSelectors   []string `yaml:"date_selectors,omitempty"`
	BodySelectors   []string `yaml:"body_selectors,omitempty"`
	AuthorSelectors []string `yaml:"author_selectors,omitempty"`
}

// LoadCatalog reads and parses a source catalog document from disk.
func LoadCatalog(path string) (*CatalogDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	var doc CatalogDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return &doc, nil
}

// ToEntity converts a catalog entry into the domain Source it describes.
// id is preserved across syncs by the caller (0 for not-yet-created rows).
func (c CatalogSource) ToEntity(id int64) *entity.Source {
	active := true
	if c.Active != nil {
		active = *c.Active
	}
	return &entity.Source{
		ID:                    id,
		Identifier:            c.Identifier,
		Name:                  c.Name,
		URL:                   c.URL,
		RSSURL:                c.RSSURL,
		Tier:                  entity.Tier(c.Tier),
		Active:                active,
		Weight:                c.Weight,
		CheckFrequencySeconds: c.CheckFrequencySeconds,
		RateLimitPerMinute:    c.RateLimitPerMinute,
		UserAgentOverride:     c.UserAgentOverride,
		HTTPTimeoutSeconds:    c.HTTPTimeoutSeconds,
		MaxArticles:           c.MaxArticles,
		Categories:            c.Categories,
		Scope: entity.Scope{
			AllowHosts:   c.Scope.Allow,
			DenyHosts:    c.Scope.Deny,
			PostURLRegex: c.Scope.PostURLRegex,
		},
		DiscoveryHints: entity.DiscoveryHints{
			ListingURLs:      c.Discovery.ListingURLs,
			PostLinkSelector: c.Discovery.PostLinkSelector,
			MaxPages:         c.Discovery.MaxPages,
		},
		ExtractHints: entity.ExtractHints{
			PreferJSONLD:    c.Extract.PreferJSONLD,
			TitleSelectors:  c.Extract.TitleSelectors,
			DateSelectors:   c.Extract.DateSelectors,
			BodySelectors:   c.Extract.BodySelectors,
			AuthorSelectors: c.Extract.AuthorSelectors,
		},
	}
}
