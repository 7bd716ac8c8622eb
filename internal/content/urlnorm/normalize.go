// Package urlnorm implements canonical URL normalization for dedup and
// URLTracking lookups: scheme/host lowering, default-port stripping,
// fragment removal, tracking-parameter stripping, query-key sorting, and
// trailing-slash trimming. Normalize is idempotent.
package urlnorm

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

var trackingParamPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^utm_.*$`),
	regexp.MustCompile(`^gclid$`),
	regexp.MustCompile(`^fbclid$`),
	regexp.MustCompile(`^(ph|sess|session)?sid$`),
	regexp.MustCompile(`^session_?id$`),
	regexp.MustCompile(`^mc_[a-z]+$`),
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Normalize returns the canonical form of rawURL per the data model's
// definition: lowercase scheme+host, default ports stripped, fragment
// dropped, tracking query parameters removed, remaining query keys sorted,
// and trailing slash removed from paths longer than "/".
func Normalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	if port := u.Port(); port != "" && defaultPorts[u.Scheme] == port {
		u.Host = strings.TrimSuffix(u.Host, ":"+port)
	}

	if len(u.Path) > 1 && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimRight(u.Path, "/")
	}

	if u.RawQuery != "" {
		values := u.Query()
		for key := range values {
			if isTrackingParam(key) {
				values.Del(key)
			}
		}
		u.RawQuery = encodeSorted(values)
	}

	return u.String(), nil
}

func isTrackingParam(key string) bool {
	lower := strings.ToLower(key)
	for _, pattern := range trackingParamPatterns {
		if pattern.MatchString(lower) {
			return true
		}
	}
	return false
}

// encodeSorted renders url.Values with deterministically sorted keys (and
// sorted values within a key), unlike url.Values.Encode which happens to
// sort keys already but is re-implemented here so the sort is explicit and
// doesn't rely on that implementation detail.
func encodeSorted(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		vals := append([]string{}, values[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
