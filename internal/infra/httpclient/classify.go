package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/sony/gobreaker"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/domain/entity/taskerr"
	"catchup-feed/internal/resilience/retry"
)

var (
	errTooManyRedirects   = errors.New("too many redirects")
	errRedirectOutOfScope = errors.New("redirect leaves source scope")
)

// scopeAllows reports whether rawURL's host satisfies scope: denied if it
// matches any DenyHosts pattern, otherwise allowed when AllowHosts is empty
// or matches one of its patterns. A Scope with no rules at all is
// unrestricted, matching sources that don't set scope in their YAML entry.
func scopeAllows(rawURL string, scope entity.Scope) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := u.Hostname()

	for _, pattern := range scope.DenyHosts {
		if matched, _ := regexp.MatchString(pattern, host); matched {
			return false
		}
	}

	if len(scope.AllowHosts) == 0 {
		return true
	}
	for _, pattern := range scope.AllowHosts {
		if matched, _ := regexp.MatchString(pattern, host); matched {
			return true
		}
	}
	return false
}

// classifyErr maps a transport or protocol-level failure onto the tagged
// Kind values the ingestion pipeline's error-handling design names, so
// callers (SourceCheck rows, retry/alerting policy) never need to
// string-match an error message.
func classifyErr(err error) *taskerr.Error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, errRedirectOutOfScope), errors.Is(err, errTooManyRedirects):
		return taskerr.Wrap(taskerr.KindOutOfScope, "redirect left source scope", err)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return taskerr.Wrap(taskerr.KindHTTP5xx, "circuit breaker open for host", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return taskerr.Wrap(taskerr.KindTimeout, "request deadline exceeded", err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return taskerr.Wrap(taskerr.KindDNS, "dns lookup failed", err)
	}

	var tlsErr tls.RecordHeaderError
	if errors.As(err, &tlsErr) || strings.Contains(err.Error(), "tls:") || strings.Contains(err.Error(), "x509:") {
		return taskerr.Wrap(taskerr.KindTLS, "tls handshake failed", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return taskerr.Wrap(taskerr.KindTimeout, "request timed out", err)
	}

	var httpErr *retry.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusTooManyRequests:
			return taskerr.Wrap(taskerr.KindRateLimitedRemote, "remote rate limit", err)
		case httpErr.StatusCode >= 500:
			return taskerr.Wrap(taskerr.KindHTTP5xx, "server error", err)
		default:
			return taskerr.Wrap(taskerr.KindHTTP4xx, "client error", err)
		}
	}

	return taskerr.Wrap(taskerr.KindNetwork, "request failed", err)
}
