// Package httpclient implements the single HTTP entry point every fetch
// tier routes through: per-host rate limiting, robots.txt enforcement,
// retry with backoff, per-tier circuit breaking, conditional requests, and
// scope-bounded redirects.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/domain/entity/taskerr"
	"catchup-feed/internal/infra/robots"
	"catchup-feed/internal/resilience/retry"
)

// maxBodyBytes bounds every response body read regardless of the caller's
// configured MAX_CONTENT_LENGTH, as a hard backstop against a misbehaving
// or hostile origin.
const maxBodyBytes = 20 * 1024 * 1024

const defaultMaxWait = 30 * time.Second

// Request describes one fetch attempt. Scope, when non-zero, bounds both
// the initial URL and every redirect hop.
type Request struct {
	Method             string
	URL                string
	UserAgent          string
	Tier               entity.Tier
	Scope              entity.Scope
	RateLimitPerMinute int
	Timeout            time.Duration
	MaxWait            time.Duration
	IfNoneMatch        string
	IfModifiedSince    string
}

// Response is the normalized result of a successful (including 304) fetch.
type Response struct {
	StatusCode  int
	Body        []byte
	Header      http.Header
	FinalURL    string
	NotModified bool
	Elapsed     time.Duration
}

// Client is the shared transport every scraper tier and the robots.txt
// fetcher's parent builds on.
type Client struct {
	transport        http.RoundTripper
	robots           *robots.Fetcher
	limiters         *hostLimiters
	breakers         *breakerPool
	defaultUserAgent string
}

// NewClient builds a Client. transport defaults to http.DefaultTransport
// when nil; robotsFetcher is shared so its cache benefits every tier.
func NewClient(transport http.RoundTripper, robotsFetcher *robots.Fetcher, defaultUserAgent string) *Client {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Client{
		transport:        transport,
		robots:           robotsFetcher,
		limiters:         newHostLimiters(),
		breakers:         newBreakerPool(),
		defaultUserAgent: defaultUserAgent,
	}
}

// Fetch performs one HTTP request under the full policy stack: SSRF/scope
// validation, robots.txt, token-bucket rate limiting, retry with backoff,
// and a per-tier-per-host circuit breaker. It never returns a bare error;
// every failure is classified into a *taskerr.Error Kind.
func (c *Client) Fetch(ctx context.Context, req Request) (*Response, *taskerr.Error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	if err := entity.ValidateURL(req.URL); err != nil {
		return nil, taskerr.Wrap(taskerr.KindValidation, "invalid request url", err)
	}
	if !scopeAllows(req.URL, req.Scope) {
		return nil, taskerr.New(taskerr.KindOutOfScope, "request url outside source scope")
	}

	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, taskerr.Wrap(taskerr.KindValidation, "parse request url", err)
	}
	host := u.Hostname()

	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = c.defaultUserAgent
	}

	rules := c.robots.Rules(ctx, u.Scheme, host)
	if !rules.Allowed(u.EscapedPath()) {
		return nil, taskerr.New(taskerr.KindRobotsDisallowed, fmt.Sprintf("robots.txt disallows %s", u.EscapedPath()))
	}

	maxWait := req.MaxWait
	if maxWait <= 0 {
		maxWait = defaultMaxWait
	}
	if err := c.waitForToken(ctx, host, req.RateLimitPerMinute, maxWait); err != nil {
		return nil, taskerr.Wrap(taskerr.KindRateLimitedLocal, "local rate limit budget exceeded", err)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{
		Transport:     c.transport,
		Timeout:       timeout,
		CheckRedirect: checkRedirect(req.Scope),
	}

	cb := c.breakers.get(req.Tier, host)

	var resp *Response
	retryErr := retry.WithBackoff(ctx, retry.RateLimitConfig(), func() error {
		raw, execErr := cb.Execute(func() (interface{}, error) {
			return c.doOnce(ctx, httpClient, req, userAgent)
		})
		if raw != nil {
			resp = raw.(*Response)
		}
		return execErr
	})

	if retryErr == nil {
		return resp, nil
	}
	return nil, classifyErr(retryErr)
}

func (c *Client) doOnce(ctx context.Context, httpClient *http.Client, req Request, userAgent string) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml,application/rss+xml,application/atom+xml;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.5")
	if req.IfNoneMatch != "" {
		httpReq.Header.Set("If-None-Match", req.IfNoneMatch)
	}
	if req.IfModifiedSince != "" {
		httpReq.Header.Set("If-Modified-Since", req.IfModifiedSince)
	}

	start := time.Now()
	resp, err := httpClient.Do(httpReq)
	if resp != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	if err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}

	finalURL := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	result := &Response{
		StatusCode:  resp.StatusCode,
		Body:        body,
		Header:      resp.Header,
		FinalURL:    finalURL,
		NotModified: resp.StatusCode == http.StatusNotModified,
		Elapsed:     time.Since(start),
	}

	if resp.StatusCode == http.StatusNotModified || (resp.StatusCode >= 200 && resp.StatusCode < 300) {
		return result, nil
	}
	return result, &retry.HTTPError{
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
		RetryAfter: retry.ParseRetryAfter(resp.Header.Get("Retry-After"), start),
	}
}

// checkRedirect enforces the HTTP Client contract's redirect policy: follow
// up to 5 hops, every one of them inside scope.
func checkRedirect(scope entity.Scope) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= 5 {
			return errTooManyRedirects
		}
		if !scopeAllows(req.URL.String(), scope) {
			return errRedirectOutOfScope
		}
		return nil
	}
}

// waitForToken blocks until the host's token bucket has a token available,
// up to maxWait. Exceeding the budget is the rate_limited_local failure
// mode; it never silently drops the caller's deadline.
func (c *Client) waitForToken(ctx context.Context, host string, ratePerMinute int, maxWait time.Duration) error {
	limiter := c.limiters.limiterFor(host, ratePerMinute)
	reservation := limiter.Reserve()
	if !reservation.OK() {
		return errors.New("rate limiter cannot accommodate request")
	}

	delay := reservation.Delay()
	if delay > maxWait {
		reservation.Cancel()
		return fmt.Errorf("token wait %s exceeds budget %s", delay, maxWait)
	}
	if delay <= 0 {
		return nil
	}

	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		reservation.Cancel()
		return ctx.Err()
	}
}
