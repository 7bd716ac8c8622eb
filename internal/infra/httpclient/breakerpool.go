package httpclient

import (
	"sync"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/resilience/circuitbreaker"
)

const (
	tierFeedFetch    = "feed-fetch"
	tierContentFetch = "content-fetch"
)

// tierName maps a Source's effective tier onto the circuit breaker pool
// the HTTP Client contract names: RSS polling trips independently of
// article-page fetching, since a broken feed shouldn't block Tier 2/3
// scraping on the same host.
func tierName(t entity.Tier) string {
	if t == entity.TierRSS {
		return tierFeedFetch
	}
	return tierContentFetch
}

// breakerPool lazily creates one circuit breaker per tier+host pair, so a
// site with a broken selector set or a dead feed only trips the breaker
// for that host, not every other source sharing the tier.
type breakerPool struct {
	mu       sync.Mutex
	breakers map[string]*circuitbreaker.CircuitBreaker
}

func newBreakerPool() *breakerPool {
	return &breakerPool{breakers: make(map[string]*circuitbreaker.CircuitBreaker)}
}

func (p *breakerPool) get(tier entity.Tier, host string) *circuitbreaker.CircuitBreaker {
	name := tierName(tier)
	key := name + ":" + host

	p.mu.Lock()
	defer p.mu.Unlock()

	if cb, ok := p.breakers[key]; ok {
		return cb
	}

	var cfg circuitbreaker.Config
	if name == tierFeedFetch {
		cfg = circuitbreaker.FeedFetchConfig()
	} else {
		cfg = circuitbreaker.ContentFetchConfig(key)
	}
	cfg.Name = key

	cb := circuitbreaker.New(cfg)
	p.breakers[key] = cb
	return cb
}
