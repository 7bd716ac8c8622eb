package httpclient

import (
	"sync"

	"golang.org/x/time/rate"
)

// hostLimiters is a single mutex-guarded map of per-host token buckets.
// Refill rate and burst are derived from each source's
// rate_limit_per_minute (refill = rpm/60 tokens/s, burst = 1.5x refill
// rounded down, plus one), per the HTTP Client contract.
type hostLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newHostLimiters() *hostLimiters {
	return &hostLimiters{limiters: make(map[string]*rate.Limiter)}
}

// limiterFor returns the limiter for host, creating one at the given
// requests-per-minute rate the first time the host is seen. Subsequent
// calls with a different rpm for the same host keep the original limiter
// (rate changes take effect on process restart, matching the source
// catalog's copy-on-write refresh model).
func (h *hostLimiters) limiterFor(host string, ratePerMinute int) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	if l, ok := h.limiters[host]; ok {
		return l
	}

	if ratePerMinute <= 0 {
		ratePerMinute = 60
	}
	perSecond := float64(ratePerMinute) / 60.0
	burst := int(perSecond*1.5) + 1

	l := rate.NewLimiter(rate.Limit(perSecond), burst)
	h.limiters[host] = l
	return l
}
