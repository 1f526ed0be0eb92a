package fetch

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter rate-limits source fetches per host, so hammering one site's
// sources never starves another's and no site sees more than the configured
// request rate.
type HostLimiter struct {
	limiters     map[string]*rate.Limiter
	mu           sync.RWMutex
	defaultRate  rate.Limit
	defaultBurst int
}

// NewHostLimiter creates a limiter applying the same rate to every host
// until SetHostRate overrides one.
func NewHostLimiter(requestsPerSecond float64, burst int) *HostLimiter {
	if burst <= 0 {
		burst = 5
	}
	return &HostLimiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  rate.Limit(requestsPerSecond),
		defaultBurst: burst,
	}
}

// Wait blocks until the locator's host has clearance.
func (l *HostLimiter) Wait(ctx context.Context, locator string) error {
	host, err := hostOf(locator)
	if err != nil {
		return err
	}
	return l.limiter(host).Wait(ctx)
}

// Allow reports whether a fetch may proceed right now, without waiting.
func (l *HostLimiter) Allow(locator string) bool {
	host, err := hostOf(locator)
	if err != nil {
		return false
	}
	return l.limiter(host).Allow()
}

// WaitWithDelay waits for clearance and then an additional delay. Used to
// honor crawl-delay directives on top of the configured rate.
func (l *HostLimiter) WaitWithDelay(ctx context.Context, locator string, delay time.Duration) error {
	if err := l.Wait(ctx, locator); err != nil {
		return err
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil
}

// SetHostRate overrides the rate for one host.
func (l *HostLimiter) SetHostRate(host string, requestsPerSecond float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if burst <= 0 {
		burst = l.defaultBurst
	}
	l.limiters[host] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

func (l *HostLimiter) limiter(host string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[host]
	l.mu.RUnlock()
	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, exists := l.limiters[host]; exists {
		return limiter
	}
	limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.limiters[host] = limiter
	return limiter
}

func hostOf(locator string) (string, error) {
	parsed, err := url.Parse(locator)
	if err != nil {
		return "", err
	}
	return parsed.Host, nil
}
