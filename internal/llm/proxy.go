package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ppiankov/trawler/internal/cache"
)

// retrySleepFunc is the sleep between retry attempts (injectable for tests).
var retrySleepFunc = func(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Proxy is the rate-limited, retrying, caching front over one provider.
// All factory components call the proxy endpoint through it.
type Proxy struct {
	provider Provider
	limiter  *rate.Limiter
	cache    cache.Cache // nil when caching is disabled
	cacheTTL time.Duration
	retries  int
	logger   *zap.SugaredLogger
}

// NewProxy wraps a provider. A zero RequestsPerSecond disables rate
// limiting; a zero CacheTTL disables the completion cache.
func NewProxy(provider Provider, config Config, logger *zap.SugaredLogger) *Proxy {
	var limiter *rate.Limiter
	if config.RequestsPerSecond > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
	}

	var c cache.Cache
	if config.CacheTTL > 0 && config.CacheDir != "" {
		c = cache.NewLayeredCache(config.CacheTTL, config.CacheDir, config.CacheTTL)
	}

	retries := config.MaxRetries
	if retries <= 0 {
		retries = 1
	}

	return &Proxy{
		provider: provider,
		limiter:  limiter,
		cache:    c,
		cacheTTL: config.CacheTTL,
		retries:  retries,
		logger:   logger,
	}
}

// Provider returns the wrapped provider.
func (p *Proxy) Provider() Provider { return p.provider }

// Complete runs the request through cache, rate limiter, and provider with
// exponential backoff on transient failures.
func (p *Proxy) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	key := completionKey(req)

	if p.cache != nil {
		if data, found := p.cache.Get(key); found {
			var resp CompletionResponse
			if err := json.Unmarshal(data, &resp); err == nil {
				p.logger.Debugw("Completion served from cache", "role", req.Context.Role)
				return &resp, nil
			}
		}
	}

	var resp *CompletionResponse
	var err error
	backoff := 500 * time.Millisecond
	for attempt := 0; attempt < p.retries; attempt++ {
		if p.limiter != nil {
			if werr := p.limiter.Wait(ctx); werr != nil {
				return nil, werr
			}
		}

		resp, err = p.provider.Complete(ctx, req)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		p.logger.Warnw("Proxy completion failed, backing off",
			"provider", p.provider.Name(), "attempt", attempt+1, "error", err)
		if attempt+1 < p.retries {
			if serr := retrySleepFunc(ctx, backoff); serr != nil {
				return nil, serr
			}
			backoff *= 2
		}
	}
	if err != nil {
		return nil, fmt.Errorf("proxy completion after %d attempts: %w", p.retries, err)
	}

	if p.cache != nil {
		if data, merr := json.Marshal(resp); merr == nil {
			_ = p.cache.Set(key, data, p.cacheTTL)
		}
	}
	return resp, nil
}

func completionKey(req CompletionRequest) string {
	h := sha256.New()
	h.Write([]byte(req.Context.Role))
	h.Write([]byte{0})
	h.Write([]byte(req.Context.System))
	h.Write([]byte{0})
	h.Write([]byte(req.Model))
	h.Write([]byte{0})
	h.Write([]byte(req.Prompt))
	return "completion:" + hex.EncodeToString(h.Sum(nil))
}
