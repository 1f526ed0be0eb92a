// Package fetch acquires raw material and freezes it into immutable Sources.
// A Source is identified by its content hash; re-fetching changed content
// yields a new Source rather than mutating the old one.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/trawler/internal/cache"
	"github.com/ppiankov/trawler/internal/model"
)

// Result pairs a Source with the raw content behind it. Content stays with
// the extractor; only the Source reference travels further.
type Result struct {
	Source  model.Source
	Content []byte
}

// Fetcher retrieves source content from HTTP URLs and local paths.
type Fetcher struct {
	httpClient    *http.Client
	robots        *RobotsChecker
	limiter       *HostLimiter // nil disables per-host rate limiting
	cache         cache.Cache  // nil disables fetch caching
	userAgent     string
	maxBytes      int64
	respectRobots bool
	logger        *zap.SugaredLogger
}

// NewFetcher creates a Fetcher from the fetch configuration.
func NewFetcher(cfg model.FetchConfig, c cache.Cache, logger *zap.SugaredLogger) *Fetcher {
	var limiter *HostLimiter
	if cfg.RequestsPerSecond > 0 {
		limiter = NewHostLimiter(cfg.RequestsPerSecond, cfg.Burst)
	}
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		robots:        NewRobotsChecker(cfg.UserAgent, cfg.Timeout),
		limiter:       limiter,
		cache:         c,
		userAgent:     cfg.UserAgent,
		maxBytes:      cfg.MaxBodyBytes,
		respectRobots: cfg.RespectRobots,
		logger:        logger,
	}
}

// Fetch retrieves the content behind a locator. HTTP(S) locators go through
// robots checks and the fetch cache; anything else is read as a local path.
func (f *Fetcher) Fetch(ctx context.Context, locator string) (*Result, error) {
	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		return f.fetchHTTP(ctx, locator)
	}
	return f.fetchFile(locator)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL string) (*Result, error) {
	if f.cache != nil {
		if data, found := f.cache.Get(cache.CacheKey(rawURL)); found {
			f.logger.Debugw("Source served from fetch cache", "locator", rawURL)
			return &Result{
				Source:  model.NewSource(rawURL, data, ""),
				Content: data,
			}, nil
		}
	}

	var crawlDelay time.Duration
	if f.respectRobots {
		allowed, delay, err := f.robots.CanFetch(ctx, rawURL)
		if err != nil {
			return nil, fmt.Errorf("robots check: %w", err)
		}
		if !allowed {
			return nil, fmt.Errorf("robots.txt disallows %s", rawURL)
		}
		crawlDelay = delay
	}

	if f.limiter != nil {
		if err := f.limiter.WaitWithDelay(ctx, rawURL, crawlDelay); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	} else if crawlDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(crawlDelay):
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status: %d %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if f.cache != nil {
		_ = f.cache.Set(cache.CacheKey(rawURL), body, 0)
	}

	source := model.NewSource(resp.Request.URL.String(), body, resp.Header.Get("Content-Type"))
	f.logger.Debugw("Source fetched",
		"locator", source.Locator, "hash", source.Hash[:12], "bytes", source.Bytes)
	return &Result{Source: source, Content: body}, nil
}

func (f *Fetcher) fetchFile(path string) (*Result, error) {
	path = strings.TrimPrefix(path, "file://")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source file: %w", err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		data = data[:f.maxBytes]
	}
	return &Result{
		Source:  model.NewSource(path, data, ""),
		Content: data,
	}, nil
}
