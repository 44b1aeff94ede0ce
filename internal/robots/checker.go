package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/h1b-jobs-crawler/internal/crawler"
	"github.com/JakeFAU/h1b-jobs-crawler/internal/metrics"
)

const (
	// FallbackCrawlDelayMs is returned when robots.txt cannot be fetched.
	FallbackCrawlDelayMs = 2000
	defaultTimeout       = 10 * time.Second
	maxBodyBytes         = 1 << 20
)

// Config controls the checker.
type Config struct {
	Timeout   time.Duration
	UserAgent string
	// CacheResults keeps parsed files per host until Reset is called.
	CacheResults bool
}

// Checker implements crawler.RobotsChecker over HTTP.
type Checker struct {
	client    *http.Client
	userAgent string
	cache     sync.Map
	useCache  bool
	logger    *zap.Logger
}

type cachedFile struct {
	robotsURL string
	blocks    []Rules
	failure   string
}

// NewChecker builds a Checker.
func NewChecker(cfg Config, logger *zap.Logger) *Checker {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		client:    &http.Client{Timeout: timeout},
		userAgent: cfg.UserAgent,
		useCache:  cfg.CacheResults,
		logger:    logger,
	}
}

// Reset drops cached robots files.
func (c *Checker) Reset() {
	c.cache.Range(func(key, _ any) bool {
		c.cache.Delete(key)
		return true
	})
}

// Check reports whether agent may fetch rawURL and at what delay. It never fails:
// unreachable or unreadable robots files fail open with FallbackCrawlDelayMs.
func (c *Checker) Check(ctx context.Context, rawURL, agent string) crawler.RobotsCompliance {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		metrics.ObserveRobotsCheck("invalid_url")
		return crawler.RobotsCompliance{
			Allowed:      true,
			CrawlDelayMs: FallbackCrawlDelayMs,
			Reason:       fmt.Sprintf("Could not fetch robots.txt: invalid url %q", rawURL),
			UserAgent:    agent,
		}
	}
	robotsURL := parsed.Scheme + "://" + parsed.Host + "/robots.txt"

	file := c.load(ctx, robotsURL)
	if file.failure != "" {
		c.logger.Warn("robots fetch failed; allowing with fallback delay",
			zap.String("robots_url", robotsURL),
			zap.String("reason", file.failure),
		)
		metrics.ObserveRobotsCheck("fail_open")
		return crawler.RobotsCompliance{
			Allowed:      true,
			CrawlDelayMs: FallbackCrawlDelayMs,
			Reason:       "Could not fetch robots.txt: " + file.failure,
			UserAgent:    agent,
			RobotsURL:    robotsURL,
		}
	}

	block, ok := Select(file.blocks, agent)
	if !ok {
		metrics.ObserveRobotsCheck("allowed")
		return crawler.RobotsCompliance{
			Allowed:      true,
			CrawlDelayMs: DefaultCrawlDelayMs,
			Reason:       "No applicable robots.txt rules found",
			UserAgent:    agent,
			RobotsURL:    robotsURL,
		}
	}
	decision := Evaluate(block, parsed.EscapedPath())
	if decision.Allowed {
		metrics.ObserveRobotsCheck("allowed")
	} else {
		metrics.ObserveRobotsCheck("disallowed")
	}
	return crawler.RobotsCompliance{
		Allowed:      decision.Allowed,
		CrawlDelayMs: decision.CrawlDelayMs,
		Reason:       decision.Reason,
		UserAgent:    agent,
		RobotsURL:    robotsURL,
		Sitemaps:     append([]string(nil), block.Sitemaps...),
	}
}

func (c *Checker) load(ctx context.Context, robotsURL string) cachedFile {
	key := strings.ToLower(robotsURL)
	if c.useCache {
		if v, ok := c.cache.Load(key); ok {
			if file, ok := v.(cachedFile); ok {
				return file
			}
		}
	}
	file := c.fetch(ctx, robotsURL)
	if c.useCache && file.failure == "" {
		c.cache.Store(key, file)
	}
	return file
}

func (c *Checker) fetch(ctx context.Context, robotsURL string) cachedFile {
	file := cachedFile{robotsURL: robotsURL}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		file.failure = err.Error()
		return file
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		file.failure = err.Error()
		return file
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("failed to close robots response body", zap.Error(cerr))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		file.failure = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return file
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		file.failure = fmt.Sprintf("read body: %v", err)
		return file
	}
	file.blocks = Parse(string(body))
	return file
}
