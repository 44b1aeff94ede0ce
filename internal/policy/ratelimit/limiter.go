// Package ratelimit spaces outbound requests per host using token buckets.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/h1b-jobs-crawler/internal/metrics"
)

// Limiter enforces a minimum gap between consecutive requests to the same host.
// Each host gets a burst-1 bucket, so the first request proceeds immediately and every
// following one waits until the gap has elapsed.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	floor    time.Duration
}

// Config holds rate limiter configuration.
type Config struct {
	// MinGap applies when a caller passes a smaller gap.
	MinGap time.Duration
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		floor:    cfg.MinGap,
	}
}

// Wait blocks until a request to rawURL's host may be issued, respecting ctx.
func (l *Limiter) Wait(ctx context.Context, rawURL string, minGap time.Duration) error {
	if minGap < l.floor {
		minGap = l.floor
	}
	if minGap <= 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
		return nil
	}
	host := hostOf(rawURL)
	every := rate.Every(minGap)

	l.mu.Lock()
	limiter, exists := l.limiters[host]
	if !exists {
		limiter = rate.NewLimiter(every, 1)
		l.limiters[host] = limiter
	} else if limiter.Limit() != every {
		limiter.SetLimit(every)
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObservePacerDelay(host, waited)
	}
	return nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Host)
}
