// Package redislock implements crawler.Locker on Redis SET NX so concurrent
// crawler processes share employer and pass locks.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/h1b-jobs-crawler/internal/crawler"
)

const (
	defaultTTL        = 30 * time.Second
	defaultRetryDelay = 100 * time.Millisecond
	keyPrefix         = "h1b:lock:"
)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Config tunes the locker.
type Config struct {
	RetryDelay time.Duration
}

// Locker holds tokens in Redis keys that expire after their TTL.
type Locker struct {
	client     redis.UniversalClient
	ids        crawler.IDGenerator
	retryDelay time.Duration
	logger     *zap.Logger
}

// New wraps an existing client. Tokens come from ids.
func New(client redis.UniversalClient, ids crawler.IDGenerator, cfg Config, logger *zap.Logger) (*Locker, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if ids == nil {
		return nil, errors.New("id generator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	return &Locker{client: client, ids: ids, retryDelay: delay, logger: logger.Named("redislock")}, nil
}

// Dial parses a redis:// URL and pings the server.
func Dial(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Acquire polls SET NX until it wins or ctx ends. The returned release deletes the key
// only while it still holds this caller's token.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	token, err := l.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("lock token: %w", err)
	}
	redisKey := keyPrefix + key

	ticker := time.NewTicker(l.retryDelay)
	defer ticker.Stop()
	for {
		// Detached so an already-expired ctx still gets one attempt.
		ok, err := l.client.SetNX(context.WithoutCancel(ctx), redisKey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return l.releaser(redisKey, token), nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", crawler.ErrLockHeld, key, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *Locker) releaser(redisKey, token string) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		n, err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Int()
		switch {
		case err != nil:
			l.logger.Warn("release lock failed", zap.String("key", redisKey), zap.Error(err))
		case n == 0:
			l.logger.Warn("lock expired before release", zap.String("key", redisKey))
		}
	}
}
