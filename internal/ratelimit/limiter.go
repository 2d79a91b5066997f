package ratelimit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/router-for-me/promptdock/internal/config"
)

const (
	redisCooldown    = 30 * time.Second
	redisPingTimeout = 2 * time.Second
)

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithRedisDialer replaces redis.NewClient.
func WithRedisDialer(dial func(*redis.Options) *redis.Client) Option {
	return func(l *Limiter) { l.dial = dial }
}

// Limiter counts proxy calls in fixed windows, in Redis when configured and reachable, else in memory.
type Limiter struct {
	cfg     config.RateLimitConfig
	now     func() time.Time
	dial    func(*redis.Options) *redis.Client
	memory  *memoryCounter
	breaker *breaker

	mu     sync.Mutex
	redis  *redisCounter
	client *redis.Client
}

// New builds a Limiter for cfg. A zero window falls back to config.DefaultRateLimitWindow.
func New(cfg config.RateLimitConfig, opts ...Option) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = config.DefaultRateLimitWindow
	}
	l := &Limiter{
		cfg:     cfg,
		now:     time.Now,
		dial:    redis.NewClient,
		memory:  newMemoryCounter(),
		breaker: &breaker{cooldown: redisCooldown},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LimitFor returns the calls allowed per window for provider. Zero means unlimited.
func (l *Limiter) LimitFor(provider string) int {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if limit, ok := l.cfg.ProviderLimits[provider]; ok && limit > 0 {
		return limit
	}
	return l.cfg.Limit
}

// Check counts one call against key's current window.
func (l *Limiter) Check(ctx context.Context, key Key) (Result, error) {
	if l == nil {
		return Result{Allowed: true}, nil
	}
	key.Provider = strings.ToLower(strings.TrimSpace(key.Provider))
	limit := l.LimitFor(key.Provider)
	if limit <= 0 || key.UserID == 0 || key.Provider == "" {
		return Result{Allowed: true}, nil
	}
	now := l.now()
	start := now.Truncate(l.cfg.Window)
	hits, err := l.count(ctx, key.String(), start, now)
	if err != nil {
		return Result{Allowed: true}, err
	}
	remaining := limit - hits
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   hits <= limit,
		Limit:     limit,
		Remaining: remaining,
		Reset:     start.Add(l.cfg.Window).UTC(),
	}, nil
}

func (l *Limiter) count(ctx context.Context, key string, start, now time.Time) (int, error) {
	if shared := l.shared(ctx, now); shared != nil {
		hits, err := shared.incr(ctx, key, start, l.cfg.Window)
		if err == nil {
			return hits, nil
		}
		l.breaker.trip(now, err)
	}
	return l.memory.incr(ctx, key, start, l.cfg.Window)
}

// shared connects to Redis on first use. It returns nil while Redis is disabled or cooling down.
func (l *Limiter) shared(ctx context.Context, now time.Time) *redisCounter {
	if !l.cfg.RedisEnabled || !l.breaker.closed(now) {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.redis != nil {
		return l.redis
	}
	addr := strings.TrimSpace(l.cfg.RedisAddr)
	if addr == "" {
		l.breaker.trip(now, errors.New("rate limit redis: missing address"))
		return nil
	}
	client := l.dial(&redis.Options{Addr: addr, Password: l.cfg.RedisPassword, DB: l.cfg.RedisDB})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if errPing := client.Ping(pingCtx).Err(); errPing != nil {
		_ = client.Close()
		l.breaker.trip(now, errPing)
		return nil
	}
	l.client = client
	l.redis = &redisCounter{client: client, prefix: l.cfg.RedisPrefix}
	return l.redis
}

// Close releases the Redis connection, if any.
func (l *Limiter) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client == nil {
		return nil
	}
	err := l.client.Close()
	l.client, l.redis = nil, nil
	return err
}
