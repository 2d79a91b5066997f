package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/router-for-me/promptdock/internal/config"
)

func fixedClock(t *time.Time) func() time.Time {
	return func() time.Time { return *t }
}

func TestCheckCountsPerUserProviderAndRole(t *testing.T) {
	now := time.Unix(1_000_020, 0)
	l := New(config.RateLimitConfig{Limit: 2, Window: time.Minute}, WithClock(fixedClock(&now)))
	key := Key{UserID: 1, Provider: "openai", Role: "gen"}

	for i := 0; i < 2; i++ {
		res, err := l.Check(context.Background(), key)
		if err != nil || !res.Allowed {
			t.Fatalf("call %d should pass: %+v %v", i, res, err)
		}
		if res.Limit != 2 || res.Remaining != 1-i {
			t.Fatalf("call %d: unexpected window %+v", i, res)
		}
	}
	res, _ := l.Check(context.Background(), key)
	if res.Allowed || res.Remaining != 0 {
		t.Fatalf("third call in window should be rejected, got %+v", res)
	}
	if want := time.Unix(1_000_020, 0).Truncate(time.Minute).Add(time.Minute); !res.Reset.Equal(want) {
		t.Fatalf("expected reset %s, got %s", want, res.Reset)
	}

	for _, other := range []Key{
		{UserID: 1, Provider: "openai", Role: "vision"},
		{UserID: 1, Provider: "gemini", Role: "gen"},
		{UserID: 2, Provider: "openai", Role: "gen"},
	} {
		if res, _ := l.Check(context.Background(), other); !res.Allowed || res.Remaining != 1 {
			t.Fatalf("%+v should have its own window, got %+v", other, res)
		}
	}

	now = res.Reset
	if res, _ = l.Check(context.Background(), key); !res.Allowed || res.Remaining != 1 {
		t.Fatalf("next window should start fresh, got %+v", res)
	}
}

func TestProviderLimitOverridesGlobal(t *testing.T) {
	l := New(config.RateLimitConfig{Limit: 10, ProviderLimits: map[string]int{"openai": 1, "gemini": 0}})
	if got := l.LimitFor(" OpenAI "); got != 1 {
		t.Fatalf("expected openai override 1, got %d", got)
	}
	if got := l.LimitFor("gemini"); got != 10 {
		t.Fatalf("zero override should fall back to the global limit, got %d", got)
	}
	if _, err := l.Check(context.Background(), Key{UserID: 3, Provider: "OpenAI", Role: "gen"}); err != nil {
		t.Fatalf("check: %v", err)
	}
	if res, _ := l.Check(context.Background(), Key{UserID: 3, Provider: "openai", Role: "gen"}); res.Allowed {
		t.Fatalf("provider names should normalize to the same window")
	}
}

func TestCheckUnlimited(t *testing.T) {
	l := New(config.RateLimitConfig{})
	for i := 0; i < 5; i++ {
		res, err := l.Check(context.Background(), Key{UserID: 1, Provider: "openai", Role: "gen"})
		if err != nil || !res.Allowed || res.Limit != 0 {
			t.Fatalf("no configured limit should always allow, got %+v %v", res, err)
		}
	}
	if l.memory.size() != 0 {
		t.Fatalf("unlimited checks must not track windows")
	}
	limited := New(config.RateLimitConfig{Limit: 1})
	if res, _ := limited.Check(context.Background(), Key{Provider: "openai"}); !res.Allowed {
		t.Fatalf("anonymous keys are not throttled")
	}
	var nilLimiter *Limiter
	if res, _ := nilLimiter.Check(context.Background(), Key{UserID: 1, Provider: "openai"}); !res.Allowed {
		t.Fatalf("nil limiter should allow")
	}
}

func TestMemoryCounterPrunesFinishedWindows(t *testing.T) {
	m := newMemoryCounter()
	old := time.Unix(1000, 0)
	for i := 0; i <= pruneThreshold; i++ {
		_, _ = m.incr(context.Background(), Key{UserID: uint64(i + 1), Provider: "openai"}.String(), old, time.Second)
	}
	_, _ = m.incr(context.Background(), "fresh", old.Add(5*time.Second), time.Second)
	if m.size() != 1 {
		t.Fatalf("expected only the fresh window after pruning, got %d", m.size())
	}
}

func TestFallsBackToMemoryWhenRedisDown(t *testing.T) {
	now := time.Unix(2000, 0)
	dials := 0
	cfg := config.RateLimitConfig{Limit: 1, Window: time.Second, RedisEnabled: true, RedisAddr: "127.0.0.1:1", RedisPrefix: "test"}
	l := New(cfg, WithClock(fixedClock(&now)), WithRedisDialer(func(opts *redis.Options) *redis.Client {
		dials++
		opts.DialTimeout = 100 * time.Millisecond
		opts.MaxRetries = -1
		return redis.NewClient(opts)
	}))
	defer func() { _ = l.Close() }()

	key := Key{UserID: 9, Provider: "openai", Role: "gen"}
	res, err := l.Check(context.Background(), key)
	if err != nil || !res.Allowed {
		t.Fatalf("first call should pass via memory: %+v %v", res, err)
	}
	if res, _ = l.Check(context.Background(), key); res.Allowed {
		t.Fatalf("second call in the same window should be limited")
	}
	if dials != 1 {
		t.Fatalf("breaker should stop reconnect attempts, got %d dials", dials)
	}

	now = now.Add(redisCooldown)
	_, _ = l.Check(context.Background(), key)
	if dials != 2 {
		t.Fatalf("expected a reconnect after the cool-down, got %d dials", dials)
	}
}

func TestBreaker(t *testing.T) {
	b := &breaker{cooldown: time.Minute}
	now := time.Unix(5000, 0)
	if !b.closed(now) {
		t.Fatalf("new breaker should be closed")
	}
	b.trip(now, errors.New("down"))
	if b.closed(now.Add(59 * time.Second)) {
		t.Fatalf("breaker should stay open during the cool-down")
	}
	b.trip(now.Add(30*time.Second), errors.New("still down"))
	if !b.closed(now.Add(time.Minute)) {
		t.Fatalf("a trip while open must not extend the cool-down")
	}
}

func TestRedisBucketName(t *testing.T) {
	start := time.Unix(1700000000, 0)
	key := Key{UserID: 4, Provider: "anthropic", Role: "improve"}.String()
	if got := (&redisCounter{prefix: "promptdock:rl"}).bucket(key, start); got != "promptdock:rl:u:4:anthropic:improve:1700000000" {
		t.Fatalf("unexpected bucket %q", got)
	}
	if got := (&redisCounter{}).bucket(key, start); got != "u:4:anthropic:improve:1700000000" {
		t.Fatalf("unexpected bucket without prefix %q", got)
	}
}

func TestWriteHeaders(t *testing.T) {
	now := time.Unix(1000, 500_000_000)
	reset := time.Unix(1060, 0)

	h := http.Header{}
	Result{Allowed: true, Limit: 5, Remaining: 3, Reset: reset}.WriteHeaders(h, now)
	if h.Get(HeaderLimit) != "5" || h.Get(HeaderRemaining) != "3" || h.Get(HeaderReset) != strconv.FormatInt(reset.Unix(), 10) {
		t.Fatalf("unexpected headers %v", h)
	}
	if h.Get(HeaderRetryAfter) != "" {
		t.Fatalf("allowed calls carry no Retry-After")
	}

	h = http.Header{}
	Result{Allowed: false, Limit: 5, Reset: reset}.WriteHeaders(h, now)
	if h.Get(HeaderRemaining) != "0" || h.Get(HeaderRetryAfter) != "60" {
		t.Fatalf("unexpected rejection headers %v", h)
	}

	h = http.Header{}
	Result{Allowed: true}.WriteHeaders(h, now)
	if len(h) != 0 {
		t.Fatalf("unlimited results write no headers, got %v", h)
	}
}
