package ratelimit

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// breaker keeps the limiter on memory for a cool-down after a Redis failure.
type breaker struct {
	mu        sync.Mutex
	cooldown  time.Duration
	openUntil time.Time
}

func (b *breaker) closed(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !now.Before(b.openUntil)
}

func (b *breaker) trip(now time.Time, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if now.Before(b.openUntil) {
		return
	}
	b.openUntil = now.Add(b.cooldown)
	log.WithError(err).Warnf("rate limit: redis unavailable, counting in memory for %s", b.cooldown)
}
