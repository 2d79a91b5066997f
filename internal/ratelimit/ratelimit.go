// Package ratelimit throttles proxy calls per caller, provider and key role using fixed windows.
package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"
)

// Response headers describing the caller's window.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Key identifies one throttled stream of proxy calls.
type Key struct {
	UserID   uint64
	Provider string
	Role     string
}

func (k Key) String() string {
	return "u:" + strconv.FormatUint(k.UserID, 10) + ":" + k.Provider + ":" + k.Role
}

// Result is the state of a window after one call was counted against it.
// Limit is zero when no limit applies.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// WriteHeaders sets the X-RateLimit-* headers, and Retry-After when the call was rejected.
func (r Result) WriteHeaders(h http.Header, now time.Time) {
	if r.Limit <= 0 {
		return
	}
	h.Set(HeaderLimit, strconv.Itoa(r.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(r.Remaining))
	h.Set(HeaderReset, strconv.FormatInt(r.Reset.Unix(), 10))
	if !r.Allowed {
		wait := int(math.Ceil(r.Reset.Sub(now).Seconds()))
		if wait < 1 {
			wait = 1
		}
		h.Set(HeaderRetryAfter, strconv.Itoa(wait))
	}
}

// counter adds one hit to key's window and returns the hits so far.
type counter interface {
	incr(ctx context.Context, key string, start time.Time, window time.Duration) (int, error)
}
