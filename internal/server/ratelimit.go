package server

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/conneroisu/templc/internal/logging"
)

// bucketExpiry is how long an idle client keeps its bucket.
const bucketExpiry = 10 * time.Minute

// RateLimiter limits compilations per client with one token bucket each.
type RateLimiter struct {
	buckets     map[string]*tokenBucket
	bucketMutex sync.Mutex
	perMinute   int
	burst       int
	lastCleanup time.Time
	logger      logging.Logger

	now func() time.Time
}

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
	lastAccess time.Time
}

// RateLimitResult is the outcome of one Check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// NewRateLimiter allows perMinute compilations per client, with bursts of
// up to burst. A burst below one defaults to perMinute.
func NewRateLimiter(perMinute, burst int, logger logging.Logger) *RateLimiter {
	if burst < 1 {
		burst = perMinute
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &RateLimiter{
		buckets:   make(map[string]*tokenBucket),
		perMinute: perMinute,
		burst:     burst,
		logger:    logger,
		now:       time.Now,
	}
}

// Check takes a token from key's bucket.
func (rl *RateLimiter) Check(key string) RateLimitResult {
	rl.bucketMutex.Lock()
	defer rl.bucketMutex.Unlock()

	now := rl.now()
	if now.Sub(rl.lastCleanup) > bucketExpiry/2 {
		rl.performCleanup(now)
	}

	bucket, ok := rl.buckets[key]
	if !ok {
		bucket = &tokenBucket{tokens: float64(rl.burst), lastRefill: now}
		rl.buckets[key] = bucket
	}
	bucket.lastAccess = now

	elapsed := now.Sub(bucket.lastRefill)
	bucket.tokens += elapsed.Minutes() * float64(rl.perMinute)
	if bucket.tokens > float64(rl.burst) {
		bucket.tokens = float64(rl.burst)
	}
	bucket.lastRefill = now

	if bucket.tokens >= 1 {
		bucket.tokens--
		return RateLimitResult{Allowed: true, Remaining: int(bucket.tokens)}
	}

	missing := 1 - bucket.tokens
	retry := time.Duration(missing * float64(time.Minute) / float64(rl.perMinute))
	return RateLimitResult{RetryAfter: retry}
}

func (rl *RateLimiter) performCleanup(now time.Time) {
	for key, bucket := range rl.buckets {
		if now.Sub(bucket.lastAccess) > bucketExpiry {
			delete(rl.buckets, key)
		}
	}
	rl.lastCleanup = now
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client := clientIP(r)
		result := rl.Check(client)

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.perMinute))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", result.Remaining))
		if !result.Allowed {
			seconds := int(result.RetryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
			rl.logger.Warn(r.Context(), nil, "Rate limit exceeded",
				"client_ip", client, "path", r.URL.Path)
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// clientIP is the host part of the peer address. Forwarding headers are
// not trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
