package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// TokenBucket implements token bucket rate limiting
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func NewTokenBucket(capacity int, refillRate float64, now time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: refillRate,
		lastRefill: now,
	}
}

// Allow takes one token if available.
func (tb *TokenBucket) Allow(now time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if elapsed := now.Sub(tb.lastRefill).Seconds(); elapsed > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+elapsed*tb.refillRate)
		tb.lastRefill = now
	}
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// RetryAfter is how long until the next token.
func (tb *TokenBucket) RetryAfter() time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if tb.refillRate <= 0 {
		return time.Minute
	}
	missing := 1 - tb.tokens
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / tb.refillRate * float64(time.Second))
}

// RateLimiter manages one bucket per client + ip
type RateLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*TokenBucket
	capacity   int
	refillRate float64
	now        func() time.Time
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewRateLimiter allows perMinute requests per key with the given burst.
// Call Stop to end the cleanup goroutine.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if burst <= 0 {
		burst = perMinute
	}
	rl := &RateLimiter{
		buckets:    make(map[string]*TokenBucket),
		capacity:   burst,
		refillRate: float64(perMinute) / 60,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	go rl.cleanup(5 * time.Minute)
	return rl
}

func (rl *RateLimiter) bucket(key string) *TokenBucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := rl.buckets[key]
	if !ok {
		b = NewTokenBucket(rl.capacity, rl.refillRate, rl.now())
		rl.buckets[key] = b
	}
	return b
}

func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	b := rl.bucket(key)
	if b.Allow(rl.now()) {
		return true, 0
	}
	return false, b.RetryAfter()
}

// Stop ends the cleanup goroutine; safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.evictIdle(10 * time.Minute)
		}
	}
}

// evictIdle removes buckets that haven't been used for idle
func (rl *RateLimiter) evictIdle(idle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for key, b := range rl.buckets {
		b.mu.Lock()
		if now.Sub(b.lastRefill) > idle {
			delete(rl.buckets, key)
		}
		b.mu.Unlock()
	}
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		key := GetClientFromContext(r.Context()) + ":" + clientIP(r)
		ok, retry := rl.Allow(key)
		if !ok {
			secs := int(retry.Seconds() + 0.999)
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			http.Error(w, "rate limit exceeded, please try again later", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP strips the port from RemoteAddr (chi's RealIP runs earlier)
func clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i]
		}
		if addr[i] == ']' {
			break
		}
	}
	return addr
}
