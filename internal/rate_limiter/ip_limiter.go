// Package ratelimiter throttles requests per client IP with token buckets
// that are evicted once idle.
package ratelimiter

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Options struct {
	// TTL is how long an idle bucket is kept before eviction.
	TTL time.Duration
	// Interval is how often idle buckets are swept.
	Interval time.Duration
	// TrustForwardedFor takes the client IP from X-Forwarded-For. Only set
	// it behind a proxy that overwrites the header.
	TrustForwardedFor bool
}

type ipAddr string

type IPRateLimiter struct {
	mu       sync.Mutex
	limiters map[ipAddr]*rate.Limiter
	lastSeen map[ipAddr]time.Time
	rate     rate.Limit
	burst    int
	opts     Options
}

// NewIPRateLimiter allows requests per window per IP. Idle buckets are
// swept until ctx is cancelled.
func NewIPRateLimiter(ctx context.Context, requests int, window time.Duration, opts Options) *IPRateLimiter {
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Minute
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}

	rl := &IPRateLimiter{
		limiters: make(map[ipAddr]*rate.Limiter),
		lastSeen: make(map[ipAddr]time.Time),
		rate:     rate.Every(window / time.Duration(requests)),
		burst:    requests,
		opts:     opts,
	}

	go rl.cleanup(ctx)

	return rl
}

func (rl *IPRateLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.evictIdle(time.Now())
		}
	}
}

func (rl *IPRateLimiter) evictIdle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for ip, seen := range rl.lastSeen {
		if now.Sub(seen) > rl.opts.TTL {
			delete(rl.limiters, ip)
			delete(rl.lastSeen, ip)
		}
	}
}

func (rl *IPRateLimiter) clientIP(r *http.Request) ipAddr {
	if rl.opts.TrustForwardedFor {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			ips := strings.Split(xff, ",")
			return ipAddr(strings.TrimSpace(ips[len(ips)-1]))
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		slog.Warn("invalid argument for net.SplitHostPort()",
			slog.String("remote_addr", r.RemoteAddr))
		return ipAddr(r.RemoteAddr)
	}

	return ipAddr(host)
}

// Allow takes a token from ip's bucket.
func (rl *IPRateLimiter) Allow(ip ipAddr) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	bucket, ok := rl.limiters[ip]
	if !ok {
		bucket = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[ip] = bucket
	}

	rl.lastSeen[ip] = time.Now()
	return bucket.Allow()
}

// retryAfter is the refill time for one token, at least a second.
func (rl *IPRateLimiter) retryAfter() time.Duration {
	d := time.Duration(float64(time.Second) / float64(rl.rate))
	if d < time.Second {
		return time.Second
	}
	return d.Round(time.Second)
}

func (rl *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := rl.clientIP(r)

		if !rl.Allow(ip) {
			slog.WarnContext(r.Context(), "rate limit exceeded",
				"ip", ip,
				"path", r.URL.Path,
				"method", r.Method)

			w.Header().Set("Retry-After", strconv.Itoa(int(rl.retryAfter().Seconds())))
			http.Error(w, "Too many requests. Try again later.", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
