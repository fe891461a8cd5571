package api

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiter admits at most limit requests per window for each
// client IP and path. The bucket starts full and refills evenly.
type clientLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]*bucket
	now     func() time.Time
	sweepAt time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newClientLimiter(limit int, window time.Duration) *clientLimiter {
	return &clientLimiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// allow reports whether the request identified by key may proceed.
func (l *clientLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.After(l.sweepAt) {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > l.window {
				delete(l.buckets, k)
			}
		}
		l.sweepAt = now.Add(l.window)
	}

	b, ok := l.buckets[key]
	if !ok {
		every := l.window / time.Duration(l.limit)
		b = &bucket{lim: rate.NewLimiter(rate.Every(every), l.limit)}
		l.buckets[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

// retryAfter is the whole number of seconds until one more request fits.
func (l *clientLimiter) retryAfter() int {
	return int(math.Ceil((l.window / time.Duration(l.limit)).Seconds()))
}

// middleware rejects requests over the limit with 429. Requests without
// an identifiable client, and any panic inside the limiter, pass through.
func (l *clientLimiter) middleware(next http.Handler) http.Handler {
	if l == nil || l.limit <= 0 || l.window <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.check(r) {
			w.Header().Set("Retry-After", fmt.Sprint(l.retryAfter()))
			writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
				Error:   "too many requests",
				Details: fmt.Sprintf("limit of %d requests per %s exceeded", l.limit, l.window),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *clientLimiter) check(r *http.Request) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = true
		}
	}()
	ip := clientIP(r)
	if ip == "" {
		return true
	}
	return l.allow(ip + "|" + r.URL.Path)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
