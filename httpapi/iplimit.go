package httpapi

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IPLimiter is an outer, per-client-IP defense-in-depth throttle sitting in
// front of the domain-specific per-device rate limiter — it exists to
// absorb abusive traffic before it ever reaches the Scheduler, not to
// implement the spec's burst/period classification.
type IPLimiter struct {
	requestsPerSecond float64
	burst             int

	mu       sync.Mutex
	limiters map[string]*clientEntry
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPLimiter builds a limiter allowing requestsPerSecond sustained, with
// bursts up to burst, per client IP.
func NewIPLimiter(requestsPerSecond float64, burst int) *IPLimiter {
	l := &IPLimiter{
		requestsPerSecond: requestsPerSecond,
		burst:             burst,
		limiters:          make(map[string]*clientEntry),
	}
	go l.cleanupLoop()
	return l
}

func (l *IPLimiter) allow(ip string) bool {
	l.mu.Lock()
	entry, ok := l.limiters[ip]
	if !ok {
		entry = &clientEntry{limiter: rate.NewLimiter(rate.Limit(l.requestsPerSecond), l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	l.mu.Unlock()

	return entry.limiter.Allow()
}

func (l *IPLimiter) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-10 * time.Minute)
		l.mu.Lock()
		for ip, entry := range l.limiters {
			if entry.lastSeen.Before(cutoff) {
				delete(l.limiters, ip)
			}
		}
		l.mu.Unlock()
	}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Middleware rejects requests over the per-IP rate with 429.
func (l *IPLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientIP(r)) {
			writeFail(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
