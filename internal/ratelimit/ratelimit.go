package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

type RateLimit interface {
	Allow(addr string) bool
}

type window struct {
	count int
	start time.Time
}

// FixedWindowLimiter allows up to maxRequests per key within each window.
type FixedWindowLimiter struct {
	maxRequests int
	window      time.Duration
	now         func() time.Time

	mu        sync.Mutex
	requests  map[string]*window
	lastPrune time.Time
}

func New(maxRequests int, interval time.Duration) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		maxRequests: maxRequests,
		window:      interval,
		now:         time.Now,
		requests:    make(map[string]*window),
	}
}

func (rl *FixedWindowLimiter) Allow(addr string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.pruneLocked(now)

	w := rl.requests[addr]
	if w == nil || now.Sub(w.start) > rl.window {
		if rl.maxRequests == 0 {
			return false
		}
		rl.requests[addr] = &window{count: 1, start: now}
		return true
	}

	if w.count >= rl.maxRequests {
		return false
	}
	w.count++

	return true
}

// pruneLocked drops expired windows at most once per window length so the
// map does not grow with every address ever seen.
func (rl *FixedWindowLimiter) pruneLocked(now time.Time) {
	if now.Sub(rl.lastPrune) < rl.window {
		return
	}
	for addr, w := range rl.requests {
		if now.Sub(w.start) > rl.window {
			delete(rl.requests, addr)
		}
	}
	rl.lastPrune = now
}

// Middleware rejects requests from clients over the limit by calling
// onLimited instead of next. A nil limiter disables limiting.
func Middleware(limiter RateLimit, onLimited http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(ClientIP(r)) {
				onLimited(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the address a request is rate limited by. Forwarding
// headers are only honored when the direct peer is a private or loopback
// address, i.e. the platform's proxy; then the last X-Forwarded-For hop,
// the one that proxy appended, is used.
func ClientIP(r *http.Request) string {
	peer := remoteHost(r.RemoteAddr)
	if !trustedProxy(peer) {
		return peer
	}

	fwd := r.Header.Values("X-Forwarded-For")
	if len(fwd) == 0 {
		return peer
	}
	hops := strings.Split(fwd[len(fwd)-1], ",")
	if ip := strings.TrimSpace(hops[len(hops)-1]); net.ParseIP(ip) != nil {
		return ip
	}
	return peer
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func trustedProxy(host string) bool {
	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsPrivate())
}
