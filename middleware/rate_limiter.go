package middleware

import (
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/afanelli-PAM/il-mondo-di-lulz/utils"
)

// In-memory per-IP sliding-window rate limiter with trusted-proxy support.
// Good enough for a single instance; swap for Redis if the site ever runs
// more than one replica.

type IPRateLimiter struct {
	max    int
	window time.Duration

	mu    sync.Mutex
	state map[string][]int64 // unix nanos of recent hits

	trusted []string
}

func NewIPRateLimiter(maxReq int, window time.Duration) *IPRateLimiter {
	l := &IPRateLimiter{
		max:    maxReq,
		window: window,
		state:  make(map[string][]int64),
	}
	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		l.trusted = strings.Split(v, ",")
	}
	go l.cleanupLoop()
	return l
}

// Allow records a hit for key and reports whether it is within the window
// budget.
func (l *IPRateLimiter) Allow(key string) bool {
	now := time.Now().UnixNano()
	cutoff := now - l.window.Nanoseconds()

	l.mu.Lock()
	defer l.mu.Unlock()

	hits := l.state[key]
	kept := hits[:0]
	for _, t := range hits {
		if t > cutoff {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.max {
		l.state[key] = kept
		return false
	}
	l.state[key] = append(kept, now)
	return true
}

func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(ClientIP(r, l.trusted)) {
			utils.WriteJSON(w, http.StatusTooManyRequests, utils.APIResponse{
				Success: false,
				Message: "Troppe richieste, riprova tra poco.",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *IPRateLimiter) cleanupLoop() {
	tick := time.NewTicker(time.Minute)
	defer tick.Stop()
	for range tick.C {
		cutoff := time.Now().UnixNano() - l.window.Nanoseconds()
		l.mu.Lock()
		for key, hits := range l.state {
			kept := hits[:0]
			for _, t := range hits {
				if t > cutoff {
					kept = append(kept, t)
				}
			}
			if len(kept) == 0 {
				delete(l.state, key)
			} else {
				l.state[key] = kept
			}
		}
		l.mu.Unlock()
	}
}

// ClientIP returns the caller's IP. X-Forwarded-For / X-Real-IP are honored
// only when the direct peer is one of the trusted proxies.
func ClientIP(r *http.Request, trusted []string) string {
	remoteHost, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		remoteHost = r.RemoteAddr
	}
	if !ipTrusted(remoteHost, trusted) {
		return remoteHost
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); xr != "" {
		return xr
	}
	return remoteHost
}

func ipTrusted(ip string, trusted []string) bool {
	parsed := net.ParseIP(ip)
	for _, t := range trusted {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if t == ip {
			return true
		}
		if _, cidr, err := net.ParseCIDR(t); err == nil && parsed != nil && cidr.Contains(parsed) {
			return true
		}
	}
	return false
}
