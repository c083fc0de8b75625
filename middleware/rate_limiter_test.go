package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAllowEnforcesBudget(t *testing.T) {
	l := NewIPRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !l.Allow("203.0.113.7") {
			t.Fatalf("hit %d should be within budget", i+1)
		}
	}
	if l.Allow("203.0.113.7") {
		t.Fatal("4th hit should be rejected")
	}
	// A different key has its own budget.
	if !l.Allow("203.0.113.8") {
		t.Fatal("other key should not be affected")
	}
}

func TestAllowWindowExpiry(t *testing.T) {
	l := NewIPRateLimiter(1, 30*time.Millisecond)

	if !l.Allow("k") {
		t.Fatal("first hit rejected")
	}
	if l.Allow("k") {
		t.Fatal("second hit within window accepted")
	}
	time.Sleep(50 * time.Millisecond)
	if !l.Allow("k") {
		t.Fatal("hit after window expiry rejected")
	}
}

func TestMiddlewareReturns429(t *testing.T) {
	l := NewIPRateLimiter(1, time.Minute)
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodGet, "/v1/giveaway/status", nil)
		req.RemoteAddr = "198.51.100.4:54321"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("request %d: status %d, want %d", i+1, rec.Code, want)
		}
	}
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name    string
		remote  string
		xff     string
		xreal   string
		trusted []string
		want    string
	}{
		{name: "direct peer", remote: "203.0.113.7:1234", want: "203.0.113.7"},
		{name: "xff ignored from untrusted peer", remote: "203.0.113.7:1234", xff: "10.0.0.1", want: "203.0.113.7"},
		{name: "xff honored from trusted peer", remote: "10.0.0.5:1234", xff: "203.0.113.9, 10.0.0.5", trusted: []string{"10.0.0.5"}, want: "203.0.113.9"},
		{name: "trusted cidr", remote: "10.0.0.200:1234", xff: "203.0.113.9", trusted: []string{"10.0.0.0/8"}, want: "203.0.113.9"},
		{name: "x-real-ip fallback", remote: "10.0.0.5:1234", xreal: "203.0.113.11", trusted: []string{"10.0.0.5"}, want: "203.0.113.11"},
		{name: "no forward headers from trusted peer", remote: "10.0.0.5:1234", trusted: []string{"10.0.0.5"}, want: "10.0.0.5"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = c.remote
			if c.xff != "" {
				req.Header.Set("X-Forwarded-For", c.xff)
			}
			if c.xreal != "" {
				req.Header.Set("X-Real-IP", c.xreal)
			}
			if got := ClientIP(req, c.trusted); got != c.want {
				t.Fatalf("ClientIP = %q, want %q", got, c.want)
			}
		})
	}
}
