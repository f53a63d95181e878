package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		realIP     string
		trustProxy bool
		proxyCount int
		want       string
	}{
		{
			name:       "direct connection",
			remoteAddr: "203.0.113.7:54321",
			want:       "203.0.113.7",
		},
		{
			name:       "forwarded header ignored without trust",
			remoteAddr: "10.0.0.1:80",
			xff:        "203.0.113.7",
			want:       "10.0.0.1",
		},
		{
			name:       "forwarded header honored with trust",
			remoteAddr: "10.0.0.1:80",
			xff:        "203.0.113.7, 10.0.0.1",
			trustProxy: true,
			proxyCount: 1,
			want:       "203.0.113.7",
		},
		{
			name:       "two trusted proxies",
			remoteAddr: "10.0.0.1:80",
			xff:        "203.0.113.7, 10.0.0.2, 10.0.0.1",
			trustProxy: true,
			proxyCount: 2,
			want:       "203.0.113.7",
		},
		{
			name:       "spoofed extra entry skipped",
			remoteAddr: "10.0.0.1:80",
			xff:        "198.51.100.9, 203.0.113.7, 10.0.0.1",
			trustProxy: true,
			proxyCount: 1,
			want:       "203.0.113.7",
		},
		{
			name:       "real ip fallback",
			remoteAddr: "10.0.0.1:80",
			realIP:     "203.0.113.7",
			trustProxy: true,
			want:       "203.0.113.7",
		},
		{
			name:       "garbage forwarded falls back to remote addr",
			remoteAddr: "10.0.0.1:80",
			xff:        "not-an-ip",
			trustProxy: true,
			want:       "10.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			got := ClientIP(r, tt.trustProxy, tt.proxyCount)
			if got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimiterAllow(t *testing.T) {
	limiter := NewRateLimiter(1, 2, nil)
	defer limiter.Stop()

	// Burst of 2 admits two immediate requests, the third is rejected.
	if !limiter.Allow("client-a") || !limiter.Allow("client-a") {
		t.Fatal("burst requests rejected")
	}
	if limiter.Allow("client-a") {
		t.Error("request beyond burst admitted")
	}

	// Other identifiers have independent buckets.
	if !limiter.Allow("client-b") {
		t.Error("fresh identifier rejected")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	var nilLimiter *RateLimiter
	if !nilLimiter.Allow("anyone") {
		t.Error("nil limiter rejected a request")
	}

	zero := NewRateLimiter(0, 0, nil)
	defer zero.Stop()
	for i := 0; i < 100; i++ {
		if !zero.Allow("anyone") {
			t.Fatal("zero-rate limiter rejected a request")
		}
	}
}

func TestRateLimiterLRUEviction(t *testing.T) {
	limiter := NewRateLimiter(1, 1, nil)
	defer limiter.Stop()
	limiter.maxEntries = 3

	for _, id := range []string{"a", "b", "c", "d"} {
		limiter.Allow(id)
	}
	if limiter.Size() != 3 {
		t.Errorf("Size = %d after eviction, want 3", limiter.Size())
	}

	// "a" was evicted, so it gets a fresh bucket and is admitted again.
	if !limiter.Allow("a") {
		t.Error("evicted identifier did not get a fresh bucket")
	}
}

func TestGenerateRequestID(t *testing.T) {
	first := GenerateRequestID()
	second := GenerateRequestID()
	if first == "" || first == second {
		t.Errorf("request IDs not unique: %q, %q", first, second)
	}
	if !requestIDPattern.MatchString(first) {
		t.Errorf("generated ID %q does not match its own pattern", first)
	}
}

func TestRequestIDFromRequest(t *testing.T) {
	t.Run("valid inbound ID kept", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(RequestIDHeader, "client-supplied-id_01")
		if got := RequestIDFromRequest(r); got != "client-supplied-id_01" {
			t.Errorf("RequestIDFromRequest = %q, want inbound value", got)
		}
	})

	t.Run("invalid inbound ID replaced", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(RequestIDHeader, "bad id with spaces!")
		got := RequestIDFromRequest(r)
		if got == "" || got == "bad id with spaces!" {
			t.Errorf("invalid inbound ID not replaced: %q", got)
		}
	})

	t.Run("absent header generates", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if got := RequestIDFromRequest(r); got == "" {
			t.Error("no request ID generated")
		}
	})
}

func TestRequestIDContext(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := WithRequestID(r.Context(), "req-123")
	if got := GetRequestID(ctx); got != "req-123" {
		t.Errorf("GetRequestID = %q, want req-123", got)
	}
	if got := GetRequestID(r.Context()); got != "" {
		t.Errorf("GetRequestID on bare context = %q, want empty", got)
	}
}

func TestSetSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSecurityHeaders(rec)

	want := map[string]string{
		"X-Frame-Options":        "DENY",
		"X-Content-Type-Options": "nosniff",
		"Cache-Control":          "no-store",
	}
	for header, value := range want {
		if got := rec.Header().Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}
}
