package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"

	"session-auth/internal/event"
)

var trustedProxies = []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

func TestResolveClientIP(t *testing.T) {
	tests := []struct {
		name      string
		forwarded string
		realIP    string
		remote    string
		want      string
	}{
		{"untrusted peer ignores forwarded", "203.0.113.9", "198.51.100.7", "192.0.2.10:5000", "192.0.2.10"},
		{"nearest untrusted hop", "192.0.2.1, 203.0.113.9, 10.0.0.1", "", "10.0.0.2:5000", "203.0.113.9"},
		{"all hops trusted", "10.0.0.9, 10.0.0.1", "", "10.0.0.2:5000", "10.0.0.9"},
		{"malformed hop stops the walk", "203.0.113.9, not-an-ip", "", "10.0.0.2:5000", "10.0.0.2"},
		{"real ip from trusted peer", "", "198.51.100.7", "10.0.0.2:5000", "198.51.100.7"},
		{"peer address", "", "", "10.0.0.2:5000", "10.0.0.2"},
		{"ipv6 peer", "", "", "[2001:db8::1]:443", "2001:db8::1"},
		{"missing peer", "", "", "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			assert.Equal(t, tt.want, resolveClientIP(req, trustedProxies))
		})
	}
}

func TestClientIPStoresResolvedAddress(t *testing.T) {
	var seen string
	handler := ClientIP(trustedProxies)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = event.ClientIP(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:5000"
	req.Header.Set("X-Forwarded-For", "198.51.100.4")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "198.51.100.4", seen)
}

func TestRateLimitBehindTrustedProxy(t *testing.T) {
	handler := ClientIP(trustedProxies)(okHandler(NewRateLimitMiddleware(0, 1)))

	login := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = "10.0.0.2:5000"
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, login("198.51.100.1"))
	assert.Equal(t, http.StatusOK, login("198.51.100.2"))
	assert.Equal(t, http.StatusTooManyRequests, login("198.51.100.1"))
	// A hop prepended by the client does not buy a fresh bucket.
	assert.Equal(t, http.StatusTooManyRequests, login("192.0.2.77, 198.51.100.2"))
}
