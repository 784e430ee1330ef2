package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"session-auth/internal/event"
)

// ClientIP resolves the caller's address once per request. Peers inside
// trusted may name the client: the nearest X-Forwarded-For hop outside the
// trusted ranges wins, then X-Real-IP. Any other peer is keyed by its own
// address, whatever headers it sends.
func ClientIP(trusted []netip.Prefix) func(http.Handler) http.Handler {
	trusted = append([]netip.Prefix(nil), trusted...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientIP(r, trusted)
			next.ServeHTTP(w, r.WithContext(event.WithClientIP(r.Context(), ip)))
		})
	}
}

// clientIPOf returns the address stored by ClientIP, or the peer address.
func clientIPOf(r *http.Request) string {
	if ip := event.ClientIP(r.Context()); ip != "" {
		return ip
	}
	return resolveClientIP(r, nil)
}

func resolveClientIP(r *http.Request, trusted []netip.Prefix) string {
	peer := peerAddr(r.RemoteAddr)
	addr, err := netip.ParseAddr(peer)
	if err != nil || !isTrusted(trusted, addr) {
		if peer == "" {
			return "unknown"
		}
		return peer
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		hops := strings.Split(forwarded, ",")
		var nearest string
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				// Hops left of a malformed entry were written by the client.
				break
			}
			nearest = hop.Unmap().String()
			if !isTrusted(trusted, hop) {
				return nearest
			}
		}
		if nearest != "" {
			return nearest
		}
	}

	if ip, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return ip.Unmap().String()
	}

	return peer
}

func isTrusted(trusted []netip.Prefix, addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, prefix := range trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func peerAddr(remote string) string {
	remote = strings.TrimSpace(remote)
	if host, _, err := net.SplitHostPort(remote); err == nil && host != "" {
		return host
	}
	return remote
}
