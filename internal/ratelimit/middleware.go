package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"time"
)

// RejectFunc writes the response for a rejected request.
type RejectFunc func(w http.ResponseWriter, r *http.Request, d Decision)

// Middleware admits every request against tier before calling next and sets
// the RateLimit-* headers. Rejected requests get Retry-After and never reach next.
func Middleware(l *Limiter, tier Tier, reject RejectFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := l.Admit(ClientAddr(r), tier)
			if d.Limit > 0 {
				h := w.Header()
				h.Set("RateLimit-Limit", strconv.Itoa(d.Limit))
				h.Set("RateLimit-Remaining", strconv.Itoa(d.Remaining))
				h.Set("RateLimit-Reset", strconv.Itoa(ceilSeconds(d.ResetAt.Sub(l.now()))))
			}
			if !d.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(ceilSeconds(d.RetryAfter)))
				reject(w, r, d)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientAddr returns the host part of r.RemoteAddr, or RemoteAddr unchanged
// when it carries no port (e.g. after a RealIP rewrite).
func ClientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
