package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMiddleware_SetsHeadersAndRejects(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	l, err := New(map[Tier]Quota{TierChat: {Max: 2, Window: time.Minute, Message: "slow down"}}, WithClock(clock.Now))
	require.NoError(t, err)

	calls := 0
	var rejected Decision
	h := Middleware(l, TierChat, func(w http.ResponseWriter, _ *http.Request, d Decision) {
		rejected = d
		w.WriteHeader(http.StatusTooManyRequests)
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
		req.RemoteAddr = "203.0.113.7:5123"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := do()
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "2", rec.Header().Get("RateLimit-Limit"))
	require.Equal(t, "1", rec.Header().Get("RateLimit-Remaining"))
	require.Equal(t, "60", rec.Header().Get("RateLimit-Reset"))

	clock.Advance(10 * time.Second)
	require.Equal(t, http.StatusOK, do().Code)

	rec = do()
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "0", rec.Header().Get("RateLimit-Remaining"))
	require.Equal(t, "50", rec.Header().Get("Retry-After"))
	require.Equal(t, "slow down", rejected.Message)
	require.Equal(t, 2, calls)
}

func TestClientAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.1:443"
	require.Equal(t, "198.51.100.1", ClientAddr(req))

	req.RemoteAddr = "198.51.100.2"
	require.Equal(t, "198.51.100.2", ClientAddr(req))

	req.RemoteAddr = "[2001:db8::1]:8080"
	require.Equal(t, "2001:db8::1", ClientAddr(req))
}
