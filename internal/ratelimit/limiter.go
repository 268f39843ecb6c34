package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Tier identifies an independently tracked quota.
type Tier string

const (
	TierChat      Tier = "chat"
	TierSummarize Tier = "summarize"
	TierAPI       Tier = "api"
)

// Client-facing rejection messages per tier.
const (
	MessageChat      = "Too many AI requests from this IP, please try again later."
	MessageSummarize = "Too many summarization requests from this IP, please try again later."
	MessageAPI       = "Too many requests from this IP, please try again later."
)

// Quota allows Max admitted requests per Window for one client address.
type Quota struct {
	Max     int
	Window  time.Duration
	Message string
}

// Decision is the outcome of one Admit call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
	Message    string
}

type windowKey struct {
	addr string
	tier Tier
}

type window struct {
	start time.Time
	count int
}

// Limiter is a fixed-window counter keyed by (client address, tier).
// Bursts of up to 2*Max are possible across a window boundary.
type Limiter struct {
	mu      sync.Mutex
	quotas  map[Tier]Quota
	windows map[windowKey]*window
	now     func() time.Time
}

type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

func New(quotas map[Tier]Quota, opts ...Option) (*Limiter, error) {
	if len(quotas) == 0 {
		return nil, errors.New("ratelimit: at least one quota is required")
	}
	l := &Limiter{
		quotas:  make(map[Tier]Quota, len(quotas)),
		windows: make(map[windowKey]*window),
		now:     time.Now,
	}
	for tier, q := range quotas {
		if q.Max <= 0 {
			return nil, fmt.Errorf("ratelimit: %s max must be positive", tier)
		}
		if q.Window <= 0 {
			return nil, fmt.Errorf("ratelimit: %s window must be positive", tier)
		}
		l.quotas[tier] = q
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Admit counts one request from addr against tier. Tiers without a quota are
// not limited.
func (l *Limiter) Admit(addr string, tier Tier) Decision {
	q, ok := l.quotas[tier]
	if !ok {
		return Decision{Allowed: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := windowKey{addr: addr, tier: tier}
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= q.Window {
		w = &window{start: now}
		l.windows[key] = w
	}
	resetAt := w.start.Add(q.Window)

	if w.count >= q.Max {
		return Decision{
			Allowed:    false,
			Limit:      q.Max,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: resetAt.Sub(now),
			Message:    q.Message,
		}
	}
	w.count++
	return Decision{
		Allowed:   true,
		Limit:     q.Max,
		Remaining: q.Max - w.count,
		ResetAt:   resetAt,
	}
}

// Sweep drops windows that have rolled over and returns how many were removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	removed := 0
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.quotas[key.tier].Window {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps every interval until ctx is done.
func (l *Limiter) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Sweep()
			}
		}
	}()
}
