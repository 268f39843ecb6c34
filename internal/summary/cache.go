package summary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shop-assistant/internal/domain"
)

// Backend is the storage the cache reads through and writes to.
type Backend interface {
	GetSummary(ctx context.Context, productID int) (domain.SummaryEntry, bool, error)
	UpsertSummary(ctx context.Context, entry domain.SummaryEntry) error
}

// Cache serves only fresh summaries. Expired entries stay in the backend
// until the next Put for the same product replaces them.
type Cache struct {
	backend Backend
	now     func() time.Time
}

type Option func(*Cache)

// WithClock overrides the time source used for freshness checks.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

func NewCache(backend Backend, opts ...Option) (*Cache, error) {
	if backend == nil {
		return nil, errors.New("summary: backend must not be nil")
	}
	c := &Cache{backend: backend, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get returns the entry for productID if one exists and now < ExpiresAt.
func (c *Cache) Get(ctx context.Context, productID int) (domain.SummaryEntry, bool, error) {
	e, ok, err := c.backend.GetSummary(ctx, productID)
	if err != nil {
		return domain.SummaryEntry{}, false, fmt.Errorf("summary: get %d: %w", productID, err)
	}
	if !ok || !e.Fresh(c.now()) {
		return domain.SummaryEntry{}, false, nil
	}
	return e, true, nil
}

// Put replaces any entry for productID with content generated now and
// expiring after ttl.
func (c *Cache) Put(ctx context.Context, productID int, content string, ttl time.Duration) (domain.SummaryEntry, error) {
	if ttl <= 0 {
		return domain.SummaryEntry{}, errors.New("summary: ttl must be positive")
	}
	now := c.now().UTC()
	e := domain.SummaryEntry{
		ProductID:   productID,
		Content:     content,
		GeneratedAt: now,
		ExpiresAt:   now.Add(ttl),
	}
	if err := c.backend.UpsertSummary(ctx, e); err != nil {
		return domain.SummaryEntry{}, fmt.Errorf("summary: put %d: %w", productID, err)
	}
	return e, nil
}
