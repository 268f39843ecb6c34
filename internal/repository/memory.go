package repository

import (
	"context"
	"sort"
	"sync"

	"shop-assistant/internal/domain"
)

// MemoryCatalog is an in-process catalog for local/dev use.
type MemoryCatalog struct {
	products []domain.Product
	reviews  map[int][]domain.Review
}

// NewMemoryCatalog copies products and reviews into a read-only catalog.
func NewMemoryCatalog(products []domain.Product, reviews []domain.Review) *MemoryCatalog {
	c := &MemoryCatalog{
		products: append([]domain.Product(nil), products...),
		reviews:  make(map[int][]domain.Review),
	}
	sort.Slice(c.products, func(i, j int) bool { return c.products[i].ID < c.products[j].ID })
	for _, r := range reviews {
		c.reviews[r.ProductID] = append(c.reviews[r.ProductID], r)
	}
	for id := range c.reviews {
		arr := c.reviews[id]
		sort.SliceStable(arr, func(i, j int) bool { return arr[i].CreatedAt.After(arr[j].CreatedAt) })
	}
	return c
}

func (c *MemoryCatalog) ListProducts(_ context.Context) ([]domain.Product, error) {
	return append([]domain.Product(nil), c.products...), nil
}

func (c *MemoryCatalog) GetProduct(_ context.Context, productID int) (domain.Product, bool, error) {
	for _, p := range c.products {
		if p.ID == productID {
			return p, true, nil
		}
	}
	return domain.Product{}, false, nil
}

func (c *MemoryCatalog) ListReviews(_ context.Context, productID, limit int) ([]domain.Review, error) {
	arr := c.reviews[productID]
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	return append([]domain.Review(nil), arr[:limit]...), nil
}

// MemorySummaryStore keeps summaries in a mutex-guarded map.
type MemorySummaryStore struct {
	mu      sync.RWMutex
	entries map[int]domain.SummaryEntry
}

func NewMemorySummaryStore() *MemorySummaryStore {
	return &MemorySummaryStore{entries: make(map[int]domain.SummaryEntry)}
}

func (s *MemorySummaryStore) GetSummary(_ context.Context, productID int) (domain.SummaryEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[productID]
	return e, ok, nil
}

func (s *MemorySummaryStore) UpsertSummary(_ context.Context, entry domain.SummaryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ProductID] = entry
	return nil
}
