package repository

import (
	"context"
	"strings"
	"time"

	"shop-assistant/internal/domain"
)

// Stores bundles the catalog with the summary store living next to it.
type Stores struct {
	Catalog   Catalog
	Summaries SummaryStore
	Mode      string
	close     func() error
}

func (s *Stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Open creates postgres-backed stores when configured, otherwise the seeded
// in-memory catalog with an in-memory summary store.
func Open(ctx context.Context, databaseURL string) (*Stores, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return &Stores{
			Catalog:   DemoCatalog(time.Now().UTC()),
			Summaries: NewMemorySummaryStore(),
			Mode:      "memory",
		}, nil
	}
	pg, err := NewPostgresStore(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &Stores{Catalog: pg, Summaries: pg, Mode: "postgres", close: pg.Close}, nil
}

// DemoCatalog returns the Miller's Mountain Bikes sample catalog. Review
// timestamps are laid out backwards from now, one day apart.
func DemoCatalog(now time.Time) *MemoryCatalog {
	products := []domain.Product{
		{ID: 1, Name: "Trailblazer 29 Hardtail", Price: 1299},
		{ID: 2, Name: "Summit Pro Full Suspension", Price: 3499},
		{ID: 3, Name: "Ridgeline Kids 24", Price: 449},
	}
	raw := []struct {
		productID int
		author    string
		content   string
		rating    int
	}{
		{1, "Jess", "Great bike! Climbs like a goat and the 29er wheels roll over everything.", 5},
		{1, "Marco", "Too expensive for a hardtail, but the build quality is excellent.", 4},
		{1, "Priya", "Stock tires are sketchy in wet conditions. Swapped them after a week.", 3},
		{1, "Tom", "Light, stiff and fun. The shop fitted it for me in ten minutes.", 5},
		{2, "Alex", "Plush suspension and it descends like a dream.", 5},
		{2, "Sam", "Heavy on long climbs and the rear shock needed a service early.", 3},
	}

	reviews := make([]domain.Review, 0, len(raw))
	for i, r := range raw {
		reviews = append(reviews, domain.Review{
			ID:        i + 1,
			ProductID: r.productID,
			Author:    r.author,
			Content:   r.content,
			Rating:    r.rating,
			CreatedAt: now.Add(-time.Duration(i+1) * 24 * time.Hour),
		})
	}
	return NewMemoryCatalog(products, reviews)
}
