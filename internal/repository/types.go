package repository

import (
	"context"

	"shop-assistant/internal/domain"
)

// Catalog is the read-only product/review store.
type Catalog interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, productID int) (domain.Product, bool, error)
	// ListReviews returns reviews newest first. limit <= 0 means no cap.
	ListReviews(ctx context.Context, productID, limit int) ([]domain.Review, error)
}

// SummaryStore persists one summary entry per product. It stores entries
// verbatim; freshness is decided by the caller.
type SummaryStore interface {
	GetSummary(ctx context.Context, productID int) (domain.SummaryEntry, bool, error)
	UpsertSummary(ctx context.Context, entry domain.SummaryEntry) error
}
