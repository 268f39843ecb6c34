package usecase

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"shop-assistant/internal/domain"
	"shop-assistant/internal/gateway"
)

const (
	defaultSummaryTTL         = 7 * 24 * time.Hour
	defaultSummaryReviews     = 10
	defaultSummaryMaxTokens   = 350
	defaultSummaryTemperature = 0.2
)

// CatalogReader is the read side of the product catalog.
type CatalogReader interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, productID int) (domain.Product, bool, error)
	ListReviews(ctx context.Context, productID, limit int) ([]domain.Review, error)
}

// SummaryCache hands out fresh summaries only.
type SummaryCache interface {
	Get(ctx context.Context, productID int) (domain.SummaryEntry, bool, error)
	Put(ctx context.Context, productID int, content string, ttl time.Duration) (domain.SummaryEntry, error)
}

type ReviewConfig struct {
	Model           string
	TTL             time.Duration
	ReviewLimit     int
	MaxOutputTokens int
	Temperature     *float64 // nil means defaultSummaryTemperature
}

type ReviewOption func(*ReviewService)

// WithCacheObserver is called with true on a fresh cache hit and false on a
// miss that leads to generation.
func WithCacheObserver(fn func(hit bool)) ReviewOption {
	return func(s *ReviewService) {
		if fn != nil {
			s.observe = fn
		}
	}
}

type ReviewService struct {
	catalog CatalogReader
	cache   SummaryCache
	gen     gateway.Generator
	cfg     ReviewConfig
	observe func(hit bool)

	inflight singleflight.Group
}

// ProductReviews is the reviews page: every review plus the summary if one
// is still fresh.
type ProductReviews struct {
	Summary          *string
	SummaryExpiresAt *time.Time
	Reviews          []domain.Review
}

type SummaryOutput struct {
	Summary   string
	ExpiresAt time.Time
	Cached    bool
}

func NewReviewService(catalog CatalogReader, cache SummaryCache, gen gateway.Generator, cfg ReviewConfig, opts ...ReviewOption) (*ReviewService, error) {
	if catalog == nil {
		return nil, errors.New("usecase: catalog must not be nil")
	}
	if cache == nil {
		return nil, errors.New("usecase: summary cache must not be nil")
	}
	if gen == nil {
		return nil, errors.New("usecase: generator must not be nil")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("usecase: model must not be empty")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultSummaryTTL
	}
	if cfg.ReviewLimit <= 0 {
		cfg.ReviewLimit = defaultSummaryReviews
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = defaultSummaryMaxTokens
	}
	temperature, err := resolveTemperature(cfg.Temperature, defaultSummaryTemperature)
	if err != nil {
		return nil, err
	}
	cfg.Temperature = &temperature
	s := &ReviewService{
		catalog: catalog,
		cache:   cache,
		gen:     gen,
		cfg:     cfg,
		observe: func(bool) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *ReviewService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := s.catalog.ListProducts(ctx)
	if err != nil {
		return nil, newError(ErrorInternal, "catalog_products_error", err)
	}
	if products == nil {
		products = []domain.Product{}
	}
	return products, nil
}

// GetReviewsForProduct returns all reviews newest first and the fresh
// summary, if any. Stale summaries are reported as absent.
func (s *ReviewService) GetReviewsForProduct(ctx context.Context, productID int) (ProductReviews, error) {
	if err := s.requireProduct(ctx, productID, ErrorNotFound); err != nil {
		return ProductReviews{}, err
	}

	reviews, err := s.catalog.ListReviews(ctx, productID, 0)
	if err != nil {
		return ProductReviews{}, newError(ErrorInternal, "catalog_reviews_error", err)
	}
	if reviews == nil {
		reviews = []domain.Review{}
	}
	out := ProductReviews{Reviews: reviews}

	entry, ok, err := s.cache.Get(ctx, productID)
	if err != nil {
		return ProductReviews{}, newError(ErrorInternal, "summary_read_error", err)
	}
	if ok {
		content, expires := entry.Content, entry.ExpiresAt
		out.Summary = &content
		out.SummaryExpiresAt = &expires
	}
	return out, nil
}

// Summarize returns the fresh cached summary or generates a new one from
// the most recent reviews. Concurrent misses for the same product share one
// generation. The cache is written only after the provider succeeds.
func (s *ReviewService) Summarize(ctx context.Context, productID int) (SummaryOutput, error) {
	if err := s.requireProduct(ctx, productID, ErrorInvalidInput); err != nil {
		return SummaryOutput{}, err
	}

	ch := s.inflight.DoChan(strconv.Itoa(productID), func() (any, error) {
		return s.summarize(context.WithoutCancel(ctx), productID)
	})
	select {
	case <-ctx.Done():
		return SummaryOutput{}, newError(ErrorUpstream, "summarize_canceled", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return SummaryOutput{}, res.Err
		}
		return res.Val.(SummaryOutput), nil
	}
}

func (s *ReviewService) summarize(ctx context.Context, productID int) (SummaryOutput, error) {
	entry, ok, err := s.cache.Get(ctx, productID)
	if err != nil {
		return SummaryOutput{}, newError(ErrorInternal, "summary_read_error", err)
	}
	if ok {
		s.observe(true)
		return SummaryOutput{Summary: entry.Content, ExpiresAt: entry.ExpiresAt, Cached: true}, nil
	}
	s.observe(false)

	reviews, err := s.catalog.ListReviews(ctx, productID, s.cfg.ReviewLimit)
	if err != nil {
		return SummaryOutput{}, newError(ErrorInternal, "catalog_reviews_error", err)
	}
	if len(reviews) == 0 {
		return SummaryOutput{}, newError(ErrorNoContent, "no_reviews", nil)
	}

	out, err := s.gen.Generate(ctx, domain.GenerateRequest{
		Model:           s.cfg.Model,
		Prompt:          buildSummaryPrompt(reviews),
		MaxOutputTokens: s.cfg.MaxOutputTokens,
		Temperature:     *s.cfg.Temperature,
	})
	if err != nil {
		return SummaryOutput{}, generationError("summarize", err)
	}

	stored, err := s.cache.Put(ctx, productID, out.Text, s.cfg.TTL)
	if err != nil {
		return SummaryOutput{}, newError(ErrorInternal, "summary_write_error", err)
	}
	return SummaryOutput{Summary: stored.Content, ExpiresAt: stored.ExpiresAt}, nil
}

func (s *ReviewService) requireProduct(ctx context.Context, productID int, missing ErrorCode) error {
	if productID <= 0 {
		return newError(ErrorInvalidInput, "invalid_product_id", nil)
	}
	_, ok, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return newError(ErrorInternal, "catalog_product_error", err)
	}
	if !ok {
		return newError(missing, "unknown_product", nil)
	}
	return nil
}
