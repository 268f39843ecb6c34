package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"shop-assistant/internal/domain"
	"shop-assistant/internal/observability"
	"shop-assistant/internal/ratelimit"
	"shop-assistant/internal/usecase"
)

type ChatService interface {
	SendTurn(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
}

type ReviewService interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetReviewsForProduct(ctx context.Context, productID int) (usecase.ProductReviews, error)
	Summarize(ctx context.Context, productID int) (usecase.SummaryOutput, error)
}

type Options struct {
	Limiter        *ratelimit.Limiter
	Metrics        *observability.Metrics
	MetricsHandler http.Handler
	Logger         *slog.Logger
	TrustProxy     bool
	StaticDir      string
	Now            func() time.Time
}

type Server struct {
	chat    ChatService
	reviews ReviewService
	limiter *ratelimit.Limiter
	metrics *observability.Metrics
	promh   http.Handler
	logger  *slog.Logger
	trust   bool
	static  http.Handler
	now     func() time.Time
}

func New(chat ChatService, reviews ReviewService, opts Options) (*Server, error) {
	if chat == nil {
		return nil, errors.New("httpapi: chat service must not be nil")
	}
	if reviews == nil {
		return nil, errors.New("httpapi: review service must not be nil")
	}
	if opts.Limiter == nil {
		return nil, errors.New("httpapi: limiter must not be nil")
	}
	s := &Server{
		chat:    chat,
		reviews: reviews,
		limiter: opts.Limiter,
		metrics: opts.Metrics,
		promh:   opts.MetricsHandler,
		logger:  opts.Logger,
		trust:   opts.TrustProxy,
		now:     opts.Now,
	}
	if s.logger == nil {
		s.logger = discardLogger()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if dir := strings.TrimSpace(opts.StaticDir); dir != "" {
		s.static = newSPAHandler(dir)
	}
	return s, nil
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if s.trust {
		r.Use(middleware.RealIP)
	}
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)
	if s.promh != nil {
		r.Handle("/metrics", s.promh)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.limit(ratelimit.TierAPI))
		r.Get("/api/products", s.handleListProducts)
		r.Get("/api/products/{id}/reviews", s.handleGetReviews)
	})
	r.With(s.limit(ratelimit.TierSummarize)).Post("/api/products/{id}/reviews/summarize", s.handleSummarize)
	r.With(s.limit(ratelimit.TierChat)).Post("/api/chat", s.handleChat)

	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, usecase.ErrorInvalidInput, "Method not allowed.")
	})
	return r
}

func (s *Server) limit(tier ratelimit.Tier) func(http.Handler) http.Handler {
	return ratelimit.Middleware(s.limiter, tier, func(w http.ResponseWriter, r *http.Request, d ratelimit.Decision) {
		if s.metrics != nil {
			s.metrics.ObserveRateLimitReject(string(tier))
		}
		s.logger.Info("rate limit exceeded",
			"tier", tier,
			"client", ratelimit.ClientAddr(r),
			"retry_after", d.RetryAfter.String(),
		)
		respondError(w, http.StatusTooManyRequests, usecase.ErrorRateLimited, d.Message)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339Nano),
	})
}

type chatRequest struct {
	Prompt         string `json:"prompt"`
	ConversationID string `json:"conversationId"`
}

type chatResponse struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, usecase.ErrorInvalidInput, "Invalid request body.")
		return
	}
	out, err := s.chat.SendTurn(r.Context(), usecase.ChatInput{
		Prompt:         req.Prompt,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		s.writeUsecaseError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, chatResponse{Message: out.Message, ConversationID: out.ConversationID})
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.reviews.ListProducts(r.Context())
	if err != nil {
		s.writeUsecaseError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

type reviewsResponse struct {
	Summary          *string         `json:"summary"`
	SummaryExpiresAt *time.Time      `json:"summaryExpiresAt"`
	Reviews          []domain.Review `json:"reviews"`
}

func (s *Server) handleGetReviews(w http.ResponseWriter, r *http.Request) {
	id, ok := productIDParam(w, r)
	if !ok {
		return
	}
	out, err := s.reviews.GetReviewsForProduct(r.Context(), id)
	if err != nil {
		s.writeUsecaseError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, reviewsResponse{
		Summary:          out.Summary,
		SummaryExpiresAt: out.SummaryExpiresAt,
		Reviews:          out.Reviews,
	})
}

type summarizeResponse struct {
	Summary   string    `json:"summary"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	id, ok := productIDParam(w, r)
	if !ok {
		return
	}
	out, err := s.reviews.Summarize(r.Context(), id)
	if err != nil {
		s.writeUsecaseError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, summarizeResponse{Summary: out.Summary, ExpiresAt: out.ExpiresAt})
}

func productIDParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, usecase.ErrorInvalidInput, "Invalid product ID.")
		return 0, false
	}
	return id, true
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	if s.static != nil && !isAPIPath(r.URL.Path) && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
		s.static.ServeHTTP(w, r)
		return
	}
	respondError(w, http.StatusNotFound, usecase.ErrorNotFound, "Not found.")
}

func isAPIPath(p string) bool {
	return p == "/api" || strings.HasPrefix(p, "/api/")
}
