// Package app wires configuration into the running service. Both the HTTP
// server and the Lambda entry point build the same App.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/prometheus/client_golang/prometheus"

	"shop-assistant/internal/config"
	"shop-assistant/internal/conversation"
	"shop-assistant/internal/gateway"
	"shop-assistant/internal/httpapi"
	"shop-assistant/internal/integrations/openai"
	"shop-assistant/internal/integrations/paramstore"
	"shop-assistant/internal/observability"
	"shop-assistant/internal/ratelimit"
	"shop-assistant/internal/repository"
	"shop-assistant/internal/summary"
	"shop-assistant/internal/usecase"
)

const janitorInterval = time.Minute

type App struct {
	Handler http.Handler
	Limiter *ratelimit.Limiter
	Breaker *gateway.Breaker

	closers []func() error
}

// Start runs background maintenance until ctx is done.
func (a *App) Start(ctx context.Context) {
	a.Limiter.StartJanitor(ctx, janitorInterval)
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Option func(*options)

type options struct {
	generator gateway.Generator
	registry  *prometheus.Registry
	awsConfig *aws.Config
}

// WithGenerator replaces the OpenAI client. The timeout and breaker
// decorators still apply.
func WithGenerator(gen gateway.Generator) Option {
	return func(o *options) { o.generator = gen }
}

// WithRegistry registers metrics on reg instead of the default registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithAWSConfig skips loading the default AWS configuration.
func WithAWSConfig(cfg aws.Config) Option {
	return func(o *options) { o.awsConfig = &cfg }
}

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{}

	var awsCfg aws.Config
	if cfg.NeedsAWS() {
		if o.awsConfig != nil {
			awsCfg = *o.awsConfig
		} else {
			loaded, err := awsconfig.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, fmt.Errorf("app: load AWS config: %w", err)
			}
			awsCfg = loaded
		}
	}

	stores, err := repository.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("app: open stores: %w", err)
	}
	a.closers = append(a.closers, stores.Close)

	backend, err := summaryBackend(cfg, stores, awsCfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	cache, err := summary.NewCache(backend)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	gen := o.generator
	if gen == nil {
		keys, err := keySource(cfg, awsCfg)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		client, err := openai.NewClient(keys, openai.WithBaseURL(cfg.OpenAIBaseURL))
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		gen = client
	}
	a.Breaker = gateway.NewBreaker(gateway.WithTimeout(gen, cfg.GatewayTimeout), gateway.DefaultBreakerConfig(), logger)

	var reg prometheus.Registerer
	var metricsHandler http.Handler
	if o.registry != nil {
		reg = o.registry
		metricsHandler = observability.MetricsHandler(o.registry)
	} else {
		metricsHandler = observability.MetricsHandler(nil)
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace, reg)

	instructions, err := usecase.ChatInstructions()
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	chat, err := usecase.NewChatService(
		metrics.InstrumentGenerator("chat", a.Breaker),
		conversation.NewStore(),
		usecase.ChatConfig{Model: cfg.OpenAIModel, Instructions: instructions, Temperature: cfg.ChatTemperature},
	)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	reviews, err := usecase.NewReviewService(
		stores.Catalog,
		cache,
		metrics.InstrumentGenerator("summarize", a.Breaker),
		usecase.ReviewConfig{
			Model:       cfg.OpenAIModel,
			TTL:         cfg.SummaryTTL,
			ReviewLimit: cfg.SummaryReviewLimit,
			Temperature: cfg.SummaryTemperature,
		},
		usecase.WithCacheObserver(metrics.ObserveSummaryCache),
	)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Limiter, err = ratelimit.New(map[ratelimit.Tier]ratelimit.Quota{
		ratelimit.TierChat:      {Max: cfg.ChatLimit.Max, Window: cfg.ChatLimit.Window, Message: ratelimit.MessageChat},
		ratelimit.TierSummarize: {Max: cfg.SummarizeLimit.Max, Window: cfg.SummarizeLimit.Window, Message: ratelimit.MessageSummarize},
		ratelimit.TierAPI:       {Max: cfg.APILimit.Max, Window: cfg.APILimit.Window, Message: ratelimit.MessageAPI},
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	staticDir := ""
	if cfg.ServeStatic {
		staticDir = cfg.StaticDir
	}
	srv, err := httpapi.New(chat, reviews, httpapi.Options{
		Limiter:        a.Limiter,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
		Logger:         logger,
		TrustProxy:     cfg.TrustProxy,
		StaticDir:      staticDir,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Handler = srv.Router()

	logger.Info("app configured",
		"catalog", stores.Mode,
		"summary_backend", cfg.ResolvedSummaryBackend(),
		"model", cfg.OpenAIModel,
		"serve_static", cfg.ServeStatic,
	)
	return a, nil
}

func summaryBackend(cfg config.Config, stores *repository.Stores, awsCfg aws.Config) (summary.Backend, error) {
	switch cfg.ResolvedSummaryBackend() {
	case config.BackendMemory:
		return repository.NewMemorySummaryStore(), nil
	case config.BackendPostgres:
		if stores.Mode != "postgres" {
			return nil, errors.New("app: postgres summary backend requires DATABASE_URL")
		}
		return stores.Summaries, nil
	case config.BackendDynamoDB:
		return repository.NewDynamoSummaryStore(awsdynamodb.NewFromConfig(awsCfg), cfg.SummaryTable)
	default:
		return nil, fmt.Errorf("app: unknown summary backend %q", cfg.SummaryBackend)
	}
}

func keySource(cfg config.Config, awsCfg aws.Config) (openai.KeySource, error) {
	if cfg.OpenAIAPIKey != "" {
		return openai.StaticKey(cfg.OpenAIAPIKey), nil
	}
	if cfg.ParamPrefix == "" {
		return nil, errors.New("app: OPENAI_API_KEY or PARAM_PREFIX must be set")
	}
	params, err := paramstore.New(awsssm.NewFromConfig(awsCfg), cfg.ParamPrefix)
	if err != nil {
		return nil, fmt.Errorf("app: create parameter store client: %w", err)
	}
	return params.APIKeySource(), nil
}
