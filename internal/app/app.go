package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"skald/internal/config"
	"skald/internal/ledger"
	"skald/internal/lock"
	"skald/internal/metrics"
	"skald/internal/services"
	"skald/internal/store"
	"skald/internal/store/bolt"
	"skald/internal/store/memory"
	"skald/internal/store/primary"
)

type App struct {
	Config  *config.Config
	Store   store.Store
	Locker  lock.Locker
	Metrics *metrics.Metrics

	// JobClient is nil when no redis address is configured.
	JobClient store.JobClient
	// Embedder is nil when embedding.provider is none.
	Embedder services.EmbeddingProvider

	// --- Initialized Services ---
	LedgerService  *services.LedgerService
	CatalogService *services.CatalogService
	ImportService  *services.ImportService
	SearchService  *services.SearchService

	redis   *redis.Client
	closers []io.Closer
}

func NewApp(cfg *config.Config) (*App, error) {
	ctx := context.Background()
	app := &App{Config: cfg, Metrics: metrics.New()}

	if err := app.initStore(ctx); err != nil {
		return nil, err
	}
	if err := app.initLocker(ctx); err != nil {
		app.cleanupPartialInit()
		return nil, err
	}
	if err := app.initJobClient(); err != nil {
		app.cleanupPartialInit()
		return nil, err
	}
	if err := app.initEmbeddingService(ctx); err != nil {
		app.cleanupPartialInit()
		return nil, err
	}
	if err := app.initCoreServices(); err != nil {
		app.cleanupPartialInit()
		return nil, err
	}

	log.Info("Application initialization complete.")
	return app, nil
}

// Close releases every connection the app opened.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			log.WithError(err).Warn("Error during shutdown")
			if first == nil {
				first = err
			}
		}
	}
	a.closers = nil
	return first
}

// --- Private Helper Methods ---

func (a *App) initStore(ctx context.Context) error {
	cfg := a.Config.Database
	switch cfg.Driver {
	case "postgres":
		ps, err := primary.NewPrimaryStore(ctx, cfg.Primary.DSN)
		if err != nil {
			return fmt.Errorf("init primary store: %w", err)
		}
		a.Store = ps
	case "bolt":
		bs, err := bolt.Open(cfg.Bolt.Path)
		if err != nil {
			return fmt.Errorf("init bolt store: %w", err)
		}
		a.Store = bs
	case "memory", "":
		log.Warn("Using the in-memory store; data is lost on exit and not shared with workers.")
		a.Store = memory.New()
	default:
		return fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
	a.closers = append(a.closers, a.Store)
	log.WithField("driver", cfg.Driver).Info("Store initialized")
	return nil
}

// initLocker picks the redis lock whenever redis is configured, since the
// API server and workers then mutate the same ledgers.
func (a *App) initLocker(ctx context.Context) error {
	cfg := a.Config
	if cfg.Redis.Address == "" {
		a.Locker = lock.NewLocalLocker()
		return nil
	}

	a.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	a.closers = append(a.closers, a.redis)

	rl := lock.NewRedisLocker(a.redis, "skald:lock:", cfg.Ledger.LockTTL)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rl.Ping(pingCtx); err != nil {
		return fmt.Errorf("init redis lock: %w", err)
	}
	a.Locker = rl
	return nil
}

func (a *App) initJobClient() error {
	cfg := a.Config.Redis
	if cfg.Address == "" {
		log.Debug("Redis not configured; asynchronous imports are disabled.")
		return nil
	}
	jc, err := store.NewAsynqJobClient(asynq.RedisClientOpt{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err != nil {
		return fmt.Errorf("init job client: %w", err)
	}
	a.JobClient = jc
	a.closers = append(a.closers, jc)
	return nil
}

func (a *App) initEmbeddingService(ctx context.Context) error {
	cfg := a.Config.Embedding

	var provider services.EmbeddingProvider
	switch cfg.Provider {
	case "openai":
		provider = services.NewOpenAIProvider(cfg.OpenaiApiKey, cfg.Model, cfg.OpenaiBaseURL)
	case "gemini":
		model := cfg.Model
		if model == "" || model == "text-embedding-ada-002" {
			model = "models/text-embedding-004"
		}
		gp, err := services.NewGeminiProvider(ctx, cfg.GoogleApiKey, model)
		if err != nil {
			return fmt.Errorf("init gemini provider: %w", err)
		}
		a.closers = append(a.closers, gp)
		provider = gp
	case "none":
		log.Warn("Embedding provider is 'none'; only skip_embedding adds will succeed.")
		return nil
	default:
		return fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	retryStrategy := &services.SimpleRetryStrategy{MaxAttempts: cfg.MaxRetries, BaseDelayMs: cfg.RetryBaseDelayMs}
	embedder, err := services.NewRetryingEmbeddingService(provider, retryStrategy, cfg.Timeout, a.Metrics)
	if err != nil {
		return fmt.Errorf("init embedding service: %w", err)
	}
	a.Embedder = embedder
	return nil
}

func (a *App) initCoreServices() error {
	cfg := a.Config
	amounts, err := cfg.LedgerAmounts()
	if err != nil {
		return err
	}
	estimator := services.NewCostEstimator(amounts.EmbeddingRatePer1K, cfg.Ledger.TokenBufferFactor)

	a.LedgerService = services.NewLedgerService(a.Store, a.Locker, services.LedgerConfig{
		DefaultCreditLimit: amounts.DefaultCreditLimit,
		Policy:             ledger.Policy{BillingPeriod: cfg.BillingPeriod(), HoldTTL: cfg.HoldTTL()},
	}, a.Metrics)
	a.CatalogService = services.NewCatalogService(a.Store)
	a.ImportService = services.NewImportService(a.CatalogService, a.LedgerService, a.Embedder, estimator, services.ImportConfig{
		BulkItemFee: amounts.BulkItemFee,
		MaxItems:    cfg.Import.MaxItems,
	}, a.Metrics)
	a.SearchService = services.NewSearchService(a.CatalogService, a.LedgerService, a.Embedder, estimator, services.SearchConfig{
		DefaultCount: cfg.Search.DefaultCount,
		MaxCount:     cfg.Search.MaxCount,
		ChargeSearch: cfg.Ledger.ChargeSearch,
	}, a.Metrics)
	return nil
}

func (a *App) cleanupPartialInit() {
	if err := a.Close(); err != nil {
		log.WithError(err).Warn("Error cleaning up partially initialized app")
	}
}
