package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"TubeArticles/internal/config"
	"TubeArticles/internal/domain"
	"TubeArticles/internal/infrastructure/archive"
	"TubeArticles/internal/infrastructure/dedup"
	"TubeArticles/internal/infrastructure/feed"
	"TubeArticles/internal/infrastructure/llm"
	"TubeArticles/internal/infrastructure/metrics"
	"TubeArticles/internal/infrastructure/scheduler"
	"TubeArticles/internal/infrastructure/storage"
	"TubeArticles/internal/infrastructure/telegram"
	"TubeArticles/internal/infrastructure/transcript"
	"TubeArticles/internal/infrastructure/wordpress"
	"TubeArticles/internal/logging"
	"TubeArticles/internal/monitor"
	"TubeArticles/internal/ports"
	"TubeArticles/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg    config.Config
	logger *slog.Logger

	postgres     *storage.PostgresStore
	orchestrator *usecase.Orchestrator
	scheduler    *usecase.Scheduler
	metrics      *metrics.Metrics

	passive bool
	closers []func() error
}

// Option customises New.
type Option func(*Application)

// Passive builds an application that edits projects without running monitors.
func Passive() Option {
	return func(a *Application) { a.passive = true }
}

// New builds every adapter from cfg. Close releases connections.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger, opts ...Option) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	a := &Application{cfg: cfg, logger: baseLogger}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.wire(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *Application) wire(ctx context.Context) error {
	cfg := a.cfg
	logger := a.logger

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}

	dedupStore, err := a.openDedup(ctx)
	if err != nil {
		return err
	}

	source, err := a.feedSource(ctx)
	if err != nil {
		return err
	}

	var pipelineMetrics ports.PipelineMetrics
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
		pipelineMetrics = a.metrics
	}

	var notifier ports.Notifier
	if tg := cfg.Notifications.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		notifier = telegram.NewNotifier(tg.BaseURL, tg.BotToken, tg.ChatID, nil)
	}

	var articleArchive ports.ArticleArchive
	if cfg.Archive.Dir != "" {
		articleArchive = archive.NewHTMLArchive(cfg.Archive.Dir)
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Transcripts: transcript.NewTimedtextFetcher(
			&http.Client{Timeout: cfg.Timeouts.Transcript},
			cfg.Transcript.BaseURL,
			cfg.Transcript.Languages,
			cfg.Transcript.MinWords,
			logger.With("component", "transcript"),
		),
		Generator: a.generator(),
		Throttle:  llm.NewLimiter(cfg.LLM.RequestsPerMinute, cfg.LLM.Burst),
		Dedup:     dedupStore,
		Store:     store,
		Archive:   articleArchive,
		Notifier:  notifier,
		Metrics:   pipelineMetrics,
		Logger:    logger,
		Timeouts: usecase.StageTimeouts{
			Transcript: cfg.Timeouts.Transcript,
			Generate:   cfg.Timeouts.Generate,
			Publish:    cfg.Timeouts.Publish,
		},
		DefaultCategory:               cfg.WordPress.DefaultCategory,
		MarkProcessedOnPublishFailure: cfg.Monitor.MarkProcessedOnPublishFailure,
	})

	registry := monitor.NewRegistry(monitor.Deps{
		Feed:    source,
		Dedup:   dedupStore,
		Metrics: pipelineMetrics,
		Settings: monitor.Settings{
			Lookback:     cfg.Monitor.Lookback,
			PollInterval: cfg.Monitor.PollInterval,
			ErrorBackoff: cfg.Monitor.ErrorBackoff,
			FeedTimeout:  cfg.Timeouts.Feed,
		},
		Logger: logger.With("component", "monitor"),
	})

	a.orchestrator = usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Store:    store,
		Registry: registry,
		Publishers: wordpress.NewFactory(wordpress.Options{
			PostStatus: cfg.WordPress.PostStatus,
			Timeout:    cfg.WordPress.Timeout,
			Retry:      cfg.WordPress.Retry,
		}, logger.With("component", "wordpress")),
		Pipeline:       pipeline,
		ParseChannelID: feed.ExtractChannelID,
		Passive:        a.passive,
		Logger:         logger,
	})

	if cfg.Scheduler.ReconcileCron != "" {
		if err := scheduler.Validate(cfg.Scheduler.ReconcileCron); err != nil {
			return err
		}
		driver := scheduler.NewCronScheduler(cfg.Scheduler.ReconcileCron, cfg.Scheduler.Location())
		a.scheduler = usecase.NewScheduler(driver, a.orchestrator, logger)
	}
	return nil
}

func (a *Application) openStore(ctx context.Context) (ports.StateStore, error) {
	if a.cfg.Database.DSN == "" {
		a.logger.Warn("no database configured, project state is kept in memory")
		return storage.NewMemoryStore(), nil
	}

	db, err := storage.OpenPostgres(ctx, a.cfg.Database.DSN, a.cfg.Database.MaxOpenConns)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	a.postgres = storage.NewPostgresStore(db)

	if a.cfg.Database.AutoMigrate {
		if err := a.postgres.Migrate(ctx); err != nil {
			return nil, err
		}
	}
	return a.postgres, nil
}

func (a *Application) openDedup(ctx context.Context) (ports.DedupStore, error) {
	cfg := a.cfg.Dedup
	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		a.closers = append(a.closers, client.Close)
		store := dedup.NewRedisStore(client, cfg.RedisKey)
		if err := store.Ping(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case "postgres":
		if a.postgres == nil {
			return nil, fmt.Errorf("%w: postgres dedup backend needs database.dsn", domain.ErrConfiguration)
		}
		return a.postgres, nil
	default:
		return dedup.OpenFileStore(cfg.Path)
	}
}

func (a *Application) feedSource(ctx context.Context) (ports.FeedSource, error) {
	cfg := a.cfg.Feed
	reg := feed.NewRegistry()
	reg.Register(feed.NewRSSSource(
		&http.Client{Timeout: a.cfg.Timeouts.Feed},
		cfg.RSSURL,
		cfg.Retry,
		a.logger.With("component", "feed.rss"),
	))

	if cfg.YouTubeAPIKey != "" {
		var opts []option.ClientOption
		if cfg.SearchBaseURL != "" {
			opts = append(opts, option.WithEndpoint(cfg.SearchBaseURL))
		}
		search, err := feed.NewSearchSource(ctx, cfg.YouTubeAPIKey, a.cfg.Monitor.Lookback, cfg.MaxResults, cfg.Retry,
			a.logger.With("component", "feed.search"), opts...)
		if err != nil {
			return nil, err
		}
		reg.Register(search)
	}

	return feed.NewStrategySource(reg, domain.SourceRSS, a.logger.With("component", "feed")), nil
}

func (a *Application) generator() ports.ArticleGenerator {
	cfg := a.cfg.LLM
	client := &http.Client{Timeout: a.cfg.Timeouts.Generate}

	switch cfg.Provider {
	case "anthropic":
		return llm.NewAnthropicClient(cfg, client)
	default:
		return llm.NewOpenAIClient(cfg, client)
	}
}

// Orchestrator exposes the project/channel control surface.
func (a *Application) Orchestrator() *usecase.Orchestrator {
	return a.orchestrator
}

// Migrate applies the database schema.
func (a *Application) Migrate(ctx context.Context) error {
	if a.postgres == nil {
		return fmt.Errorf("%w: database.dsn is not set", domain.ErrConfiguration)
	}
	return a.postgres.Migrate(ctx)
}

// Run starts every active project and blocks until ctx is cancelled, then
// stops all monitors.
func (a *Application) Run(ctx context.Context) error {
	if err := a.orchestrator.StartAll(ctx); err != nil {
		return fmt.Errorf("start projects: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if a.scheduler != nil {
		if err := a.scheduler.Start(gctx); err != nil {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return errors.Join(fmt.Errorf("start scheduler: %w", err), a.orchestrator.Shutdown(stopCtx))
		}
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return a.scheduler.Stop(stopCtx)
		})
	}

	if a.metrics != nil {
		g.Go(func() error {
			return a.metrics.Serve(gctx, a.cfg.Metrics.Addr, a.logger.With("component", "metrics"))
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.orchestrator.Shutdown(stopCtx)
	})

	return g.Wait()
}

// Close releases database and cache connections.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
