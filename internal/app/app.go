// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/h1b-jobs-crawler/internal/adapter"
	"github.com/JakeFAU/h1b-jobs-crawler/internal/api"
	"github.com/JakeFAU/h1b-jobs-crawler/internal/classifier"
	"github.com/JakeFAU/h1b-jobs-crawler/internal/clock/system"
	"github.com/JakeFAU/h1b-jobs-crawler/internal/config"
	"github.com/JakeFAU/h1b-jobs-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/h1b-jobs-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/h1b-jobs-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/h1b-jobs-crawler/internal/hash/sha256"
	"github.com/JakeFAU/h1b-jobs-crawler/internal/headless/detector"
	"github.com/JakeFAU/h1b-jobs-crawler/internal/id/uuid"
	"github.com/JakeFAU/h1b-jobs-crawler/internal/lock"
	redislock "github.com/JakeFAU/h1b-jobs-crawler/internal/lock/redis"
	"github.com/JakeFAU/h1b-jobs-crawler/internal/metrics"
	"github.com/JakeFAU/h1b-jobs-crawler/internal/orchestrator"
	"github.com/JakeFAU/h1b-jobs-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/h1b-jobs-crawler/internal/processor"
	"github.com/JakeFAU/h1b-jobs-crawler/internal/progress"
	"github.com/JakeFAU/h1b-jobs-crawler/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/h1b-jobs-crawler/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/h1b-jobs-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/h1b-jobs-crawler/internal/robots"
	"github.com/JakeFAU/h1b-jobs-crawler/internal/scheduler"
	gcsstore "github.com/JakeFAU/h1b-jobs-crawler/internal/storage/gcs"
	localstore "github.com/JakeFAU/h1b-jobs-crawler/internal/storage/local"
	"github.com/JakeFAU/h1b-jobs-crawler/internal/storage/memory"
	"github.com/JakeFAU/h1b-jobs-crawler/internal/storage/postgres"
)

// sourceSeeder is implemented by repositories that accept sources from config.
type sourceSeeder interface {
	UpsertSource(ctx context.Context, src crawler.Source) error
}

// App holds all the shared, long-lived services for the application.
// It is initialized once at startup and handed to commands through their context.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	repo         crawler.Repository
	robots       *robots.Checker
	orchestrator *orchestrator.Orchestrator
	closers      []func()
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Repository returns the persistent store.
func (a *App) Repository() crawler.Repository { return a.repo }

// Robots returns the robots.txt checker.
func (a *App) Robots() *robots.Checker { return a.robots }

// Orchestrator returns the pass runner.
func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orchestrator }

// NewServer builds the HTTP API over the app's services.
func (a *App) NewServer() *api.Server {
	return api.NewServer(a.repo, a.orchestrator, a.cfg, a.logger.Named("api"))
}

// NewScheduler builds the cron trigger for passes.
func (a *App) NewScheduler() (*scheduler.Scheduler, error) {
	return scheduler.New(a.orchestrator, scheduler.Config{
		Spec:        a.cfg.Scheduler.Spec,
		RunOnStart:  a.cfg.Scheduler.RunOnStart,
		PassTimeout: a.cfg.Orchestrator.PassTimeout,
	}, a.logger)
}

// New wires every service from cfg. It fails fast when a configured backend cannot
// be reached; anything already opened is closed before returning the error.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	clock := system.New()
	ids := uuid.New()

	if a.repo, err = a.openRepository(ctx, ids, clock); err != nil {
		return nil, err
	}
	locker, err := a.openLocker(ctx, ids)
	if err != nil {
		return nil, err
	}
	snapshots, err := a.openBlobStore(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := a.openPublisher(ctx)
	if err != nil {
		return nil, err
	}

	a.robots = robots.NewChecker(robots.Config{
		Timeout:      cfg.Robots.Timeout,
		UserAgent:    cfg.Crawler.UserAgent,
		CacheResults: cfg.Robots.Cache,
	}, logger)

	deps := adapter.Deps{
		Fetcher: collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.Crawler.UserAgent,
			Timeout:   cfg.Crawler.FetchTimeout,
		}),
		Robots:      a.robots,
		Pacer:       ratelimit.New(ratelimit.Config{}),
		Hasher:      sha256.New(),
		Clock:       clock,
		RobotsAgent: cfg.Crawler.RobotsAgent,
		Logger:      logger.Named("adapter"),
	}
	if cfg.Crawler.SnapshotPages {
		deps.Snapshots = snapshots
	}
	if cfg.Crawler.Headless.Enabled {
		rendered, herr := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Crawler.Headless.MaxParallel,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: cfg.Crawler.Headless.NavTimeout,
			SettleDelay:       cfg.Crawler.Headless.SettleDelay,
		})
		if herr != nil {
			logger.Warn("headless fetcher init failed; rendered technique disabled", zap.Error(herr))
		} else {
			deps.Rendered = rendered
			deps.Detector = detector.NewHeuristic(cfg.Crawler.Headless.ShellBytes)
			a.closers = append(a.closers, rendered.Close)
		}
	}

	techniques := adapter.TechniquesByName(cfg.Crawler.Techniques, deps.Rendered != nil)
	registry := adapter.NewDefaultRegistry(deps,
		adapter.GenericBoardConfig{
			BaseURL:    cfg.Adapters.GenericBoard.BaseURL,
			MinDelay:   cfg.Adapters.GenericBoard.MinDelay,
			MaxPerPage: cfg.Adapters.GenericBoard.MaxPerPage,
			Techniques: techniques,
		},
		adapter.VisaBoardConfig{
			BaseURL:  cfg.Adapters.VisaBoard.BaseURL,
			MinDelay: cfg.Adapters.VisaBoard.MinDelay,
		},
	)

	proc, err := processor.New(processor.Config{
		Repository: a.repo,
		Classifier: classifier.New(),
		Locker:     locker,
		Clock:      clock,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init processor: %w", err)
	}

	a.orchestrator, err = orchestrator.New(orchestrator.Config{
		Repository:           a.repo,
		Registry:             registry,
		Processor:            proc,
		Locker:               locker,
		Clock:                clock,
		Logger:               logger,
		Robots:               a.robots,
		Publisher:            publisher,
		Topic:                cfg.PubSub.Topic,
		Progress:             a.openProgress(publisher),
		Concurrency:          cfg.Orchestrator.Concurrency,
		ListingRetentionDays: cfg.Orchestrator.ListingRetentionDays,
		RunRetentionDays:     cfg.Orchestrator.RunRetentionDays,
		RespectRobots:        cfg.Robots.Respect,
		PassLockWait:         cfg.Orchestrator.PassLockWait,
		PassLockTTL:          cfg.Orchestrator.PassLockTTL,
		ProcessTimeout:       cfg.Orchestrator.ProcessTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init orchestrator: %w", err)
	}

	logger.Info("application services initialized",
		zap.Strings("adapters", registry.Types()),
		zap.Bool("postgres", cfg.DB.DSN != ""),
		zap.Bool("redis", cfg.Redis.URL != ""),
		zap.String("storage", cfg.Storage.Backend),
		zap.Bool("pubsub", cfg.PubSub.ProjectID != ""),
	)
	return a, nil
}

func (a *App) openRepository(ctx context.Context, ids crawler.IDGenerator, clock crawler.Clock) (crawler.Repository, error) {
	if a.cfg.DB.DSN == "" {
		a.logger.Info("using in-memory repository", zap.Int("sources", len(a.cfg.Sources)))
		repo, err := memory.NewRepository(ids, clock, a.cfg.Sources...)
		if err != nil {
			return nil, fmt.Errorf("init memory repository: %w", err)
		}
		return repo, nil
	}

	a.logger.Info("connecting to postgres")
	repo, err := postgres.NewRepository(ctx, postgres.Config{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
	}, ids, clock)
	if err != nil {
		return nil, fmt.Errorf("init postgres repository: %w", err)
	}
	a.closers = append(a.closers, repo.Close)
	if a.cfg.DB.EnsureSchema {
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}
	if err := seedSources(ctx, repo, a.cfg.Sources); err != nil {
		return nil, err
	}
	return repo, nil
}

func seedSources(ctx context.Context, repo sourceSeeder, sources []crawler.Source) error {
	for _, src := range sources {
		if err := repo.UpsertSource(ctx, src); err != nil {
			return fmt.Errorf("seed source %s: %w", src.ID, err)
		}
	}
	return nil
}

func (a *App) openLocker(ctx context.Context, ids crawler.IDGenerator) (crawler.Locker, error) {
	if a.cfg.Redis.URL == "" {
		return lock.NewKeyed(), nil
	}
	client, err := redislock.Dial(ctx, a.cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() {
		if cerr := client.Close(); cerr != nil {
			a.logger.Warn("close redis client", zap.Error(cerr))
		}
	})
	locker, err := redislock.New(client, ids, redislock.Config{RetryDelay: a.cfg.Redis.RetryDelay}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init redis locker: %w", err)
	}
	return locker, nil
}

func (a *App) openBlobStore(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.StorageLocal:
		store, err := localstore.New(localstore.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local storage: %w", err)
		}
		return store, nil
	case config.StorageGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		a.closers = append(a.closers, func() {
			if cerr := client.Close(); cerr != nil {
				a.logger.Warn("close gcs client", zap.Error(cerr))
			}
		})
		store, err := gcsstore.New(client, gcsstore.Config{Bucket: a.cfg.Storage.Bucket, Prefix: a.cfg.Storage.Prefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs storage: %w", err)
		}
		return store, nil
	case config.StorageMemory:
		return memory.NewBlobStore(), nil
	default:
		return nil, nil
	}
}

func (a *App) openPublisher(ctx context.Context) (crawler.Publisher, error) {
	if a.cfg.PubSub.ProjectID == "" {
		return memorypublisher.New(), nil
	}
	client, err := pubsubpublisher.Dial(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, err
	}
	pub, err := pubsubpublisher.New(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("init pubsub publisher: %w", err)
	}
	a.closers = append(a.closers, func() {
		pub.Stop()
		if cerr := client.Close(); cerr != nil {
			a.logger.Warn("close pubsub client", zap.Error(cerr))
		}
	})
	return pub, nil
}

const progressCloseTimeout = 5 * time.Second

// openProgress starts the lifecycle event hub, or returns nil when disabled.
func (a *App) openProgress(publisher crawler.Publisher) progress.Emitter {
	if !a.cfg.Progress.Enabled {
		return nil
	}
	sinkList := []progress.Sink{sinks.NewLogSink(a.logger.Named("progress"))}
	if a.cfg.Progress.Topic != "" {
		ps, err := sinks.NewPublisherSink(publisher, a.cfg.Progress.Topic)
		if err != nil {
			a.logger.Warn("progress publishing disabled", zap.Error(err))
		} else {
			sinkList = append(sinkList, ps)
		}
	}
	hub := progress.NewHub(progress.Config{
		MaxBatchEvents: a.cfg.Progress.MaxBatch,
		MaxBatchWait:   a.cfg.Progress.MaxWait,
		Logger:         a.logger,
	}, sinkList...)
	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), progressCloseTimeout)
		defer cancel()
		if err := hub.Close(ctx); err != nil {
			a.logger.Warn("close progress hub", zap.Error(err))
		}
	})
	return hub
}

// Close shuts services down in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	_ = a.logger.Sync()
}
