// Package main wires together the crawler service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/nhannt-dev/crawler-tool/internal/api"
	"github.com/nhannt-dev/crawler-tool/internal/clock/system"
	"github.com/nhannt-dev/crawler-tool/internal/config"
	"github.com/nhannt-dev/crawler-tool/internal/crawler"
	"github.com/nhannt-dev/crawler-tool/internal/dispatcher"
	collyfetcher "github.com/nhannt-dev/crawler-tool/internal/fetcher/colly"
	headlessfetcher "github.com/nhannt-dev/crawler-tool/internal/fetcher/headless"
	"github.com/nhannt-dev/crawler-tool/internal/hash/sha256"
	"github.com/nhannt-dev/crawler-tool/internal/headless/detector"
	"github.com/nhannt-dev/crawler-tool/internal/id/snowflake"
	"github.com/nhannt-dev/crawler-tool/internal/logging"
	"github.com/nhannt-dev/crawler-tool/internal/metrics"
	goqueryparser "github.com/nhannt-dev/crawler-tool/internal/parser/goquery"
	"github.com/nhannt-dev/crawler-tool/internal/policy/ratelimit"
	memorypublisher "github.com/nhannt-dev/crawler-tool/internal/publisher/memory"
	pubsubpublisher "github.com/nhannt-dev/crawler-tool/internal/publisher/pubsub"
	queuememory "github.com/nhannt-dev/crawler-tool/internal/queue/memory"
	queuepubsub "github.com/nhannt-dev/crawler-tool/internal/queue/pubsub"
	"github.com/nhannt-dev/crawler-tool/internal/slug"
	"github.com/nhannt-dev/crawler-tool/internal/storage/gcs"
	"github.com/nhannt-dev/crawler-tool/internal/storage/local"
	memorystorage "github.com/nhannt-dev/crawler-tool/internal/storage/memory"
	"github.com/nhannt-dev/crawler-tool/internal/storage/postgres"
	"github.com/nhannt-dev/crawler-tool/internal/telemetry"
	"github.com/nhannt-dev/crawler-tool/internal/worker"
)

// registryStore is the combined store surface the API needs: site and
// category persistence plus the slug uniqueness pre-check.
type registryStore interface {
	crawler.SiteStore
	crawler.CategoryStore
	slug.Checker
}

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("crawler service failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	tp, err := telemetry.InitTracerProvider(ctx, "crawler-tool")
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("tracer shutdown error", zap.Error(err))
		}
	}()

	sites, tasks, storesClose, err := buildStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build stores: %w", err)
	}
	defer storesClose()

	blobStore, err := buildBlobStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build blob store: %w", err)
	}

	publisher, publisherClose, err := buildPublisher(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build publisher: %w", err)
	}
	defer publisherClose()

	queue, queueClose, err := buildQueue(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build queue: %w", err)
	}
	defer queueClose()

	epoch, err := cfg.SnowflakeEpoch()
	if err != nil {
		return fmt.Errorf("parse snowflake epoch: %w", err)
	}
	idGen, err := snowflake.New(snowflake.Config{
		Epoch:    epoch,
		GroupID:  cfg.Snowflake.GroupID,
		MemberID: cfg.Snowflake.MemberID,
	})
	if err != nil {
		return fmt.Errorf("build id generator: %w", err)
	}
	resolver, err := slug.NewResolver(slug.Config{
		Checker:    sites,
		OnResolved: metrics.ObserveSlugAttempts,
	})
	if err != nil {
		return fmt.Errorf("build slug resolver: %w", err)
	}

	hasher := sha256.New()
	clock := system.New()
	detect := detector.NewHeuristic(cfg.Headless.PromotionThresh)
	parser := goqueryparser.New(goqueryparser.Config{})
	var pacer collyfetcher.Pacer
	if cfg.Crawler.DelaySeconds > 0 {
		pacer = ratelimit.New(ratelimit.Config{
			DefaultRPS: 1.0 / float64(cfg.Crawler.DelaySeconds),
		})
	}
	probeFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		RespectRobots: true,
		Timeout:       time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
		Pacer:         pacer,
	})
	var headless crawler.Fetcher
	if cfg.Headless.Enabled {
		rate := 0.0
		if cfg.Crawler.DelaySeconds > 0 {
			rate = 1.0 / float64(cfg.Crawler.DelaySeconds)
		}
		headlessFetcher, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
			RatePerSecond:     rate,
		})
		if err != nil {
			logger.Warn("headless fetcher init failed, promotions will error", zap.Error(err))
			headless = headlessfetcher.NewNoop()
		} else {
			headless = headlessFetcher
		}
	}

	workerCfg := worker.Config{
		ContentType:   cfg.Storage.ContentType,
		BlobPrefix:    cfg.Storage.Prefix,
		Topic:         cfg.PubSub.TopicName,
		DefaultBudget: cfg.FetchBudget(),
		MaxRetries:    cfg.HTTP.MaxRetries,
	}
	var workers []*worker.Worker
	for i := 0; i < cfg.Crawler.Concurrency; i++ {
		workers = append(workers, worker.New(
			queue,
			tasks,
			blobStore,
			publisher,
			hasher,
			clock,
			probeFetcher,
			headless,
			detect,
			parser,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, workers)

	apiServer, err := api.NewServer(api.Deps{
		Sites:      sites,
		Categories: sites,
		Tasks:      tasks,
		Dispatcher: dispatch,
		IDGen:      idGen,
		Resolver:   resolver,
		Clock:      clock,
		Cfg:        cfg,
		Logger:     logger.Named("api"),
	})
	if err != nil {
		return fmt.Errorf("build api server: %w", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", len(workers)))
		dispatch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}

func buildStores(ctx context.Context, cfg config.Config) (registryStore, crawler.TaskStore, func(), error) {
	if cfg.DB.DSN == "" {
		return memorystorage.NewSiteStore(), memorystorage.NewTaskStore(), func() {}, nil
	}
	pool, err := postgres.NewPool(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxOpenConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	siteStore, err := postgres.NewSiteStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	taskStore, err := postgres.NewTaskStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	return siteStore, taskStore, pool.Close, nil
}

func buildBlobStore(ctx context.Context, cfg config.Config) (crawler.BlobStore, error) {
	switch cfg.Storage.Provider {
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		return gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
	case "local":
		return local.New(local.Config{BaseDir: cfg.Storage.LocalDir})
	default:
		return memorystorage.NewBlobStore(), nil
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (crawler.Publisher, func(), error) {
	if !cfg.PubSub.Enabled {
		return memorypublisher.New(), func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	topic := client.Topic(cfg.PubSub.TopicName)
	closeFn := func() {
		topic.Stop()
		_ = client.Close()
	}
	return pubsubpublisher.New(topic), closeFn, nil
}

func buildQueue(ctx context.Context, cfg config.Config, logger *zap.Logger) (crawler.Queue, func(), error) {
	if cfg.PubSub.Enabled && cfg.PubSub.QueueTopic != "" && cfg.PubSub.QueueSubscription != "" {
		q, err := queuepubsub.New(ctx, queuepubsub.Config{
			ProjectID:      cfg.PubSub.ProjectID,
			TopicID:        cfg.PubSub.QueueTopic,
			SubscriptionID: cfg.PubSub.QueueSubscription,
		}, logger.Named("queue"))
		if err != nil {
			return nil, nil, fmt.Errorf("pubsub queue: %w", err)
		}
		return q, func() { _ = q.Close() }, nil
	}
	q := queuememory.NewQueue(cfg.Crawler.GlobalQueueDepth)
	return q, q.Close, nil
}
