// Package main wires together the email harvester service binary.
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

	"go.uber.org/zap"

	"github.com/JakeFAU/email-harvester/internal/api"
	"github.com/JakeFAU/email-harvester/internal/clock/system"
	"github.com/JakeFAU/email-harvester/internal/config"
	collyfetcher "github.com/JakeFAU/email-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/email-harvester/internal/id/uuid"
	"github.com/JakeFAU/email-harvester/internal/logging"
	"github.com/JakeFAU/email-harvester/internal/metrics"
	nooppublisher "github.com/JakeFAU/email-harvester/internal/publisher/noop"
	pubsubpublisher "github.com/JakeFAU/email-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/email-harvester/internal/runner"
	"github.com/JakeFAU/email-harvester/internal/scraper"
	gcsstorage "github.com/JakeFAU/email-harvester/internal/storage/gcs"
	localstorage "github.com/JakeFAU/email-harvester/internal/storage/local"
	memorystorage "github.com/JakeFAU/email-harvester/internal/storage/memory"
	postgresstorage "github.com/JakeFAU/email-harvester/internal/storage/postgres"
)

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	clock := system.New()
	idGen := uuid.New()

	var store scraper.TaskStore
	switch cfg.Store.Provider {
	case "postgres":
		pgStore, err := postgresstorage.NewTaskStore(ctx, cfg.Store.Postgres.DSN, idGen, clock, logger.Named("store"))
		if err != nil {
			logger.Fatal("postgres task store init failed", zap.Error(err))
		}
		defer pgStore.Close()
		store = pgStore
	default:
		store = memorystorage.NewTaskStore(idGen, clock, logger.Named("store"))
	}

	var artifacts scraper.ArtifactStore
	switch cfg.Storage.Provider {
	case "gcs":
		gcsStore, err := gcsstorage.New(ctx, cfg.Storage.GCS.Bucket, logger.Named("storage"))
		if err != nil {
			logger.Fatal("gcs artifact store init failed", zap.Error(err))
		}
		defer func() {
			if cerr := gcsStore.Close(); cerr != nil {
				logger.Warn("gcs client close failed", zap.Error(cerr))
			}
		}()
		artifacts = gcsStore
	default:
		localStore, err := localstorage.New(localstorage.Config{BaseDir: cfg.Storage.Local.Dir})
		if err != nil {
			logger.Fatal("local artifact store init failed", zap.Error(err))
		}
		artifacts = localStore
	}

	var publisher scraper.Publisher
	var topic string
	switch cfg.Publisher.Provider {
	case "pubsub":
		psPublisher, err := pubsubpublisher.New(ctx, cfg.Publisher.GCP.ProjectID, cfg.Publisher.GCP.TopicID)
		if err != nil {
			logger.Fatal("pubsub publisher init failed", zap.Error(err))
		}
		defer func() {
			if cerr := psPublisher.Close(); cerr != nil {
				logger.Warn("pubsub close failed", zap.Error(cerr))
			}
		}()
		publisher = psPublisher
		topic = cfg.Publisher.GCP.TopicID
	default:
		publisher = nooppublisher.New()
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})
	extractor := scraper.NewEmailExtractor(scraper.FilterConfig{
		ImageExtensions:    cfg.Extractor.ImageExtensions,
		PlaceholderDomains: cfg.Extractor.PlaceholderDomains,
	})
	engine := scraper.NewEngine(fetcher, extractor, scraper.EngineConfig{
		HopLimit:       cfg.Crawler.HopLimit,
		Delay:          cfg.CrawlDelay(),
		TargetKeywords: cfg.Crawler.TargetKeywords,
	}, logger.Named("engine"))

	taskRunner := runner.New(
		store,
		artifacts,
		engine,
		publisher,
		topic,
		clock,
		logger.Named("runner"),
	)

	apiServer := api.NewServer(store, taskRunner, artifacts, cfg.StreamPollInterval(), logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
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
}
