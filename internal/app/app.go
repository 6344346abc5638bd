// Package app builds and runs the fetch service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vastio/vastfetch/internal/api"
	"github.com/vastio/vastfetch/internal/clock/system"
	"github.com/vastio/vastfetch/internal/config"
	"github.com/vastio/vastfetch/internal/events"
	"github.com/vastio/vastfetch/internal/fetcher"
	"github.com/vastio/vastfetch/internal/id/uuid"
	"github.com/vastio/vastfetch/internal/logging"
	"github.com/vastio/vastfetch/internal/metrics"
	"github.com/vastio/vastfetch/internal/parser"
	"github.com/vastio/vastfetch/internal/pipeline"
	memorypublisher "github.com/vastio/vastfetch/internal/publisher/memory"
	gcppublisher "github.com/vastio/vastfetch/internal/publisher/pubsub"
	gcsstorage "github.com/vastio/vastfetch/internal/storage/gcs"
	memorystorage "github.com/vastio/vastfetch/internal/storage/memory"
	memorystore "github.com/vastio/vastfetch/internal/store/memory"
	pgstore "github.com/vastio/vastfetch/internal/store/postgres"
	"github.com/vastio/vastfetch/internal/tracker"
	"github.com/vastio/vastfetch/internal/upstream"
	"github.com/vastio/vastfetch/internal/vast"
)

// App contains the application's dependencies.
type App struct {
	cfg             config.Config
	logger          *zap.Logger
	apiServer       *api.Server
	hub             *events.Hub
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	storageClient   *storage.Client
	resultStore     vast.ResultStore
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}

	client := newHTTPClient(cfg.HTTP)

	archive, err := app.setupArchive(ctx)
	if err != nil {
		return nil, err
	}
	if err := app.setupStore(ctx); err != nil {
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}

	app.hub = events.NewHub(events.Config{Logger: logger.Named("events")},
		events.NewLogSink(logger.Named("events_log")),
		events.NewPrometheusSink(),
	)

	clock := system.New()
	p, err := pipeline.New(pipeline.Options{
		Fetcher: fetcher.New(client, clock, logger.Named("fetcher")),
		Parser:  parser.New(),
		Tracker: tracker.New(client, clock, logger.Named("tracker"),
			time.Duration(cfg.Tracking.BeaconTimeoutMs)*time.Millisecond),
		Clock:     clock,
		IDs:       uuid.New(),
		Hub:       app.hub,
		Store:     app.resultStore,
		Archive:   archive,
		Publisher: publisher,
		Topic:     cfg.Publisher.TopicName,
		Prefix:    cfg.Archive.Prefix,
		Logger:    logger.Named("pipeline"),
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline init failed: %w", err)
	}

	app.apiServer = api.NewServer(p, cfg, logger.Named("api"))
	return app, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown error", zap.Error(err))
		}
		return a.Close(shutdownCtx)
	})

	return g.Wait()
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("events hub close failed", zap.Error(err))
		}
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.resultStore != nil {
		a.resultStore.Close()
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) setupArchive(ctx context.Context) (vast.BlobStore, error) {
	switch a.cfg.Archive.Provider {
	case "gcs":
		a.logger.Info("using GCS creative archive", zap.String("bucket", a.cfg.Archive.GCSBucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storageClient = client
		archive, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Archive.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs archive init failed: %w", err)
		}
		return archive, nil
	case "memory":
		a.logger.Info("using in-memory creative archive")
		return memorystorage.NewBlobStore(), nil
	default:
		a.logger.Info("creative archival disabled")
		return nil, nil
	}
}

func (a *App) setupStore(ctx context.Context) error {
	switch a.cfg.Store.Provider {
	case "postgres":
		store, err := pgstore.NewResultStore(ctx, pgstore.ResultStoreConfig{
			DSN:   a.cfg.Store.DSN,
			Table: a.cfg.Store.Table,
		})
		if err != nil {
			return fmt.Errorf("result store init failed: %w", err)
		}
		a.resultStore = store
		a.logger.Info("result store initialized", zap.String("table", a.cfg.Store.Table))
	case "memory":
		a.resultStore = memorystore.NewResultStore()
		a.logger.Info("using in-memory result store")
	default:
		a.logger.Info("result persistence disabled")
	}
	return nil
}

func (a *App) setupPublisher(ctx context.Context) (vast.Publisher, error) {
	switch a.cfg.Publisher.Provider {
	case "pubsub":
		client, err := pubsub.NewClient(ctx, a.cfg.Publisher.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsubClient = client
		a.pubsubPublisher = gcppublisher.New(client)
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.Publisher.ProjectID),
			zap.String("topic", a.cfg.Publisher.TopicName),
		)
		return a.pubsubPublisher, nil
	case "memory":
		a.logger.Info("using in-memory publisher")
		return memorypublisher.New(), nil
	default:
		a.logger.Info("completion publishing disabled")
		return nil, nil
	}
}

func newHTTPClient(cfg config.HTTPConfig) *http.Client {
	transport := upstream.NewTransport()
	if cfg.MaxIdleConns > 0 {
		transport.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.MaxIdleConnsPerHost > 0 {
		transport.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
	}
	if cfg.IdleTimeoutSeconds > 0 {
		transport.IdleConnTimeout = time.Duration(cfg.IdleTimeoutSeconds) * time.Second
	}
	return &http.Client{Transport: transport}
}
