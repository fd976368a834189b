package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/hrrr-tile-service/internal/adapter/decoder"
	httpadapter "github.com/couchcryptid/hrrr-tile-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/hrrr-tile-service/internal/adapter/kafka"
	"github.com/couchcryptid/hrrr-tile-service/internal/adapter/objectstore"
	"github.com/couchcryptid/hrrr-tile-service/internal/adapter/postgres"
	"github.com/couchcryptid/hrrr-tile-service/internal/config"
	"github.com/couchcryptid/hrrr-tile-service/internal/domain"
	"github.com/couchcryptid/hrrr-tile-service/internal/observability"
	"github.com/couchcryptid/hrrr-tile-service/internal/pipeline"
	"github.com/couchcryptid/hrrr-tile-service/internal/raster"
	"github.com/couchcryptid/hrrr-tile-service/internal/tiles"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
)

func main() {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.Open(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if cfg.DatabaseAutoMigrate {
		if err := store.AutoMigrate(ctx); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
	}

	checks := []sharedobs.ReadinessChecker{store}

	var publisher *kafkaadapter.Publisher
	if cfg.PipelineEnabled {
		scheduler, pub, err := newScheduler(cfg, store, clock, logger, metrics)
		if err != nil {
			logger.Error("failed to set up pipeline", "error", err)
			os.Exit(1)
		}
		publisher = pub
		checks = append(checks, scheduler)

		go func() {
			if err := scheduler.Run(ctx); err != nil {
				logger.Error("scheduler error", "error", err)
			}
		}()
	} else {
		logger.Info("pipeline disabled, serving existing cycles only")
	}

	rasters := raster.NewCache(store, domain.CONUS, cfg.RasterCycleCheckInterval, clock, logger, metrics)
	renderer, err := tiles.NewRenderer(rasters, domain.CONUS, cfg.TileCacheSize, logger, metrics)
	if err != nil {
		logger.Error("failed to create tile renderer", "error", err)
		os.Exit(1)
	}

	api := httpadapter.NewAPI(renderer, store, rasters, httpadapter.Options{
		Region:         domain.CONUS,
		ZoomMin:        cfg.TileZoomMin,
		ZoomMax:        cfg.TileZoomMax,
		PressureLevels: cfg.PressureLevels,
	}, logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.AllReady(checks...), api, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// newScheduler wires the ingestion pipeline. The returned publisher is nil
// when Kafka is disabled.
func newScheduler(cfg *config.Config, store *postgres.Store, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) (*pipeline.Scheduler, *kafkaadapter.Publisher, error) {
	dec, err := decoder.New(decoder.Config{
		Dir:     cfg.DecoderDir,
		Script:  cfg.DecoderScript,
		Python:  cfg.DecoderPython,
		Timeout: cfg.DecoderTimeout,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(cfg.DownloadDir, 0o750); err != nil {
		return nil, nil, err
	}

	orch := pipeline.NewOrchestrator(pipeline.Config{
		Archive:        domain.Archive{BaseURL: cfg.ObjectStoreBaseURL},
		Region:         domain.CONUS,
		ForecastHours:  cfg.ForecastHours,
		PressureLevels: cfg.PressureLevels,
		LookbackHours:  cfg.CycleLookbackHours,
		Retention:      cfg.CycleRetention,
		DownloadDir:    cfg.DownloadDir,
	},
		objectstore.NewClient(cfg.ObjectStoreTimeout, cfg.ObjectStoreMaxBodyBytes, logger),
		dec, store, store, clock, logger, metrics,
	)

	var pub *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		pub = kafkaadapter.NewPublisher(cfg, logger)
		orch = orch.WithNotifier(pub)
		logger.Info("cycle events enabled", "topic", cfg.KafkaCycleTopic)
	}

	return pipeline.NewScheduler(orch, cfg.PipelineInterval, clock, logger), pub, nil
}
