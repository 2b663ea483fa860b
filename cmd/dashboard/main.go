package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/couchcryptid/rescuecom-dashboard/internal/adapter/backend"
	"github.com/couchcryptid/rescuecom-dashboard/internal/adapter/demo"
	httpadapter "github.com/couchcryptid/rescuecom-dashboard/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/rescuecom-dashboard/internal/adapter/kafka"
	"github.com/couchcryptid/rescuecom-dashboard/internal/adapter/mapbox"
	redisadapter "github.com/couchcryptid/rescuecom-dashboard/internal/adapter/redis"
	"github.com/couchcryptid/rescuecom-dashboard/internal/adapter/sqlite"
	"github.com/couchcryptid/rescuecom-dashboard/internal/config"
	"github.com/couchcryptid/rescuecom-dashboard/internal/domain"
	"github.com/couchcryptid/rescuecom-dashboard/internal/observability"
	"github.com/couchcryptid/rescuecom-dashboard/internal/pipeline"
	"github.com/couchcryptid/rescuecom-dashboard/internal/render"
	"github.com/couchcryptid/rescuecom-dashboard/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	snapshots, closeSnapshots, err := openSnapshots(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open snapshot backend", "backend", cfg.SnapshotBackend, "error", err)
		os.Exit(1)
	}

	st := store.New(snapshots, logger, metrics)
	if cfg.RestoreSnapshot {
		n, err := st.Restore(ctx)
		if err != nil {
			logger.Warn("snapshot restore failed, starting empty", "error", err)
		} else {
			logger.Info("snapshot restored", "records", n)
		}
	}

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics,
			mapbox.WithFailureTTL(cfg.MapboxFailureTTL))
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize,
			"timeout", cfg.MapboxTimeout, "failure_ttl", cfg.MapboxFailureTTL)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	normalizer := domain.NewNormalizer(
		domain.WithScale(cfg.SeverityScale),
		domain.WithLocation(cfg.DisplayLocation),
	)
	ingestor := pipeline.NewIngestor(normalizer, geocoder, st, logger, metrics)

	var source pipeline.Source
	var demoSource *demo.Source
	if cfg.DemoMode {
		demoSource = demo.NewSource(cfg.DemoDataPath, logger)
		source = demoSource
		logger.Info("demo mode", "path", cfg.DemoDataPath)
	} else {
		source = backend.NewClient(cfg.BackendURL, cfg.BackendTimeout)
		logger.Info("polling backend", "url", cfg.BackendURL, "interval", cfg.PollInterval)
	}
	poller := pipeline.NewPoller(source, ingestor, cfg.PollInterval, logger, metrics)

	if demoSource != nil {
		if err := demoSource.Watch(ctx, poller.Trigger); err != nil {
			logger.Warn("demo file watch disabled", "error", err)
		}
	}

	// A typed nil *ActionWriter must not reach NewActions.
	var publisher pipeline.ActionPublisher
	var actionWriter *kafkaadapter.ActionWriter
	if cfg.KafkaActionsEnabled() {
		actionWriter = kafkaadapter.NewActionWriter(cfg, logger)
		publisher = actionWriter
		logger.Info("publishing actions to kafka", "topic", cfg.KafkaActionTopic)
	}
	actions := pipeline.NewActions(st, publisher, logger, metrics)

	var reader *kafkaadapter.Reader
	var consumer *pipeline.Consumer
	if cfg.KafkaPushEnabled() {
		reader = kafkaadapter.NewReader(cfg, logger)
		consumer = pipeline.NewConsumer(reader, ingestor, logger, metrics)
		logger.Info("consuming pushes from kafka", "topic", cfg.KafkaPushTopic, "group_id", cfg.KafkaGroupID)
	}

	pages, err := render.NewPages()
	if err != nil {
		logger.Error("failed to parse templates", "error", err)
		os.Exit(1)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Deps{
		Ready:    poller,
		Requests: st,
		Pusher:   ingestor,
		Actions:  actions,
		Pages:    pages,
	}, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	var wg sync.WaitGroup

	// Start poller.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := poller.Run(ctx); err != nil {
			logger.Error("poller error", "error", err)
		}
	}()

	// Start push consumer.
	if consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil {
				logger.Error("push consumer error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	wg.Wait()

	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if actionWriter != nil {
		if err := actionWriter.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if err := closeSnapshots(); err != nil {
		logger.Error("snapshot backend close error", "error", err)
	}

	logger.Info("shutdown complete")
}

// openSnapshots selects the snapshot slot backend. The returned close
// function is always non-nil.
func openSnapshots(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Snapshotter, func() error, error) {
	noop := func() error { return nil }

	switch cfg.SnapshotBackend {
	case config.SnapshotSQLite:
		snaps, err := sqlite.Open(cfg.SnapshotPath)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("snapshots in sqlite", "path", cfg.SnapshotPath)
		return snaps, snaps.Close, nil
	case config.SnapshotRedis:
		snaps := redisadapter.NewSnapshots(redisadapter.NewClient(cfg.RedisAddr))
		if err := snaps.Ping(ctx); err != nil {
			_ = snaps.Close()
			return nil, noop, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
		logger.Info("snapshots in redis", "addr", cfg.RedisAddr)
		return snaps, snaps.Close, nil
	default:
		logger.Info("snapshots disabled")
		return nil, noop, nil
	}
}
