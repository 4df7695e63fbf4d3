package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/metget-build-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/metget-build-service/internal/adapter/kafka"
	"github.com/couchcryptid/metget-build-service/internal/build"
	"github.com/couchcryptid/metget-build-service/internal/catalog"
	"github.com/couchcryptid/metget-build-service/internal/config"
	"github.com/couchcryptid/metget-build-service/internal/domain"
	"github.com/couchcryptid/metget-build-service/internal/forcing"
	"github.com/couchcryptid/metget-build-service/internal/observability"
	"github.com/couchcryptid/metget-build-service/internal/pipeline"
	"github.com/couchcryptid/metget-build-service/internal/selection"
	"github.com/couchcryptid/metget-build-service/internal/storage"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.Open(ctx, cfg.CatalogPath)
	if err != nil {
		logger.Error("failed to open catalog", "error", err, "path", cfg.CatalogPath)
		os.Exit(1)
	}
	defer cat.Close()

	predefined, err := domain.LoadPredefinedDomains(cfg.DomainsFile)
	if err != nil {
		logger.Error("failed to load predefined domains", "error", err, "path", cfg.DomainsFile)
		os.Exit(1)
	}
	resolver := domain.NewResolver(predefined)

	store := newObjectStore(cfg, metrics, logger)
	interp := newInterpolator(cfg, logger)

	handler := build.NewHandler(build.Deps{
		Resolver:     resolver,
		Selector:     selection.NewEngine(cat, logger),
		Catalog:      cat,
		Store:        store,
		Interpolator: interp,
		WorkDir:      cfg.WorkDir,
		OutputDir:    cfg.OutputDir,
		Logger:       logger,
		Metrics:      metrics,
	})

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	transformer := pipeline.NewTransformer(handler, writer, logger)

	p := pipeline.New(reader, transformer, writer, logger, metrics, cfg.BatchSize)

	srv := httpadapter.NewServer(cfg.HTTPAddr, catalogReadiness{cat}, resolver, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start build pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}

func newObjectStore(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) storage.ObjectStore {
	var store storage.ObjectStore
	switch cfg.StorageBackend {
	case config.StorageHTTP:
		store = storage.NewHTTPStore(cfg.StorageURL, cfg.StorageTimeout, metrics, logger)
		logger.Info("object storage: http", "url", cfg.StorageURL, "timeout", cfg.StorageTimeout)
	default:
		store = storage.NewLocal(cfg.StorageRoot, cfg.StorageArchiveRoot)
		logger.Info("object storage: local", "root", cfg.StorageRoot, "archive", cfg.StorageArchiveRoot)
	}
	if cfg.StorageCacheSize > 0 {
		store = storage.NewCachedStore(store, cfg.StorageCacheSize, cfg.StorageCacheTTL, clockwork.NewRealClock(), metrics)
	}
	return store
}

func newInterpolator(cfg *config.Config, logger *slog.Logger) forcing.Interpolator {
	if cfg.InterpolatorCommand == "" {
		logger.Info("no grid builder configured, planning outputs only")
		return forcing.Planner{}
	}
	logger.Info("grid builder configured", "command", cfg.InterpolatorCommand)
	return forcing.NewCommand(cfg.InterpolatorCommand, logger)
}

// catalogReadiness reports ready once the catalog database answers.
type catalogReadiness struct {
	catalog interface{ Ping(context.Context) error }
}

func (r catalogReadiness) CheckReadiness(ctx context.Context) error {
	return r.catalog.Ping(ctx)
}
