// Command argus runs the perception engine: it restores the source catalog,
// starts capture and distribution, and serves the HTTP boundary.
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
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/Akash9179/Project-Argus/internal/api"
	"github.com/Akash9179/Project-Argus/internal/catalog"
	"github.com/Akash9179/Project-Argus/internal/config"
	"github.com/Akash9179/Project-Argus/internal/distributor"
	"github.com/Akash9179/Project-Argus/internal/ingest"
	"github.com/Akash9179/Project-Argus/internal/metrics"
)

func main() {
	configPath := flag.String("config", "argus.toml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("engine failed", zap.Error(err))
	}
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	manager := ingest.NewManager(
		cfg.Capture.FrameQueueSize,
		cfg.Capture.MaxSources,
		cfg.Capture.DefaultTargetFPS,
		logger,
	)
	cache := distributor.NewCache()
	dist := distributor.New(manager.Queue(), cache, logger)

	restoreSources(store, manager, logger)

	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: api.NewServer(manager, cache, store, logger).Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		dist.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.Addr()))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Single writer of the online-sources gauge.
	g.Go(func() error {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				metrics.SourcesOnline.Set(float64(manager.OnlineCount()))
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
		manager.StopAll()
		return nil
	})

	err = g.Wait()
	logger.Info("engine stopped")
	return err
}

// restoreSources replays the enabled catalog entries so a restart comes back
// with the same source set. Individual failures are logged and skipped.
func restoreSources(store *catalog.Store, manager *ingest.Manager, logger *zap.Logger) {
	records, err := store.ListEnabled()
	if err != nil {
		logger.Error("catalog restore failed", zap.Error(err))
		return
	}
	for _, rec := range records {
		if err := manager.AddSource(rec.SourceType, rec.IngestConfig()); err != nil {
			logger.Error("failed to restore source",
				zap.String("source_id", rec.ID.String()),
				zap.String("name", rec.Name),
				zap.Error(err))
		}
	}
	if len(records) > 0 {
		logger.Info("restored sources from catalog", zap.Int("count", len(records)))
	}
}
